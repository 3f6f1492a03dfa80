package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dskow/devproxy/internal/routing"
)

type validateOutput struct {
	Valid    bool     `json:"valid"`
	Path     string   `json:"path"`
	Rules    int      `json:"rules"`
	Warnings []string `json:"warnings"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and report warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if _, err := routing.FromConfig(cfg.Server.Proxy); err != nil {
				return err
			}

			res := validateOutput{
				Valid:    true,
				Path:     opts.configPath,
				Rules:    len(cfg.Server.Proxy),
				Warnings: cfg.Warnings,
			}
			if res.Warnings == nil {
				res.Warnings = []string{}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "%s: OK (%d proxy rules)\n", res.Path, res.Rules)
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
}
