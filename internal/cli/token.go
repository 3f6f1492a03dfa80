package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dskow/devproxy/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token from dev_auth",
		Long: `Mint the same HS256 token devproxy injects on dev_auth rules, for use with
curl or an API client that bypasses the proxy.`,
		Example: `  curl -H "Authorization: Bearer $(devproxy token)" http://localhost:8080/me`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			minter, err := auth.NewMinter(cfg.DevAuth)
			if err != nil {
				return err
			}
			token, err := minter.Token()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				claims, err := auth.Parse(token, cfg.DevAuth.Secret)
				if err != nil {
					return err
				}
				return writeJSON(out, map[string]any{"token": token, "claims": claims})
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
}
