// Package cli implements the devproxy command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dskow/devproxy/internal/config"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
)

// ConfigEnv names the environment variable holding the default config path.
const ConfigEnv = "DEVPROXY_CONFIG"

type rootOptions struct {
	configPath string
	jsonOutput bool
}

func defaultConfigPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return "devproxy.yaml"
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "devproxy",
		Short: "devproxy is a path-prefix routing proxy for front-end development",
		Long: `devproxy sits in front of a front-end dev server and forwards API prefixes
to their backends. Requests matching a configured prefix are rewritten and
sent to that prefix's target; everything else goes to the default upstream
unchanged.

Rules are read from a YAML file (--config, $DEVPROXY_CONFIG, or ./devproxy.yaml)
and evaluated in the order they are declared.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "path to configuration file")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output command results in JSON format")

	root.AddCommand(
		newServeCmd(opts),
		newRoutesCmd(opts),
		newMatchCmd(opts),
		newValidateCmd(opts),
		newTokenCmd(opts),
		newEchoCmd(),
		newVersionCmd(opts),
	)
	return root
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
