package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dskow/devproxy/internal/logging"
	"github.com/dskow/devproxy/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy",
		Long: `Start the proxy and serve until SIGINT or SIGTERM, then drain in-flight
requests for up to server.shutdown_timeout.

The config file is watched; edits are validated and reported, and take
effect on the next restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			logger, closer, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer closer.Close()

			for _, w := range cfg.Warnings {
				logger.Warn("config warning", "message", w)
			}
			logger.Info("configuration loaded",
				"path", opts.configPath,
				"port", cfg.Server.Port,
				"rules", len(cfg.Server.Proxy),
				"tls", cfg.Server.TLS.Enabled,
				"metrics_enabled", cfg.Metrics.IsEnabled(),
				"admin_enabled", cfg.Admin.IsEnabled(),
			)

			watchPath := opts.configPath
			if noWatch {
				watchPath = ""
			}
			srv, err := server.New(cfg, watchPath, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the config file for changes")
	return cmd
}
