package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dskow/devproxy/internal/echo"
)

func newEchoCmd() *cobra.Command {
	var (
		addr string
		name string
	)

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a backend that echoes each request back as JSON",
		Long: `Run a stand-in backend that answers every request with the method, Host,
path, query, and headers it received. Point a proxy rule at it to check
what a real backend would see after rewriting. GET /__status/<code>
answers with that status code.`,
		Example: `  devproxy echo --addr :8080 --name api`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s echo backend listening on %s\n", name, ln.Addr())

			srv := &http.Server{Handler: echo.Handler(name), ReadHeaderTimeout: 10 * time.Second}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&name, "name", "echo", "service name reported in responses")
	return cmd
}
