// Package server assembles the devproxy HTTP server: the middleware chain,
// the proxy handler, the default upstream, and the internal endpoints under
// /__devproxy/.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/dskow/devproxy/internal/admin"
	"github.com/dskow/devproxy/internal/auth"
	"github.com/dskow/devproxy/internal/config"
	"github.com/dskow/devproxy/internal/health"
	"github.com/dskow/devproxy/internal/metrics"
	"github.com/dskow/devproxy/internal/middleware"
	"github.com/dskow/devproxy/internal/proxy"
	"github.com/dskow/devproxy/internal/routing"
	"github.com/dskow/devproxy/internal/static"
	"github.com/dskow/devproxy/internal/tlsutil"
)

// InternalPrefix namespaces the proxy's own endpoints so they never shadow
// application paths.
const InternalPrefix = "/__devproxy"

// Server is a configured, not yet listening, dev proxy.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	table      *routing.Table
	handler    http.Handler
	certs      *tlsutil.CertLoader
	minTLS     uint16
}

// New builds the server from a validated config. configPath enables the
// config file watcher; pass "" to disable it.
func New(cfg *config.Config, configPath string, logger *slog.Logger) (*Server, error) {
	table, err := routing.FromConfig(cfg.Server.Proxy)
	if err != nil {
		return nil, err
	}

	var opts proxy.Options
	opts.Logger = logger
	if cfg.DevAuth.Configured() {
		minter, err := auth.NewMinter(cfg.DevAuth)
		if err != nil {
			return nil, err
		}
		opts.Tokens = minter
	}

	fallback, fallbackURL, err := newFallback(cfg.Server.Fallback, logger)
	if err != nil {
		return nil, err
	}

	proxyHandler, err := proxy.New(table, fallback, opts)
	if err != nil {
		return nil, err
	}

	internal := http.NewServeMux()
	health.New(health.Upstreams(table, fallbackURL), logger).RegisterRoutes(internal, InternalPrefix)
	if cfg.Admin.IsEnabled() {
		admin.New(table, cfg, cfg.Admin.IPAllowlist, logger).RegisterRoutes(internal, InternalPrefix)
	}
	if cfg.Metrics.IsEnabled() {
		metrics.Init()
		internal.Handle(InternalPrefix+"/metrics", metrics.Handler())
	}

	// Recovery → RequestID → Logging → CORS → ResponseHeaders → internal | proxy
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isInternal(r.URL.Path) {
			internal.ServeHTTP(w, r)
			return
		}
		proxyHandler.ServeHTTP(w, r)
	})
	handler = middleware.ResponseHeaders(cfg.Server.Headers)(handler)
	if cfg.Server.CORSEnabled() {
		handler = middleware.CORS(middleware.DefaultCORSConfig())(handler)
	}
	handler = middleware.Logging(logger, accessLogLevel)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(logger)(handler)

	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		table:      table,
		handler:    handler,
	}

	if cfg.Server.TLS.Enabled {
		s.minTLS, err = tlsutil.ParseVersion(cfg.Server.TLS.MinVersion)
		if err != nil {
			return nil, err
		}
		s.certs, err = tlsutil.New(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, logger)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newFallback(cfg config.FallbackConfig, logger *slog.Logger) (http.Handler, *url.URL, error) {
	switch {
	case cfg.Target != "":
		target, err := url.Parse(cfg.Target)
		if err != nil {
			return nil, nil, fmt.Errorf("server.fallback.target: %w", err)
		}
		return proxy.NewFallback(target, logger), target, nil
	case cfg.StaticDir != "":
		h, err := static.New(cfg.StaticDir, cfg.SPA)
		if err != nil {
			return nil, nil, fmt.Errorf("server.fallback: %w", err)
		}
		return h, nil, nil
	}
	return nil, nil, nil
}

func isInternal(path string) bool {
	return strings.HasPrefix(path, InternalPrefix+"/")
}

// accessLogLevel keeps probe and scrape traffic out of the info log.
func accessLogLevel(path string) slog.Level {
	if isInternal(path) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Table returns the routing table the server forwards by.
func (s *Server) Table() *routing.Table {
	return s.table
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then drains in-flight requests
// for up to server.shutdown_timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	if s.configPath != "" {
		w := config.NewWatcher(s.configPath, s.logger, nil)
		go func() {
			if err := w.Run(bgCtx); err != nil {
				s.logger.Warn("config file watcher stopped", "error", err)
			}
		}()
	}

	scheme := "http"
	if s.certs != nil {
		scheme = "https"
		srv.TLSConfig = s.certs.TLSConfig(s.minTLS)
		go func() {
			if err := s.certs.Watch(bgCtx); err != nil {
				s.logger.Warn("TLS certificate watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certs != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()

	s.logger.Info("devproxy listening",
		"url", fmt.Sprintf("%s://%s", scheme, ln.Addr()),
		"rules", s.table.Len(),
	)
	for _, r := range s.table.Rules() {
		s.logger.Info("proxy rule", "prefix", r.Prefix, "target", r.Target.String(),
			"match", r.Match.String(), "change_origin", r.ChangeOrigin)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("draining in-flight requests", "timeout", s.cfg.Server.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	s.logger.Info("devproxy stopped gracefully")
	return nil
}
