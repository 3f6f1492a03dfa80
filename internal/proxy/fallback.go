package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/dskow/devproxy/internal/apierror"
	"github.com/dskow/devproxy/internal/metrics"
	"github.com/dskow/devproxy/internal/routing"
)

// NewFallback returns a reverse proxy to the default upstream. Requests are
// forwarded unmodified: the path is appended to the target's base path and
// the client's Host header is kept. WebSocket upgrades (hot reload clients)
// pass through.
func NewFallback(target *url.URL, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	errLog := &rate.Sometimes{First: 3, Interval: 10 * time.Second}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
		},
		FlushInterval: -1,
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if r.Context().Err() != nil {
				metrics.UpstreamErrors.WithLabelValues(routing.PassthroughName, "cancelled").Inc()
				apierror.WriteJSON(w, r, apierror.StatusClientClosedRequest, apierror.RequestCancelled, "client closed request")
				return
			}
			metrics.UpstreamErrors.WithLabelValues(routing.PassthroughName, "unreachable").Inc()
			errLog.Do(func() {
				logger.Error("default upstream unreachable", "target", target.String(), "path", r.URL.Path, "error", err)
			})
			apierror.WriteJSON(w, r, http.StatusBadGateway, apierror.UpstreamUnreachable, "upstream service unreachable")
		},
	}
}
