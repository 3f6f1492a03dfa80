// Package proxy forwards requests according to a routing.Table. Each rule
// gets its own reverse proxy; requests no rule matches go to the fallback
// handler untouched.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dskow/devproxy/internal/apierror"
	"github.com/dskow/devproxy/internal/metrics"
	"github.com/dskow/devproxy/internal/routing"
)

// TokenSource supplies the bearer token injected on dev_auth rules.
type TokenSource interface {
	Token() (string, error)
}

// Options configures a Handler.
type Options struct {
	Logger *slog.Logger
	// Tokens is required when any rule has DevAuth set.
	Tokens TokenSource
	// ErrorLogInterval bounds upstream error logging per rule to one entry
	// per interval after the first few. Zero means 10s.
	ErrorLogInterval time.Duration
}

type decisionKey struct{}

// upstream is the forwarding state for one rule.
type upstream struct {
	rule   routing.Rule
	proxy  *httputil.ReverseProxy
	errLog *rate.Sometimes
}

// Handler routes each request through the table and forwards it. It is safe
// for concurrent use.
type Handler struct {
	table     *routing.Table
	upstreams map[string]*upstream
	fallback  http.Handler
	tokens    TokenSource
	logger    *slog.Logger
}

// New builds a Handler. fallback serves passthrough requests; when nil they
// get a 404 JSON response.
func New(table *routing.Table, fallback http.Handler, opts Options) (*Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.ErrorLogInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	h := &Handler{
		table:     table,
		upstreams: make(map[string]*upstream, table.Len()),
		fallback:  fallback,
		tokens:    opts.Tokens,
		logger:    logger,
	}

	for _, rule := range table.Rules() {
		if _, dup := h.upstreams[rule.Prefix]; dup {
			// Unreachable: the first rule with this key always wins.
			continue
		}
		if rule.DevAuth && opts.Tokens == nil {
			return nil, fmt.Errorf("proxy rule %q: dev_auth requires a token source", rule.Prefix)
		}
		up := &upstream{
			rule:   rule,
			errLog: &rate.Sometimes{First: 3, Interval: interval},
		}
		up.proxy = &httputil.ReverseProxy{
			Rewrite:       h.rewrite(up),
			Transport:     newTransport(rule.Secure),
			FlushInterval: -1,
			ErrorHandler:  h.errorHandler(up),
			ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		}
		h.upstreams[rule.Prefix] = up
	}
	return h, nil
}

func newTransport(verifyTLS bool) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per rule for self-signed dev backends
	}
	return t
}

// Table returns the routing table the handler forwards by.
func (h *Handler) Table() *routing.Table {
	return h.table
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	d := h.table.RouteURL(r.URL)

	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()

	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	defer func() {
		metrics.Observe(d.Name(), r.Method, rec.statusCode, time.Since(start))
	}()

	if d.Passthrough() {
		if h.fallback == nil {
			apierror.WriteJSON(rec, r, http.StatusNotFound, apierror.RouteNotFound, "no matching route")
			return
		}
		h.fallback.ServeHTTP(rec, r)
		return
	}

	up := h.upstreams[d.Rule.Prefix]
	upgrade := isWebSocketUpgrade(r)
	if upgrade && !up.rule.WS {
		metrics.UpstreamErrors.WithLabelValues(d.Name(), "websocket_disabled").Inc()
		apierror.WriteJSON(rec, r, http.StatusBadRequest, apierror.WebSocketDisabled,
			fmt.Sprintf("websocket proxying is disabled for %s; set ws: true", d.Name()))
		return
	}

	ctx := r.Context()
	if up.rule.Timeout > 0 && !upgrade {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, up.rule.Timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, decisionKey{}, d)

	up.proxy.ServeHTTP(rec, r.WithContext(ctx))
}

// rewrite builds the outbound request. The path and host come from the
// routing decision stored in the request context by ServeHTTP.
func (h *Handler) rewrite(up *upstream) func(*httputil.ProxyRequest) {
	return func(pr *httputil.ProxyRequest) {
		d, _ := pr.In.Context().Value(decisionKey{}).(routing.Decision)
		if d.Rule == nil {
			d = h.table.RouteURL(pr.In.URL)
		}

		pr.Out.URL = d.URL(pr.In.URL.RawQuery)
		pr.SetXForwarded()
		if up.rule.ChangeOrigin {
			pr.Out.Host = up.rule.Target.Host
		} else {
			pr.Out.Host = pr.In.Host
		}

		for k, v := range up.rule.Headers {
			pr.Out.Header.Set(k, v)
		}

		if up.rule.DevAuth && pr.Out.Header.Get("Authorization") == "" {
			token, err := h.tokens.Token()
			if err != nil {
				h.logger.Error("minting dev token failed", "rule", up.rule.Prefix, "error", err)
				return
			}
			pr.Out.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

func (h *Handler) errorHandler(up *upstream) func(http.ResponseWriter, *http.Request, error) {
	name := up.rule.Prefix
	target := up.rule.Target.String()

	return func(w http.ResponseWriter, r *http.Request, err error) {
		ctx := r.Context()
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			metrics.UpstreamErrors.WithLabelValues(name, "timeout").Inc()
			up.errLog.Do(func() {
				h.logger.Warn("upstream timed out",
					"rule", name, "target", target, "path", r.URL.Path, "timeout", up.rule.Timeout)
			})
			apierror.WriteJSON(w, r, http.StatusGatewayTimeout, apierror.DeadlineExceeded,
				fmt.Sprintf("upstream did not respond within %s", up.rule.Timeout))

		case errors.Is(ctx.Err(), context.Canceled):
			metrics.UpstreamErrors.WithLabelValues(name, "cancelled").Inc()
			h.logger.Debug("client cancelled request", "rule", name, "path", r.URL.Path)
			apierror.WriteJSON(w, r, apierror.StatusClientClosedRequest, apierror.RequestCancelled, "client closed request")

		default:
			metrics.UpstreamErrors.WithLabelValues(name, "unreachable").Inc()
			up.errLog.Do(func() {
				h.logger.Error("upstream unreachable",
					"rule", name, "target", target, "path", r.URL.Path, "error", err)
			})
			apierror.WriteJSON(w, r, http.StatusBadGateway, apierror.UpstreamUnreachable, "upstream service unreachable")
		}
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		headerContainsToken(r.Header, "Connection", "upgrade")
}

func headerContainsToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
