// Package admin provides read-only inspection endpoints: the effective rule
// table, a routing dry run, and the loaded configuration. All endpoints are
// protected by an IP allowlist.
package admin

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/dskow/devproxy/internal/apierror"
	"github.com/dskow/devproxy/internal/config"
	"github.com/dskow/devproxy/internal/routing"
)

const redacted = "***"

// Handler provides admin API endpoints.
type Handler struct {
	table       *routing.Table
	cfg         *config.Config
	allowedNets []*net.IPNet
	logger      *slog.Logger
}

// New creates a new admin Handler. The allowlist CIDRs must be pre-validated
// (config validation ensures this).
func New(table *routing.Table, cfg *config.Config, allowlist []string, logger *slog.Logger) *Handler {
	nets := make([]*net.IPNet, 0, len(allowlist))
	for _, cidr := range allowlist {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // already validated by config
		}
		nets = append(nets, ipNet)
	}
	return &Handler{
		table:       table,
		cfg:         cfg,
		allowedNets: nets,
		logger:      logger,
	}
}

// RegisterRoutes adds admin routes under prefix, e.g. "/__devproxy".
func (h *Handler) RegisterRoutes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/routes", h.Guard(http.HandlerFunc(h.routesHandler)))
	mux.Handle(prefix+"/config", h.Guard(http.HandlerFunc(h.configHandler)))
}

// Guard wraps a handler with the GET-only check and the IP allowlist.
func (h *Handler) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			apierror.WriteJSON(w, r, http.StatusMethodNotAllowed, apierror.MethodNotAllowed, "admin endpoints are read-only")
			return
		}

		ip := extractIP(r.RemoteAddr)
		if !h.isAllowed(ip) {
			h.logger.Warn("admin access denied", "client_ip", ip, "path", r.URL.Path)
			apierror.WriteJSON(w, r, http.StatusForbidden, apierror.Forbidden, "client address not in admin.ip_allowlist")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) isAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RuleInfo describes one rule in evaluation order.
type RuleInfo struct {
	Order        int               `json:"order"`
	Prefix       string            `json:"prefix"`
	Match        string            `json:"match"`
	Target       string            `json:"target"`
	ChangeOrigin bool              `json:"change_origin"`
	WS           bool              `json:"ws"`
	Secure       bool              `json:"secure"`
	Timeout      string            `json:"timeout,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	DevAuth      bool              `json:"dev_auth"`
}

// DecisionInfo is the routing outcome for one path.
type DecisionInfo struct {
	Path        string `json:"path"`
	Rule        string `json:"rule"`
	Passthrough bool   `json:"passthrough"`
	Forward     string `json:"forward"`
}

// Describe lists the table's rules. The CLI prints the same view.
func Describe(table *routing.Table) []RuleInfo {
	rules := table.Rules()
	out := make([]RuleInfo, len(rules))
	for i, r := range rules {
		info := RuleInfo{
			Order:        i + 1,
			Prefix:       r.Prefix,
			Match:        r.Match.String(),
			Target:       r.Target.String(),
			ChangeOrigin: r.ChangeOrigin,
			WS:           r.WS,
			Secure:       r.Secure,
			Headers:      r.Headers,
			DevAuth:      r.DevAuth,
		}
		if r.Timeout > 0 {
			info.Timeout = r.Timeout.String()
		}
		out[i] = info
	}
	return out
}

// Explain routes path through table without sending anything.
func Explain(table *routing.Table, path string) DecisionInfo {
	d := table.Route(path)
	return DecisionInfo{
		Path:        path,
		Rule:        d.Name(),
		Passthrough: d.Passthrough(),
		Forward:     d.URL("").String(),
	}
}

func (h *Handler) routesHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"rules": Describe(h.table)}
	if p := r.URL.Query().Get("path"); p != "" {
		resp["decision"] = Explain(h.table, p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Redact(h.cfg))
}

// Redact returns a copy of cfg with secrets replaced: the dev_auth signing
// secret and credential headers configured on rules.
func Redact(cfg *config.Config) config.Config {
	out := *cfg
	if out.DevAuth.Secret != "" {
		out.DevAuth.Secret = redacted
	}

	out.Server.Proxy = make(config.ProxyRules, len(cfg.Server.Proxy))
	for i, rule := range cfg.Server.Proxy {
		if len(rule.Headers) > 0 {
			headers := make(map[string]string, len(rule.Headers))
			for k, v := range rule.Headers {
				if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
					v = redacted
				}
				headers[k] = v
			}
			rule.Headers = headers
		}
		out.Server.Proxy[i] = rule
	}
	return out
}

var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"X-Api-Key":           true,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
