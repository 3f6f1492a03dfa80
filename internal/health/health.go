// Package health provides the liveness and readiness endpoints. Readiness
// reports whether every configured upstream accepts TCP connections.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dskow/devproxy/internal/routing"
)

// Pre-serialized liveness response avoids json.Encoder allocation.
var livenessBody = []byte(`{"status":"ok"}` + "\n")

const (
	readinessCacheTTL = 5 * time.Second
	dialTimeout       = 2 * time.Second
)

// Upstream is one dial target checked by the readiness probe.
type Upstream struct {
	Name   string
	Target *url.URL
}

// Upstreams lists the rule targets of table in declaration order, followed
// by the default upstream when fallback is non-nil.
func Upstreams(table *routing.Table, fallback *url.URL) []Upstream {
	rules := table.Rules()
	out := make([]Upstream, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, Upstream{Name: r.Prefix, Target: r.Target})
	}
	if fallback != nil {
		out = append(out, Upstream{Name: routing.PassthroughName, Target: fallback})
	}
	return out
}

// Handler serves the health and readiness endpoints.
type Handler struct {
	upstreams []Upstream
	logger    *slog.Logger

	// Cached readiness result so a polling browser tab doesn't dial every
	// upstream on every request.
	cacheMu      sync.RWMutex
	cachedResult []byte
	cachedStatus int
	cachedAt     time.Time
}

// New creates a health Handler.
func New(upstreams []Upstream, logger *slog.Logger) *Handler {
	return &Handler{upstreams: upstreams, logger: logger}
}

// RegisterRoutes adds the health endpoints under prefix, e.g. "/__devproxy".
func (h *Handler) RegisterRoutes(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/health", h.liveness)
	mux.HandleFunc("GET "+prefix+"/ready", h.readiness)
}

func (h *Handler) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(livenessBody) //nolint:errcheck
}

type upstreamStatus struct {
	Target string `json:"target"`
	Status string `json:"status"`
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	h.cacheMu.RLock()
	if h.cachedResult != nil && time.Since(h.cachedAt) < readinessCacheTTL {
		body, status := h.cachedResult, h.cachedStatus
		h.cacheMu.RUnlock()
		writeJSON(w, status, body)
		return
	}
	h.cacheMu.RUnlock()

	// Several rules often share one backend; dial each address once.
	addrs := make(map[string]string, len(h.upstreams))
	for _, u := range h.upstreams {
		addrs[dialAddr(u.Target)] = ""
	}

	// The result is cached, so a probe client hanging up must not turn
	// into a cached "unreachable".
	ctx := context.WithoutCancel(r.Context())
	var mu sync.Mutex
	var wg sync.WaitGroup
	for addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			status := "ok"
			if err := dial(ctx, addr); err != nil {
				h.logger.Warn("upstream unreachable", "addr", addr, "error", err)
				status = "unreachable"
			}
			mu.Lock()
			addrs[addr] = status
			mu.Unlock()
		}(addr)
	}
	wg.Wait()

	results := make(map[string]upstreamStatus, len(h.upstreams))
	ready := true
	for _, u := range h.upstreams {
		status := addrs[dialAddr(u.Target)]
		if status != "ok" {
			ready = false
		}
		results[u.Name] = upstreamStatus{Target: u.Target.String(), Status: status}
	}

	httpStatus := http.StatusOK
	statusStr := "ready"
	if !ready {
		httpStatus = http.StatusServiceUnavailable
		statusStr = "not ready"
	}

	body, _ := json.Marshal(map[string]any{
		"status":    statusStr,
		"upstreams": results,
	})
	body = append(body, '\n')

	h.cacheMu.Lock()
	h.cachedResult = body
	h.cachedStatus = httpStatus
	h.cachedAt = time.Now()
	h.cacheMu.Unlock()

	writeJSON(w, httpStatus, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck
}

func dial(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// dialAddr returns host:port for u, filling in the scheme's default port.
func dialAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
