// Package echo is a stand-in backend that reports the request it received.
// Pointing a proxy rule at it shows exactly what path, Host, and headers the
// real backend would see after rewriting.
package echo

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Request is the JSON body returned for every echoed request.
type Request struct {
	Service    string            `json:"service"`
	Method     string            `json:"method"`
	Host       string            `json:"host"`
	Path       string            `json:"path"`
	Query      string            `json:"query,omitempty"`
	Headers    map[string]string `json:"headers"`
	RemoteAddr string            `json:"remote_addr"`
	Timestamp  string            `json:"timestamp"`
}

// StatusPrefix answers with an arbitrary status code, e.g. /__status/503,
// to see how the browser app handles backend errors.
const StatusPrefix = "/__status/"

// Handler returns the echo handler for a service called name.
func Handler(name string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(StatusPrefix, func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, StatusPrefix))
		if err != nil || code < 200 || code > 599 {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, map[string]any{
			"service":        name,
			"requested_code": code,
			"message":        http.StatusText(code),
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Request{
			Service:    name,
			Method:     r.Method,
			Host:       r.Host,
			Path:       r.URL.Path,
			Query:      r.URL.RawQuery,
			Headers:    flattenHeaders(r.Header),
			RemoteAddr: r.RemoteAddr,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// flattenHeaders joins repeated header values with ", ".
func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ", ")
	}
	return flat
}
