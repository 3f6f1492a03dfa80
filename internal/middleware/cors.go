package middleware

import (
	"net/http"
	"strings"
)

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         string
}

// DefaultCORSConfig returns permissive defaults suited to local development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "HEAD"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         "86400",
	}
}

// CORS returns middleware that reflects the request Origin so a page served
// from another dev port can call the proxy with credentials. Only preflight
// requests (OPTIONS with Access-Control-Request-Method) are answered here;
// every other OPTIONS request is forwarded like any other method.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				h.Set("Access-Control-Max-Age", cfg.MaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(&corsWriter{ResponseWriter: w}, r)
		})
	}
}

// corsWriter drops the proxy's own CORS values when the upstream response
// already carries them, so the browser never sees duplicates.
type corsWriter struct {
	http.ResponseWriter
	done bool
}

var corsHeaders = []string{"Access-Control-Allow-Origin", "Access-Control-Allow-Credentials"}

func (cw *corsWriter) dedupe() {
	if cw.done {
		return
	}
	cw.done = true
	h := cw.ResponseWriter.Header()
	for _, k := range corsHeaders {
		if vs := h.Values(k); len(vs) > 1 {
			h.Set(k, vs[len(vs)-1])
		}
	}
}

func (cw *corsWriter) WriteHeader(code int) {
	cw.dedupe()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *corsWriter) Write(b []byte) (int, error) {
	cw.dedupe()
	return cw.ResponseWriter.Write(b)
}

func (cw *corsWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
