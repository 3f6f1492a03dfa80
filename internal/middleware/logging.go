// Package middleware provides the HTTP middleware wrapped around the proxy
// handler: access logging, request IDs, CORS, response headers, and panic
// recovery.
package middleware

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// LogLevelNone is a sentinel value indicating no log entry should be emitted.
// It is higher than any slog.Level so logger.Enabled() will always return false.
const LogLevelNone slog.Level = slog.LevelError + 100

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.statusCode = code
		sr.wroteHeader = code >= 200
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	return sr.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush and friends on the
// underlying writer, which streaming upstream responses depend on.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Hijack records a protocol switch. The reverse proxy hijacks the client
// connection after the upstream answers a WebSocket upgrade with 101.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(sr.ResponseWriter).Hijack()
	if err == nil {
		sr.statusCode = http.StatusSwitchingProtocols
		sr.wroteHeader = true
	}
	return conn, brw, err
}

// Logging returns middleware that writes one structured access log entry per
// request with method, path, status code, latency, client IP, and request ID.
// levelFor picks the level per request path; nil logs everything at Info.
func Logging(logger *slog.Logger, levelFor func(path string) slog.Level) func(http.Handler) http.Handler {
	if levelFor == nil {
		levelFor = func(string) slog.Level { return slog.LevelInfo }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			level := levelFor(r.URL.Path)
			if level == LogLevelNone || !logger.Enabled(r.Context(), level) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.statusCode,
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}

			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}
