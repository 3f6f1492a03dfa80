package proxy

import (
	"bufio"
	"net"
	"net/http"
)

// statusRecorder captures the status code for metrics while still writing
// straight through to the client.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = code >= 200
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.written = true
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(sr.ResponseWriter).Hijack()
	if err == nil {
		sr.statusCode = http.StatusSwitchingProtocols
		sr.written = true
	}
	return conn, brw, err
}
