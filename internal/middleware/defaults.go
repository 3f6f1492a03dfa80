package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// defaultsWriter fills in response headers the handler left unset. The values
// are applied when the header is committed, after the reverse proxy has copied
// the upstream response headers, so an upstream value is relayed as-is and
// never joined by a second one.
type defaultsWriter struct {
	http.ResponseWriter
	values  map[string]string
	applied bool
}

func (dw *defaultsWriter) apply() {
	if dw.applied {
		return
	}
	dw.applied = true
	h := dw.ResponseWriter.Header()
	for k, v := range dw.values {
		if len(h[k]) == 0 {
			h[k] = []string{v}
		}
	}
}

func (dw *defaultsWriter) WriteHeader(code int) {
	dw.apply()
	dw.ResponseWriter.WriteHeader(code)
}

func (dw *defaultsWriter) Write(b []byte) (int, error) {
	dw.apply()
	return dw.ResponseWriter.Write(b)
}

func (dw *defaultsWriter) Unwrap() http.ResponseWriter {
	return dw.ResponseWriter
}

// Hijack hands the connection over untouched. A switched-protocols response
// carries only the upstream's headers.
func (dw *defaultsWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	dw.applied = true
	return http.NewResponseController(dw.ResponseWriter).Hijack()
}

// withDefaults serves next with values as default response headers. Keys
// must be canonical. A handler that returns without writing still gets them.
func withDefaults(next http.Handler, values map[string]string, w http.ResponseWriter, r *http.Request) {
	dw := &defaultsWriter{ResponseWriter: w, values: values}
	next.ServeHTTP(dw, r)
	dw.apply()
}
