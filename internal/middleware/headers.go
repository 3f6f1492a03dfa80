package middleware

import "net/http"

// ResponseHeaders returns middleware that adds fixed headers to every
// response. A header the upstream response already carries is relayed
// unchanged and the configured value is dropped.
func ResponseHeaders(headers map[string]string) func(http.Handler) http.Handler {
	canonical := make(map[string]string, len(headers))
	for k, v := range headers {
		canonical[http.CanonicalHeaderKey(k)] = v
	}

	return func(next http.Handler) http.Handler {
		if len(canonical) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			withDefaults(next, canonical, w, r)
		})
	}
}
