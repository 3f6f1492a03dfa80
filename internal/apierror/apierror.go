// Package apierror provides the JSON error body the proxy writes when it
// answers a request itself instead of relaying an upstream response.
package apierror

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is a machine-readable error classification string.
type ErrorCode string

// Error codes. Frontend code and scripts may match on these, so existing
// codes are never renamed.
const (
	RouteNotFound       ErrorCode = "DEVPROXY_ROUTE_NOT_FOUND"
	UpstreamUnreachable ErrorCode = "DEVPROXY_UPSTREAM_UNREACHABLE"
	DeadlineExceeded    ErrorCode = "DEVPROXY_DEADLINE_EXCEEDED"
	RequestCancelled    ErrorCode = "DEVPROXY_REQUEST_CANCELLED"
	WebSocketDisabled   ErrorCode = "DEVPROXY_WEBSOCKET_DISABLED"
	Forbidden           ErrorCode = "DEVPROXY_FORBIDDEN"
	MethodNotAllowed    ErrorCode = "DEVPROXY_METHOD_NOT_ALLOWED"
	InternalError       ErrorCode = "DEVPROXY_INTERNAL_ERROR"
)

// StatusClientClosedRequest is the non-standard status recorded when the
// client went away before the upstream answered.
const StatusClientClosedRequest = 499

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Pre-serialized bodies for the errors a stopped backend produces on every
// request. These do NOT include request_id since it varies per request.
var (
	preRouteNotFound       = mustMarshal(http.StatusNotFound, RouteNotFound, "no matching route")
	preUpstreamUnreachable = mustMarshal(http.StatusBadGateway, UpstreamUnreachable, "upstream service unreachable")
)

func mustMarshal(status int, code ErrorCode, message string) []byte {
	b, _ := json.Marshal(ErrorResponse{
		Error:     statusText(status),
		ErrorCode: string(code),
		Message:   message,
	})
	return append(b, '\n')
}

func statusText(status int) string {
	if status == StatusClientClosedRequest {
		return "Client Closed Request"
	}
	return http.StatusText(status)
}

// WriteJSON writes a structured JSON error response. When the request carries
// an X-Request-ID it is echoed in the body. r may be nil.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	requestID := ""
	if r != nil {
		requestID = r.Header.Get("X-Request-ID")
	}

	if requestID == "" {
		if body := preSerialized(status, code, message); body != nil {
			w.Write(body) //nolint:errcheck
			return
		}
	}

	json.NewEncoder(w).Encode(ErrorResponse{ //nolint:errcheck
		Error:     statusText(status),
		ErrorCode: string(code),
		Message:   message,
		RequestID: requestID,
	})
}

func preSerialized(status int, code ErrorCode, message string) []byte {
	switch {
	case code == RouteNotFound && status == http.StatusNotFound && message == "no matching route":
		return preRouteNotFound
	case code == UpstreamUnreachable && status == http.StatusBadGateway && message == "upstream service unreachable":
		return preUpstreamUnreachable
	}
	return nil
}
