package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a request end to end. It must exceed the
// provider lookup timeouts so a login callback can finish.
const DefaultRequestTimeout = 15 * time.Second

const timeoutBody = `{"success":false,"error":"Service Unavailable","message":"Request timed out"}`

// Timeout cancels the request context after timeout and answers 503 with a
// JSON body if the handler has not written a response by then.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
