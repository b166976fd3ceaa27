// Package requesttime pins one "now" per HTTP request so every timestamp a
// request produces agrees.
package requesttime

import (
	"net/http"
	"time"

	"casegate/pkg/requestcontext"
)

// Middleware stores the arrival time in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), time.Now())))
	})
}
