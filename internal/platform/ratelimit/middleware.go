package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"casegate/pkg/platform/httputil"
	metadata "casegate/pkg/platform/middleware/metadata"
	request "casegate/pkg/platform/middleware/request"
)

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware rejects clients that open connections faster than the window
// allows. It expects metadata.ClientMetadata to run first.
func Middleware(limiter *SlidingWindow, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := metadata.GetClientIP(ctx)
			if ip == "" {
				ip = metadata.ClientIPFromRequest(r)
			}

			result := limiter.Allow(ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := result.RetryAfter(limiter.now())
				logger.WarnContext(ctx, "connection rate limit exceeded",
					"request_id", request.GetRequestID(ctx),
					"client_ip", ip,
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "too many connection attempts, try again later",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
