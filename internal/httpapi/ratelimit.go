package httpapi

import (
	"net/http"
	"time"

	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/types"
)

// scanConnectLimit/-Window cap device/scan and device/connect requests per
// remote address: both touch a physical wireless radio, and a
// misbehaving client hammering them is the one abuse case the closed
// error taxonomy names explicitly (RATE_LIMIT_EXCEEDED).
const (
	scanConnectLimit  = 10
	scanConnectWindow = time.Minute
)

// rateLimitMiddleware gates h behind conns' rate limiter, keyed by bucket
// name and remote address, mirroring the teacher's device-auth rate
// limiting (internal/db/ratelimit.go, CheckRateLimit(name, key, limit,
// window)). A nil conns skips the check entirely.
func rateLimitMiddleware(conns *db.Connections, name string, h http.HandlerFunc) http.HandlerFunc {
	if conns == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		limiter := conns.GetRateLimiter()
		if limiter != nil {
			result, err := limiter.CheckRateLimit(r.Context(), name, r.RemoteAddr, scanConnectLimit, scanConnectWindow)
			if err == nil && result != nil && !result.Allowed {
				writeErr(w, types.NewError(types.ErrRateLimitExceeded, "too many requests, retry later"))
				return
			}
		}
		h(w, r)
	}
}
