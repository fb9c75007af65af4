package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter limits probe submissions per reporting region. Agents submit
// on a fixed cadence, so a region exceeding its budget indicates a
// misconfigured or runaway agent rather than legitimate load.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit rate.Limit
	burst int
}

// NewRateLimiter creates a new per-region rate limiter
func NewRateLimiter(rps, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// getLimiter returns the rate limiter for one region
func (rl *RateLimiter) getLimiter(region string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[region]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[region]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[region] = limiter
	return limiter
}

// limiterKey resolves the budget key for an upload: the request region
// when declared, the body envelope region otherwise (enveloped uploads
// carry it there instead of the query or header), and finally the caller
// address so anonymous submitters do not share one budget.
func limiterKey(r *http.Request) string {
	if region := regionFromRequest(r); region != "unknown" {
		return region
	}
	if region := peekBodyRegion(r); region != "" {
		return region
	}
	return r.RemoteAddr
}

// peekBodyRegion extracts the region field from an enveloped upload body,
// restoring the body for the handler. Bare-array and malformed bodies
// yield "".
func peekBodyRegion(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	r.Body.Close() // nolint:errcheck
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var envelope struct {
		Region string `json:"region"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Region
}

// RateLimitMiddleware enforces the per-region submission budget
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			region := limiterKey(r)

			if !rl.getLimiter(region).Allow() {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.", map[string]any{
					"region": region,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
