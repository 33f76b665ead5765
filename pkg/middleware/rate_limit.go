package middleware

import (
	"net/http"
	"sync"
	"time"

	"gymbook/pkg/logger"
)

type MemberExtractor func(r *http.Request) string

// MemberRateLimiter caps requests per member over a sliding window. It sits
// after MemberAuth, so unauthenticated traffic never reaches it.
type MemberRateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor MemberExtractor
	log       *logger.Logger
	stopCh    chan struct{}
}

func NewMemberRateLimiter(limit int, window time.Duration, extractor MemberExtractor, log *logger.Logger) *MemberRateLimiter {
	limiter := &MemberRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *MemberRateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for member, timestamps := range rl.requests {
				if len(timestamps) == 0 || time.Since(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, member)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemberRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *MemberRateLimiter) Allow(memberID string) bool {
	if memberID == "" {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	validTimestamps := make([]time.Time, 0)
	for _, ts := range rl.requests[memberID] {
		if now.Sub(ts) < rl.window {
			validTimestamps = append(validTimestamps, ts)
		}
	}

	if len(validTimestamps) >= rl.limit {
		rl.requests[memberID] = validTimestamps
		return false
	}

	rl.requests[memberID] = append(validTimestamps, now)
	return true
}

func MemberRateLimit(limiter *MemberRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID := extractMemberID(r, limiter.extractor)

			if memberID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(memberID) {
				rejectRateLimited(w, limiter.log, r, memberID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractMemberID(r *http.Request, extractor MemberExtractor) string {
	if extractor == nil {
		return MemberFromContext(r.Context())
	}
	return extractor(r)
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, memberID string) {
	log.Warn("Rate limit exceeded",
		"request_id", requestIDFromContext(r.Context()),
		"member_id", memberID,
		"path", r.URL.Path,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
}
