package tools

import (
	"sync"
	"time"
)

const (
	AllowedOverTime = 10
	TimePeriod      = time.Minute
)

type window struct {
	start time.Time
	count int
}

// RateLimiter counts requests per chat over fixed windows.
type RateLimiter struct {
	allowed int
	period  time.Duration
	windows map[int64]window
	mu      sync.Mutex
}

func NewRateLimiter(allowed int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		allowed: allowed,
		period:  period,
		windows: make(map[int64]window),
	}
}

// Allow counts a request from chatID at now. When the chat is over its allowance
// it also returns how long until the current window ends.
func (r *RateLimiter) Allow(chatID int64, now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[chatID]
	if !ok || now.Sub(w.start) >= r.period {
		r.sweep(now)
		r.windows[chatID] = window{start: now, count: 1}
		return true, 0
	}
	w.count++
	r.windows[chatID] = w
	if w.count > r.allowed {
		return false, r.period - now.Sub(w.start)
	}
	return true, 0
}

// sweep drops expired windows so chats that went quiet don't pile up.
func (r *RateLimiter) sweep(now time.Time) {
	for chatID, w := range r.windows {
		if now.Sub(w.start) >= r.period {
			delete(r.windows, chatID)
		}
	}
}
