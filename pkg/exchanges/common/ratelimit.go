package common

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UsageTracker tracks API rate-limit weight reported by the venue.
type UsageTracker struct {
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewUsageTracker creates a tracker for the venue's weight budget.
// limit: maximum weight allowed per window (e.g. 1200 for Binance spot).
func NewUsageTracker(limit int, resetInterval time.Duration, logger *zap.Logger) *UsageTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageTracker{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
		logger:        logger,
	}
}

// UpdateFromHeader records the used weight from an API response header.
func (t *UsageTracker) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastReset) >= t.resetInterval {
		t.usedWeight = 0
		t.lastReset = time.Now()
	}
	t.usedWeight = weight

	percentage := float64(t.usedWeight) / float64(t.limit) * 100
	if percentage >= 95 {
		t.logger.Error("rate limit critical, approaching ban threshold",
			zap.Int("used", t.usedWeight), zap.Int("limit", t.limit))
	} else if percentage >= 80 {
		t.logger.Warn("rate limit warning",
			zap.Int("used", t.usedWeight), zap.Int("limit", t.limit))
	}
}

// Usage returns current usage within the window.
func (t *UsageTracker) Usage() (used, limit int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if time.Since(t.lastReset) >= t.resetInterval {
		return 0, t.limit
	}
	return t.usedWeight, t.limit
}
