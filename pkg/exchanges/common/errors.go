package common

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for exchange operations.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTradingProhibited   = errors.New("trading prohibited for account or asset")
	ErrOrderNotFound       = errors.New("order not found")
)

// TooManyRequestsError signals the venue rate-limited us. RetryAfter is
// the venue's suggested wait when present, zero otherwise.
type TooManyRequestsError struct {
	RetryAfter time.Duration
}

func (e *TooManyRequestsError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
	}
	return "too many requests"
}

// IsTooManyRequests reports whether err is a rate-limit rejection and
// returns the suggested wait if the venue provided one.
func IsTooManyRequests(err error) (time.Duration, bool) {
	var tmr *TooManyRequestsError
	if errors.As(err, &tmr) {
		return tmr.RetryAfter, true
	}
	return 0, false
}
