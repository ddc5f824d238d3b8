package infra

import (
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt
// number: one second doubled per attempt, never above a minute. A
// negative attempt counts as the first.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return backoffBase
	}

	// Past 30 doublings the shift would overflow int64 nanoseconds; the
	// cap applies long before that anyway.
	if attempt > 30 {
		return backoffCap
	}

	delay := backoffBase * time.Duration(1<<attempt)
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
