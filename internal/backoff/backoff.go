// Package backoff computes reconnect delays.
package backoff

import (
	"fmt"
	"time"
)

// Policy is a capped exponential backoff. Attempts are never limited; only the
// delay between them is.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Default is used when configuration leaves the policy empty.
var Default = Policy{
	Initial: 500 * time.Millisecond,
	Max:     30 * time.Second,
	Factor:  2,
}

func (p Policy) String() string {
	return fmt.Sprintf("%v*%.1f^n<=%v", p.Initial, p.factor(), p.Max)
}

// DelayAfter returns how long to wait after the given number of consecutive failures.
func (p Policy) DelayAfter(failedAttempts int) time.Duration {
	if failedAttempts <= 0 {
		panic("failed attempts must be positive")
	}
	delay := p.Initial
	if delay <= 0 {
		delay = Default.Initial
	}
	limit := p.Max
	if limit <= 0 {
		limit = Default.Max
	}
	factor := p.factor()

	for i := 1; i < failedAttempts && delay < limit; i++ {
		delay = time.Duration(factor*float64(delay) + 0.5)
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

func (p Policy) factor() float64 {
	if p.Factor < 1 {
		return Default.Factor
	}
	return p.Factor
}
