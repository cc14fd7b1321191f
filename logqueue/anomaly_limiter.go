// File: logqueue/anomaly_limiter.go
// License: Apache-2.0
package logqueue

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// AnomalyLimiter caps how often a given category of noisy-but-harmless log
// line (chiefly the pool self-heal anomaly, spec §4.B) is allowed through,
// so a repeating accounting drift cannot itself flood the log sink (spec
// §7 "pathological error storms cannot stall producers"). The underlying
// counters that drive monitoring are never rate-limited, only the line.
type AnomalyLimiter struct {
	limiter  *catrate.Limiter
	category string
}

// NewAnomalyLimiter allows at most maxPerWindow occurrences of category
// within window.
func NewAnomalyLimiter(category string, window time.Duration, maxPerWindow int) *AnomalyLimiter {
	return &AnomalyLimiter{
		limiter:  catrate.NewLimiter(map[time.Duration]int{window: maxPerWindow}),
		category: category,
	}
}

// Allow reports whether another occurrence may be logged right now.
func (a *AnomalyLimiter) Allow() bool {
	_, ok := a.limiter.Allow(a.category)
	return ok
}
