// File: pool/stats.go
// License: Apache-2.0
package pool

import "time"

// Stats is a point-in-time snapshot of one Pool's counters (spec §3.5).
// Processing-time and mutex-wait histograms live in the stats package,
// which aggregates this snapshot alongside consumer-side timing.
type Stats struct {
	Capacity  int
	FreeCount int

	TotalAllocated int64
	TotalFreed     int64

	DropsAt100 int64
	DropsAt95  int64
	DropsAt90  int64

	ConsecutiveDrops    int64
	MaxConsecutiveDrops int64

	AccountingAnomalies int64

	// PeakFillRatio and PeakFillAt record the highest observed fill level
	// and when it occurred (spec §3.5 "buffer high-water timestamps").
	PeakFillRatio float64
	PeakFillAt    time.Time

	lastAnomaly bool
}

// InUse returns the number of slots currently allocated.
func (s Stats) InUse() int { return s.Capacity - s.FreeCount }
