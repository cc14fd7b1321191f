// File: stats/rate_test.go
// License: Apache-2.0
package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateAccumulatesTotals(t *testing.T) {
	r := NewRate()
	r.Add(8)
	r.Add(4)
	s := r.Tick()
	assert.EqualValues(t, 2, s.TotalFrames)
	assert.EqualValues(t, 12, s.TotalBytes)
}

func TestRateResetZeroesTotals(t *testing.T) {
	r := NewRate()
	r.Add(8)
	_ = r.Tick()
	r.Reset()
	s := r.Tick()
	assert.Zero(t, s.TotalFrames)
	assert.Zero(t, s.TotalBytes)
	assert.Zero(t, s.PeakFPS)
}
