// File: stats/rate.go
// License: Apache-2.0
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// clock is the shared millisecond-resolution cache used for rate
// sampling; a single coarse clock read is cheap enough to call from the
// 1 Hz monitor loop without syscall overhead (grounded in agilira/lethe's
// own use of timecache for its log-rotation timestamps).
var clock = timecache.DefaultCache()

// Rate tracks cumulative frame/byte counts for one bus plus the peak
// instantaneous rate observed across successive Tick calls (spec §3.5
// "frame/byte rx rates, peak rates"). Tick is meant to be called roughly
// once per second by the monitor loop; the rate it reports is exact for
// whatever interval actually elapsed between calls.
type Rate struct {
	frames atomic.Int64
	bytes  atomic.Int64

	mu         sync.Mutex
	lastFrames int64
	lastBytes  int64
	lastAt     time.Time
	peakFPS    float64
	peakBPS    float64
}

// NewRate creates a zeroed Rate tracker.
func NewRate() *Rate { return &Rate{lastAt: clock.CachedTime()} }

// Add folds one received frame of n payload bytes into the cumulative
// counters. Called from the producer or consumer hot path; cheap enough
// not to require batching.
func (r *Rate) Add(n int) {
	r.frames.Add(1)
	r.bytes.Add(int64(n))
}

// Sample is a point-in-time rate readout.
type Sample struct {
	FramesPerSec float64
	BytesPerSec  float64
	PeakFPS      float64
	PeakBPS      float64
	TotalFrames  int64
	TotalBytes   int64
}

// Tick computes the rate since the previous Tick (or since creation, for
// the first call) and folds it into the running peak.
func (r *Rate) Tick() Sample {
	frames := r.frames.Load()
	bytes := r.bytes.Load()
	now := clock.CachedTime()

	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := now.Sub(r.lastAt).Seconds()
	var fps, bps float64
	if elapsed > 0 {
		fps = float64(frames-r.lastFrames) / elapsed
		bps = float64(bytes-r.lastBytes) / elapsed
	}
	if fps > r.peakFPS {
		r.peakFPS = fps
	}
	if bps > r.peakBPS {
		r.peakBPS = bps
	}
	r.lastFrames = frames
	r.lastBytes = bytes
	r.lastAt = now

	return Sample{
		FramesPerSec: fps,
		BytesPerSec:  bps,
		PeakFPS:      r.peakFPS,
		PeakBPS:      r.peakBPS,
		TotalFrames:  frames,
		TotalBytes:   bytes,
	}
}

// Reset zeroes cumulative counters and peaks, keeping the tracker usable.
func (r *Rate) Reset() {
	r.frames.Store(0)
	r.bytes.Store(0)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFrames = 0
	r.lastBytes = 0
	r.lastAt = clock.CachedTime()
	r.peakFPS = 0
	r.peakBPS = 0
}
