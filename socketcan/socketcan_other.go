//go:build !linux

// File: socketcan/socketcan_other.go
// Non-Linux stub: AF_CAN raw sockets are a Linux-only facility. Building
// the core on another OS compiles cleanly but Open always fails, so a
// developer laptop build doesn't need CAN hardware to compile the rest
// of the module.
// License: Apache-2.0
package socketcan

import (
	"fmt"
	"runtime"

	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
	"github.com/fleetedge/canbus-core/stats"
)

// Producer is an unusable stub on non-Linux platforms.
type Producer struct{}

// Option configures a Producer at construction time.
type Option func(*Producer)

// WithLogQueue is a no-op on this platform.
func WithLogQueue(*logqueue.Queue) Option { return func(*Producer) {} }

// WithRate is a no-op on this platform.
func WithRate(*stats.Rate) Option { return func(*Producer) {} }

// Open always fails: SocketCAN does not exist outside Linux.
func Open(_ frame.BusID, iface string, _ *pool.Pool, _ *queue.Unified, _ []Filter, _ ...Option) (*Producer, error) {
	return nil, fmt.Errorf("socketcan: unsupported on %s (interface %s)", runtime.GOOS, iface)
}

// Close is a no-op.
func (p *Producer) Close() error { return nil }

// Run returns immediately.
func (p *Producer) Run(stop <-chan struct{}) {}
