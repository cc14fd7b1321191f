// File: canbus/config.go
// Package canbus is the root facade of the ingest core (spec §6.3/§6.4):
// Build(Config) assembles every subsystem (pool, queue, nodetable,
// socketcan, ethernet, replay, consumer, store, logqueue, stats) behind
// a small operational surface, the way the teacher's facade.HioloadWS
// assembles transport/pool/poller/executor behind one struct.
// License: Apache-2.0
package canbus

import (
	"time"

	"github.com/fleetedge/canbus-core/ethernet"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/nodetable"
	"github.com/fleetedge/canbus-core/replay"
	"github.com/fleetedge/canbus-core/socketcan"
)

// BusConfig configures one physical CAN controller producer.
type BusConfig struct {
	Interface    string // e.g. "can0"
	PoolCapacity int
	Filters      []socketcan.Filter
}

// EthernetBusConfig configures one logical bus carried over the
// Ethernet CAN server (§4.D.1/§6.1).
type EthernetBusConfig struct {
	PoolCapacity int
}

// Config mirrors spec §6.3: per-bus pool capacities, unified-queue
// capacity, consumer batch/sleep thresholds, node-table source,
// Ethernet framing selection, and server listen address. The binary
// configuration blob parser that produces a Config is out of scope
// (§6.3); Build only ever consumes the already-decoded struct.
type Config struct {
	CAN0 BusConfig
	CAN1 BusConfig

	EthernetAddr    string // default "192.168.7.1:5555" per §6.1
	EthernetFraming ethernet.Framing
	EthernetBuses   []EthernetBusConfig

	QueueCapacity int

	ConsumerBatchSize int
	ConsumerIdleSleep time.Duration
	ConsumerBusySleep time.Duration
	DrainDeadline     time.Duration

	LogQueueCapacity int
	LogSink          SinkConfig
	// LogFlushInterval is how often the background flusher drains the log
	// queue to LogSink. LogFlushBatchSize/LogFlushMaxWall bound each
	// individual Flush call the way logqueue.Queue.Flush expects. If
	// LogSink.Filename is empty, no flusher is started and log entries
	// only ever live in the bounded in-memory ring (spec §4.A still
	// guarantees newest-wins eviction in that mode, just never reaching
	// disk).
	LogFlushInterval  time.Duration
	LogFlushBatchSize int
	LogFlushMaxWall   time.Duration

	AnomalyLogWindow       time.Duration
	AnomalyLogMaxPerWindow int

	StoreBatchSize     int
	StoreFlushInterval time.Duration

	// Replay optionally enables the frame-replay producer (SPEC_FULL.md
	// D.1), played into its own logical bus alongside CAN0/CAN1/Ethernet.
	Replay *ReplayConfig

	// Nodes supplies the decode tables for every configured bus. Keys for
	// physical buses are "can0"/"can1"; Ethernet logical buses use
	// "eth0", "eth1", ... matching the index into EthernetBuses. The
	// replay bus (if Replay is set) uses the key "replay".
	Nodes map[string][]*nodetable.NodeDescriptor
}

// ReplayConfig configures the frame-replay producer: a trace played back
// at a fixed inter-frame interval through the same alloc -> fill ->
// enqueue contract as every other producer.
type ReplayConfig struct {
	PoolCapacity int
	Records      []replay.Record
	Interval     time.Duration
}

// SinkConfig mirrors logqueue.SinkConfig, kept as a separate type here so
// callers building a Config do not need to import logqueue directly.
type SinkConfig struct {
	Filename   string
	MaxSizeStr string
	MaxBackups int
	MaxFileAge time.Duration
	Compress   bool
}

func (s SinkConfig) toLogqueue() logqueue.SinkConfig {
	return logqueue.SinkConfig{
		Filename:   s.Filename,
		MaxSizeStr: s.MaxSizeStr,
		MaxBackups: s.MaxBackups,
		MaxFileAge: s.MaxFileAge,
		Compress:   s.Compress,
	}
}

// DefaultConfig returns a baseline configuration sized for a two-bus
// telematics gateway; callers override fields before calling Build.
func DefaultConfig() Config {
	return Config{
		CAN0:                   BusConfig{Interface: "can0", PoolCapacity: 4096},
		CAN1:                   BusConfig{Interface: "can1", PoolCapacity: 4096},
		EthernetAddr:           "192.168.7.1:5555",
		EthernetFraming:        ethernet.FramingAPTERA,
		QueueCapacity:          3 * (4096 + 4096),
		ConsumerBatchSize:      200,
		ConsumerIdleSleep:      1000 * time.Microsecond,
		ConsumerBusySleep:      100 * time.Microsecond,
		DrainDeadline:          2 * time.Second,
		LogQueueCapacity:       10_000,
		LogFlushInterval:       200 * time.Millisecond,
		LogFlushBatchSize:      256,
		LogFlushMaxWall:        50 * time.Millisecond,
		AnomalyLogWindow:       time.Second,
		AnomalyLogMaxPerWindow: 5,
		StoreBatchSize:         64,
		StoreFlushInterval:     50 * time.Millisecond,
		Nodes:                  map[string][]*nodetable.NodeDescriptor{},
	}
}
