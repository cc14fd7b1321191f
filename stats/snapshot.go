// File: stats/snapshot.go
// License: Apache-2.0
package stats

import "github.com/fleetedge/canbus-core/pool"

// BusSnapshot is the monitor-facing view of one bus (spec §6.4 "monitor
// tick" / SPEC_FULL.md D.2): pool accounting plus the observed rate.
type BusSnapshot struct {
	Bus  string
	Pool pool.Stats
	Rate Sample
}

// MonitorSnapshot is the aggregate 1 Hz dashboard payload (SPEC_FULL.md
// D.2): every bus's pool/rate state, the unified queue depth, the log
// queue's drop count, and the consumer's cycle/event counters.
type MonitorSnapshot struct {
	Buses        []BusSnapshot
	QueueDepth   int
	LogDropped   int64
	Cycle        CycleStats
	MutexWait    MutexWaitStats
	Counters     Counters
}

// Source abstracts the pieces MonitorTick pulls together, so the root
// facade can build a snapshot without this package importing queue/
// logqueue/consumer directly (keeps the dependency graph a DAG).
type Source struct {
	QueueDepth func() int
	LogDropped func() int64
}

// Collector owns the per-bus rate trackers and the consumer counters and
// assembles a MonitorSnapshot on demand.
type Collector struct {
	busNames []string
	pools    []*pool.Pool
	rates    []*Rate
	consumer *Consumer
	source   Source
}

// NewCollector builds a Collector for the given buses, each paired with
// its Pool and Rate tracker (same index across busNames/pools/rates).
func NewCollector(busNames []string, pools []*pool.Pool, consumer *Consumer, source Source) *Collector {
	rates := make([]*Rate, len(pools))
	for i := range rates {
		rates[i] = NewRate()
	}
	return &Collector{busNames: busNames, pools: pools, rates: rates, consumer: consumer, source: source}
}

// RateFor returns the Rate tracker for the bus at index i, so producers
// can call Add as frames arrive.
func (c *Collector) RateFor(i int) *Rate { return c.rates[i] }

// Snapshot assembles the current MonitorSnapshot, ticking every bus's
// rate tracker.
func (c *Collector) Snapshot() MonitorSnapshot {
	buses := make([]BusSnapshot, len(c.pools))
	for i, p := range c.pools {
		buses[i] = BusSnapshot{
			Bus:  c.busNames[i],
			Pool: p.Stats(),
			Rate: c.rates[i].Tick(),
		}
	}
	snap := MonitorSnapshot{Buses: buses}
	if c.source.QueueDepth != nil {
		snap.QueueDepth = c.source.QueueDepth()
	}
	if c.source.LogDropped != nil {
		snap.LogDropped = c.source.LogDropped()
	}
	if c.consumer != nil {
		snap.Cycle = c.consumer.Cycle()
		snap.MutexWait = c.consumer.MutexWait()
		snap.Counters = c.consumer.Snapshot()
	}
	return snap
}

// ResetAll zeroes every bus's pool stats and rate tracker, plus the
// consumer counters (spec §4.G "reset" operation).
func (c *Collector) ResetAll() {
	for _, p := range c.pools {
		p.ResetStats()
	}
	for _, r := range c.rates {
		r.Reset()
	}
	if c.consumer != nil {
		c.consumer.Reset()
	}
}
