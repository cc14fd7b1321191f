// File: canbus/core.go
// License: Apache-2.0
package canbus

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fleetedge/canbus-core/consumer"
	"github.com/fleetedge/canbus-core/errs"
	"github.com/fleetedge/canbus-core/ethernet"
	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/nodetable"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
	"github.com/fleetedge/canbus-core/replay"
	"github.com/fleetedge/canbus-core/socketcan"
	"github.com/fleetedge/canbus-core/stats"
	"github.com/fleetedge/canbus-core/store"
)

// Core is the assembled, running ingest pipeline returned by Build.
type Core struct {
	cfg Config

	logs      *logqueue.Queue
	logSink   io.Writer
	q         *queue.Unified
	registry  *nodetable.Registry
	pools     map[frame.BusID]*pool.Pool
	collector *stats.Collector
	cstats    *stats.Consumer

	batchAppender *store.BatchAppender
	consumerLoop  *consumer.Loop
	ethServer     *ethernet.Server
	can0          *socketcan.Producer
	can1          *socketcan.Producer
	replayProd    *replay.Producer

	stop chan struct{}
	wg   sync.WaitGroup
}

// Build validates cfg, wires every subsystem together, and starts the
// consumer thread, producers, and Ethernet server (spec §6.3 "build(config)
// -> CoreHandle"). dst is the downstream sample sink the decoded values
// are batched into (spec §6.2); the core never constructs one itself
// since the real store is an external collaborator.
func Build(cfg Config, dst store.Appender) (*Core, error) {
	if cfg.QueueCapacity < 1 {
		return nil, errs.New(errs.KindConfig, "queue capacity must be >= 1")
	}
	if dst == nil {
		return nil, errs.New(errs.KindConfig, "downstream store must not be nil")
	}

	c := &Core{cfg: cfg, stop: make(chan struct{})}
	c.logs = logqueue.New(cfg.LogQueueCapacity)

	anomalyLimiter := logqueue.NewAnomalyLimiter("pool.accounting_anomaly", cfg.AnomalyLogWindow, cfg.AnomalyLogMaxPerWindow)

	can0Pool := pool.NewPool(frame.CAN0, cfg.CAN0.PoolCapacity, pool.WithLogQueue(c.logs), pool.WithAnomalyLimiter(anomalyLimiter))
	can1Pool := pool.NewPool(frame.CAN1, cfg.CAN1.PoolCapacity, pool.WithLogQueue(c.logs), pool.WithAnomalyLimiter(anomalyLimiter))

	c.pools = map[frame.BusID]*pool.Pool{frame.CAN0: can0Pool, frame.CAN1: can1Pool}
	ethPools := make([]*pool.Pool, len(cfg.EthernetBuses))
	for i, ebc := range cfg.EthernetBuses {
		bus := frame.EthernetBusBase + frame.BusID(i)
		p := pool.NewPool(bus, ebc.PoolCapacity, pool.WithLogQueue(c.logs), pool.WithAnomalyLimiter(anomalyLimiter))
		c.pools[bus] = p
		ethPools[i] = p
	}

	c.q = queue.New(cfg.QueueCapacity)

	can0Table, err := buildTable(cfg.Nodes["can0"])
	if err != nil {
		return nil, err
	}
	can1Table, err := buildTable(cfg.Nodes["can1"])
	if err != nil {
		return nil, err
	}
	ethTables := make([]*nodetable.Table, len(cfg.EthernetBuses))
	for i := range cfg.EthernetBuses {
		t, err := buildTable(cfg.Nodes[fmt.Sprintf("eth%d", i)])
		if err != nil {
			return nil, err
		}
		ethTables[i] = t
	}

	c.cstats = stats.NewConsumer()
	allPools := []*pool.Pool{can0Pool, can1Pool}
	busNames := []string{"can0", "can1"}
	for i, p := range ethPools {
		allPools = append(allPools, p)
		busNames = append(busNames, fmt.Sprintf("eth%d", i))
	}

	// The replay producer (SPEC_FULL.md D.1) is just one more logical bus
	// past the configured Ethernet buses, sharing the same registry/stats
	// plumbing as every other producer.
	var replayPool *pool.Pool
	var replayBus frame.BusID
	replayRateIdx := -1
	if cfg.Replay != nil {
		replayBus = frame.EthernetBusBase + frame.BusID(len(cfg.EthernetBuses))
		replayPool = pool.NewPool(replayBus, cfg.Replay.PoolCapacity, pool.WithLogQueue(c.logs), pool.WithAnomalyLimiter(anomalyLimiter))
		c.pools[replayBus] = replayPool

		replayTable, err := buildTable(cfg.Nodes["replay"])
		if err != nil {
			return nil, err
		}
		ethTables = append(ethTables, replayTable)

		allPools = append(allPools, replayPool)
		busNames = append(busNames, "replay")
		replayRateIdx = len(busNames) - 1
	}

	c.registry = nodetable.NewRegistry(can0Table, can1Table, ethTables)
	c.collector = stats.NewCollector(busNames, allPools, c.cstats, stats.Source{
		QueueDepth: c.q.Depth,
		LogDropped: c.logs.Dropped,
	})

	c.batchAppender = store.NewBatchAppender(dst, cfg.StoreBatchSize, cfg.StoreFlushInterval)

	poolLookup := func(bus frame.BusID) *pool.Pool { return c.pools[bus] }
	appendFn := func(ctx context.Context, target nodetable.SensorHandle, value float64, tsUS int64) error {
		return c.batchAppender.Append(ctx, store.Sample{Target: target, Value: value, TimestampUS: tsUS})
	}
	c.consumerLoop = consumer.New(c.q, poolLookup, c.registry, appendFn, c.cstats, c.logs)
	c.consumerLoop.BatchSize = cfg.ConsumerBatchSize
	c.consumerLoop.IdleSleep = cfg.ConsumerIdleSleep
	c.consumerLoop.BusySleep = cfg.ConsumerBusySleep
	c.consumerLoop.DrainDeadline = cfg.DrainDeadline

	if cfg.EthernetAddr != "" {
		ethPoolLookup := func(idx int) *pool.Pool {
			if idx < 0 || idx >= len(ethPools) {
				return nil
			}
			return ethPools[idx]
		}
		// busNames/allPools are ordered can0, can1, eth0..ethN-1[, replay],
		// so logical Ethernet bus i's rate tracker sits at collector index
		// 2+i regardless of whether replay is enabled.
		ethRateLookup := func(idx int) *stats.Rate {
			if idx < 0 || idx >= len(ethPools) {
				return nil
			}
			return c.collector.RateFor(2 + idx)
		}
		c.ethServer = ethernet.NewServer(ethernet.Config{
			Addr:    cfg.EthernetAddr,
			Framing: cfg.EthernetFraming,
			Pools:   ethPoolLookup,
			Queue:   c.q,
			Logs:    c.logs,
			RateFor: ethRateLookup,
		})
	}

	if p, err := socketcan.Open(frame.CAN0, cfg.CAN0.Interface, can0Pool, c.q, cfg.CAN0.Filters, socketcan.WithLogQueue(c.logs), socketcan.WithRate(c.collector.RateFor(0))); err == nil {
		c.can0 = p
	} else {
		c.logs.Enqueuef(logqueue.LevelWarn, "canbus: can0 unavailable: %v", err)
	}
	if p, err := socketcan.Open(frame.CAN1, cfg.CAN1.Interface, can1Pool, c.q, cfg.CAN1.Filters, socketcan.WithLogQueue(c.logs), socketcan.WithRate(c.collector.RateFor(1))); err == nil {
		c.can1 = p
	} else {
		c.logs.Enqueuef(logqueue.LevelWarn, "canbus: can1 unavailable: %v", err)
	}

	if cfg.Replay != nil {
		c.replayProd = replay.New(replayBus, cfg.Replay.Records, cfg.Replay.Interval, replayPool, c.q,
			replay.WithLogQueue(c.logs), replay.WithRate(c.collector.RateFor(replayRateIdx)))
	}

	if cfg.LogSink.Filename != "" {
		c.logSink = logqueue.NewRotatingSink(cfg.LogSink.toLogqueue())
	}

	c.start()
	return c, nil
}

func buildTable(nodes []*nodetable.NodeDescriptor) (*nodetable.Table, error) {
	b := nodetable.NewBuilder()
	for _, n := range nodes {
		if err := b.Add(n); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// consumerPriority is the SCHED_FIFO priority applied to the consumer
// thread's OS thread (spec §4.E, POSIX priority ~70).
const consumerPriority = 70

func (c *Core) start() {
	go func() {
		if err := consumer.PinRealtime(consumerPriority); err != nil {
			c.logs.Enqueuef(logqueue.LevelWarn, "canbus: consumer running without realtime priority: %v", err)
		}
		c.consumerLoop.Run()
	}()
	if c.can0 != nil {
		go c.can0.Run(c.stop)
	}
	if c.can1 != nil {
		go c.can1.Run(c.stop)
	}
	if c.replayProd != nil {
		go c.replayProd.Run(c.stop)
	}
	if c.ethServer != nil {
		go func() {
			if err := c.ethServer.Run(c.stop); err != nil {
				c.logs.Enqueuef(logqueue.LevelError, "canbus: ethernet server: %v", err)
			}
		}()
	}
	if c.logSink != nil {
		c.wg.Add(1)
		go c.runLogFlusher()
	}
}

// runLogFlusher periodically drains the async log queue to the rotating
// sink (spec §3.6/§4.A). It is the only goroutine that ever calls
// c.logs.Flush, matching the package's "flush is single-threaded"
// contract. On shutdown it performs one final best-effort flush of
// whatever is still queued before returning.
func (c *Core) runLogFlusher() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.LogFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			_, _ = c.logs.Flush(context.Background(), c.logSink, c.cfg.LogQueueCapacity, c.cfg.DrainDeadline)
			return
		case <-ticker.C:
			_, _ = c.logs.Flush(context.Background(), c.logSink, c.cfg.LogFlushBatchSize, c.cfg.LogFlushMaxWall)
		}
	}
}

// Stats returns the current aggregate statistics (spec §4.G).
func (c *Core) Stats() stats.MonitorSnapshot { return c.collector.Snapshot() }

// ResetStats zeroes every counter (spec §4.G "reset").
func (c *Core) ResetStats() { c.collector.ResetAll() }

// MonitorTick is an alias for Stats, matching the 1 Hz dashboard
// contract name in spec §6.4.
func (c *Core) MonitorTick() stats.MonitorSnapshot { return c.Stats() }

// Shutdown stops every producer, the Ethernet server, and the consumer
// thread, draining in-flight work up to DrainDeadline (spec §5), waits
// for the log flusher's final flush when a log sink is configured, then
// flushes and closes the store's batcher. The log queue itself is not
// closed.
func (c *Core) Shutdown(ctx context.Context) error {
	close(c.stop)
	if c.can0 != nil {
		_ = c.can0.Close()
	}
	if c.can1 != nil {
		_ = c.can1.Close()
	}
	c.consumerLoop.Stop()
	c.wg.Wait() // let the log flusher's final drain finish before returning
	if err := c.batchAppender.Close(ctx); err != nil {
		return err
	}
	return nil
}
