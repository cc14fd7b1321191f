// File: store/store.go
// Package store implements the narrow downstream sample sink of spec
// §6.2: a single append(sensor_handle, value, ts) -> ok|full operation,
// batched via github.com/joeycumines/go-microbatch. BatchAppender.Append
// waits until the batch holding its sample has been flushed, so a caller
// blocks for up to the flush interval plus the store's own append time.
// License: Apache-2.0
package store

import (
	"context"
	"time"

	"github.com/joeycumines/go-microbatch"

	"github.com/fleetedge/canbus-core/errs"
	"github.com/fleetedge/canbus-core/nodetable"
)

// Sample is one decoded value handed to the downstream store.
type Sample struct {
	Target      nodetable.SensorHandle
	Value       float64
	TimestampUS int64
}

// Appender is the narrow interface a concrete time-series store
// implements; Append must not block the caller beyond a brief local
// buffering cost (spec §6.2 "store's own backpressure ... non-blocking
// or bounded").
type Appender interface {
	Append(s Sample) error
}

// ErrFull is returned by Append when the downstream store's own
// backpressure rejects a sample.
var ErrFull = errs.ErrStoreFull

// BatchAppender wraps an Appender with go-microbatch so the consumer's
// hot decode loop submits samples one at a time but the underlying store
// only sees periodic batched flushes.
type BatchAppender struct {
	batcher *microbatch.Batcher[Sample]
}

// NewBatchAppender builds a BatchAppender flushing to dst every
// flushInterval or maxBatch samples, whichever comes first.
func NewBatchAppender(dst Appender, maxBatch int, flushInterval time.Duration) *BatchAppender {
	cfg := &microbatch.BatcherConfig{MaxSize: maxBatch, FlushInterval: flushInterval}
	b := microbatch.NewBatcher(cfg, func(ctx context.Context, jobs []Sample) error {
		for _, s := range jobs {
			if err := dst.Append(s); err != nil {
				return err
			}
		}
		return nil
	})
	return &BatchAppender{batcher: b}
}

// Append submits s for the next batch flush, returning ErrFull if dst
// rejected the flush this sample ended up in.
func (b *BatchAppender) Append(ctx context.Context, s Sample) error {
	res, err := b.batcher.Submit(ctx, s)
	if err != nil {
		return err
	}
	if err := res.Wait(ctx); err != nil {
		return ErrFull
	}
	return nil
}

// Close flushes any pending batch and stops the background flusher.
func (b *BatchAppender) Close(ctx context.Context) error {
	return b.batcher.Shutdown(ctx)
}
