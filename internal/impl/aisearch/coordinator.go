// Copyright 2026 Redpanda Data, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aisearch

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// Item is a single keyed record handed to a coordinator.
type Item struct {
	Key    string
	Record Record

	// Done, when non-nil, is called exactly once after the record has been
	// resolved. It receives nil when the batch holding the record was
	// delivered or when the record was dropped by validation, and the
	// delivery error otherwise.
	Done func(error)
}

// Deliverer sends an encoded bulk request body.
type Deliverer interface {
	Deliver(ctx context.Context, body []byte) Result
}

// CoordinatorOpt customises a Coordinator.
type CoordinatorOpt func(*Coordinator)

// WithClock replaces the clock used for batch timing and latency.
func WithClock(now func() time.Time) CoordinatorOpt {
	return func(c *Coordinator) {
		c.now = now
		c.acc.now = now
	}
}

// Coordinator drives a single worker: it normalises incoming records, feeds
// them to its accumulator and delivers every batch the accumulator flushes.
//
// A Coordinator is owned by exactly one goroutine.
type Coordinator struct {
	worker   int
	schema   *Schema
	acc      *Accumulator
	client   Deliverer
	reporter Reporter
	log      *service.Logger
	now      func() time.Time
}

// NewCoordinator creates a coordinator for a worker.
func NewCoordinator(worker int, schema *Schema, acc *Accumulator, client Deliverer, reporter Reporter, log *service.Logger, opts ...CoordinatorOpt) *Coordinator {
	c := &Coordinator{
		worker:   worker,
		schema:   schema,
		acc:      acc,
		client:   client,
		reporter: reporter,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Pending returns the number of documents buffered and not yet delivered.
func (c *Coordinator) Pending() int {
	return c.acc.Len()
}

// UntilNext returns the duration until the next timed flush is due. The
// boolean is false when no timed flush is pending.
func (c *Coordinator) UntilNext() (time.Duration, bool) {
	return c.acc.UntilNext()
}

// Offer processes a single record. Any batches that have expired are
// delivered first, then the record is normalised and added to the batch of
// its partition key, delivering that batch if it became full.
func (c *Coordinator) Offer(ctx context.Context, it Item) {
	c.Tick(ctx)

	doc, err := c.schema.Normalize(it.Record)
	if err != nil {
		c.reporter.RecordDropped(DropEvent{Worker: c.worker, Key: it.Key, Err: err})
		if it.Done != nil {
			it.Done(nil)
		}
		return
	}
	if b, flushed := c.acc.offer(it.Key, doc, it.Done); flushed {
		_ = c.deliver(ctx, b)
	}
}

// Tick delivers every batch whose timeout has elapsed.
func (c *Coordinator) Tick(ctx context.Context) {
	for _, b := range c.acc.Expired() {
		_ = c.deliver(ctx, b)
	}
}

// Drain delivers every buffered batch regardless of size or age. The
// returned error combines the failures of all batches that could not be
// delivered.
func (c *Coordinator) Drain(ctx context.Context) error {
	var errs error
	for _, b := range c.acc.FlushAll() {
		errs = multierr.Append(errs, c.deliver(ctx, b))
	}
	return errs
}

// Run consumes items until the channel is closed or the context is
// cancelled, flushing timed batches without waiting for further input. All
// buffered batches are drained before it returns.
func (c *Coordinator) Run(ctx context.Context, items <-chan Item) error {
	c.runUntil(ctx, items, ctx.Done())
	if err := ctx.Err(); err != nil {
		c.log.Debugf("Worker %v draining %v pending documents", c.worker, c.acc.Len())
		return multierr.Append(err, c.Drain(context.WithoutCancel(ctx)))
	}
	return c.Drain(ctx)
}

// runUntil offers items and flushes expired batches until the items channel
// is closed or stop is closed. Buffered batches are left for the caller to
// drain.
func (c *Coordinator) runUntil(ctx context.Context, items <-chan Item, stop <-chan struct{}) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var flushC <-chan time.Time
		if d, ok := c.UntilNext(); ok {
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			flushC = timer.C
		}

		select {
		case it, open := <-items:
			if !open {
				return
			}
			c.Offer(ctx, it)
		case <-flushC:
			c.Tick(ctx)
		case <-stop:
			return
		}
	}
}

func (c *Coordinator) deliver(ctx context.Context, b Batch) error {
	start := c.now()
	ev := BatchEvent{
		Worker:    c.worker,
		Key:       b.Key,
		Size:      b.Len(),
		Mechanism: b.Mechanism,
	}

	body, err := Encode(b.Docs)
	if err != nil {
		ev.Result = Result{Status: StatusFailure, Class: ClassEncode, Detail: err.Error()}
	} else {
		ev.Bytes = len(body)
		ev.Result = c.client.Deliver(ctx, body)
	}
	ev.Latency = c.now().Sub(start)
	c.reporter.BatchDone(ev)

	err = ev.Result.Err()
	for _, done := range b.dones {
		if done != nil {
			done(err)
		}
	}
	return err
}
