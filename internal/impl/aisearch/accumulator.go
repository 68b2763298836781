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
	"sort"
	"time"
)

// Mechanism names the trigger that caused a batch to be flushed.
type Mechanism string

// Flush mechanisms.
const (
	MechanismCount  Mechanism = "count"
	MechanismPeriod Mechanism = "period"
	MechanismDrain  Mechanism = "drain"
)

// Batch is an ordered group of normalised documents accumulated under a
// single partition key.
type Batch struct {
	Key       string
	Docs      []*Document
	Started   time.Time
	Mechanism Mechanism

	// Upstream completion callbacks, index aligned with Docs. Entries may be
	// nil.
	dones []func(error)
}

// Len returns the number of documents in the batch.
func (b Batch) Len() int {
	return len(b.Docs)
}

type pending struct {
	docs    []*Document
	dones   []func(error)
	started time.Time
}

// Accumulator buffers documents per partition key and decides when each
// buffer is due to be flushed, either by reaching a document count or by the
// oldest buffered document reaching a timeout.
//
// An Accumulator is owned by a single coordinator and is not safe for
// concurrent use.
type Accumulator struct {
	maxSize int
	timeout time.Duration
	now     func() time.Time

	pending map[string]*pending
}

// NewAccumulator creates an accumulator. A timeout of zero or less disables
// the time trigger.
func NewAccumulator(maxSize int, timeout time.Duration) *Accumulator {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Accumulator{
		maxSize: maxSize,
		timeout: timeout,
		now:     time.Now,
		pending: map[string]*pending{},
	}
}

// Offer appends a document to the buffer of a partition key. When the buffer
// reaches the maximum size it is flushed and returned along with true.
func (a *Accumulator) Offer(key string, doc *Document) (Batch, bool) {
	return a.offer(key, doc, nil)
}

func (a *Accumulator) offer(key string, doc *Document, done func(error)) (Batch, bool) {
	p, exists := a.pending[key]
	if !exists {
		p = &pending{started: a.now()}
		a.pending[key] = p
	}
	p.docs = append(p.docs, doc)
	p.dones = append(p.dones, done)
	if len(p.docs) < a.maxSize {
		return Batch{}, false
	}
	return a.take(key, MechanismCount), true
}

// Expired flushes and returns every buffer whose oldest document has been
// held for at least the timeout.
func (a *Accumulator) Expired() []Batch {
	if a.timeout <= 0 || len(a.pending) == 0 {
		return nil
	}
	now := a.now()
	var keys []string
	for k, p := range a.pending {
		if !now.Before(p.started.Add(a.timeout)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	batches := make([]Batch, 0, len(keys))
	for _, k := range keys {
		batches = append(batches, a.take(k, MechanismPeriod))
	}
	return batches
}

// UntilNext returns the duration until the next buffer expires. The boolean
// is false when nothing is buffered or the time trigger is disabled.
func (a *Accumulator) UntilNext() (time.Duration, bool) {
	if a.timeout <= 0 || len(a.pending) == 0 {
		return 0, false
	}
	var earliest time.Time
	for _, p := range a.pending {
		if earliest.IsZero() || p.started.Before(earliest) {
			earliest = p.started
		}
	}
	d := earliest.Add(a.timeout).Sub(a.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// FlushAll flushes every non-empty buffer regardless of size or age, ordered
// by partition key, and resets all state.
func (a *Accumulator) FlushAll() []Batch {
	keys := make([]string, 0, len(a.pending))
	for k := range a.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batches := make([]Batch, 0, len(keys))
	for _, k := range keys {
		batches = append(batches, a.take(k, MechanismDrain))
	}
	a.pending = map[string]*pending{}
	return batches
}

// Len returns the total number of buffered documents across all keys.
func (a *Accumulator) Len() int {
	n := 0
	for _, p := range a.pending {
		n += len(p.docs)
	}
	return n
}

func (a *Accumulator) take(key string, mech Mechanism) Batch {
	p := a.pending[key]
	delete(a.pending, key)
	return Batch{
		Key:       key,
		Docs:      p.docs,
		Started:   p.started,
		Mechanism: mech,
		dones:     p.dones,
	}
}
