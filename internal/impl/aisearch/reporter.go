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
	"time"

	"github.com/dustin/go-humanize"

	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	metricBatchSent      = "azure_ai_search_batch_sent"
	metricBatchFailed    = "azure_ai_search_batch_failed"
	metricBatchCreated   = "azure_ai_search_batch_created"
	metricRecordsDropped = "azure_ai_search_records_dropped"
	metricLatency        = "azure_ai_search_latency_ns"
)

// BatchEvent describes the outcome of one flushed batch.
type BatchEvent struct {
	Worker    int
	Key       string
	Size      int
	Bytes     int
	Mechanism Mechanism
	Latency   time.Duration
	Result    Result
}

// DropEvent describes a single record that was excluded from its batch.
type DropEvent struct {
	Worker int
	Key    string
	Err    error
}

// Reporter receives structured outcome events from a coordinator. Calls are
// made from the coordinator goroutine.
type Reporter interface {
	BatchDone(BatchEvent)
	RecordDropped(DropEvent)
}

type serviceReporter struct {
	log *service.Logger

	mSent    *service.MetricCounter
	mFailed  *service.MetricCounter
	mCreated *service.MetricCounter
	mDropped *service.MetricCounter
	mLatency *service.MetricTimer
}

// NewServiceReporter creates a Reporter that logs through a service logger
// and, when metrics are non-nil, records counters and timings through them.
func NewServiceReporter(log *service.Logger, metrics *service.Metrics) Reporter {
	return &serviceReporter{
		log:      log,
		mSent:    metrics.NewCounter(metricBatchSent),
		mFailed:  metrics.NewCounter(metricBatchFailed, "class"),
		mCreated: metrics.NewCounter(metricBatchCreated, "mechanism"),
		mDropped: metrics.NewCounter(metricRecordsDropped),
		mLatency: metrics.NewTimer(metricLatency),
	}
}

func (r *serviceReporter) BatchDone(e BatchEvent) {
	r.mCreated.Incr(1, string(e.Mechanism))
	r.mLatency.Timing(e.Latency.Nanoseconds())

	l := r.log.With("worker", e.Worker, "partition_key", e.Key, "batch_size", e.Size, "mechanism", string(e.Mechanism))
	if e.Result.Status == StatusSuccess {
		r.mSent.Incr(1)
		l.Debugf("Uploaded %v documents (%v) in %v after %v attempt(s)", e.Size, humanize.Bytes(uint64(e.Bytes)), e.Latency, e.Result.Attempts)
		for _, f := range e.Result.Failed {
			l.Warnf("Document '%v' rejected with status %v: %v", f.Key, f.StatusCode, f.Message)
		}
		return
	}
	r.mFailed.Incr(1, string(e.Result.Class))
	l.Errorf("Failed to upload %v documents after %v attempt(s): %v", e.Size, e.Result.Attempts, e.Result.Err())
}

func (r *serviceReporter) RecordDropped(e DropEvent) {
	r.mDropped.Incr(1)
	r.log.With("worker", e.Worker, "partition_key", e.Key).Errorf("Dropping invalid record: %v", e.Err)
}
