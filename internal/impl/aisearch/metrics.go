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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PromReporter records batch outcomes as Prometheus collectors and forwards
// every event to a wrapped Reporter.
type PromReporter struct {
	next Reporter

	sent    prometheus.Counter
	failed  *prometheus.CounterVec
	created *prometheus.CounterVec
	dropped prometheus.Counter
	latency prometheus.Histogram
}

// NewPromReporter creates collectors, registers them on reg and returns a
// reporter that updates them before forwarding to next. The next reporter
// may be nil.
func NewPromReporter(reg prometheus.Registerer, next Reporter) (*PromReporter, error) {
	r := &PromReporter{
		next: next,
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricBatchSent,
			Help: "Total batches accepted by the index.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricBatchFailed,
			Help: "Total batches that failed delivery by failure class.",
		}, []string{"class"}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricBatchCreated,
			Help: "Total batches flushed by trigger mechanism.",
		}, []string{"mechanism"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricRecordsDropped,
			Help: "Total records excluded from batches by validation.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricLatency,
			Help:    "Batch delivery latency in nanoseconds, retries included.",
			Buckets: prometheus.ExponentialBuckets(1e6, 2, 16),
		}),
	}
	for _, c := range []prometheus.Collector{r.sent, r.failed, r.created, r.dropped, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

func (r *PromReporter) BatchDone(e BatchEvent) {
	r.created.WithLabelValues(string(e.Mechanism)).Inc()
	r.latency.Observe(float64(e.Latency.Nanoseconds()))
	if e.Result.Status == StatusSuccess {
		r.sent.Inc()
	} else {
		r.failed.WithLabelValues(string(e.Result.Class)).Inc()
	}
	if r.next != nil {
		r.next.BatchDone(e)
	}
}

func (r *PromReporter) RecordDropped(e DropEvent) {
	r.dropped.Inc()
	if r.next != nil {
		r.next.RecordDropped(e)
	}
}
