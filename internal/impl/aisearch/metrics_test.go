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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromReporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	next := &recordingReporter{}

	r, err := NewPromReporter(reg, next)
	require.NoError(t, err)

	r.BatchDone(BatchEvent{
		Key:       "k",
		Size:      2,
		Mechanism: MechanismCount,
		Latency:   5 * time.Millisecond,
		Result:    Result{Status: StatusSuccess},
	})
	r.BatchDone(BatchEvent{
		Key:       "k",
		Size:      1,
		Mechanism: MechanismPeriod,
		Result:    Result{Status: StatusFailure, Class: ClassTransient},
	})
	r.RecordDropped(DropEvent{Key: "k", Err: errors.New("bad")})

	assert.InDelta(t, 1, testutil.ToFloat64(r.sent), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.failed.WithLabelValues("transient")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(r.failed.WithLabelValues("client")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.created.WithLabelValues("count")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.created.WithLabelValues("period")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.dropped), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))

	assert.Len(t, next.Batches(), 2)
	assert.Len(t, next.Drops(), 1)
}

func TestPromReporterDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewPromReporter(reg, nil)
	require.NoError(t, err)

	_, err = NewPromReporter(reg, nil)
	require.Error(t, err)
}

func TestServiceReporterNilSafe(t *testing.T) {
	r := NewServiceReporter(nil, nil)
	r.BatchDone(BatchEvent{Result: Result{Status: StatusSuccess, Failed: []DocumentFailure{{Key: "1"}}}})
	r.BatchDone(BatchEvent{Result: Result{Status: StatusFailure, Class: ClassClient}})
	r.RecordDropped(DropEvent{Err: errors.New("bad")})
}
