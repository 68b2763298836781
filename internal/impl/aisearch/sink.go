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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/redpanda-data/aisearch-connect/internal/retries"
)

const (
	// DefaultMaxSize is the default number of documents per batch.
	DefaultMaxSize = 50
	// MaxBatchDocuments is the largest batch the bulk index API accepts.
	MaxBatchDocuments = 1000
	// DefaultTimeout is the default age at which a partial batch is flushed.
	DefaultTimeout = time.Second
)

// SinkConfig holds everything needed to construct per-worker coordinators.
type SinkConfig struct {
	ServiceName string
	Index       string
	APIVersion  string
	AdminKey    string
	Schema      *Schema

	// MaxSize defaults to DefaultMaxSize when zero.
	MaxSize int
	// Timeout defaults to DefaultTimeout when zero, a negative value disables
	// timed flushes.
	Timeout time.Duration

	Endpoint       string
	RequestTimeout time.Duration
	Retry          *retries.Config

	Logger   *service.Logger
	Reporter Reporter
}

// Sink builds one independent coordinator per worker from a shared, validated
// configuration.
type Sink struct {
	conf     SinkConfig
	clientCf ClientConfig
	log      *service.Logger
	reporter Reporter
}

// NewSink validates a configuration and applies its defaults.
func NewSink(conf SinkConfig) (*Sink, error) {
	if conf.Schema == nil {
		return nil, errors.New("a schema must be provided")
	}
	if conf.MaxSize == 0 {
		conf.MaxSize = DefaultMaxSize
	}
	if conf.MaxSize < 1 || conf.MaxSize > MaxBatchDocuments {
		return nil, fmt.Errorf("max size must be between 1 and %v, got %v", MaxBatchDocuments, conf.MaxSize)
	}
	if conf.Timeout == 0 {
		conf.Timeout = DefaultTimeout
	}
	retry := retries.DefaultConfig()
	if conf.Retry != nil {
		retry = *conf.Retry
	}

	clientCf := ClientConfig{
		ServiceName:    conf.ServiceName,
		Index:          conf.Index,
		APIVersion:     conf.APIVersion,
		AdminKey:       conf.AdminKey,
		Endpoint:       conf.Endpoint,
		RequestTimeout: conf.RequestTimeout,
		BackOff:        retry.NewBackOff,
	}
	if _, err := clientCf.BulkURL(); err != nil {
		return nil, err
	}
	if conf.AdminKey == "" {
		return nil, errors.New("an admin key must be provided")
	}

	log := conf.Logger
	if log == nil {
		log = service.NewLoggerFromSlog(slog.Default())
	}
	reporter := conf.Reporter
	if reporter == nil {
		reporter = NewServiceReporter(log, nil)
	}
	return &Sink{
		conf:     conf,
		clientCf: clientCf,
		log:      log,
		reporter: reporter,
	}, nil
}

// Build creates the coordinator of a worker. Each coordinator owns its own
// accumulator and HTTP client, nothing is shared between workers.
func (s *Sink) Build(workerIndex, workerCount int, opts ...CoordinatorOpt) (*Coordinator, error) {
	if workerIndex < 0 || workerIndex >= workerCount {
		return nil, fmt.Errorf("worker index %v out of range for %v workers", workerIndex, workerCount)
	}
	client, err := NewClient(s.clientCf)
	if err != nil {
		return nil, err
	}
	log := s.log.With("worker", workerIndex, "workers", workerCount)
	return NewCoordinator(workerIndex, s.conf.Schema, NewAccumulator(s.conf.MaxSize, s.conf.Timeout), client, s.reporter, log, opts...), nil
}

// RunWorkers runs one coordinator per source channel until every channel is
// closed or the context is cancelled. The returned error combines the
// failures of all workers.
func (s *Sink) RunWorkers(ctx context.Context, sources []<-chan Item) error {
	coords := make([]*Coordinator, len(sources))
	for i := range sources {
		c, err := s.Build(i, len(sources))
		if err != nil {
			return err
		}
		coords[i] = c
	}

	// Workers are independent, a failed batch on one worker must not cancel
	// the others, so the group carries no context.
	errs := make([]error, len(sources))
	var g errgroup.Group
	for i, c := range coords {
		g.Go(func() error {
			if err := c.Run(ctx, sources[i]); err != nil {
				errs[i] = fmt.Errorf("worker %v: %w", i, err)
			}
			return errs[i]
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	return multierr.Combine(errs...)
}
