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

package retries

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	crboFieldMaxRetries     = "max_retries"
	crboFieldBackOff        = "backoff"
	crboFieldInitInterval   = "initial_interval"
	crboFieldMaxInterval    = "max_interval"
	crboFieldMaxElapsedTime = "max_elapsed_time"
)

// Config describes an exponential backoff with an optional retry limit.
type Config struct {
	// MaxRetries of zero means no discrete limit.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime of zero means no limit.
	MaxElapsedTime time.Duration
}

// DefaultConfig returns the retry settings used for bulk uploads when none
// are configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

const (
	backOffMultiplier = 2
	// Jitter stays below (m-1)/(m+1) so consecutive delays always grow.
	backOffRandomization = 0.2
)

// NewBackOff returns a fresh backoff instance for a single retry sequence.
// Delays double between attempts until MaxInterval is reached.
func (c Config) NewBackOff() backoff.BackOff {
	boff := backoff.NewExponentialBackOff()

	boff.Multiplier = backOffMultiplier
	boff.RandomizationFactor = backOffRandomization
	boff.InitialInterval = c.InitialInterval
	boff.MaxInterval = c.MaxInterval
	boff.MaxElapsedTime = c.MaxElapsedTime

	if c.MaxRetries > 0 {
		return backoff.WithMaxRetries(boff, uint64(c.MaxRetries))
	}
	return boff
}

// CommonRetryBackOffFields returns the common retry with backoff fields.
func CommonRetryBackOffFields(
	defaultMaxRetries int,
	defaultInitInterval string,
	defaultMaxInterval string,
	defaultMaxElapsed string,
) []*service.ConfigField {
	return []*service.ConfigField{
		service.NewIntField(crboFieldMaxRetries).
			Description("The maximum number of retries before giving up on the request. If set to zero there is no discrete limit.").
			Default(defaultMaxRetries).
			Advanced(),
		service.NewObjectField(crboFieldBackOff,
			service.NewDurationField(crboFieldInitInterval).
				Description("The initial period to wait between retry attempts.").
				Default(defaultInitInterval),
			service.NewDurationField(crboFieldMaxInterval).
				Description("The maximum period to wait between retry attempts.").
				Default(defaultMaxInterval),
			service.NewDurationField(crboFieldMaxElapsedTime).
				Description("The maximum period to wait before retry attempts are abandoned. If zero then no limit is used.").
				Default(defaultMaxElapsed),
		).
			Description("Control time intervals between retry attempts.").
			Advanced(),
	}
}

func fieldDurationOrEmptyStr(pConf *service.ParsedConfig, path ...string) (time.Duration, error) {
	if dStr, err := pConf.FieldString(path...); err == nil && dStr == "" {
		return 0, nil
	}
	return pConf.FieldDuration(path...)
}

// ConfigFromParsed extracts the common retry with backoff fields from a
// parsed config.
func ConfigFromParsed(pConf *service.ParsedConfig) (conf Config, err error) {
	if conf.MaxRetries, err = pConf.FieldInt(crboFieldMaxRetries); err != nil {
		return
	}
	if pConf.Contains(crboFieldBackOff) {
		bConf := pConf.Namespace(crboFieldBackOff)
		if conf.InitialInterval, err = fieldDurationOrEmptyStr(bConf, crboFieldInitInterval); err != nil {
			return
		}
		if conf.MaxInterval, err = fieldDurationOrEmptyStr(bConf, crboFieldMaxInterval); err != nil {
			return
		}
		if conf.MaxElapsedTime, err = fieldDurationOrEmptyStr(bConf, crboFieldMaxElapsedTime); err != nil {
			return
		}
	}
	return
}
