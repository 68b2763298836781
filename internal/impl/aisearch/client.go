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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Jeffail/gabs/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/redpanda-data/aisearch-connect/internal/retries"
)

const (
	moduleName    = "aisearch"
	moduleVersion = "v1.0.0"

	apiKeyHeader = "api-key"
)

// Status is the terminal outcome of a delivery.
type Status int

// Delivery statuses.
const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// FailureClass categorises a failed delivery.
type FailureClass string

// Failure classes.
const (
	ClassNone      FailureClass = ""
	ClassClient    FailureClass = "client"
	ClassTransient FailureClass = "transient"
	ClassEncode    FailureClass = "encode"
)

// DocumentFailure describes a single document rejected within an otherwise
// accepted (HTTP 207) bulk request.
type DocumentFailure struct {
	Key        string
	StatusCode int
	Message    string
}

// Result is the outcome of delivering one batch.
type Result struct {
	Status     Status
	Class      FailureClass
	StatusCode int
	Detail     string
	Attempts   int
	Failed     []DocumentFailure
}

// Err returns an error describing a failed result, or nil for a success.
func (r Result) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	return &DeliveryError{Class: r.Class, StatusCode: r.StatusCode, Detail: r.Detail}
}

// DeliveryError is the error form of a failed Result.
type DeliveryError struct {
	Class      FailureClass
	StatusCode int
	Detail     string
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v failure (status %v): %v", e.Class, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%v failure: %v", e.Class, e.Detail)
}

// ClientConfig holds the connection parameters of a delivery client.
type ClientConfig struct {
	ServiceName string
	Index       string
	APIVersion  string
	AdminKey    string

	// Endpoint overrides the https://{service}.search.windows.net base URL.
	Endpoint string

	RequestTimeout time.Duration
	BackOff        func() backoff.BackOff
}

// BulkURL returns the bulk document index URL for the configured index.
func (c ClientConfig) BulkURL() (string, error) {
	base := c.Endpoint
	if base == "" {
		if c.ServiceName == "" {
			return "", errors.New("a service name or endpoint must be provided")
		}
		base = fmt.Sprintf("https://%s.search.windows.net", c.ServiceName)
	}
	if c.Index == "" {
		return "", errors.New("an index name must be provided")
	}
	if c.APIVersion == "" {
		return "", errors.New("an api version must be provided")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}
	u = u.JoinPath("indexes", c.Index, "docs", "index")
	u.RawQuery = url.Values{"api-version": []string{c.APIVersion}}.Encode()
	return u.String(), nil
}

// Client delivers encoded batches to the bulk index endpoint of a single
// index. Each coordinator owns its own client.
type Client struct {
	bulkURL string
	pl      runtime.Pipeline
	boff    func() backoff.BackOff
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a delivery client with its own HTTP client.
func NewClient(conf ClientConfig) (*Client, error) {
	bulkURL, err := conf.BulkURL()
	if err != nil {
		return nil, err
	}
	if conf.AdminKey == "" {
		return nil, errors.New("an admin key must be provided")
	}
	timeout := conf.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return newClientWithTransport(conf, bulkURL, &http.Client{Timeout: timeout}), nil
}

func newClientWithTransport(conf ClientConfig, bulkURL string, transport policy.Transporter) *Client {
	keyPolicy := runtime.NewKeyCredentialPolicy(azcore.NewKeyCredential(conf.AdminKey), apiKeyHeader, &runtime.KeyCredentialPolicyOptions{
		InsecureAllowCredentialWithHTTP: strings.HasPrefix(bulkURL, "http://"),
	})
	pl := runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{
		PerRetry: []policy.Policy{keyPolicy},
	}, &policy.ClientOptions{
		// Retries are owned by Deliver so that status classification decides
		// what is worth retrying.
		Retry:     policy.RetryOptions{MaxRetries: -1},
		Transport: transport,
	})

	boff := conf.BackOff
	if boff == nil {
		boff = retries.DefaultConfig().NewBackOff
	}
	return &Client{
		bulkURL: bulkURL,
		pl:      pl,
		boff:    boff,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver posts an encoded batch, retrying transient failures according to
// the configured backoff. It never panics or returns an error, every outcome
// is expressed as a Result.
func (c *Client) Deliver(ctx context.Context, body []byte) (res Result) {
	boff := c.boff()
	boff.Reset()
	for attempts := 1; ; attempts++ {
		res = c.attempt(ctx, body)
		res.Attempts = attempts
		if res.Status == StatusSuccess || res.Class != ClassTransient {
			return
		}
		wait := boff.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		if err := c.sleep(ctx, wait); err != nil {
			res.Detail = fmt.Sprintf("%v (retries abandoned: %v)", res.Detail, err)
			return
		}
	}
}

func (c *Client) attempt(ctx context.Context, body []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: StatusFailure, Class: ClassTransient, Detail: fmt.Sprintf("request panicked: %v", r)}
		}
	}()

	req, err := runtime.NewRequest(ctx, http.MethodPost, c.bulkURL)
	if err != nil {
		return Result{Status: StatusFailure, Class: ClassClient, Detail: err.Error()}
	}
	req.Raw().Header.Set("Accept", "application/json")
	if err := req.SetBody(streaming.NopCloser(bytes.NewReader(body)), "application/json"); err != nil {
		return Result{Status: StatusFailure, Class: ClassClient, Detail: err.Error()}
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return Result{Status: StatusFailure, Class: ClassTransient, Detail: err.Error()}
	}

	payload, err := runtime.Payload(resp)
	if err != nil {
		return Result{Status: StatusFailure, Class: ClassTransient, StatusCode: resp.StatusCode, Detail: err.Error()}
	}
	return classify(resp.StatusCode, payload)
}

func classify(code int, payload []byte) Result {
	switch {
	case code >= 200 && code < 300:
		res := Result{Status: StatusSuccess, StatusCode: code}
		if code == http.StatusMultiStatus {
			res.Failed = parseDocumentFailures(payload)
		}
		return res
	case code >= 500:
		return Result{Status: StatusFailure, Class: ClassTransient, StatusCode: code, Detail: string(payload)}
	}
	return Result{Status: StatusFailure, Class: ClassClient, StatusCode: code, Detail: string(payload)}
}

// parseDocumentFailures extracts the rejected documents from a multi-status
// bulk response body of the form:
//
//	{"value":[{"key":"1","status":false,"errorMessage":"...","statusCode":422}]}
func parseDocumentFailures(payload []byte) []DocumentFailure {
	parsed, err := gabs.ParseJSON(payload)
	if err != nil {
		return nil
	}
	var failed []DocumentFailure
	for _, item := range parsed.S("value").Children() {
		if ok, _ := item.S("status").Data().(bool); ok {
			continue
		}
		df := DocumentFailure{}
		df.Key, _ = item.S("key").Data().(string)
		df.Message, _ = item.S("errorMessage").Data().(string)
		if code, ok := item.S("statusCode").Data().(float64); ok {
			df.StatusCode = int(code)
		}
		failed = append(failed, df)
	}
	return failed
}
