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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Jeffail/shutdown"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/redpanda-data/aisearch-connect/internal/retries"
)

const (
	aoFieldServiceName        = "service_name"
	aoFieldIndex              = "index"
	aoFieldAPIVersion         = "api_version"
	aoFieldAPIKey             = "api_key"
	aoFieldEndpoint           = "endpoint"
	aoFieldPartitionKey       = "partition_key"
	aoFieldSchema             = "schema"
	aoFieldSchemaName         = "name"
	aoFieldSchemaType         = "type"
	aoFieldSchemaDefault      = "default"
	aoFieldSchemaKey          = "key"
	aoFieldUndeclared         = "undeclared_fields"
	aoFieldEmptyVectorDefault = "empty_vector_default"
	aoFieldMaxSize            = "max_size"
	aoFieldTimeout            = "timeout"
	aoFieldRequestTimeout     = "request_timeout"
)

func outputSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Categories("AI", "Azure").
		Summary("Uploads documents to an https://learn.microsoft.com/en-us/azure/search/[Azure AI Search^] index in batches.").
		Description(`
Each message must be a JSON object. Messages are grouped by their partition key into batches which are flushed once they reach `+"`max_size`"+` documents or once the oldest document of the batch has waited for `+"`timeout`"+`. Every batch is sent as a single bulk index request with the `+"`upload`"+` action.

Messages are validated against the configured schema before being batched. Declared fields that are missing are filled with their default, and messages with a field of the wrong type are dropped and logged without affecting the rest of their batch.

A message is acknowledged only once the batch it belongs to has been accepted by the index. Batches that are rejected with a 4xx status are not retried, batches that fail with a 5xx status or a network error are retried with an exponential backoff before the messages are nacked.`).
		Fields(
			service.NewStringField(aoFieldServiceName).
				Description("The name of the search service, used to build the endpoint `https://<service_name>.search.windows.net`.").
				Example("my-search"),
			service.NewStringField(aoFieldIndex).
				Description("The name of the target index."),
			service.NewStringField(aoFieldAPIVersion).
				Description("The REST API version sent with each request.").
				Default("2024-07-01"),
			service.NewStringField(aoFieldAPIKey).
				Description("An admin key of the search service.").
				Secret(),
			service.NewStringField(aoFieldEndpoint).
				Description("An optional base URL overriding the endpoint derived from the service name.").
				Default("").
				Advanced(),
			service.NewInterpolatedStringField(aoFieldPartitionKey).
				Description("The key messages are batched by. Messages with the same key are delivered in the same batches.").
				Default("").
				Example(`${! @kafka_partition }`),
			service.NewObjectListField(aoFieldSchema,
				service.NewStringField(aoFieldSchemaName).
					Description("The name of the index field."),
				service.NewStringField(aoFieldSchemaType).
					Description("The type of the field. `string` or `Edm.String` values must be strings and `collection`, `vector` or `Collection(...)` values must be arrays of numbers, any other type is passed through unchecked.").
					Default("string"),
				service.NewAnyField(aoFieldSchemaDefault).
					Description("A value to use when the field is missing from a message.").
					Optional(),
				service.NewBoolField(aoFieldSchemaKey).
					Description("Whether this field is the document key of the index. Messages without a key are dropped.").
					Default(false),
			).
				Description("The fields of the index, in the order they are written to each document."),
			service.NewStringAnnotatedEnumField(aoFieldUndeclared, map[string]string{
				"passthrough": "Fields that are not declared in the schema are uploaded as they are.",
				"drop":        "Fields that are not declared in the schema are removed.",
			}).
				Description("What to do with message fields that are not declared in the schema.").
				Default("passthrough").
				Advanced(),
			service.NewBoolField(aoFieldEmptyVectorDefault).
				Description("Whether missing vector fields without a default are uploaded as an empty array rather than omitted.").
				Default(false).
				Advanced(),
			service.NewIntField(aoFieldMaxSize).
				Description(fmt.Sprintf("The maximum number of documents per batch, up to %v.", MaxBatchDocuments)).
				Default(DefaultMaxSize),
			service.NewDurationField(aoFieldTimeout).
				Description("The maximum period a document waits in a partial batch. A zero or negative duration disables timed flushes.").
				Default("1s"),
			service.NewDurationField(aoFieldRequestTimeout).
				Description("The timeout of a single bulk request.").
				Default("30s").
				Advanced(),
			service.NewOutputMaxInFlightField().Default(64),
		).
		Fields(retries.CommonRetryBackOffFields(3, "500ms", "10s", "1m")...).
		Example("Keyed uploads", "Upload documents batched by Kafka partition, with an embedding vector per document.", `
output:
  azure_ai_search:
    service_name: my-search
    index: docs
    api_key: "${AZURE_SEARCH_ADMIN_KEY}"
    partition_key: ${! @kafka_partition }
    schema:
      - { name: id, type: string, key: true }
      - { name: content, type: string, default: "" }
      - { name: vector, type: collection, default: [] }
`)
}

func init() {
	err := service.RegisterOutput("azure_ai_search", outputSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (out service.Output, mif int, err error) {
			if mif, err = conf.FieldMaxInFlight(); err != nil {
				return
			}
			out, err = newSearchOutput(conf, mgr)
			return
		})
	if err != nil {
		panic(err)
	}
}

func schemaFromParsed(conf *service.ParsedConfig) (*Schema, error) {
	undeclaredStr, err := conf.FieldString(aoFieldUndeclared)
	if err != nil {
		return nil, err
	}
	undeclared, err := ParseUndeclaredPolicy(undeclaredStr)
	if err != nil {
		return nil, err
	}
	emptyVec, err := conf.FieldBool(aoFieldEmptyVectorDefault)
	if err != nil {
		return nil, err
	}

	fConfs, err := conf.FieldObjectList(aoFieldSchema)
	if err != nil {
		return nil, err
	}
	fields := make([]FieldSpec, 0, len(fConfs))
	for _, fConf := range fConfs {
		var f FieldSpec
		if f.Name, err = fConf.FieldString(aoFieldSchemaName); err != nil {
			return nil, err
		}
		typeStr, err := fConf.FieldString(aoFieldSchemaType)
		if err != nil {
			return nil, err
		}
		f.Kind = KindFromType(typeStr)
		if f.Key, err = fConf.FieldBool(aoFieldSchemaKey); err != nil {
			return nil, err
		}
		if fConf.Contains(aoFieldSchemaDefault) {
			if f.Default, err = fConf.FieldAny(aoFieldSchemaDefault); err != nil {
				return nil, err
			}
			f.HasDefault = true
		}
		fields = append(fields, f)
	}
	return NewSchema(fields, WithUndeclaredPolicy(undeclared), WithEmptyVectorDefault(emptyVec))
}

func sinkConfigFromParsed(conf *service.ParsedConfig) (sc SinkConfig, err error) {
	if sc.ServiceName, err = conf.FieldString(aoFieldServiceName); err != nil {
		return
	}
	if sc.Index, err = conf.FieldString(aoFieldIndex); err != nil {
		return
	}
	if sc.APIVersion, err = conf.FieldString(aoFieldAPIVersion); err != nil {
		return
	}
	if sc.AdminKey, err = conf.FieldString(aoFieldAPIKey); err != nil {
		return
	}
	if sc.Endpoint, err = conf.FieldString(aoFieldEndpoint); err != nil {
		return
	}
	if sc.MaxSize, err = conf.FieldInt(aoFieldMaxSize); err != nil {
		return
	}
	if sc.Timeout, err = conf.FieldDuration(aoFieldTimeout); err != nil {
		return
	}
	if sc.Timeout == 0 {
		sc.Timeout = -1
	}
	if sc.RequestTimeout, err = conf.FieldDuration(aoFieldRequestTimeout); err != nil {
		return
	}
	var retry retries.Config
	if retry, err = retries.ConfigFromParsed(conf); err != nil {
		return
	}
	sc.Retry = &retry
	sc.Schema, err = schemaFromParsed(conf)
	return
}

//------------------------------------------------------------------------------

type searchOutput struct {
	log          *service.Logger
	sink         *Sink
	partitionKey *service.InterpolatedString

	items    chan Item
	inFlight atomic.Int64
	connMut  sync.Mutex
	started  bool
	shutSig  *shutdown.Signaller
}

func newSearchOutput(conf *service.ParsedConfig, mgr *service.Resources) (*searchOutput, error) {
	sc, err := sinkConfigFromParsed(conf)
	if err != nil {
		return nil, err
	}
	sc.Logger = mgr.Logger()
	sc.Reporter = NewServiceReporter(mgr.Logger(), mgr.Metrics())

	sink, err := NewSink(sc)
	if err != nil {
		return nil, err
	}
	partitionKey, err := conf.FieldInterpolatedString(aoFieldPartitionKey)
	if err != nil {
		return nil, err
	}
	return &searchOutput{
		log:          mgr.Logger(),
		sink:         sink,
		partitionKey: partitionKey,
		items:        make(chan Item),
		shutSig:      shutdown.NewSignaller(),
	}, nil
}

func (o *searchOutput) Connect(ctx context.Context) error {
	o.connMut.Lock()
	defer o.connMut.Unlock()
	if o.started {
		return nil
	}
	coord, err := o.sink.Build(0, 1)
	if err != nil {
		return err
	}
	o.started = true
	go o.loop(coord)
	return nil
}

func (o *searchOutput) loop(coord *Coordinator) {
	defer o.shutSig.TriggerHasStopped()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-o.shutSig.HardStopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	coord.runUntil(ctx, o.items, o.shutSig.SoftStopChan())
	if err := coord.Drain(ctx); err != nil {
		o.log.Errorf("Failed to drain pending batches: %v", err)
	}
}

func (o *searchOutput) Write(ctx context.Context, msg *service.Message) error {
	o.connMut.Lock()
	started := o.started
	o.connMut.Unlock()
	if !started {
		return service.ErrNotConnected
	}

	key, err := o.partitionKey.TryString(msg)
	if err != nil {
		return fmt.Errorf("%s interpolation error: %w", aoFieldPartitionKey, err)
	}

	structured, err := msg.AsStructured()
	if err != nil {
		o.log.Errorf("Dropping message that is not valid JSON: %v", err)
		return nil
	}
	obj, ok := structured.(map[string]any)
	if !ok {
		o.log.Errorf("Dropping message that is not a JSON object: %T", structured)
		return nil
	}

	resC := make(chan error, 1)
	it := Item{
		Key:    key,
		Record: Record(obj),
		Done:   func(err error) { resC <- err },
	}

	select {
	case o.items <- it:
	case <-o.shutSig.SoftStopChan():
		return service.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
	o.inFlight.Add(1)
	defer o.inFlight.Add(-1)

	select {
	case err := <-resC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *searchOutput) Close(ctx context.Context) error {
	o.connMut.Lock()
	started := o.started
	o.connMut.Unlock()

	o.shutSig.TriggerSoftStop()
	if !started {
		return nil
	}
	if n := o.inFlight.Load(); n > 0 {
		o.log.Debugf("Waiting for %v pending messages to be delivered", n)
	}
	select {
	case <-o.shutSig.HasStoppedChan():
	case <-ctx.Done():
		o.shutSig.TriggerHardStop()
		return ctx.Err()
	}
	return nil
}
