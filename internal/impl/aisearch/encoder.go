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
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	actionField  = "@search.action"
	actionUpload = "upload"
)

type bulkEnvelope struct {
	Value []*Document `json:"value"`
}

// EncodeError is returned when a batch cannot be serialised.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode batch: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Encode serialises documents into a bulk index request body. Each document is
// tagged with the upload action followed by its fields in emission order.
func Encode(docs []*Document) ([]byte, error) {
	env := bulkEnvelope{Value: make([]*Document, len(docs))}
	for i, d := range docs {
		tagged := orderedmap.New[string, any]()
		tagged.Set(actionField, actionUpload)
		for pair := d.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == actionField {
				continue
			}
			tagged.Set(pair.Key, pair.Value)
		}
		env.Value[i] = tagged
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return b, nil
}
