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
	"errors"
	"fmt"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// FieldKind is the closed set of validation rules a schema field can carry.
type FieldKind int

// Field kinds.
const (
	KindOpaque FieldKind = iota
	KindString
	KindVector
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	}
	return "opaque"
}

// KindFromType maps a declared type name onto a FieldKind. Both the short
// names used by connector configs ("string", "collection") and the EDM names
// used by index definitions ("Edm.String", "Collection(Edm.Single)") are
// recognised. Anything else is opaque.
func KindFromType(t string) FieldKind {
	switch lt := strings.ToLower(strings.TrimSpace(t)); {
	case lt == "string", lt == "edm.string":
		return KindString
	case lt == "collection", lt == "vector", strings.HasPrefix(lt, "collection("):
		return KindVector
	}
	return KindOpaque
}

// FieldSpec describes a single declared index field.
type FieldSpec struct {
	Name       string
	Kind       FieldKind
	Default    any
	HasDefault bool
	Key        bool
}

// UndeclaredPolicy determines what happens to record fields that are not part
// of the schema.
type UndeclaredPolicy int

// Undeclared field policies.
const (
	UndeclaredPassthrough UndeclaredPolicy = iota
	UndeclaredDrop
)

// ParseUndeclaredPolicy parses the config representation of an
// UndeclaredPolicy.
func ParseUndeclaredPolicy(s string) (UndeclaredPolicy, error) {
	switch s {
	case "", "passthrough":
		return UndeclaredPassthrough, nil
	case "drop":
		return UndeclaredDrop, nil
	}
	return 0, fmt.Errorf("unrecognised undeclared field policy: %v", s)
}

// Schema is an ordered, immutable set of field declarations.
type Schema struct {
	fields []FieldSpec
	index  map[string]int

	undeclared         UndeclaredPolicy
	emptyVectorDefault bool
}

// SchemaOption customises normalisation behaviour.
type SchemaOption func(*Schema)

// WithUndeclaredPolicy sets the policy applied to fields not in the schema.
func WithUndeclaredPolicy(p UndeclaredPolicy) SchemaOption {
	return func(s *Schema) {
		s.undeclared = p
	}
}

// WithEmptyVectorDefault makes absent vector fields without a declared default
// emit an empty sequence rather than being omitted.
func WithEmptyVectorDefault(v bool) SchemaOption {
	return func(s *Schema) {
		s.emptyVectorDefault = v
	}
}

// NewSchema creates a schema from an ordered list of field specs.
func NewSchema(fields []FieldSpec, opts ...SchemaOption) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.New("schema must declare at least one field")
	}
	s := &Schema{
		fields: make([]FieldSpec, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	keys := 0
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field %v has an empty name", i)
		}
		if _, exists := s.index[f.Name]; exists {
			return nil, fmt.Errorf("schema field %v declared more than once", f.Name)
		}
		if f.Key {
			keys++
		}
		if f.Default == nil {
			// A null default and no default both leave the field out.
			f.HasDefault = false
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	if keys > 1 {
		return nil, errors.New("schema declares more than one key field")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ParseSchemaYAML parses the mapping form of a schema, where each key is a
// field name and each value holds a type and an optional default:
//
//	id: { type: string, key: true }
//	vector: { type: collection, default: [] }
//
// Declaration order is preserved.
func ParseSchemaYAML(b []byte, opts ...SchemaOption) (*Schema, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected schema to be a mapping, got line %v", node.Line)
	}

	fields := make([]FieldSpec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var decl struct {
			Type    string     `yaml:"type"`
			Default *yaml.Node `yaml:"default"`
			Key     bool       `yaml:"key"`
		}
		if err := node.Content[i+1].Decode(&decl); err != nil {
			return nil, fmt.Errorf("field %v: %w", name, err)
		}
		f := FieldSpec{
			Name: name,
			Kind: KindFromType(decl.Type),
			Key:  decl.Key,
		}
		if decl.Default != nil {
			f.HasDefault = true
			if err := decl.Default.Decode(&f.Default); err != nil {
				return nil, fmt.Errorf("field %v default: %w", name, err)
			}
		}
		fields = append(fields, f)
	}
	return NewSchema(fields, opts...)
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []FieldSpec {
	return s.fields
}

//------------------------------------------------------------------------------

// Record is a single upstream record prior to normalisation.
type Record map[string]any

// Document is a normalised record whose fields are kept in emission order.
type Document = orderedmap.OrderedMap[string, any]

// ValidationError is returned when a record field does not satisfy the kind
// declared for it.
type ValidationError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%v' expected %v, got %v", e.Field, e.Expected, e.Actual)
}

// Normalize validates a record against the schema and returns a new document
// with declared defaults filled in. The input record is not modified.
func (s *Schema) Normalize(rec Record) (*Document, error) {
	doc := orderedmap.New[string, any]()
	for _, f := range s.fields {
		v, exists := rec[f.Name]
		if !exists {
			switch {
			case f.HasDefault:
				doc.Set(f.Name, copyDefault(f.Default))
			case f.Kind == KindVector && s.emptyVectorDefault:
				doc.Set(f.Name, []any{})
			}
		} else {
			if err := checkKind(f, v); err != nil {
				return nil, err
			}
			doc.Set(f.Name, v)
		}
		if f.Key {
			if kv, _ := doc.Get(f.Name); isEmptyKey(kv) {
				return nil, &ValidationError{Field: f.Name, Expected: "a non-empty document key", Actual: describe(kv)}
			}
		}
	}

	if s.undeclared == UndeclaredDrop {
		return doc, nil
	}

	var extra []string
	for k := range rec {
		if _, declared := s.index[k]; !declared {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		doc.Set(k, rec[k])
	}
	return doc, nil
}

func checkKind(f FieldSpec, v any) error {
	switch f.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return &ValidationError{Field: f.Name, Expected: "string", Actual: describe(v)}
		}
	case KindVector:
		if !isNumericSequence(v) {
			return &ValidationError{Field: f.Name, Expected: "sequence of numbers", Actual: describe(v)}
		}
	}
	return nil
}

func isNumericSequence(v any) bool {
	switch t := v.(type) {
	case []float32, []float64, []int, []int32, []int64:
		return true
	case []any:
		for _, e := range t {
			if !isNumber(e) {
				return false
			}
		}
		return true
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

func isEmptyKey(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		for _, e := range t {
			if !isNumber(e) {
				return fmt.Sprintf("sequence containing %v", describe(e))
			}
		}
		return "sequence"
	case map[string]any:
		return "object"
	}
	if isNumber(v) {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// Defaults are shared across every record, so mutable containers are copied
// before they're handed to a document.
func copyDefault(v any) any {
	switch t := v.(type) {
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = copyDefault(e)
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = copyDefault(e)
		}
		return c
	}
	return v
}
