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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docKeys(d *Document) []string {
	var keys []string
	for pair := d.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func docValue(t *testing.T, d *Document, key string) any {
	t.Helper()
	v, ok := d.Get(key)
	require.True(t, ok, key)
	return v
}

func testSchema(t *testing.T, opts ...SchemaOption) *Schema {
	t.Helper()
	s, err := NewSchema([]FieldSpec{
		{Name: "id", Kind: KindString, Key: true},
		{Name: "content", Kind: KindString, Default: "", HasDefault: true},
		{Name: "vector", Kind: KindVector, Default: []any{}, HasDefault: true},
	}, opts...)
	require.NoError(t, err)
	return s
}

func TestKindFromType(t *testing.T) {
	for in, exp := range map[string]FieldKind{
		"string":                 KindString,
		"Edm.String":             KindString,
		"collection":             KindVector,
		"vector":                 KindVector,
		"Collection(Edm.Single)": KindVector,
		"Edm.Int32":              KindOpaque,
		"":                       KindOpaque,
	} {
		assert.Equal(t, exp, KindFromType(in), in)
	}
}

func TestNewSchemaErrors(t *testing.T) {
	_, err := NewSchema(nil)
	require.Error(t, err)

	_, err = NewSchema([]FieldSpec{{Name: "a"}, {Name: "a"}})
	require.Error(t, err)

	_, err = NewSchema([]FieldSpec{{Name: ""}})
	require.Error(t, err)

	_, err = NewSchema([]FieldSpec{{Name: "a", Key: true}, {Name: "b", Key: true}})
	require.Error(t, err)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	s := testSchema(t)

	rec := Record{"id": "1"}
	doc, err := s.Normalize(rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "content", "vector"}, docKeys(doc))
	assert.Equal(t, "", docValue(t, doc, "content"))
	assert.Equal(t, []any{}, docValue(t, doc, "vector"))
	assert.Equal(t, Record{"id": "1"}, rec)
}

func TestNormalizeDefaultsAreNotShared(t *testing.T) {
	s, err := NewSchema([]FieldSpec{
		{Name: "tags", Kind: KindOpaque, Default: []any{"a"}, HasDefault: true},
	})
	require.NoError(t, err)

	first, err := s.Normalize(Record{})
	require.NoError(t, err)
	docValue(t, first, "tags").([]any)[0] = "b"

	second, err := s.Normalize(Record{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, docValue(t, second, "tags"))
}

func TestNormalizeNoDefaultOmitsField(t *testing.T) {
	s, err := NewSchema([]FieldSpec{
		{Name: "id", Kind: KindString},
		{Name: "summary", Kind: KindString},
		{Name: "vector", Kind: KindVector},
		{Name: "nulled", Kind: KindString, Default: nil, HasDefault: true},
	})
	require.NoError(t, err)

	doc, err := s.Normalize(Record{"id": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, docKeys(doc))
}

func TestNormalizeEmptyVectorDefault(t *testing.T) {
	s, err := NewSchema([]FieldSpec{
		{Name: "id", Kind: KindString},
		{Name: "vector", Kind: KindVector},
	}, WithEmptyVectorDefault(true))
	require.NoError(t, err)

	doc, err := s.Normalize(Record{"id": "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, docValue(t, doc, "vector"))
}

func TestNormalizeKindChecks(t *testing.T) {
	s := testSchema(t)

	tests := []struct {
		name     string
		rec      Record
		errField string
	}{
		{name: "valid any slice", rec: Record{"id": "1", "vector": []any{0.1, 2, json.Number("3.5")}}},
		{name: "valid typed slice", rec: Record{"id": "1", "vector": []float32{0.1, 0.2}}},
		{name: "valid empty vector", rec: Record{"id": "1", "vector": []any{}}},
		{name: "string not string", rec: Record{"id": "1", "content": 5}, errField: "content"},
		{name: "vector not sequence", rec: Record{"id": "1", "vector": "nope"}, errField: "vector"},
		{name: "vector with string", rec: Record{"id": "1", "vector": []any{0.1, "x"}}, errField: "vector"},
		{name: "missing key", rec: Record{"content": "c"}, errField: "id"},
		{name: "empty key", rec: Record{"id": ""}, errField: "id"},
		{name: "null key", rec: Record{"id": nil}, errField: "id"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := s.Normalize(test.rec)
			if test.errField == "" {
				require.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), err)
			assert.Equal(t, test.errField, vErr.Field)
		})
	}
}

func TestNormalizeUndeclaredFields(t *testing.T) {
	rec := Record{"id": "1", "zeta": 1, "alpha": "a"}

	doc, err := testSchema(t).Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "content", "vector", "alpha", "zeta"}, docKeys(doc))

	doc, err = testSchema(t, WithUndeclaredPolicy(UndeclaredDrop)).Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "content", "vector"}, docKeys(doc))
}

func TestParseUndeclaredPolicy(t *testing.T) {
	p, err := ParseUndeclaredPolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, UndeclaredDrop, p)

	p, err = ParseUndeclaredPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UndeclaredPassthrough, p)

	_, err = ParseUndeclaredPolicy("strict")
	require.Error(t, err)
}

func TestParseSchemaYAML(t *testing.T) {
	s, err := ParseSchemaYAML([]byte(`
zulu: { type: string, key: true }
content: { type: Edm.String, default: "" }
vector: { type: Collection(Edm.Single), default: [] }
score: { type: Edm.Double, default: 0.5 }
nothing: { type: string, default: null }
`))
	require.NoError(t, err)

	fields := s.Fields()
	require.Len(t, fields, 5)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"zulu", "content", "vector", "score", "nothing"}, names)

	expected := []FieldSpec{
		{Name: "zulu", Kind: KindString, Key: true},
		{Name: "content", Kind: KindString, Default: "", HasDefault: true},
		{Name: "vector", Kind: KindVector, Default: []any{}, HasDefault: true},
		{Name: "score", Kind: KindOpaque, Default: 0.5, HasDefault: true},
		{Name: "nothing", Kind: KindString},
	}
	if diff := cmp.Diff(expected, fields); diff != "" {
		t.Errorf("unexpected fields (-want +got):\n%s", diff)
	}
}

func TestParseSchemaYAMLErrors(t *testing.T) {
	_, err := ParseSchemaYAML([]byte(`- a`))
	require.Error(t, err)

	_, err = ParseSchemaYAML([]byte(`a: [1, 2]`))
	require.Error(t, err)
}
