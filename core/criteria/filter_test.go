package criteria

import (
	"encoding/json"
	"testing"

	"github.com/asaidimu/go-criteria/core/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseJSON_KeepsKeyOrder(t *testing.T) {
	filter, err := ParseJSON([]byte(`{
		"z": {"field": "z", "op": "eq", "value": 1},
		"and": [{"field": "y", "op": "eq", "value": 2}],
		"a": {"field": "a", "op": "eq", "value": 3}
	}`))
	require.NoError(t, err)
	require.Len(t, filter.Nodes, 3)
	assert.Equal(t, "z", filter.Nodes[0].(*Condition).Field)
	assert.Equal(t, LogicalAnd, filter.Nodes[1].(*Group).Operator)
	assert.Equal(t, "a", filter.Nodes[2].(*Condition).Field)
}

func TestParseJSON_Numbers(t *testing.T) {
	filter, err := ParseJSON([]byte(`[
		{"field": "a", "op": "eq", "value": 10},
		{"field": "b", "op": "eq", "value": 1.5},
		{"field": "c", "op": "eq", "value": 12345678901234567890}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 10, filter.Nodes[0].(*Condition).Value)
	assert.Equal(t, 1.5, filter.Nodes[1].(*Condition).Value)
	assert.Equal(t, json.Number("12345678901234567890"), filter.Nodes[2].(*Condition).Value)
}

func TestParseJSON_EscapedKeysAndStrings(t *testing.T) {
	filter, err := ParseJSON([]byte(`[{"fi\u0065ld": "na\"me", "op": "eq", "value": "caf\u00e9"}]`))
	require.NoError(t, err)
	require.Len(t, filter.Nodes, 1)
	assert.Equal(t, &Condition{Field: `na"me`, Op: "eq", Value: "café"}, filter.Nodes[0])
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON([]byte(`{"or": [`))
	assert.Error(t, err)
	assert.False(t, IsInvalidInput(err))

	_, err = ParseJSON([]byte(`{} {}`))
	assert.Error(t, err)

	_, err = ParseJSON([]byte(`[{"field": "a", "op": "eq", "value": 01}]`))
	assert.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	doc := `
or:
  - {field: a, op: like, value: "%x%"}
  - field: b
    op: eq
    value: 1
and:
  - field: c
    op: neq
    value: 5
`
	fromYAML, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	fromJSON, err := ParseJSON([]byte(scenarioJSON))
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestParseYAML_Anchors(t *testing.T) {
	doc := `
active: &active {field: status, op: eq, value: active}
or:
  - *active
  - {field: role, op: eq, value: admin}
`
	filter, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	composite, err := Compile(filter, expr.NewBuilder("q"))
	require.NoError(t, err)
	assert.Equal(t, "(q.status = 'active') AND ((q.status = 'active') OR (q.role = 'admin'))", composite.String())
}

func TestFilter_UnmarshalJSON(t *testing.T) {
	var request struct {
		Criteria Filter  `json:"criteria"`
		Order    OrderBy `json:"order"`
		Skip     int     `json:"skip"`
	}
	err := json.Unmarshal([]byte(`{
		"criteria": {"or": [{"field": "a", "op": "eq", "value": 1}], "b": {"field": "b", "op": "gt", "value": 2}},
		"order": {"name": "asc", "id": "desc"},
		"skip": 10
	}`), &request)
	require.NoError(t, err)

	require.Len(t, request.Criteria.Nodes, 2)
	assert.IsType(t, &Group{}, request.Criteria.Nodes[0])
	assert.Equal(t, OrderBy{{Field: "name", Direction: DirectionAsc}, {Field: "id", Direction: DirectionDesc}}, request.Order)
	assert.Equal(t, 10, request.Skip)
}

func TestFilter_UnmarshalJSON_Error(t *testing.T) {
	var request struct {
		Criteria Filter `json:"criteria"`
	}
	err := json.Unmarshal([]byte(`{"criteria": {"a": 1}}`), &request)
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestFilter_UnmarshalYAML(t *testing.T) {
	var request struct {
		Criteria Filter  `yaml:"criteria"`
		Order    OrderBy `yaml:"order"`
	}
	err := yaml.Unmarshal([]byte(`
criteria:
  - {field: name, op: ilike, value: "%ann%"}
order:
  name: asc
`), &request)
	require.NoError(t, err)
	assert.Equal(t, []Node{&Condition{Field: "name", Op: "ilike", Value: "%ann%"}}, request.Criteria.Nodes)
	assert.Equal(t, OrderBy{{Field: "name", Direction: DirectionAsc}}, request.Order)
}

func TestFilter_MarshalJSONParsesBack(t *testing.T) {
	original, err := ParseJSON([]byte(`{
		"or": [{"field": "a", "op": "in", "value": [1, 2]}, {"field": "b", "op": "isNull", "value": true}],
		"rest": [{"field": "c", "op": "eq", "value": "x"}, {"field": "d", "op": "eq", "value": true}]
	}`))
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)
	decoded, err := ParseJSON(data)
	require.NoError(t, err)

	builder := expr.NewBuilder("q")
	want, err := Compile(original, builder)
	require.NoError(t, err)
	got, err := Compile(decoded, builder)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParse_Values(t *testing.T) {
	filter := New(Where("a").Eq(1))
	parsed, err := Parse(filter)
	require.NoError(t, err)
	assert.Equal(t, filter, parsed)

	parsed, err = Parse(&filter)
	require.NoError(t, err)
	assert.Equal(t, filter, parsed)

	parsed, err = Parse(Or(Where("a").Eq(1)))
	require.NoError(t, err)
	assert.Len(t, parsed.Nodes, 1)

	parsed, err = Parse(json.RawMessage(`[{"field": "a", "op": "eq", "value": 1}]`))
	require.NoError(t, err)
	assert.Equal(t, []Node{&Condition{Field: "a", Op: "eq", Value: 1}}, parsed.Nodes)

	parsed, err = Parse(map[int]any{
		2: map[string]any{"field": "b", "op": "eq", "value": 2},
		10: map[string]any{"field": "c", "op": "eq", "value": 3},
		1: map[string]any{"field": "a", "op": "eq", "value": 1},
	})
	require.NoError(t, err)
	fields := make([]string, 0, len(parsed.Nodes))
	for _, n := range parsed.Nodes {
		fields = append(fields, n.(*Condition).Field)
	}
	assert.Equal(t, []string{"a", "b", "c"}, fields)

	parsed, err = Parse(nil)
	require.NoError(t, err)
	assert.True(t, parsed.IsEmpty())
}

func TestBuilderHelpers(t *testing.T) {
	tests := []struct {
		cond *Condition
		want Condition
	}{
		{Where("a").Eq(1), Condition{"a", "eq", 1}},
		{Where("a").Neq(1), Condition{"a", "neq", 1}},
		{Where("a").Lt(1), Condition{"a", "lt", 1}},
		{Where("a").Lte(1), Condition{"a", "lte", 1}},
		{Where("a").Gt(1), Condition{"a", "gt", 1}},
		{Where("a").Gte(1), Condition{"a", "gte", 1}},
		{Where("a").In(1, 2), Condition{"a", "in", []any{1, 2}}},
		{Where("a").In(), Condition{"a", "in", []any{}}},
		{Where("a").NotIn(3), Condition{"a", "notIn", []any{3}}},
		{Where("a").Like("%x"), Condition{"a", "like", "%x"}},
		{Where("a").NotLike("%x"), Condition{"a", "notLike", "%x"}},
		{Where("a").ILike("%x"), Condition{"a", "ilike", "%x"}},
		{Where("a").IsNull(), Condition{"a", "isNull", true}},
		{Where("a").IsNotNull(), Condition{"a", "isNotNull", true}},
		{Where("a").Op("custom", "v"), Condition{"a", "custom", "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.want.Op, func(t *testing.T) {
			assert.Equal(t, tt.want, *tt.cond)
		})
	}

	assert.Equal(t, &Group{Operator: LogicalAnd, Nodes: []Node{Where("a").Eq(1)}}, And(Where("a").Eq(1)))
	assert.Equal(t, &Group{Operator: LogicalOr}, Or())
	assert.Equal(t, &List{Nodes: []Node{Where("a").Eq(1)}}, All(Where("a").Eq(1)))
}
