// Package criteria compiles declarative, nested filter documents into
// predicate trees for a query backend.
//
// A criteria document is a mapping whose members are either groups, keyed
// "and" or "or" (case-insensitive), or comparisons of the form
//
//	{"field": "email", "op": "eq", "value": "test@test.ru"}
//
// Any other key introduces a list whose comparisons are combined with the
// enclosing group, so a bare top-level document is an implicit AND:
//
//	{
//	  "or":  [{"field": "a", "op": "like", "value": "%x%"}, {"field": "b", "op": "eq", "value": 1}],
//	  "and": [{"field": "c", "op": "neq", "value": 5}]
//	}
//
// Documents are parsed once into a Filter, a closed tree of Group, Condition
// and List nodes, and compiled against an expr.Builder supplied by the
// backend.
package criteria

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogicalOperator is the connective of a Group.
type LogicalOperator string

// Supported logical operators.
const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// OperatorILike is the case-insensitive match. It reuses the backend's like
// comparison over a lower-cased field.
const OperatorILike = "ilike"

// Node is a parsed criteria member: *Group, *Condition or *List.
type Node interface {
	node()
}

// Group combines its nodes with its operator and compiles to a new composite.
type Group struct {
	Operator LogicalOperator
	Nodes    []Node
}

// Condition is a leaf comparison.
type Condition struct {
	Field string
	Op    string
	Value any
}

// List is an implicit-AND sequence. Its nodes are compiled straight into the
// enclosing composite rather than into a group of their own.
type List struct {
	Nodes []Node
}

func (*Group) node()     {}
func (*Condition) node() {}
func (*List) node()      {}

// Filter is a parsed criteria document. Its top-level nodes are combined
// with AND.
type Filter struct {
	Nodes []Node
}

// IsEmpty reports whether the filter has no nodes.
func (f Filter) IsEmpty() bool {
	return len(f.Nodes) == 0
}

// Parse builds a Filter from Go values: maps, slices, *yaml.Node,
// json.RawMessage, Nodes or a Filter. Raw JSON or YAML text should go
// through ParseJSON or ParseYAML, which keep document key order; keys of Go
// maps are sorted, numeric keys first.
func Parse(raw any) (Filter, error) {
	v, err := normalize(raw)
	if err != nil {
		return Filter{}, err
	}
	switch t := v.(type) {
	case nil:
		return Filter{}, nil
	case object:
		nodes, err := parseMembers(t)
		if err != nil {
			return Filter{}, err
		}
		return Filter{Nodes: nodes}, nil
	case *List:
		return Filter{Nodes: t.Nodes}, nil
	case Node:
		return Filter{Nodes: []Node{t}}, nil
	default:
		return Filter{}, &SchemaError{Value: v, Reason: "criteria document must be an object or a list"}
	}
}

// ParseJSON parses a JSON criteria document, keeping key order.
func ParseJSON(data []byte) (Filter, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return Filter{}, err
	}
	return Parse(v)
}

// ParseYAML parses a YAML criteria document, keeping key order.
func ParseYAML(data []byte) (Filter, error) {
	v, err := decodeYAML(data)
	if err != nil {
		return Filter{}, err
	}
	return Parse(v)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f *Filter) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := Parse(value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalJSON encodes the filter as a list of members, which parses back to
// an equivalent filter.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.Nodes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.Nodes)
}

func (g *Group) MarshalJSON() ([]byte, error) {
	nodes := g.Nodes
	if nodes == nil {
		nodes = []Node{}
	}
	return json.Marshal(map[string][]Node{string(g.Operator): nodes})
}

func (c *Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Field string `json:"field"`
		Op    string `json:"op"`
		Value any    `json:"value"`
	}{c.Field, c.Op, c.Value})
}

func (l *List) MarshalJSON() ([]byte, error) {
	nodes := l.Nodes
	if nodes == nil {
		nodes = []Node{}
	}
	return json.Marshal(nodes)
}

// parseMembers walks the members of a mapping or sequence in order.
func parseMembers(obj object) ([]Node, error) {
	nodes := make([]Node, 0, len(obj))
	for _, e := range obj {
		var (
			n   Node
			err error
		)
		switch strings.ToLower(e.key) {
		case string(LogicalOr):
			n, err = parseGroup(LogicalOr, e)
		case string(LogicalAnd):
			n, err = parseGroup(LogicalAnd, e)
		default:
			n, err = parseMember(e)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parseGroup(op LogicalOperator, e entry) (Node, error) {
	switch v := e.value.(type) {
	case object:
		nodes, err := parseMembers(v)
		if err != nil {
			return nil, err
		}
		return &Group{Operator: op, Nodes: nodes}, nil
	case *List:
		return &Group{Operator: op, Nodes: v.Nodes}, nil
	case Node:
		return &Group{Operator: op, Nodes: []Node{v}}, nil
	default:
		return nil, &SchemaError{Key: e.key, Value: e.value, Reason: "invalid criteria schema"}
	}
}

func parseMember(e entry) (Node, error) {
	switch v := e.value.(type) {
	case object:
		cond, ok, err := parseCondition(v)
		if err != nil {
			return nil, err
		}
		if ok {
			return cond, nil
		}
		nodes, err := parseMembers(v)
		if err != nil {
			return nil, err
		}
		return &List{Nodes: nodes}, nil
	case Node:
		return v, nil
	default:
		return nil, &SchemaError{Key: e.key, Value: e.value, Reason: "invalid criteria schema"}
	}
}

// parseCondition reports whether obj is a comparison: a non-empty field and
// op with a non-null value. A present field or op that is not a string fails
// straight away, whether or not the rest of the member is well formed.
func parseCondition(obj object) (*Condition, bool, error) {
	field, hasField := obj.get("field")
	op, hasOp := obj.get("op")
	value, hasValue := obj.get("value")

	fieldName, fieldIsString := field.(string)
	opName, opIsString := op.(string)
	if (hasField && field != nil && !fieldIsString) || (hasOp && op != nil && !opIsString) {
		return nil, false, &SchemaError{
			Value:  obj,
			Reason: `type error: field and op must be strings, example: {"field": "email", "op": "eq", "value": "test@test.ru"}`,
		}
	}

	if fieldName == "" || opName == "" || !hasValue || value == nil {
		return nil, false, nil
	}
	return &Condition{Field: fieldName, Op: opName, Value: plain(value)}, true, nil
}
