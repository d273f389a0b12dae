package criteria

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// entry is one key/value member of a raw criteria document.
type entry struct {
	key   string
	value any
}

// object is an ordered mapping or sequence from a raw document. Sequences
// use their indexes as keys, so both shapes are walked the same way.
type object []entry

func (o object) get(key string) (any, bool) {
	for _, e := range o {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

func (o object) isSequence() bool {
	for i, e := range o {
		if e.key != strconv.Itoa(i) {
			return false
		}
	}
	return true
}

func (o object) MarshalJSON() ([]byte, error) {
	if o.isSequence() {
		values := make([]any, 0, len(o))
		for _, e := range o {
			values = append(values, e.value)
		}
		return json.Marshal(values)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalize converts a Go value into the raw document form: mappings and
// sequences become objects, nodes and scalars are kept as they are. Go maps
// carry no order, so their keys are sorted with sortKeys.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case object:
		return t, nil
	case Filter:
		return &List{Nodes: t.Nodes}, nil
	case *Filter:
		if t == nil {
			return nil, nil
		}
		return &List{Nodes: t.Nodes}, nil
	case Node:
		return t, nil
	case *yaml.Node:
		return fromYAMLNode(t)
	case yaml.Node:
		return fromYAMLNode(&t)
	case json.RawMessage:
		return decodeJSON(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		values := make(map[string]reflect.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			key := fmt.Sprint(k.Interface())
			keys = append(keys, key)
			values[key] = rv.MapIndex(k)
		}
		sortKeys(keys)
		obj := make(object, 0, len(keys))
		for _, key := range keys {
			value, err := normalize(values[key].Interface())
			if err != nil {
				return nil, err
			}
			obj = append(obj, entry{key: key, value: value})
		}
		return obj, nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v, nil
		}
		obj := make(object, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			value, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			obj = append(obj, entry{key: strconv.Itoa(i), value: value})
		}
		return obj, nil
	}
	return v, nil
}

// sortKeys orders numeric keys numerically first, then the remaining keys
// lexically.
func sortKeys(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		ai, aErr := strconv.Atoi(a)
		bi, bErr := strconv.Atoi(b)
		switch {
		case aErr == nil && bErr == nil:
			return ai - bi
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}

// plain turns a raw value back into ordinary Go values. Objects become []any
// of their member values in order, the way a leaf's value list is read.
func plain(v any) any {
	obj, ok := v.(object)
	if !ok {
		return v
	}
	values := make([]any, 0, len(obj))
	for _, e := range obj {
		values = append(values, plain(e.value))
	}
	return values
}

func fromYAMLNode(n *yaml.Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.MappingNode:
		obj := make(object, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			value, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj = append(obj, entry{key: keyNode.Value, value: value})
		}
		return obj, nil
	case yaml.SequenceNode:
		obj := make(object, 0, len(n.Content))
		for i, item := range n.Content {
			value, err := fromYAMLNode(item)
			if err != nil {
				return nil, err
			}
			obj = append(obj, entry{key: strconv.Itoa(i), value: value})
		}
		return obj, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func decodeYAML(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode YAML document: %w", err)
	}
	return fromYAMLNode(&n)
}

// decodeJSON walks a JSON document with gjson so that object keys keep their
// document order.
func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("failed to decode JSON document: invalid JSON")
	}
	v, err := fromJSONResult(gjson.ParseBytes(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON document: %w", err)
	}
	return v, nil
}

func fromJSONResult(r gjson.Result) (any, error) {
	switch r.Type {
	case gjson.Null:
		return nil, nil
	case gjson.False:
		return false, nil
	case gjson.True:
		return true, nil
	case gjson.String:
		return r.Str, nil
	case gjson.Number:
		return jsonNumber(r.Raw)
	case gjson.JSON:
		obj := object{}
		isArray := r.IsArray()
		var err error
		r.ForEach(func(key, value gjson.Result) bool {
			var v any
			if v, err = fromJSONResult(value); err != nil {
				return false
			}
			k := key.String()
			if isArray {
				k = strconv.Itoa(len(obj))
			}
			obj = append(obj, entry{key: k, value: v})
			return true
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unexpected JSON value %s", r.Raw)
	}
}

// jsonNumber keeps integers as int (or int64 where int is narrower) and
// other numbers as float64. Integers beyond int64 stay a json.Number so no
// digits are lost.
func jsonNumber(raw string) (any, error) {
	if !strings.ContainsAny(raw, ".eE") {
		i, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			if int64(int(i)) == i {
				return int(i), nil
			}
			return i, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return json.Number(raw), nil
		}
		return nil, fmt.Errorf("invalid number %s: %w", raw, err)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %s: %w", raw, err)
	}
	return f, nil
}
