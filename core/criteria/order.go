package criteria

import (
	"strings"

	"github.com/asaidimu/go-criteria/core/expr"
	"gopkg.in/yaml.v3"
)

// Direction specifies the direction for sorting.
type Direction string

// Supported sort directions. Matching is exact and case-sensitive.
const (
	DirectionAsc  Direction = "asc"
	DirectionDesc Direction = "desc"
)

// Order sorts by a single field.
type Order struct {
	Field     string
	Direction Direction
}

// OrderBy is an ordered list of sort terms.
type OrderBy []Order

// ParseOrder builds an OrderBy from a mapping of field name to direction.
// A list of such mappings is flattened in order, which lets Go callers keep
// a deterministic order. Any direction other than "asc" or "desc" fails with
// an OrderDirectionError.
func ParseOrder(raw any) (OrderBy, error) {
	v, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case object:
		var order OrderBy
		if err := collectOrder(t, &order); err != nil {
			return nil, err
		}
		return order, nil
	default:
		return nil, &SchemaError{Value: v, Reason: "order must be an object of field to direction"}
	}
}

// ParseOrderJSON parses a JSON order document, keeping key order.
func ParseOrderJSON(data []byte) (OrderBy, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return ParseOrder(v)
}

// ParseOrderYAML parses a YAML order document, keeping key order.
func ParseOrderYAML(data []byte) (OrderBy, error) {
	v, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	return ParseOrder(v)
}

func collectOrder(obj object, order *OrderBy) error {
	for _, e := range obj {
		if nested, ok := e.value.(object); ok && obj.isSequence() {
			if err := collectOrder(nested, order); err != nil {
				return err
			}
			continue
		}
		direction, ok := e.value.(string)
		if !ok {
			return &OrderDirectionError{Field: e.key, Direction: e.value}
		}
		term := Order{Field: e.key, Direction: Direction(direction)}
		if err := term.Validate(); err != nil {
			return err
		}
		*order = append(*order, term)
	}
	return nil
}

func (o *OrderBy) UnmarshalJSON(data []byte) error {
	parsed, err := ParseOrderJSON(data)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (o *OrderBy) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseOrder(value)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Validate checks the direction of the term.
func (o Order) Validate() error {
	if o.Direction != DirectionAsc && o.Direction != DirectionDesc {
		return &OrderDirectionError{Field: o.Field, Direction: string(o.Direction)}
	}
	return nil
}

// Validate checks every term and returns the first failure.
func (o OrderBy) Validate() error {
	for _, term := range o {
		if err := term.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Qualify returns a copy with unqualified fields prefixed by rootAlias.
func (o OrderBy) Qualify(rootAlias string) OrderBy {
	if o == nil {
		return nil
	}
	qualified := make(OrderBy, len(o))
	for i, term := range o {
		qualified[i] = Order{Field: expr.Qualify(rootAlias, term.Field), Direction: term.Direction}
	}
	return qualified
}

// SQL renders the terms as an ORDER BY list, e.g. `"q"."name" ASC, "q"."age" DESC`,
// quoting each part of a field name through dialect.
func (o OrderBy) SQL(dialect expr.Dialect) string {
	terms := make([]string, 0, len(o))
	for _, term := range o {
		terms = append(terms, expr.QuoteField(dialect, term.Field)+" "+strings.ToUpper(string(term.Direction)))
	}
	return strings.Join(terms, ", ")
}
