package criteria

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrInvalidSchema       = errors.New("invalid criteria schema")
	ErrUnsupportedOperator = errors.New("unsupported comparison operator")
	ErrOrderDirection      = errors.New("invalid order direction")
)

// SchemaError reports a criteria document that does not have the expected
// shape. Key and Value identify the offending member.
type SchemaError struct {
	Key    string
	Value  any
	Reason string
}

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "invalid criteria schema"
	}
	if e.Key == "" {
		return fmt.Sprintf("%s, given: %s", reason, describe(e.Value))
	}
	return fmt.Sprintf("%s: `%s => %s`", reason, e.Key, describe(e.Value))
}

func (e *SchemaError) Unwrap() error {
	return ErrInvalidSchema
}

// UnsupportedOperatorError reports an operator the backend's builder does not
// provide. Operator is the name the caller supplied, before aliasing.
// Supported lists the builder's operators when it can enumerate them.
type UnsupportedOperatorError struct {
	Operator  string
	Supported []string
}

func (e *UnsupportedOperatorError) Error() string {
	if len(e.Supported) == 0 {
		return fmt.Sprintf("has no `%s` comparison", e.Operator)
	}
	quoted := make([]string, 0, len(e.Supported))
	for _, name := range e.Supported {
		quoted = append(quoted, "`"+name+"`")
	}
	hint := quoted[0]
	if n := len(quoted); n > 1 {
		hint = strings.Join(quoted[:n-1], ", ") + " or " + quoted[n-1]
	}
	return fmt.Sprintf("has no `%s` comparison, must be %s", e.Operator, hint)
}

func (e *UnsupportedOperatorError) Unwrap() error {
	return ErrUnsupportedOperator
}

// OrderDirectionError reports an ordering direction other than asc or desc.
type OrderDirectionError struct {
	Field     string
	Direction any
}

func (e *OrderDirectionError) Error() string {
	return fmt.Sprintf("has no `%s` order direction for field `%s`, must be `asc` or `desc`", describe(e.Direction), e.Field)
}

func (e *OrderDirectionError) Unwrap() error {
	return ErrOrderDirection
}

// IsInvalidInput reports whether err, or any error it wraps, was caused by a
// malformed criteria or order document. Such errors map to a 4xx response.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidSchema) ||
		errors.Is(err, ErrUnsupportedOperator) ||
		errors.Is(err, ErrOrderDirection)
}

// ErrorKind names the kind of a caller-input error for logs and metrics. It
// returns an empty string for any other error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSchema):
		return "schema"
	case errors.Is(err, ErrUnsupportedOperator):
		return "operator"
	case errors.Is(err, ErrOrderDirection):
		return "order_direction"
	default:
		return ""
	}
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
