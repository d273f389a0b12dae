// Package expr defines the backend-agnostic predicate tree produced by the
// criteria compiler, the builder capability that constructs it, and the SQL
// renderer that turns it into a parameterised WHERE fragment.
package expr

import (
	"fmt"
	"strings"
)

// Expression is a node of a compiled predicate tree.
type Expression interface {
	fmt.Stringer
	expression()
}

// CompositeType is the logical connective of a Composite.
type CompositeType string

// Supported composite types.
const (
	CompositeAnd CompositeType = "AND"
	CompositeOr  CompositeType = "OR"
)

// Operator names a comparison. The names are the ones callers put in the
// "op" key of a criteria document.
type Operator string

// Standard comparison operators.
const (
	OperatorEq        Operator = "eq"
	OperatorNeq       Operator = "neq"
	OperatorLt        Operator = "lt"
	OperatorLte       Operator = "lte"
	OperatorGt        Operator = "gt"
	OperatorGte       Operator = "gte"
	OperatorIn        Operator = "in"
	OperatorNotIn     Operator = "notIn"
	OperatorLike      Operator = "like"
	OperatorNotLike   Operator = "notLike"
	OperatorIsNull    Operator = "isNull"
	OperatorIsNotNull Operator = "isNotNull"
)

// IsUnary reports whether the operator takes no right-hand operand.
func (o Operator) IsUnary() bool {
	return o == OperatorIsNull || o == OperatorIsNotNull
}

// Composite combines its parts with AND or OR. An empty composite is a no-op
// predicate and renders to nothing.
type Composite struct {
	Type  CompositeType
	Parts []Expression
}

// Add appends parts in order and returns the composite for chaining.
func (c *Composite) Add(parts ...Expression) *Composite {
	for _, p := range parts {
		if p != nil {
			c.Parts = append(c.Parts, p)
		}
	}
	return c
}

// Count returns the number of direct parts.
func (c *Composite) Count() int {
	return len(c.Parts)
}

// IsEmpty reports whether the composite has no parts.
func (c *Composite) IsEmpty() bool {
	return c == nil || len(c.Parts) == 0
}

func (c *Composite) String() string {
	var parts []string
	if c != nil {
		for _, p := range c.Parts {
			if s := p.String(); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) <= 1 {
		return strings.Join(parts, "")
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " "+string(c.Type)+" ")
}

// Comparison applies Operator to Left and Right. Right is nil for unary
// comparisons such as isNull.
type Comparison struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

func (c *Comparison) String() string {
	symbol, ok := sqlOperators[c.Operator]
	if !ok {
		symbol = string(c.Operator)
	}
	if c.Right == nil {
		return fmt.Sprintf("%s %s", c.Left, symbol)
	}
	return fmt.Sprintf("%s %s %s", c.Left, symbol, c.Right)
}

// Field is a qualified field reference, emitted verbatim.
type Field struct {
	Name string
}

func (f Field) String() string {
	return f.Name
}

// Func is a function call such as LOWER(q.name).
type Func struct {
	Name string
	Args []Expression
}

func (f Func) String() string {
	args := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		args = append(args, a.String())
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

// Literal is a value encoded by the backend. The SQL renderer binds it as a
// driver parameter; String quotes it inline for debugging only.
type Literal struct {
	Value any
}

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// List is a literal-encoded value list.
type List []Expression

func (l List) String() string {
	items := make([]string, 0, len(l))
	for _, item := range l {
		items = append(items, item.String())
	}
	return "(" + strings.Join(items, ", ") + ")"
}

func (*Composite) expression()  {}
func (*Comparison) expression() {}
func (Field) expression()       {}
func (Func) expression()        {}
func (Literal) expression()     {}
func (List) expression()        {}

// Qualify prefixes a field name with alias unless it already contains a dot.
func Qualify(alias, field string) string {
	if strings.Contains(field, ".") {
		return field
	}
	return alias + "." + field
}
