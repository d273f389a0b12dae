package criteria

import "github.com/asaidimu/go-criteria/core/expr"

// ConditionBuilder creates comparisons on a single field.
type ConditionBuilder struct {
	field string
}

// Where starts a comparison on field.
func Where(field string) *ConditionBuilder {
	return &ConditionBuilder{field: field}
}

// Op builds a comparison with an arbitrary operator name. Names the backend
// does not know fail at compile time with an UnsupportedOperatorError.
func (b *ConditionBuilder) Op(op string, value any) *Condition {
	return &Condition{Field: b.field, Op: op, Value: value}
}

func (b *ConditionBuilder) Eq(value any) *Condition {
	return b.Op(string(expr.OperatorEq), value)
}

func (b *ConditionBuilder) Neq(value any) *Condition {
	return b.Op(string(expr.OperatorNeq), value)
}

func (b *ConditionBuilder) Lt(value any) *Condition {
	return b.Op(string(expr.OperatorLt), value)
}

func (b *ConditionBuilder) Lte(value any) *Condition {
	return b.Op(string(expr.OperatorLte), value)
}

func (b *ConditionBuilder) Gt(value any) *Condition {
	return b.Op(string(expr.OperatorGt), value)
}

func (b *ConditionBuilder) Gte(value any) *Condition {
	return b.Op(string(expr.OperatorGte), value)
}

func (b *ConditionBuilder) In(values ...any) *Condition {
	if values == nil {
		values = []any{}
	}
	return b.Op(string(expr.OperatorIn), values)
}

func (b *ConditionBuilder) NotIn(values ...any) *Condition {
	if values == nil {
		values = []any{}
	}
	return b.Op(string(expr.OperatorNotIn), values)
}

func (b *ConditionBuilder) Like(pattern string) *Condition {
	return b.Op(string(expr.OperatorLike), pattern)
}

func (b *ConditionBuilder) NotLike(pattern string) *Condition {
	return b.Op(string(expr.OperatorNotLike), pattern)
}

// ILike matches pattern against the lower-cased field. The pattern is used
// as given.
func (b *ConditionBuilder) ILike(pattern string) *Condition {
	return b.Op(OperatorILike, pattern)
}

// IsNull matches a missing column value. The comparison carries true as its
// value, since a null value marks a member that is not a comparison.
func (b *ConditionBuilder) IsNull() *Condition {
	return b.Op(string(expr.OperatorIsNull), true)
}

func (b *ConditionBuilder) IsNotNull() *Condition {
	return b.Op(string(expr.OperatorIsNotNull), true)
}

// And groups nodes with AND.
func And(nodes ...Node) *Group {
	return &Group{Operator: LogicalAnd, Nodes: nodes}
}

// Or groups nodes with OR.
func Or(nodes ...Node) *Group {
	return &Group{Operator: LogicalOr, Nodes: nodes}
}

// All lists nodes that join the enclosing group instead of forming their own.
func All(nodes ...Node) *List {
	return &List{Nodes: nodes}
}

// New creates a Filter from top-level nodes.
func New(nodes ...Node) Filter {
	return Filter{Nodes: nodes}
}
