package expr

import (
	"maps"
	"slices"
)

// ComparisonFunc constructs a comparison over left. right is nil for unary
// operators.
type ComparisonFunc func(left, right Expression) Expression

// Builder is the capability a backend hands to the criteria compiler. It
// creates composites, resolves comparison constructors by name, encodes
// literals and names the root alias used for unqualified fields.
type Builder interface {
	// AndX returns a new AND composite holding parts.
	AndX(parts ...Expression) *Composite
	// OrX returns a new OR composite holding parts.
	OrX(parts ...Expression) *Composite
	// Comparison looks up the constructor registered under name.
	Comparison(name string) (ComparisonFunc, bool)
	// Literal encodes a single value for the backend.
	Literal(value any) Expression
	// Lower wraps a field reference in a lower-case transform.
	Lower(field Expression) Expression
	// RootAlias is the qualifier for field names without a dot.
	RootAlias() string
}

// BuilderOption customises a StandardBuilder.
type BuilderOption func(*StandardBuilder)

// WithComparison registers an additional comparison constructor, replacing
// any existing one with the same name.
func WithComparison(name string, fn ComparisonFunc) BuilderOption {
	return func(b *StandardBuilder) {
		b.comparisons[name] = fn
	}
}

// WithoutComparisons removes comparison names a backend cannot serve.
func WithoutComparisons(names ...string) BuilderOption {
	return func(b *StandardBuilder) {
		for _, name := range names {
			delete(b.comparisons, name)
		}
	}
}

// WithLowerFunc sets the function name used by Lower. Defaults to LOWER.
func WithLowerFunc(name string) BuilderOption {
	return func(b *StandardBuilder) {
		b.lowerFunc = name
	}
}

// StandardBuilder is the default Builder. Comparison constructors live in a
// lookup table keyed by operator name.
type StandardBuilder struct {
	rootAlias   string
	lowerFunc   string
	comparisons map[string]ComparisonFunc
}

var _ Builder = (*StandardBuilder)(nil)

// NewBuilder creates a builder for rootAlias with the standard comparison
// table: eq, neq, lt, lte, gt, gte, in, notIn, like, notLike, isNull and
// isNotNull.
func NewBuilder(rootAlias string, opts ...BuilderOption) *StandardBuilder {
	b := &StandardBuilder{
		rootAlias:   rootAlias,
		lowerFunc:   "LOWER",
		comparisons: StandardComparisons(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// StandardComparisons returns a fresh copy of the standard comparison table.
func StandardComparisons() map[string]ComparisonFunc {
	table := make(map[string]ComparisonFunc, len(standardOperators))
	for _, op := range standardOperators {
		table[string(op)] = comparisonFor(op)
	}
	return table
}

var standardOperators = []Operator{
	OperatorEq,
	OperatorNeq,
	OperatorLt,
	OperatorLte,
	OperatorGt,
	OperatorGte,
	OperatorIn,
	OperatorNotIn,
	OperatorLike,
	OperatorNotLike,
	OperatorIsNull,
	OperatorIsNotNull,
}

func comparisonFor(op Operator) ComparisonFunc {
	if op.IsUnary() {
		return func(left, _ Expression) Expression {
			return &Comparison{Left: left, Operator: op}
		}
	}
	return func(left, right Expression) Expression {
		return &Comparison{Left: left, Operator: op, Right: right}
	}
}

func (b *StandardBuilder) AndX(parts ...Expression) *Composite {
	return (&Composite{Type: CompositeAnd}).Add(parts...)
}

func (b *StandardBuilder) OrX(parts ...Expression) *Composite {
	return (&Composite{Type: CompositeOr}).Add(parts...)
}

func (b *StandardBuilder) Comparison(name string) (ComparisonFunc, bool) {
	fn, ok := b.comparisons[name]
	return fn, ok
}

func (b *StandardBuilder) Literal(value any) Expression {
	return Literal{Value: value}
}

func (b *StandardBuilder) Lower(field Expression) Expression {
	return Func{Name: b.lowerFunc, Args: []Expression{field}}
}

func (b *StandardBuilder) RootAlias() string {
	return b.rootAlias
}

// Comparisons returns the registered operator names in sorted order.
func (b *StandardBuilder) Comparisons() []string {
	return slices.Sorted(maps.Keys(b.comparisons))
}
