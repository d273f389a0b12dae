package criteria

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/asaidimu/go-criteria/core/expr"
	"go.uber.org/zap"
)

// Compiler translates a Filter into a predicate tree using the comparison
// constructors of an expr.Builder. It keeps no state between calls and is
// safe for concurrent use.
type Compiler struct {
	logger *zap.Logger
}

// NewCompiler creates a Compiler. A nil logger disables logging.
func NewCompiler(logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{logger: logger}
}

var defaultCompiler = NewCompiler(nil)

// Compile translates filter with the default compiler.
func Compile(filter Filter, builder expr.Builder) (*expr.Composite, error) {
	return defaultCompiler.Compile(filter, builder)
}

// CompileDocument parses raw with Parse and compiles the result with the
// default compiler.
func CompileDocument(raw any, builder expr.Builder) (*expr.Composite, error) {
	return defaultCompiler.CompileDocument(raw, builder)
}

// CompileDocument parses raw with Parse and compiles the result.
func (c *Compiler) CompileDocument(raw any, builder expr.Builder) (*expr.Composite, error) {
	filter, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return c.Compile(filter, builder)
}

// Compile translates filter into an AND composite. An empty filter yields an
// empty composite, which callers treat as "no filtering". Any error aborts
// the whole compilation.
func (c *Compiler) Compile(filter Filter, builder expr.Builder) (*expr.Composite, error) {
	if builder == nil {
		return nil, fmt.Errorf("expression builder cannot be nil")
	}
	root := builder.AndX()
	if filter.IsEmpty() {
		return root, nil
	}
	if err := c.compileNodes(filter.Nodes, root, builder); err != nil {
		c.logger.Debug("Criteria compilation failed", zap.Error(err))
		return nil, err
	}
	c.logger.Debug("Compiled criteria", zap.Stringer("expression", root), zap.Int("parts", root.Count()))
	return root, nil
}

// compileNodes appends the translation of nodes to target. Lists share the
// target, groups get a composite of their own.
func (c *Compiler) compileNodes(nodes []Node, target *expr.Composite, builder expr.Builder) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Group:
			var sub *expr.Composite
			switch LogicalOperator(strings.ToLower(string(n.Operator))) {
			case LogicalOr:
				sub = builder.OrX()
			case LogicalAnd:
				sub = builder.AndX()
			default:
				return &SchemaError{Key: string(n.Operator), Reason: "unknown logical operator"}
			}
			if err := c.compileNodes(n.Nodes, sub, builder); err != nil {
				return err
			}
			target.Add(sub)
		case *Condition:
			e, err := compileCondition(n, builder)
			if err != nil {
				return err
			}
			target.Add(e)
		case *List:
			if err := c.compileNodes(n.Nodes, target, builder); err != nil {
				return err
			}
		default:
			return &SchemaError{Value: fmt.Sprintf("%T", n), Reason: "unsupported criteria node"}
		}
	}
	return nil
}

// resolveOperator maps operator aliases onto builder capabilities.
func resolveOperator(op string) string {
	if op == OperatorILike {
		return string(expr.OperatorLike)
	}
	return op
}

func compileCondition(cond *Condition, builder expr.Builder) (expr.Expression, error) {
	if cond.Field == "" || cond.Op == "" {
		return nil, &SchemaError{Value: cond, Reason: "comparison requires a field and an op"}
	}
	if cond.Value == nil {
		return nil, &SchemaError{Key: "value", Value: cond, Reason: "comparison requires a value"}
	}

	resolved := resolveOperator(cond.Op)
	comparison, ok := builder.Comparison(resolved)
	if !ok {
		return nil, &UnsupportedOperatorError{Operator: cond.Op, Supported: supportedOperators(builder)}
	}

	var field expr.Expression = expr.Field{Name: expr.Qualify(builder.RootAlias(), cond.Field)}
	// The lower-case wrap follows the operator as written, not the resolved one.
	if cond.Op == OperatorILike {
		field = builder.Lower(field)
	}

	if expr.Operator(resolved).IsUnary() {
		return comparison(field, nil), nil
	}
	if values, ok := asList(cond.Value); ok {
		literals := make(expr.List, 0, len(values))
		for _, v := range values {
			literals = append(literals, builder.Literal(v))
		}
		return comparison(field, literals), nil
	}
	return comparison(field, builder.Literal(cond.Value)), nil
}

// supportedOperators lists the names builder accepts, ilike included when
// like is available. Builders that cannot enumerate their table yield nil.
func supportedOperators(builder expr.Builder) []string {
	lister, ok := builder.(interface{ Comparisons() []string })
	if !ok {
		return nil
	}
	names := lister.Comparisons()
	if _, ok := builder.Comparison(string(expr.OperatorLike)); ok {
		names = append(names, OperatorILike)
		sort.Strings(names)
	}
	return names
}

// asList reports whether v is a value list. Byte slices are single values.
func asList(v any) ([]any, bool) {
	if values, ok := v.([]any); ok {
		return values, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}
