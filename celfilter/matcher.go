// Package celfilter evaluates compiled criteria in memory. The expression
// tree is translated to a CEL program, so documents already loaded (a cache,
// an event payload, a test fixture) can be checked against the same filter a
// repository would send to the database.
//
// Field references resolve against map variables: "q.name" reads key "name"
// of the variable bound to alias "q". Comparisons on a missing or null field
// do not match, as in SQL. LIKE is case-sensitive as in PostgreSQL unless
// FoldLikeCase is given, which matches SQLite's behaviour.
package celfilter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/asaidimu/go-criteria/core/criteria"
	"github.com/asaidimu/go-criteria/core/expr"
	"github.com/asaidimu/go-criteria/core/query"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Matcher is a compiled in-memory predicate. It is safe for concurrent use.
type Matcher struct {
	rootAlias string
	source    string
	aliases   []string
	params    map[string]any
	program   cel.Program
}

type options struct {
	foldLikeCase bool
}

// Option configures Compile.
type Option func(*options)

// FoldLikeCase makes like and notLike ignore letter case, the way SQLite's
// LIKE does.
func FoldLikeCase() Option {
	return func(o *options) { o.foldLikeCase = true }
}

// NewBuilder returns the expression builder used with Compile.
func NewBuilder(rootAlias string) expr.Builder {
	return expr.NewBuilder(rootAlias)
}

// CompileFilter compiles filter with the standard builder and translates the
// result.
func CompileFilter(filter criteria.Filter, rootAlias string, opts ...Option) (*Matcher, error) {
	composite, err := criteria.Compile(filter, NewBuilder(rootAlias))
	if err != nil {
		return nil, err
	}
	return Compile(composite, rootAlias, opts...)
}

// Compile translates an expression tree into a CEL program. Unqualified
// fields resolve against rootAlias.
func Compile(e expr.Expression, rootAlias string, opts ...Option) (*Matcher, error) {
	if !identifier.MatchString(rootAlias) {
		return nil, fmt.Errorf("root alias %q is not a valid identifier", rootAlias)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := &translator{
		foldLikeCase: o.foldLikeCase,
		rootAlias:    rootAlias,
		params:       map[string]any{},
		aliases:      map[string]struct{}{rootAlias: {}},
	}
	source, err := t.expression(e)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = "true"
	}

	aliases := make([]string, 0, len(t.aliases))
	for alias := range t.aliases {
		if _, clash := t.params[alias]; clash {
			return nil, fmt.Errorf("alias %q clashes with a parameter name", alias)
		}
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	envOpts := []cel.EnvOption{
		ext.Strings(),
		cel.CrossTypeNumericComparisons(true),
	}
	for _, alias := range aliases {
		envOpts = append(envOpts, cel.Variable(alias, cel.MapType(cel.StringType, cel.DynType)))
	}
	for name := range t.params {
		envOpts = append(envOpts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program construction error: %w", err)
	}

	return &Matcher{
		rootAlias: rootAlias,
		source:    source,
		aliases:   aliases,
		params:    t.params,
		program:   program,
	}, nil
}

// Source returns the CEL source of the predicate.
func (m *Matcher) Source() string {
	return m.source
}

// Params returns the values bound to the predicate's parameters.
func (m *Matcher) Params() map[string]any {
	out := make(map[string]any, len(m.params))
	for k, v := range m.params {
		out[k] = v
	}
	return out
}

// Match evaluates the predicate with doc bound to the root alias.
func (m *Matcher) Match(doc map[string]any) (bool, error) {
	return m.Eval(map[string]any{m.rootAlias: doc})
}

// Eval evaluates the predicate with documents bound per alias. Aliases
// without a document see an empty one.
func (m *Matcher) Eval(docs map[string]any) (bool, error) {
	vars := make(map[string]any, len(m.aliases)+len(m.params))
	for k, v := range m.params {
		vars[k] = v
	}
	for _, alias := range m.aliases {
		switch d := docs[alias].(type) {
		case nil:
			vars[alias] = map[string]any{}
		case query.Document:
			vars[alias] = map[string]any(d)
		default:
			vars[alias] = d
		}
	}

	out, _, err := m.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Filter returns the documents that match, in input order.
func (m *Matcher) Filter(docs []query.Document) ([]query.Document, error) {
	matched := make([]query.Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := m.Match(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

type translator struct {
	foldLikeCase bool
	rootAlias    string
	params       map[string]any
	aliases      map[string]struct{}
}

func (t *translator) bind(value any) string {
	name := "arg" + strconv.Itoa(len(t.params))
	t.params[name] = value
	return name
}

func (t *translator) expression(e expr.Expression) (string, error) {
	switch n := e.(type) {
	case nil:
		return "", nil
	case *expr.Composite:
		return t.composite(n)
	case *expr.Comparison:
		return t.comparison(n)
	default:
		return "", fmt.Errorf("expression %T is not a predicate", e)
	}
}

func (t *translator) composite(c *expr.Composite) (string, error) {
	var clauses []string
	for _, part := range c.Parts {
		clause, err := t.expression(part)
		if err != nil {
			return "", err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	switch len(clauses) {
	case 0:
		return "", nil
	case 1:
		return clauses[0], nil
	}
	join := " && "
	if c.Type == expr.CompositeOr {
		join = " || "
	}
	for i, clause := range clauses {
		clauses[i] = "(" + clause + ")"
	}
	return strings.Join(clauses, join), nil
}

// operand returns the CEL source of e and the presence checks that must hold
// before it can be compared.
func (t *translator) operand(e expr.Expression) (string, []string, error) {
	switch n := e.(type) {
	case expr.Field:
		return t.field(n.Name)
	case expr.Func:
		if !strings.EqualFold(n.Name, "lower") || len(n.Args) != 1 {
			return "", nil, fmt.Errorf("function %s/%d is not supported in memory", n.Name, len(n.Args))
		}
		inner, guards, err := t.operand(n.Args[0])
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("string(%s).lowerAscii()", inner), guards, nil
	case expr.Literal:
		return t.bind(n.Value), nil, nil
	case expr.List:
		items := make([]string, 0, len(n))
		var guards []string
		for _, item := range n {
			s, g, err := t.operand(item)
			if err != nil {
				return "", nil, err
			}
			items = append(items, s)
			guards = append(guards, g...)
		}
		return "[" + strings.Join(items, ", ") + "]", guards, nil
	default:
		return "", nil, fmt.Errorf("unsupported operand type %T", e)
	}
}

func (t *translator) field(name string) (string, []string, error) {
	alias, key := t.rootAlias, name
	if i := strings.Index(name, "."); i >= 0 {
		alias, key = name[:i], name[i+1:]
	}
	if !identifier.MatchString(alias) {
		return "", nil, fmt.Errorf("field %q has an invalid alias", name)
	}
	t.aliases[alias] = struct{}{}

	quoted := strconv.Quote(key)
	access := fmt.Sprintf("%s[%s]", alias, quoted)
	present := fmt.Sprintf("%s in %s && %s != null", quoted, alias, access)
	return access, []string{present}, nil
}

func (t *translator) comparison(c *expr.Comparison) (string, error) {
	left, guards, err := t.operand(c.Left)
	if err != nil {
		return "", err
	}
	guard := strings.Join(guards, " && ")

	switch c.Operator {
	case expr.OperatorIsNull:
		if guard == "" {
			return left + " == null", nil
		}
		return "!(" + guard + ")", nil
	case expr.OperatorIsNotNull:
		if guard == "" {
			return left + " != null", nil
		}
		return guard, nil
	}

	var body string
	switch c.Operator {
	case expr.OperatorLike, expr.OperatorNotLike:
		lit, ok := c.Right.(expr.Literal)
		if !ok {
			return "", fmt.Errorf("operator %q needs a literal pattern", c.Operator)
		}
		pattern := t.bind(likePattern(fmt.Sprint(lit.Value), t.foldLikeCase))
		body = fmt.Sprintf("string(%s).matches(%s)", left, pattern)
		if c.Operator == expr.OperatorNotLike {
			body = "!" + body
		}
	case expr.OperatorIn, expr.OperatorNotIn:
		list, isList := c.Right.(expr.List)
		if !isList {
			list = expr.List{c.Right}
		}
		if len(list) == 0 {
			if c.Operator == expr.OperatorIn {
				return "false", nil
			}
			return "true", nil
		}
		right, _, err := t.operand(list)
		if err != nil {
			return "", err
		}
		body = fmt.Sprintf("%s in %s", left, right)
		if c.Operator == expr.OperatorNotIn {
			body = "!(" + body + ")"
		}
	default:
		symbol, ok := celOperators[c.Operator]
		if !ok {
			return "", fmt.Errorf("operator %q is not supported in memory", c.Operator)
		}
		if _, isList := c.Right.(expr.List); isList {
			return "", fmt.Errorf("operator %q does not accept a value list", c.Operator)
		}
		right, rightGuards, err := t.operand(c.Right)
		if err != nil {
			return "", err
		}
		if len(rightGuards) > 0 {
			if guard != "" {
				guard += " && "
			}
			guard += strings.Join(rightGuards, " && ")
		}
		body = fmt.Sprintf("%s %s %s", left, symbol, right)
	}

	if guard == "" {
		return body, nil
	}
	return guard + " && " + body, nil
}

var celOperators = map[expr.Operator]string{
	expr.OperatorEq:  "==",
	expr.OperatorNeq: "!=",
	expr.OperatorLt:  "<",
	expr.OperatorLte: "<=",
	expr.OperatorGt:  ">",
	expr.OperatorGte: ">=",
}

// likePattern converts a SQL LIKE pattern to an anchored RE2 expression.
// % matches any run of characters and _ a single character.
func likePattern(like string, foldCase bool) string {
	var sb strings.Builder
	if foldCase {
		sb.WriteString("(?is)^")
	} else {
		sb.WriteString("(?s)^")
	}
	for _, r := range like {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}
