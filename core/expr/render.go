package expr

import (
	"fmt"
	"strings"
)

// Dialect supplies the SQL details that differ between backends.
type Dialect interface {
	// Name identifies the dialect in logs and errors.
	Name() string
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string
	// QuoteIdentifier quotes a single identifier, escaping embedded quotes.
	QuoteIdentifier(name string) string
}

// QuoteField quotes each dot-separated part of name, so "q.name" becomes
// "q"."name" for a double-quoting dialect.
func QuoteField(dialect Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = dialect.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// Statement is a rendered SQL fragment with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// sqlOperators maps comparison operators to their SQL spelling.
var sqlOperators = map[Operator]string{
	OperatorEq:        "=",
	OperatorNeq:       "<>",
	OperatorLt:        "<",
	OperatorLte:       "<=",
	OperatorGt:        ">",
	OperatorGte:       ">=",
	OperatorIn:        "IN",
	OperatorNotIn:     "NOT IN",
	OperatorLike:      "LIKE",
	OperatorNotLike:   "NOT LIKE",
	OperatorIsNull:    "IS NULL",
	OperatorIsNotNull: "IS NOT NULL",
}

type renderer struct {
	dialect Dialect
	offset  int
	args    []any
}

// Render turns e into a SQL fragment for dialect. Field references are quoted
// part by part, literals become bind markers and their values are returned in
// Statement.Args in order. An empty composite renders to an empty statement.
func Render(e Expression, dialect Dialect) (Statement, error) {
	return RenderFrom(e, dialect, 0)
}

// RenderFrom renders like Render but numbers placeholders after offset
// already-bound arguments.
func RenderFrom(e Expression, dialect Dialect, offset int) (Statement, error) {
	if dialect == nil {
		return Statement{}, fmt.Errorf("dialect cannot be nil")
	}
	r := &renderer{dialect: dialect, offset: offset}
	sql, err := r.render(e)
	if err != nil {
		return Statement{}, err
	}
	args := r.args
	if args == nil {
		args = []any{}
	}
	return Statement{SQL: sql, Args: args}, nil
}

func (r *renderer) render(e Expression) (string, error) {
	switch n := e.(type) {
	case nil:
		return "", nil
	case *Composite:
		return r.renderComposite(n)
	case *Comparison:
		return r.renderComparison(n)
	case Field:
		return QuoteField(r.dialect, n.Name), nil
	case Func:
		return r.renderFunc(n)
	case Literal:
		return r.bind(n.Value), nil
	case List:
		return r.renderList(n)
	default:
		return "", fmt.Errorf("unsupported expression type %T", e)
	}
}

func (r *renderer) renderComposite(c *Composite) (string, error) {
	var clauses []string
	for _, part := range c.Parts {
		clause, err := r.render(part)
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
	for i, clause := range clauses {
		clauses[i] = "(" + clause + ")"
	}
	return strings.Join(clauses, " "+string(c.Type)+" "), nil
}

func (r *renderer) renderComparison(c *Comparison) (string, error) {
	symbol, ok := sqlOperators[c.Operator]
	if !ok {
		return "", fmt.Errorf("operator %q has no SQL form in dialect %s", c.Operator, r.dialect.Name())
	}
	left, err := r.render(c.Left)
	if err != nil {
		return "", err
	}
	if c.Operator.IsUnary() {
		return fmt.Sprintf("%s %s", left, symbol), nil
	}

	if c.Operator == OperatorIn || c.Operator == OperatorNotIn {
		list, isList := c.Right.(List)
		if !isList {
			list = List{c.Right}
		}
		if len(list) == 0 {
			// IN () is always false, NOT IN () always true.
			if c.Operator == OperatorIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		right, err := r.renderList(list)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, symbol, right), nil
	}

	if _, isList := c.Right.(List); isList {
		return "", fmt.Errorf("operator %q does not accept a value list", c.Operator)
	}
	right, err := r.render(c.Right)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", left, symbol, right), nil
}

func (r *renderer) renderFunc(f Func) (string, error) {
	args := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		s, err := r.render(a)
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")", nil
}

func (r *renderer) renderList(l List) (string, error) {
	items := make([]string, 0, len(l))
	for _, item := range l {
		s, err := r.render(item)
		if err != nil {
			return "", err
		}
		items = append(items, s)
	}
	return "(" + strings.Join(items, ", ") + ")", nil
}

func (r *renderer) bind(value any) string {
	r.args = append(r.args, value)
	return r.dialect.Placeholder(r.offset + len(r.args))
}
