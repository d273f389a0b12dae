package sqlite

import (
	"strings"

	"github.com/asaidimu/go-criteria/core/expr"
	"github.com/asaidimu/go-criteria/core/persistence"
)

// Dialect renders criteria for SQLite: positional `?` placeholders and
// double-quoted identifiers.
type Dialect struct{}

// Ensure Dialect implements the persistence.Dialect interface.
var _ persistence.Dialect = Dialect{}

// Name returns "sqlite".
func (Dialect) Name() string { return "sqlite" }

// Placeholder returns `?` regardless of position.
func (Dialect) Placeholder(int) string { return "?" }

// QuoteIdentifier properly quotes an identifier for SQLite.
func (Dialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// NewBuilder returns the standard expression builder. SQLite ships LOWER as
// a core function, so no capability needs adjusting.
func (Dialect) NewBuilder(rootAlias string) expr.Builder {
	return expr.NewBuilder(rootAlias)
}
