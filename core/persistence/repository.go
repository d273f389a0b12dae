// Package persistence executes compiled criteria against a database/sql
// backend. It is the query execution adapter: it supplies the dialect's
// expression builder to the compiler, attaches the predicate, ordering and
// paging to a SELECT and wraps the rows in a query.QueryResult.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-criteria/core/criteria"
	"github.com/asaidimu/go-criteria/core/expr"
	"github.com/asaidimu/go-criteria/core/metrics"
	"github.com/asaidimu/go-criteria/core/query"
	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dialect is a SQL backend: placeholders, identifier quoting and the
// expression builder handed to the compiler.
type Dialect interface {
	expr.Dialect
	// NewBuilder returns the expression builder for rootAlias.
	NewBuilder(rootAlias string) expr.Builder
}

// Options configures a Repository.
type Options struct {
	// Table is the table queried. Required.
	Table string
	// RootAlias qualifies field names without a dot. Defaults to "q".
	RootAlias string
	// IDField is the column counted by CountByCriteria. Defaults to "id".
	IDField string
	// DefaultLimit is used when a non-positive limit is requested. Defaults to 25.
	DefaultLimit int
	// MaxLimit caps requested limits when positive.
	MaxLimit int
}

// DefaultOptions returns options with the defaults filled in and no table.
func DefaultOptions() *Options {
	return &Options{
		RootAlias:    "q",
		IDField:      "id",
		DefaultLimit: 25,
	}
}

func (o *Options) withDefaults() *Options {
	defaults := DefaultOptions()
	merged := *o
	if merged.RootAlias == "" {
		merged.RootAlias = defaults.RootAlias
	}
	if merged.IDField == "" {
		merged.IDField = defaults.IDField
	}
	if merged.DefaultLimit <= 0 {
		merged.DefaultLimit = defaults.DefaultLimit
	}
	return &merged
}

// dbRunner abstracts the methods shared by *sql.DB and *sql.Tx so the same
// code serves both.
type dbRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository runs criteria queries against one table.
type Repository struct {
	runner        dbRunner
	dialect       Dialect
	options       *Options
	compiler      *criteria.Compiler
	logger        *zap.Logger
	bus           *events.TypedEventBus[QueryEvent]
	subscriptions map[string]*subscription
	subMu         *sync.RWMutex
}

var _ query.Repository = (*Repository)(nil)

// NewRepository creates a Repository over db. A nil logger disables logging.
func NewRepository(db *sql.DB, dialect Dialect, options *Options, logger *zap.Logger) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	if dialect == nil {
		return nil, fmt.Errorf("dialect cannot be nil")
	}
	if options == nil || options.Table == "" {
		return nil, fmt.Errorf("repository options must define a table name")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[QueryEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return &Repository{
		runner:        db,
		dialect:       dialect,
		options:       options.withDefaults(),
		compiler:      criteria.NewCompiler(logger),
		logger:        logger.With(zap.String("table", options.Table), zap.String("dialect", dialect.Name())),
		bus:           bus,
		subscriptions: make(map[string]*subscription),
		subMu:         &sync.RWMutex{},
	}, nil
}

// WithTx returns a repository that runs its queries inside tx. Subscriptions
// are shared with the receiver.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	scoped := *r
	scoped.runner = tx
	return &scoped
}

// Options returns a copy of the effective options.
func (r *Repository) Options() Options {
	return *r.options
}

// Subscribe registers callback for events of the given type and returns an
// id for Unsubscribe.
func (r *Repository) Subscribe(event QueryEventType, callback EventCallbackFunction) string {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	unsubscribe := r.bus.Subscribe(string(event), callback)
	id := uuid.New().String()
	r.subscriptions[id] = &subscription{Event: event, Unsubscribe: unsubscribe}
	return id
}

// Unsubscribe cancels a subscription. Unknown ids are ignored.
func (r *Repository) Unsubscribe(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if sub := r.subscriptions[id]; sub != nil {
		sub.Unsubscribe()
		delete(r.subscriptions, id)
	}
}

// FindByCriteria returns the page of documents matching filter, sorted by
// order, starting at skip and holding at most limit documents. A
// non-positive limit uses the configured default.
func (r *Repository) FindByCriteria(ctx context.Context, filter criteria.Filter, order criteria.OrderBy, skip, limit int) (*query.QueryResult, error) {
	if skip < 0 {
		return nil, fmt.Errorf("skip cannot be negative, got %d", skip)
	}
	limit = r.limit(limit)

	where, err := r.where(filter)
	if err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		r.reject(err)
		return nil, fmt.Errorf("invalid order: %w", err)
	}

	selectStmt := r.selectStatement(where, order, limit, &skip)
	countStmt := r.countStatement(where)

	var result *query.QueryResult
	err = r.observe(ctx, "find", selectStmt, func() (*int, error) {
		items, err := r.queryDocuments(ctx, selectStmt)
		if err != nil {
			return nil, err
		}
		count, err := r.queryCount(ctx, countStmt)
		if err != nil {
			return nil, err
		}
		result = query.NewQueryResult(items, count, skip, limit)
		return &count, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindOneByCriteria returns the first document matching filter, or nil when
// there is none.
func (r *Repository) FindOneByCriteria(ctx context.Context, filter criteria.Filter) (query.Document, error) {
	where, err := r.where(filter)
	if err != nil {
		return nil, err
	}
	stmt := r.selectStatement(where, nil, 1, nil)

	var doc query.Document
	err = r.observe(ctx, "find_one", stmt, func() (*int, error) {
		items, err := r.queryDocuments(ctx, stmt)
		if err != nil {
			return nil, err
		}
		count := len(items)
		if count > 0 {
			doc = items[0]
		}
		return &count, nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CountByCriteria returns the number of documents matching filter.
func (r *Repository) CountByCriteria(ctx context.Context, filter criteria.Filter) (int, error) {
	where, err := r.where(filter)
	if err != nil {
		return 0, err
	}
	stmt := r.countStatement(where)

	var count int
	err = r.observe(ctx, "count", stmt, func() (*int, error) {
		c, err := r.queryCount(ctx, stmt)
		if err != nil {
			return nil, err
		}
		count = c
		return &count, nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) limit(limit int) int {
	if limit <= 0 {
		limit = r.options.DefaultLimit
	}
	if r.options.MaxLimit > 0 && limit > r.options.MaxLimit {
		limit = r.options.MaxLimit
	}
	return limit
}

// where compiles filter with the dialect's builder and renders it. An empty
// filter renders to an empty statement.
func (r *Repository) where(filter criteria.Filter) (expr.Statement, error) {
	if filter.IsEmpty() {
		return expr.Statement{Args: []any{}}, nil
	}
	composite, err := r.compiler.Compile(filter, r.dialect.NewBuilder(r.options.RootAlias))
	if err != nil {
		r.reject(err)
		return expr.Statement{}, fmt.Errorf("invalid criteria: %w", err)
	}
	stmt, err := expr.Render(composite, r.dialect)
	if err != nil {
		return expr.Statement{}, fmt.Errorf("failed to render criteria: %w", err)
	}
	return stmt, nil
}

func (r *Repository) from() string {
	return fmt.Sprintf("%s %s",
		expr.QuoteField(r.dialect, r.options.Table), r.dialect.QuoteIdentifier(r.options.RootAlias))
}

func (r *Repository) selectStatement(where expr.Statement, order criteria.OrderBy, limit int, skip *int) expr.Statement {
	args := append([]any{}, where.Args...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s.* FROM %s", r.dialect.QuoteIdentifier(r.options.RootAlias), r.from())
	if where.SQL != "" {
		sb.WriteString(" WHERE " + where.SQL)
	}
	if len(order) > 0 {
		sb.WriteString(" ORDER BY " + order.Qualify(r.options.RootAlias).SQL(r.dialect))
	}
	args = append(args, limit)
	sb.WriteString(" LIMIT " + r.dialect.Placeholder(len(args)))
	if skip != nil {
		args = append(args, *skip)
		sb.WriteString(" OFFSET " + r.dialect.Placeholder(len(args)))
	}
	return expr.Statement{SQL: sb.String(), Args: args}
}

func (r *Repository) countStatement(where expr.Statement) expr.Statement {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(%s) FROM %s",
		expr.QuoteField(r.dialect, expr.Qualify(r.options.RootAlias, r.options.IDField)), r.from())
	if where.SQL != "" {
		sb.WriteString(" WHERE " + where.SQL)
	}
	return expr.Statement{SQL: sb.String(), Args: where.Args}
}

func (r *Repository) queryDocuments(ctx context.Context, stmt expr.Statement) ([]query.Document, error) {
	r.logger.Debug("Executing SQL SELECT", zap.String("sql", stmt.SQL), zap.Any("params", stmt.Args))
	rows, err := r.runner.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()
	return readRows(rows)
}

func (r *Repository) queryCount(ctx context.Context, stmt expr.Statement) (int, error) {
	r.logger.Debug("Executing SQL COUNT", zap.String("sql", stmt.SQL), zap.Any("params", stmt.Args))
	var raw any
	if err := r.runner.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&raw); err != nil {
		return 0, fmt.Errorf("failed to execute COUNT query: %w", err)
	}
	count, ok := query.ToInt(raw)
	if !ok {
		return 0, fmt.Errorf("unexpected COUNT result of type %T", raw)
	}
	return count, nil
}

// readRows reads all rows into documents. Text columns some drivers return
// as []byte are converted to strings.
func readRows(rows *sql.Rows) ([]query.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := []query.Document{}
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc := make(query.Document, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				doc[col] = string(b)
				continue
			}
			doc[col] = values[i]
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

// observe wraps an operation with lifecycle events, metrics and logs.
func (r *Repository) observe(ctx context.Context, operation string, stmt expr.Statement, fn func() (*int, error)) error {
	id := uuid.New().String()
	start := time.Now()
	table := r.options.Table

	r.emit(createEvent(QueryStart, id, operation, table, &stmt, nil, nil, start))

	count, err := fn()
	metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(operation, "error").Inc()
		r.logger.Error("Criteria query failed",
			zap.String("query_id", id),
			zap.String("operation", operation),
			zap.String("sql", stmt.SQL),
			zap.Error(err))
		r.emit(createEvent(QueryFailed, id, operation, table, &stmt, nil, err, start))
		return err
	}

	metrics.QueriesTotal.WithLabelValues(operation, "ok").Inc()
	r.emit(createEvent(QuerySuccess, id, operation, table, &stmt, count, nil, start))
	return nil
}

func (r *Repository) emit(event QueryEvent) {
	if r.bus != nil {
		r.bus.Emit(string(event.Type), event)
	}
}

// reject records a caller-input error.
func (r *Repository) reject(err error) {
	kind := criteria.ErrorKind(err)
	if kind == "" {
		return
	}
	metrics.RejectedTotal.WithLabelValues(kind).Inc()
	r.logger.Debug("Rejected criteria", zap.String("kind", kind), zap.Error(err))
}
