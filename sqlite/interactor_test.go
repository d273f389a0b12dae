package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-criteria/core/criteria"
	"github.com/asaidimu/go-criteria/core/persistence"
	"github.com/asaidimu/go-criteria/core/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// setupDB opens an in-memory database holding 30 users. Every third user is
// an admin and every fifth has a deleted_at timestamp.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		role TEXT NOT NULL,
		deleted_at TEXT
	)`)
	require.NoError(t, err)

	for i := 1; i <= 30; i++ {
		role := "member"
		if i%3 == 0 {
			role = "admin"
		}
		var deletedAt any
		if i%5 == 0 {
			deletedAt = "2024-01-01"
		}
		_, err := db.Exec(`INSERT INTO users (id, name, age, role, deleted_at) VALUES (?, ?, ?, ?, ?)`,
			i, fmt.Sprintf("user%02d", i), 20+i, role, deletedAt)
		require.NoError(t, err)
	}
	return db
}

func setupRepository(t *testing.T, db *sql.DB, options *persistence.Options) *persistence.Repository {
	t.Helper()
	if options == nil {
		options = &persistence.Options{Table: "users"}
	}
	repo, err := NewRepository(db, options, zaptest.NewLogger(t))
	require.NoError(t, err)
	return repo
}

func parseFilter(t *testing.T, doc string) criteria.Filter {
	t.Helper()
	filter, err := criteria.ParseJSON([]byte(doc))
	require.NoError(t, err)
	return filter
}

func ids(t *testing.T, docs []query.Document) []int {
	t.Helper()
	out := make([]int, 0, len(docs))
	for _, doc := range docs {
		id, ok := query.ToInt(doc["id"])
		require.True(t, ok, "id should be numeric, got %T", doc["id"])
		out = append(out, id)
	}
	return out
}

func TestDialect(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "sqlite", d.Name())
	assert.Equal(t, "?", d.Placeholder(1))
	assert.Equal(t, "?", d.Placeholder(7))
	assert.Equal(t, `"users"`, d.QuoteIdentifier("users"))
	assert.Equal(t, `"we""ird"`, d.QuoteIdentifier(`we"ird`))
	assert.Equal(t, "q", d.NewBuilder("q").RootAlias())
}

func TestNewRepository_Validation(t *testing.T) {
	db := setupDB(t)

	_, err := NewRepository(db, nil, nil)
	assert.Error(t, err)

	_, err = NewRepository(db, &persistence.Options{}, nil)
	assert.Error(t, err)

	repo, err := NewRepository(db, &persistence.Options{Table: "users"}, nil)
	require.NoError(t, err)
	options := repo.Options()
	assert.Equal(t, "q", options.RootAlias)
	assert.Equal(t, "id", options.IDField)
	assert.Equal(t, 25, options.DefaultLimit)
}

func TestFindByCriteria_Pagination(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()
	order := criteria.OrderBy{{Field: "id", Direction: criteria.DirectionAsc}}

	t.Run("last page", func(t *testing.T) {
		result, err := repo.FindByCriteria(ctx, criteria.Filter{}, order, 25, 10)
		require.NoError(t, err)
		assert.Equal(t, 30, result.Count)
		assert.Equal(t, []int{26, 27, 28, 29, 30}, ids(t, result.Items))
		assert.Equal(t, query.IntPtr(15), result.Prev)
		assert.Nil(t, result.Next)
	})

	t.Run("first page", func(t *testing.T) {
		result, err := repo.FindByCriteria(ctx, criteria.Filter{}, order, 0, 10)
		require.NoError(t, err)
		assert.Len(t, result.Items, 10)
		assert.Nil(t, result.Prev)
		assert.Equal(t, query.IntPtr(10), result.Next)
	})

	t.Run("default limit", func(t *testing.T) {
		result, err := repo.FindByCriteria(ctx, criteria.Filter{}, nil, 0, 0)
		require.NoError(t, err)
		assert.Len(t, result.Items, 25)
		assert.Equal(t, query.IntPtr(25), result.Next)
	})

	t.Run("negative skip", func(t *testing.T) {
		_, err := repo.FindByCriteria(ctx, criteria.Filter{}, nil, -1, 10)
		assert.Error(t, err)
	})
}

func TestFindByCriteria_MaxLimit(t *testing.T) {
	repo := setupRepository(t, setupDB(t), &persistence.Options{Table: "users", MaxLimit: 5})
	result, err := repo.FindByCriteria(context.Background(), criteria.Filter{}, nil, 0, 100)
	require.NoError(t, err)
	assert.Len(t, result.Items, 5)
	assert.Equal(t, query.IntPtr(5), result.Next)
}

func TestFindByCriteria_Filters(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()
	order := criteria.OrderBy{{Field: "id", Direction: criteria.DirectionAsc}}

	tests := []struct {
		name     string
		document string
		expected []int
	}{
		{
			name: "or group and and group",
			document: `{
				"or": [
					{"field": "name", "op": "like", "value": "user0%"},
					{"field": "age", "op": "eq", "value": 35}
				],
				"and": [
					{"field": "role", "op": "neq", "value": "admin"}
				]
			}`,
			expected: []int{1, 2, 4, 5, 7, 8},
		},
		{
			name:     "in list",
			document: `{"and": [{"field": "id", "op": "in", "value": [1, 2, 3]}]}`,
			expected: []int{1, 2, 3},
		},
		{
			name:     "empty in list matches nothing",
			document: `{"and": [{"field": "id", "op": "in", "value": []}]}`,
			expected: []int{},
		},
		{
			name:     "not in",
			document: `{"and": [{"field": "id", "op": "notIn", "value": [1, 2]}, {"field": "id", "op": "lte", "value": 4}]}`,
			expected: []int{3, 4},
		},
		{
			name:     "is not null",
			document: `{"and": [{"field": "deleted_at", "op": "isNotNull", "value": true}]}`,
			expected: []int{5, 10, 15, 20, 25, 30},
		},
		{
			name:     "ilike lowers the field",
			document: `{"and": [{"field": "name", "op": "ilike", "value": "user1%"}]}`,
			expected: []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
		},
		{
			name:     "qualified field",
			document: `{"and": [{"field": "q.age", "op": "gt", "value": 48}]}`,
			expected: []int{29, 30},
		},
		{
			name:     "range",
			document: `{"and": [{"field": "age", "op": "gte", "value": 22}, {"field": "age", "op": "lt", "value": 24}]}`,
			expected: []int{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.FindByCriteria(ctx, parseFilter(t, tt.document), order, 0, 50)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(t, result.Items))
			assert.Equal(t, len(tt.expected), result.Count)
		})
	}
}

func TestFindByCriteria_FluentFilter(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	filter := criteria.New(
		criteria.And(
			criteria.Where("role").Eq("admin"),
			criteria.Where("deleted_at").IsNull(),
		),
	)
	order := criteria.OrderBy{{Field: "age", Direction: criteria.DirectionDesc}}

	result, err := repo.FindByCriteria(context.Background(), filter, order, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, result.Count)
	assert.Equal(t, []int{27, 24, 21}, ids(t, result.Items))
	assert.Equal(t, "user27", result.Items[0]["name"])
}

func TestFindByCriteria_InvalidInput(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()

	_, err := repo.FindByCriteria(ctx, criteria.New(criteria.Where("age").Op("between", []any{1, 2})), nil, 0, 10)
	var opErr *criteria.UnsupportedOperatorError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "between", opErr.Operator)
	assert.True(t, criteria.IsInvalidInput(err))

	order := criteria.OrderBy{{Field: "age", Direction: "up"}}
	_, err = repo.FindByCriteria(ctx, criteria.Filter{}, order, 0, 10)
	var dirErr *criteria.OrderDirectionError
	require.True(t, errors.As(err, &dirErr))
	assert.Equal(t, "age", dirErr.Field)

	_, err = repo.CountByCriteria(ctx, criteria.New(criteria.Where("name").Op("regex", "^u")))
	assert.ErrorIs(t, err, criteria.ErrUnsupportedOperator)
}

func TestFindByCriteria_FieldNamesStayIdentifiers(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()

	count, err := repo.CountByCriteria(ctx, parseFilter(t,
		`[{"field": "id = -1 OR 1 = 1 OR q.id", "op": "eq", "value": -1}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such column")
	assert.Zero(t, count)

	order := criteria.OrderBy{{Field: "(CASE WHEN (SELECT COUNT(*) FROM users) > 0 THEN q.age END)", Direction: criteria.DirectionAsc}}
	_, err = repo.FindByCriteria(ctx, criteria.Filter{}, order, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such column")

	count, err = repo.CountByCriteria(ctx, parseFilter(t, `[{"field": "q.id", "op": "eq", "value": -1}]`))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFindOneByCriteria(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()

	doc, err := repo.FindOneByCriteria(ctx, criteria.New(criteria.Where("name").Eq("user07")))
	require.NoError(t, err)
	require.NotNil(t, doc)
	id, _ := query.ToInt(doc["id"])
	assert.Equal(t, 7, id)
	assert.Nil(t, doc["deleted_at"])

	doc, err = repo.FindOneByCriteria(ctx, criteria.New(criteria.Where("name").Eq("nobody")))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestCountByCriteria(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()

	count, err := repo.CountByCriteria(ctx, criteria.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 30, count)

	count, err = repo.CountByCriteria(ctx, parseFilter(t, `{"and": [{"field": "role", "op": "eq", "value": "admin"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	count, err = repo.CountByCriteria(ctx, parseFilter(t, `{"and": [{"field": "id", "op": "notIn", "value": []}]}`))
	require.NoError(t, err)
	assert.Equal(t, 30, count)
}

func TestRepository_WithTx(t *testing.T) {
	db := setupDB(t)
	repo := setupRepository(t, db, nil)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO users (id, name, age, role) VALUES (31, 'user31', 51, 'member')`)
	require.NoError(t, err)

	count, err := repo.WithTx(tx).CountByCriteria(ctx, criteria.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 31, count)
	require.NoError(t, tx.Rollback())

	count, err = repo.CountByCriteria(ctx, criteria.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 30, count)
}

func TestRepository_Events(t *testing.T) {
	repo := setupRepository(t, setupDB(t), nil)
	ctx := context.Background()

	var mu sync.Mutex
	var received []persistence.QueryEvent
	record := func(_ context.Context, event persistence.QueryEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	}
	snapshot := func() []persistence.QueryEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]persistence.QueryEvent(nil), received...)
	}

	successID := repo.Subscribe(persistence.QuerySuccess, record)
	repo.Subscribe(persistence.QueryFailed, record)
	assert.NotEmpty(t, successID)

	_, err := repo.CountByCriteria(ctx, criteria.New(criteria.Where("role").Eq("admin")))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	event := snapshot()[0]
	assert.Equal(t, persistence.QuerySuccess, event.Type)
	assert.Equal(t, "count", event.Operation)
	assert.Equal(t, "users", event.Table)
	assert.Contains(t, event.SQL, `SELECT COUNT("q"."id") FROM "users" "q" WHERE`)
	assert.Equal(t, []any{"admin"}, event.Args)
	require.NotNil(t, event.Count)
	assert.Equal(t, 10, *event.Count)
	assert.NotEmpty(t, event.ID)

	repo.Unsubscribe(successID)
	_, err = repo.CountByCriteria(ctx, criteria.Filter{})
	require.NoError(t, err)

	// A missing table fails at execution and is reported as query:failed.
	broken := setupRepository(t, setupDB(t), &persistence.Options{Table: "missing"})
	broken.Subscribe(persistence.QueryFailed, record)
	_, err = broken.CountByCriteria(ctx, criteria.Filter{})
	require.Error(t, err)

	assert.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	failed := snapshot()[1]
	assert.Equal(t, persistence.QueryFailed, failed.Type)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "missing")
}
