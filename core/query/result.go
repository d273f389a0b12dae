// Package query defines the result envelope returned by criteria queries and
// the interface of the adapters that execute them.
package query

import (
	"context"

	"github.com/asaidimu/go-criteria/core/criteria"
)

// Document is a single row returned by a query, keyed by column name.
type Document map[string]any

// QueryResult is a page of documents with navigation cursors. Prev and Next
// are the skip values of the neighbouring pages, nil when there is none.
type QueryResult struct {
	Items []Document `json:"items"`
	Count int        `json:"count"`
	Prev  *int       `json:"prev"`
	Next  *int       `json:"next"`
}

// NewQueryResult builds the envelope for a page read with skip and limit out
// of count matching documents.
func NewQueryResult(items []Document, count, skip, limit int) *QueryResult {
	if items == nil {
		items = []Document{}
	}
	result := &QueryResult{Items: items, Count: count}
	if prev := skip - limit; prev >= 0 {
		result.Prev = IntPtr(prev)
	}
	if next := skip + limit; next <= count-1 {
		result.Next = IntPtr(next)
	}
	return result
}

// HasPrev reports whether a previous page exists.
func (r *QueryResult) HasPrev() bool {
	return r.Prev != nil
}

// HasNext reports whether a next page exists.
func (r *QueryResult) HasNext() bool {
	return r.Next != nil
}

// Repository runs criteria against a collection of documents. Filters and
// orders are validated before anything is executed, so malformed input never
// reaches the backend.
type Repository interface {
	// FindByCriteria returns one page of matching documents plus the total
	// number of matches.
	FindByCriteria(ctx context.Context, filter criteria.Filter, order criteria.OrderBy, skip, limit int) (*QueryResult, error)

	// FindOneByCriteria returns the first matching document, or nil.
	FindOneByCriteria(ctx context.Context, filter criteria.Filter) (Document, error)

	// CountByCriteria returns the number of matching documents.
	CountByCriteria(ctx context.Context, filter criteria.Filter) (int, error)
}
