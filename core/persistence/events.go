package persistence

import (
	"context"
	"time"

	"github.com/asaidimu/go-criteria/core/expr"
)

// QueryEventType names a repository lifecycle event.
type QueryEventType string

// Repository lifecycle events.
const (
	QueryStart   QueryEventType = "query:start"
	QuerySuccess QueryEventType = "query:success"
	QueryFailed  QueryEventType = "query:failed"
)

// QueryEvent describes one repository operation.
type QueryEvent struct {
	Type      QueryEventType `json:"type"`
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	Table     string         `json:"table"`
	SQL       string         `json:"sql,omitempty"`
	Args      []any          `json:"args,omitempty"`
	Count     *int           `json:"count,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Duration  *int64         `json:"duration,omitempty"`
}

// EventCallbackFunction receives repository events.
type EventCallbackFunction func(ctx context.Context, event QueryEvent) error

// subscription keeps what is needed to cancel a registered callback.
type subscription struct {
	Event       QueryEventType
	Unsubscribe func()
}

func createEvent(eventType QueryEventType, id, operation, table string, stmt *expr.Statement, count *int, err error, startTime time.Time) QueryEvent {
	event := QueryEvent{
		Type:      eventType,
		ID:        id,
		Operation: operation,
		Table:     table,
		Count:     count,
		Timestamp: time.Now().UnixMilli(),
	}
	if stmt != nil {
		event.SQL = stmt.SQL
		event.Args = stmt.Args
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	if !startTime.IsZero() && eventType != QueryStart {
		d := time.Since(startTime).Milliseconds()
		event.Duration = &d
	}
	return event
}
