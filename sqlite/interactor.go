// Package sqlite runs criteria queries against SQLite databases through the
// mattn/go-sqlite3 driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asaidimu/go-criteria/core/persistence"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

// Open opens and pings a SQLite database. dsn is a file path or a
// go-sqlite3 URI such as "file::memory:?cache=shared".
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	return db, nil
}

// NewRepository creates a criteria repository over a SQLite table.
func NewRepository(db *sql.DB, options *persistence.Options, logger *zap.Logger) (*persistence.Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Creating SQLite criteria repository")
	return persistence.NewRepository(db, Dialect{}, options, logger)
}
