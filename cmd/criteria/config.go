package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/asaidimu/go-criteria/core/criteria"
	"github.com/asaidimu/go-criteria/core/persistence"
	"github.com/asaidimu/go-criteria/core/query"
	"github.com/asaidimu/go-criteria/postgres"
	"github.com/asaidimu/go-criteria/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration file.
type Config struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Table        string `yaml:"table"`
	RootAlias    string `yaml:"root_alias"`
	IDField      string `yaml:"id_field"`
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
	LogLevel     string `yaml:"log_level"`
}

func defaultConfig() *Config {
	defaults := persistence.DefaultOptions()
	return &Config{
		Driver:       "sqlite",
		RootAlias:    defaults.RootAlias,
		IDField:      defaults.IDField,
		DefaultLimit: defaults.DefaultLimit,
		LogLevel:     "info",
	}
}

// loadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) options() *persistence.Options {
	return &persistence.Options{
		Table:        c.Table,
		RootAlias:    c.RootAlias,
		IDField:      c.IDField,
		DefaultLimit: c.DefaultLimit,
		MaxLimit:     c.MaxLimit,
	}
}

func newLogger(level string) (*zap.Logger, error) {
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = atomic
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}

// openRepository connects to the configured database. The returned database
// must be closed by the caller.
func openRepository(ctx context.Context, cfg *Config, logger *zap.Logger) (*persistence.Repository, *sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("config must define a dsn")
	}

	var (
		db   *sql.DB
		repo *persistence.Repository
		err  error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if db, err = sqlite.Open(ctx, cfg.DSN); err != nil {
			return nil, nil, err
		}
		repo, err = sqlite.NewRepository(db, cfg.options(), logger)
	case "postgres", "pgx":
		if db, err = postgres.Open(ctx, cfg.DSN); err != nil {
			return nil, nil, err
		}
		repo, err = postgres.NewRepository(db, cfg.options(), logger)
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q, must be sqlite or postgres", cfg.Driver)
	}
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

func dialectFor(name string) (persistence.Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return sqlite.Dialect{}, nil
	case "postgres", "pgx":
		return postgres.Dialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q, must be sqlite or postgres", name)
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readInput reads a file, or standard input for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readFilter(path string) (criteria.Filter, error) {
	if path == "" {
		return criteria.Filter{}, nil
	}
	data, err := readInput(path)
	if err != nil {
		return criteria.Filter{}, fmt.Errorf("failed to read filter: %w", err)
	}
	if isYAML(path) {
		return criteria.ParseYAML(data)
	}
	return criteria.ParseJSON(data)
}

func readOrder(path string) (criteria.OrderBy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order: %w", err)
	}
	if isYAML(path) {
		return criteria.ParseOrderYAML(data)
	}
	return criteria.ParseOrderJSON(data)
}

// readDocuments reads a list of documents. YAML is a superset of JSON, so
// one decoder serves both.
func readDocuments(path string) ([]query.Document, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	var docs []query.Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse documents: %w", err)
	}
	return docs, nil
}
