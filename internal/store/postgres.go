// This file implements the PostgreSQL-backed state store.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure the state table exists
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetString(key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM engine_state WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetString failed", "error", err, "key", key)
		return fallback, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) SetString(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO engine_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		slog.Error("PostgresStore SetString failed", "error", err, "key", key)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetInt64(key string, fallback int64) (int64, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return fallback, err
	}
	return parseInt64(key, raw, fallback), nil
}

func (s *PostgresStore) SetInt64(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

func (s *PostgresStore) GetBool(key string, fallback bool) (bool, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return fallback, err
	}
	return parseBool(key, raw, fallback), nil
}

func (s *PostgresStore) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

func (s *PostgresStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM engine_state WHERE key = $1`, key)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) KeysWithPrefix(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM engine_state WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		slog.Error("PostgresStore KeysWithPrefix query failed", "error", err, "prefix", prefix)
		return nil, fmt.Errorf("failed to query keys with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			slog.Error("PostgresStore KeysWithPrefix scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore KeysWithPrefix rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate key rows: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
