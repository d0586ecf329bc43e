// This file implements the SQLite-backed state store, the default when the
// DSN is a file path.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure the state table exists
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetString(key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM engine_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetString failed", "error", err, "key", key)
		return fallback, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetString(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO engine_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		slog.Error("SQLiteStore SetString failed", "error", err, "key", key)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetInt64(key string, fallback int64) (int64, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return fallback, err
	}
	return parseInt64(key, raw, fallback), nil
}

func (s *SQLiteStore) SetInt64(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

func (s *SQLiteStore) GetBool(key string, fallback bool) (bool, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return fallback, err
	}
	return parseBool(key, raw, fallback), nil
}

func (s *SQLiteStore) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM engine_state WHERE key = ?`, key)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) KeysWithPrefix(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM engine_state WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		slog.Error("SQLiteStore KeysWithPrefix query failed", "error", err, "prefix", prefix)
		return nil, fmt.Errorf("failed to query keys with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			slog.Error("SQLiteStore KeysWithPrefix scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore KeysWithPrefix rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate key rows: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
