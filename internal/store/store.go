// Package store provides the persisted key-value state store for StepFence.
//
// The store is the synchronization point between the engine's independent
// loops: every operation touches a single logical key, and each backend
// guarantees single-key atomic read/write. Missing or malformed values
// always resolve to the caller's fallback so that a fresh install and a
// corrupted store are indistinguishable.
package store

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store is the state repository shared by the engine's loops. Implementations
// must make each Set call an atomic single-key update.
type Store interface {
	// GetString returns the value for key, or fallback when the key is absent.
	GetString(key, fallback string) (string, error)
	// SetString atomically sets key to value.
	SetString(key, value string) error
	// GetInt64 returns the integer value for key. Absent or malformed values
	// resolve to fallback.
	GetInt64(key string, fallback int64) (int64, error)
	// SetInt64 atomically sets key to the given integer.
	SetInt64(key string, value int64) error
	// GetBool returns the boolean value for key. Absent or malformed values
	// resolve to fallback.
	GetBool(key string, fallback bool) (bool, error)
	// SetBool atomically sets key to the given boolean.
	SetBool(key string, value bool) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// KeysWithPrefix returns all keys beginning with prefix, sorted.
	KeysWithPrefix(prefix string) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN    string
	Driver string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures the store to use SQLite at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.Driver = "sqlite3"
		o.DSN = dsn
	}
}

// WithPostgresDSN configures the store to use PostgreSQL at the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.Driver = "postgres"
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds a store from options. With no DSN configured it falls back
// to the in-memory backend, which does not survive restarts.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite3":
		return NewSQLiteStore(opts...)
	default:
		slog.Warn("store.NewStore: no DSN configured, state will not survive restarts")
		return NewInMemoryStore(), nil
	}
}

// InMemoryStore is a mutex-guarded map backend used in tests and when no
// database is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]string)}
}

func (s *InMemoryStore) GetString(key, fallback string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *InMemoryStore) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *InMemoryStore) GetInt64(key string, fallback int64) (int64, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return fallback, err
	}
	return parseInt64(key, raw, fallback), nil
}

func (s *InMemoryStore) SetInt64(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

func (s *InMemoryStore) GetBool(key string, fallback bool) (bool, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return fallback, err
	}
	return parseBool(key, raw, fallback), nil
}

func (s *InMemoryStore) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *InMemoryStore) KeysWithPrefix(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *InMemoryStore) Close() error { return nil }

// parseInt64 applies the safe-default rule for malformed integer values.
func parseInt64(key, raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		slog.Warn("store: malformed integer value, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return v
}

// parseBool applies the safe-default rule for malformed boolean values.
func parseBool(key, raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("store: malformed boolean value, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
}
