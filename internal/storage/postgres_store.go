package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/CedrosPay/cardcheckout/internal/config"
	_ "github.com/lib/pq" // PostgreSQL driver
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresKV stores slots in a single key/value table.
type PostgresKV struct {
	db     *sql.DB
	ownsDB bool
	table  string
}

// NewPostgresKV opens a connection pool and ensures the slot table exists.
func NewPostgresKV(connectionString, table string, poolConfig config.PostgresPoolConfig) (*PostgresKV, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := withQueryTimeout(context.Background())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)

	kv, err := NewPostgresKVWithDB(ctx, db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	kv.ownsDB = true
	return kv, nil
}

// NewPostgresKVWithDB uses an existing pool. Close leaves the pool open.
func NewPostgresKVWithDB(ctx context.Context, db *sql.DB, table string) (*PostgresKV, error) {
	if table == "" {
		table = "saved_card_slots"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid postgres table name %q", table)
	}

	kv := &PostgresKV{db: db, table: table}
	if err := kv.createTable(ctx); err != nil {
		return nil, err
	}
	return kv, nil
}

func (s *PostgresKV) createTable(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var value []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return value, nil
}

func (s *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return nil
}

func (s *PostgresKV) Delete(ctx context.Context, key string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

// Close closes the pool if this KV opened it.
func (s *PostgresKV) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
