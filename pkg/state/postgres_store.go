package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DefaultTable is the table PostgresStore uses when none is configured.
const DefaultTable = "editorstate_snapshots"

// PostgresStore keeps snapshots in a single Postgres table.
type PostgresStore[T any] struct {
	db    *sql.DB
	table string
}

// OpenPostgres opens a pgx-backed database handle and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("state: open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: ping db: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps db. An empty table selects DefaultTable.
func NewPostgresStore[T any](db *sql.DB, table string) *PostgresStore[T] {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore[T]{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// SchemaSQL returns the DDL required by the store.
func (s *PostgresStore[T]) SchemaSQL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	ref         text PRIMARY KEY,
	snapshot_id text NOT NULL,
	etag        text NOT NULL,
	format      text NOT NULL DEFAULT '',
	payload     jsonb NOT NULL,
	updated_at  timestamptz NOT NULL DEFAULT now()
);`, s.table)
}

// Migrate creates the snapshot table when missing.
func (s *PostgresStore[T]) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.SchemaSQL()); err != nil {
		return fmt.Errorf("state: migrate %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	var payload []byte
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE ref = $1`, s.table)
	err = s.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, Meta{}, false, nil
	}
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: postgres load %s: %w", key, err)
	}

	snapshot, meta, err := decodeEnvelope[T](payload)
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: postgres decode %s: %w", key, err)
	}
	return snapshot, meta, true, nil
}

func (s *PostgresStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	stamped, err := stamp(snapshot, meta)
	if err != nil {
		return Meta{}, err
	}
	payload, err := encodeEnvelope(snapshot, stamped)
	if err != nil {
		return Meta{}, fmt.Errorf("state: postgres encode %s: %w", key, err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (ref, snapshot_id, etag, format, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (ref) DO UPDATE SET
	snapshot_id = EXCLUDED.snapshot_id,
	etag        = EXCLUDED.etag,
	format      = EXCLUDED.format,
	payload     = EXCLUDED.payload,
	updated_at  = EXCLUDED.updated_at`, s.table)
	_, err = s.db.ExecContext(ctx, query, key, stamped.SnapshotID, stamped.ETag, stamped.Format, string(payload), stamped.UpdatedAt)
	if err != nil {
		return Meta{}, fmt.Errorf("state: postgres save %s: %w", key, err)
	}
	return stamped, nil
}

func (s *PostgresStore[T]) Delete(ctx context.Context, ref Ref) error {
	key, err := ref.Identifier()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE ref = $1`, s.table)
	result, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("state: postgres delete %s: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: postgres delete %s: %w", key, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
