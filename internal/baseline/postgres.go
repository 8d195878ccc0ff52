package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for the baseline table. Apply it via Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS calibration_baselines (
    user_id      TEXT PRIMARY KEY,
    features     JSONB NOT NULL,
    captured_at  TIMESTAMPTZ NOT NULL
);
`

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps calibration baselines in PostgreSQL. It is the shared,
// best-effort half of the dual-write scheme.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store backed by db, typically a *pgxpool.Pool.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("baseline: migrate: %w", err)
	}
	return nil
}

// Load implements [Store]. A missing row returns (nil, nil).
func (s *PostgresStore) Load(ctx context.Context, userID string) (*Baseline, error) {
	var (
		features   []byte
		capturedAt time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT features, captured_at
		FROM calibration_baselines
		WHERE user_id = $1`,
		userID).Scan(&features, &capturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("baseline: load: %w", err)
	}

	b := &Baseline{CapturedAt: capturedAt}
	if err := json.Unmarshal(features, &b.Features); err != nil {
		return nil, fmt.Errorf("baseline: decode features: %w", err)
	}
	return b, nil
}

// Save implements [Store] via upsert.
func (s *PostgresStore) Save(ctx context.Context, userID string, b *Baseline) error {
	features, err := json.Marshal(b.Features)
	if err != nil {
		return fmt.Errorf("baseline: encode features: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO calibration_baselines (user_id, features, captured_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET features = EXCLUDED.features, captured_at = EXCLUDED.captured_at`,
		userID, features, b.CapturedAt)
	if err != nil {
		return fmt.Errorf("baseline: save: %w", err)
	}
	return nil
}

// Clear implements [Store].
func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM calibration_baselines WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("baseline: clear: %w", err)
	}
	return nil
}
