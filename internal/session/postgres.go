package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/soundmind-app/soundmind/internal/scoring"
)

// Schema is the DDL for the session history table. Apply it via Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    score       DOUBLE PRECISION NOT NULL,
    category    TEXT NOT NULL,
    multiplier  DOUBLE PRECISION NOT NULL,
    biomarkers  JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS analysis_sessions_user_created_idx
    ON analysis_sessions (user_id, created_at DESC);
`

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps session history in PostgreSQL.
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
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// Insert writes a new session record, assigning ID and CreatedAt when unset.
func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	markers, err := json.Marshal(rec.Biomarkers)
	if err != nil {
		return fmt.Errorf("session: encode biomarkers: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO analysis_sessions (id, user_id, score, category, multiplier, biomarkers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.Score, string(rec.Category), rec.Multiplier, markers, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("session: insert: %w", err)
	}
	return nil
}

// RecentByUser returns up to limit sessions for userID, newest first.
func (s *PostgresStore) RecentByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, score, category, multiplier, biomarkers, created_at
		FROM analysis_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("session: query recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec      Record
			category string
			markers  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Score, &category, &rec.Multiplier, &markers, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("session: scan: %w", err)
		}
		rec.Category = scoring.Category(category)
		if err := json.Unmarshal(markers, &rec.Biomarkers); err != nil {
			return nil, fmt.Errorf("session: decode biomarkers: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate: %w", err)
	}
	return recs, nil
}

// Summaries returns one rollup per student active since the cutoff.
func (s *PostgresStore) Summaries(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id,
		       COUNT(*),
		       AVG(score),
		       COUNT(*) FILTER (WHERE score >= $2),
		       MAX(created_at)
		FROM analysis_sessions
		WHERE created_at >= $1
		GROUP BY user_id
		ORDER BY AVG(score) DESC`,
		since, scoring.HighRiskThreshold)
	if err != nil {
		return nil, fmt.Errorf("session: query summaries: %w", err)
	}
	defer rows.Close()

	var sums []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.UserID, &sum.SessionCount, &sum.AvgScore, &sum.HighRiskRuns, &sum.LastSession); err != nil {
			return nil, fmt.Errorf("session: scan summary: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate summaries: %w", err)
	}
	return sums, nil
}
