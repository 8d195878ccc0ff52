package sensitivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the sensitivity_states table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS sensitivity_states (
    user_id                    TEXT PRIMARY KEY,
    version                    INT NOT NULL DEFAULT 1,
    base_sensitivity           DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    recent_stress_scores       JSONB NOT NULL DEFAULT '[]',
    sessions_since_calibration INT NOT NULL DEFAULT 0,
    last_updated               TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. It serves as the remote
// half of the dual-write scheme so state follows a student across devices.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore using the given connection or
// pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the sensitivity_states table if
// it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("sensitivity: migrate: %w", err)
	}
	return nil
}

// Load implements [Store]. An absent row yields defaults with a nil error;
// query failures yield defaults with the error attached so callers can log
// it without failing the session.
func (s *PostgresStore) Load(ctx context.Context, userID string) (State, error) {
	const query = `
		SELECT version, base_sensitivity, recent_stress_scores,
		       sessions_since_calibration, last_updated
		FROM sensitivity_states WHERE user_id = $1`

	var (
		st         State
		scoresJSON []byte
	)
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&st.Version, &st.BaseSensitivity, &scoresJSON,
		&st.SessionsSinceCalibration, &st.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), fmt.Errorf("sensitivity: load %q: %w", userID, err)
	}

	if err := json.Unmarshal(scoresJSON, &st.RecentStressScores); err != nil {
		// A corrupt window loses history but keeps the multiplier.
		st.RecentStressScores = nil
	}
	st.normalize()
	return st, nil
}

// Save implements [Store] with an upsert keyed by user_id.
func (s *PostgresStore) Save(ctx context.Context, userID string, st State) error {
	scoresJSON, err := json.Marshal(st.RecentStressScores)
	if err != nil {
		return fmt.Errorf("sensitivity: marshal scores: %w", err)
	}
	if st.LastUpdated.IsZero() {
		st.LastUpdated = time.Now().UTC()
	}

	const query = `
		INSERT INTO sensitivity_states (
			user_id, version, base_sensitivity, recent_stress_scores,
			sessions_since_calibration, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id) DO UPDATE SET
			version = EXCLUDED.version,
			base_sensitivity = EXCLUDED.base_sensitivity,
			recent_stress_scores = EXCLUDED.recent_stress_scores,
			sessions_since_calibration = EXCLUDED.sessions_since_calibration,
			last_updated = EXCLUDED.last_updated`

	if _, err := s.db.Exec(ctx, query,
		userID, st.Version, st.BaseSensitivity, scoresJSON,
		st.SessionsSinceCalibration, st.LastUpdated,
	); err != nil {
		return fmt.Errorf("sensitivity: save %q: %w", userID, err)
	}
	return nil
}

// Reset implements [Store].
func (s *PostgresStore) Reset(ctx context.Context, userID string) error {
	st := DefaultState()
	st.LastUpdated = time.Now().UTC()
	return s.Save(ctx, userID, st)
}
