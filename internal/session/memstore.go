package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soundmind-app/soundmind/internal/scoring"
)

// MemStore keeps session history in memory. It backs tests and single-user
// deployments that run without PostgreSQL.
type MemStore struct {
	mu   sync.Mutex
	recs []Record
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Insert writes a new session record, assigning ID and CreatedAt when unset.
func (s *MemStore) Insert(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, *rec)
	return nil
}

// RecentByUser returns up to limit sessions for userID, newest first.
func (s *MemStore) RecentByUser(_ context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []Record
	for _, rec := range s.recs {
		if rec.UserID == userID {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Summaries returns one rollup per student active since the cutoff.
func (s *MemStore) Summaries(_ context.Context, since time.Time) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser := make(map[string]*Summary)
	for _, rec := range s.recs {
		if rec.CreatedAt.Before(since) {
			continue
		}
		sum, ok := byUser[rec.UserID]
		if !ok {
			sum = &Summary{UserID: rec.UserID}
			byUser[rec.UserID] = sum
		}
		sum.SessionCount++
		sum.AvgScore += rec.Score
		if rec.Score >= scoring.HighRiskThreshold {
			sum.HighRiskRuns++
		}
		if rec.CreatedAt.After(sum.LastSession) {
			sum.LastSession = rec.CreatedAt
		}
	}

	sums := make([]Summary, 0, len(byUser))
	for _, sum := range byUser {
		sum.AvgScore /= float64(sum.SessionCount)
		sums = append(sums, *sum)
	}
	sort.Slice(sums, func(i, j int) bool {
		return sums[i].AvgScore > sums[j].AvgScore
	})
	return sums, nil
}
