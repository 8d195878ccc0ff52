package baseline

import (
	"context"
	"log/slog"
)

// MirrorStore applies the dual-write persistence scheme to baselines: the
// local store is authoritative, the remote store is a best-effort mirror.
// When a fresh device has no local baseline but the remote does, the remote
// one is adopted and written back locally.
type MirrorStore struct {
	local  Store
	remote Store
}

// Compile-time interface check.
var _ Store = (*MirrorStore)(nil)

// NewMirrorStore combines a local authoritative store with an optional remote
// mirror. remote may be nil.
func NewMirrorStore(local, remote Store) *MirrorStore {
	return &MirrorStore{local: local, remote: remote}
}

// Load implements [Store].
func (m *MirrorStore) Load(ctx context.Context, userID string) (*Baseline, error) {
	b, err := m.local.Load(ctx, userID)
	if err != nil {
		slog.Warn("local baseline load failed", "user_id", userID, "err", err)
	}
	if b != nil || m.remote == nil {
		return b, nil
	}

	remote, err := m.remote.Load(ctx, userID)
	if err != nil {
		slog.Warn("remote baseline load failed", "user_id", userID, "err", err)
		return nil, nil
	}
	if remote == nil {
		return nil, nil
	}
	if err := m.local.Save(ctx, userID, remote); err != nil {
		slog.Warn("adopting remote baseline locally failed", "user_id", userID, "err", err)
	}
	return remote, nil
}

// Save implements [Store].
func (m *MirrorStore) Save(ctx context.Context, userID string, b *Baseline) error {
	if err := m.local.Save(ctx, userID, b); err != nil {
		return err
	}
	if m.remote != nil {
		if err := m.remote.Save(ctx, userID, b); err != nil {
			slog.Warn("baseline mirror write failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

// Clear implements [Store]. Both halves are attempted so a recalibration
// never leaves the mirror holding a stale profile.
func (m *MirrorStore) Clear(ctx context.Context, userID string) error {
	err := m.local.Clear(ctx, userID)
	if m.remote != nil {
		if rerr := m.remote.Clear(ctx, userID); rerr != nil {
			slog.Warn("baseline mirror clear failed", "user_id", userID, "err", rerr)
		}
	}
	return err
}
