package sensitivity

import (
	"context"
	"log/slog"
)

// MirrorStore implements the dual-write persistence scheme: every write goes
// to the local store first (authoritative) and is then mirrored to the remote
// store opportunistically. A remote failure is logged and swallowed — the
// device keeps working offline and the mirror catches up on the next write.
//
// Reads prefer local state. When the local store has no record for a student
// but the remote does (fresh device, existing account), the remote record is
// adopted and written back locally.
type MirrorStore struct {
	local  Store
	remote Store
}

// Compile-time interface check.
var _ Store = (*MirrorStore)(nil)

// NewMirrorStore combines a local authoritative store with an optional remote
// mirror. remote may be nil, in which case the MirrorStore degenerates to the
// local store.
func NewMirrorStore(local, remote Store) *MirrorStore {
	return &MirrorStore{local: local, remote: remote}
}

// Load implements [Store].
func (m *MirrorStore) Load(ctx context.Context, userID string) (State, error) {
	st, err := m.local.Load(ctx, userID)
	if err != nil {
		slog.Warn("local sensitivity load failed", "user_id", userID, "err", err)
	}
	if m.remote == nil || !isFresh(st) {
		return st, nil
	}

	// Local has no history: a remote record wins if one exists.
	remote, err := m.remote.Load(ctx, userID)
	if err != nil {
		slog.Warn("remote sensitivity load failed", "user_id", userID, "err", err)
		return st, nil
	}
	if isFresh(remote) {
		return st, nil
	}
	if err := m.local.Save(ctx, userID, remote); err != nil {
		slog.Warn("adopting remote sensitivity state locally failed", "user_id", userID, "err", err)
	}
	return remote, nil
}

// Save implements [Store].
func (m *MirrorStore) Save(ctx context.Context, userID string, st State) error {
	if err := m.local.Save(ctx, userID, st); err != nil {
		return err
	}
	if m.remote != nil {
		if err := m.remote.Save(ctx, userID, st); err != nil {
			slog.Warn("sensitivity mirror write failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

// Reset implements [Store]. Unlike Save, a remote reset failure is still
// swallowed, but both halves are attempted even if the local one fails so a
// recalibration never leaves the mirror holding stale history.
func (m *MirrorStore) Reset(ctx context.Context, userID string) error {
	err := m.local.Reset(ctx, userID)
	if m.remote != nil {
		if rerr := m.remote.Reset(ctx, userID); rerr != nil {
			slog.Warn("sensitivity mirror reset failed", "user_id", userID, "err", rerr)
		}
	}
	return err
}

// isFresh reports whether st is indistinguishable from a never-written
// default record.
func isFresh(st State) bool {
	return st.SessionsSinceCalibration == 0 && len(st.RecentStressScores) == 0 &&
		st.BaseSensitivity == MinSensitivity
}
