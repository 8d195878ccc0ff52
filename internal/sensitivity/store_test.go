package sensitivity_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundmind-app/soundmind/internal/sensitivity"
)

func TestFileStore_LoadAbsentReturnsDefaults(t *testing.T) {
	t.Parallel()

	store, err := sensitivity.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	st, err := store.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertDefault(t, st)
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store, err := sensitivity.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	want := sensitivity.DefaultState()
	want.BaseSensitivity = 1.15
	want.RecentStressScores = []float64{10, 20, 30}
	want.SessionsSinceCalibration = 7

	if err := store.Save(ctx, "stu-1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.BaseSensitivity != want.BaseSensitivity {
		t.Errorf("BaseSensitivity = %v, want %v", got.BaseSensitivity, want.BaseSensitivity)
	}
	if got.SessionsSinceCalibration != want.SessionsSinceCalibration {
		t.Errorf("SessionsSinceCalibration = %d, want %d", got.SessionsSinceCalibration, want.SessionsSinceCalibration)
	}
	if len(got.RecentStressScores) != 3 || got.RecentStressScores[2] != 30 {
		t.Errorf("RecentStressScores = %v, want %v", got.RecentStressScores, want.RecentStressScores)
	}
}

func TestFileStore_CorruptFileRecoversToDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sensitivity.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stu-1.json"), []byte("{{{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	st, err := store.Load(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("Load must not fail on corrupt state, got %v", err)
	}
	assertDefault(t, st)
}

func TestFileStore_PartialRecordFillsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sensitivity.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	// A legacy record missing the window and holding an out-of-range
	// multiplier.
	partial := []byte(`{"baseSensitivity": 2.5, "sessionsSinceCalibration": 4}`)
	if err := os.WriteFile(filepath.Join(dir, "stu-1.json"), partial, 0o644); err != nil {
		t.Fatalf("write partial file: %v", err)
	}

	st, err := store.Load(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.BaseSensitivity != sensitivity.MaxSensitivity {
		t.Errorf("BaseSensitivity = %v, want clamped %v", st.BaseSensitivity, sensitivity.MaxSensitivity)
	}
	if st.RecentStressScores == nil {
		t.Error("RecentStressScores = nil, want empty slice")
	}
	if st.SessionsSinceCalibration != 4 {
		t.Errorf("SessionsSinceCalibration = %d, want 4", st.SessionsSinceCalibration)
	}
}

func TestFileStore_ResetThenLoadIsDefault(t *testing.T) {
	t.Parallel()

	store, err := sensitivity.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	st := sensitivity.DefaultState()
	st.BaseSensitivity = 1.3
	st.RecentStressScores = []float64{90, 90, 90}
	st.SessionsSinceCalibration = 42
	if err := store.Save(ctx, "stu-1", st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Reset(ctx, "stu-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, err := store.Load(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertDefault(t, got)
}

func TestFileStore_PathTraversalIsContained(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sensitivity.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "../evil", sensitivity.DefaultState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "evil.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("state file escaped the store directory")
	}
}

// failStore is a Store whose every operation fails; used to exercise mirror
// degradation.
type failStore struct{}

func (failStore) Load(context.Context, string) (sensitivity.State, error) {
	return sensitivity.DefaultState(), errors.New("remote unavailable")
}
func (failStore) Save(context.Context, string, sensitivity.State) error {
	return errors.New("remote unavailable")
}
func (failStore) Reset(context.Context, string) error {
	return errors.New("remote unavailable")
}

func TestMirrorStore_RemoteFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	local := sensitivity.NewMemStore()
	mirror := sensitivity.NewMirrorStore(local, failStore{})
	ctx := context.Background()

	st := sensitivity.DefaultState()
	st.SessionsSinceCalibration = 3
	if err := mirror.Save(ctx, "stu-1", st); err != nil {
		t.Fatalf("Save with failing remote: %v", err)
	}
	got, err := mirror.Load(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionsSinceCalibration != 3 {
		t.Errorf("SessionsSinceCalibration = %d, want 3 from local store", got.SessionsSinceCalibration)
	}
}

func TestMirrorStore_AdoptsRemoteOnFreshDevice(t *testing.T) {
	t.Parallel()

	local := sensitivity.NewMemStore()
	remote := sensitivity.NewMemStore()
	ctx := context.Background()

	// The account has history on the remote side only.
	existing := sensitivity.DefaultState()
	existing.BaseSensitivity = 1.15
	existing.RecentStressScores = []float64{30, 30, 30}
	existing.SessionsSinceCalibration = 9
	if err := remote.Save(ctx, "stu-1", existing); err != nil {
		t.Fatalf("remote Save: %v", err)
	}

	mirror := sensitivity.NewMirrorStore(local, remote)
	got, err := mirror.Load(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionsSinceCalibration != 9 {
		t.Errorf("SessionsSinceCalibration = %d, want adopted 9", got.SessionsSinceCalibration)
	}

	// The adopted record must now be present locally.
	localState, _ := local.Load(ctx, "stu-1")
	if localState.SessionsSinceCalibration != 9 {
		t.Errorf("local SessionsSinceCalibration = %d, want 9 after adoption", localState.SessionsSinceCalibration)
	}
}

func TestMirrorStore_MirrorsWrites(t *testing.T) {
	t.Parallel()

	local := sensitivity.NewMemStore()
	remote := sensitivity.NewMemStore()
	mirror := sensitivity.NewMirrorStore(local, remote)
	ctx := context.Background()

	st := sensitivity.DefaultState()
	st.SessionsSinceCalibration = 6
	if err := mirror.Save(ctx, "stu-1", st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	remoteState, _ := remote.Load(ctx, "stu-1")
	if remoteState.SessionsSinceCalibration != 6 {
		t.Errorf("remote SessionsSinceCalibration = %d, want mirrored 6", remoteState.SessionsSinceCalibration)
	}
}

func assertDefault(t *testing.T, st sensitivity.State) {
	t.Helper()
	if st.BaseSensitivity != 1.0 {
		t.Errorf("BaseSensitivity = %v, want 1.0", st.BaseSensitivity)
	}
	if len(st.RecentStressScores) != 0 {
		t.Errorf("RecentStressScores = %v, want empty", st.RecentStressScores)
	}
	if st.SessionsSinceCalibration != 0 {
		t.Errorf("SessionsSinceCalibration = %d, want 0", st.SessionsSinceCalibration)
	}
}
