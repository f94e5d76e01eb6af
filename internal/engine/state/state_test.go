package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "riptide.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)

	created := time.Now().Truncate(time.Millisecond)
	row := types.Row{
		ID:        "id-1",
		URL:       "https://example.com/file.zip",
		Filename:  "file.zip",
		Folder:    "archives",
		Status:    types.StatusQueued,
		CreatedAt: created,
	}
	require.NoError(t, s.Insert(row))

	got, err := s.Get("id-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	if got.URL != row.URL || got.Filename != row.Filename || got.Folder != row.Folder {
		t.Errorf("row fields mismatch: got %+v", got)
	}
	if got.Status != types.StatusQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}
	if got.Downloaded != 0 || got.Total != 0 {
		t.Errorf("fresh row has progress: %d/%d", got.Downloaded, got.Total)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if !got.CompletedAt.IsZero() {
		t.Errorf("completed_at should be zero, got %v", got.CompletedAt)
	}
}

func TestGetUnknownID(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get("missing")
	require.NoError(t, err)
	if got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestUpdateProgress(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Insert(types.Row{
		ID: "id-1", URL: "https://example.com/a", Filename: "a",
		Status: types.StatusQueued, CreatedAt: time.Now(),
	}))

	done := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.UpdateProgress("id-1", 1000, 1000, types.StatusCompleted, "", done))

	got, err := s.Get("id-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	if got.Status != types.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Downloaded != 1000 || got.Total != 1000 {
		t.Errorf("progress = %d/%d, want 1000/1000", got.Downloaded, got.Total)
	}
	if !got.CompletedAt.Equal(done) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, done)
	}
}

func TestUpdateProgressError(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Insert(types.Row{
		ID: "id-1", URL: "https://example.com/a", Filename: "a",
		Status: types.StatusQueued, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.UpdateProgress("id-1", 512, 0, types.StatusFailed, "connection reset", time.Time{}))

	got, err := s.Get("id-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	if got.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "connection reset" {
		t.Errorf("error = %q, want %q", got.Error, "connection reset")
	}
	if !got.CompletedAt.IsZero() {
		t.Errorf("failed row should not have completed_at")
	}
}

func TestListNonterminal(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Minute)
	insert := func(id string, status types.Status, offset time.Duration) {
		require.NoError(t, s.Insert(types.Row{
			ID: id, URL: "https://example.com/" + id, Filename: id,
			Status: types.StatusQueued, CreatedAt: base.Add(offset),
		}))
		if status != types.StatusQueued {
			require.NoError(t, s.UpdateProgress(id, 0, 0, status, "", time.Time{}))
		}
	}

	insert("b-queued", types.StatusQueued, 2*time.Second)
	insert("a-downloading", types.StatusDownloading, 1*time.Second)
	insert("c-paused", types.StatusPaused, 3*time.Second)
	insert("d-completed", types.StatusCompleted, 4*time.Second)
	insert("e-failed", types.StatusFailed, 5*time.Second)

	rows, err := s.ListNonterminal()
	require.NoError(t, err)

	var ids []string
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	want := []string{"a-downloading", "b-queued", "c-paused"}
	require.Equal(t, want, ids)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Insert(types.Row{
		ID: "id-1", URL: "https://example.com/a", Filename: "a",
		Status: types.StatusQueued, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Delete("id-1"))

	got, err := s.Get("id-1")
	require.NoError(t, err)
	if got != nil {
		t.Errorf("row survived delete: %+v", got)
	}

	// Deleting again is a no-op.
	require.NoError(t, s.Delete("id-1"))
}

func TestSettingsSeededOnFirstRun(t *testing.T) {
	s := openTestStore(t)

	settings, err := s.GetSettings()
	require.NoError(t, err)

	if settings[types.SettingRateLimit] != "0" {
		t.Errorf("%s = %q, want 0", types.SettingRateLimit, settings[types.SettingRateLimit])
	}
	if settings[types.SettingMaxConcurrent] != "3" {
		t.Errorf("%s = %q, want 3", types.SettingMaxConcurrent, settings[types.SettingMaxConcurrent])
	}
}

func TestSetSettingOverwritesAndSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riptide.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetSetting(types.SettingRateLimit, "1048576"))
	require.NoError(t, s.Close())

	// Reopen: seed must not clobber the stored value.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	if got := s.GetIntSetting(types.SettingRateLimit, -1); got != 1048576 {
		t.Errorf("rate limit after reopen = %d, want 1048576", got)
	}
}

func TestGetIntSettingFallback(t *testing.T) {
	s := openTestStore(t)

	if got := s.GetIntSetting("no_such_key", 42); got != 42 {
		t.Errorf("missing key fallback = %d, want 42", got)
	}

	require.NoError(t, s.SetSetting("bad", "not-a-number"))
	if got := s.GetIntSetting("bad", 7); got != 7 {
		t.Errorf("malformed value fallback = %d, want 7", got)
	}
}
