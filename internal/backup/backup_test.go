package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/logging"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memora.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE facts (id INTEGER PRIMARY KEY, content TEXT); INSERT INTO facts (content) VALUES ('Alice lives in Paris.')`)
	require.NoError(t, err)
	return path
}

func TestBackupNow(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	svc, err := NewService(Config{DBPath: seedDB(t), Dir: dir, Verify: true}, logging.Discard())
	require.NoError(t, err)

	result, err := svc.BackupNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Positive(t, result.Size)
	assert.False(t, svc.LastBackup().IsZero())

	snapshots, err := List(dir)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, result.Path, snapshots[0].Path)

	db, err := sql.Open("sqlite", result.Path)
	require.NoError(t, err)
	defer db.Close()
	var content string
	require.NoError(t, db.QueryRow(`SELECT content FROM facts`).Scan(&content))
	assert.Equal(t, "Alice lives in Paris.", content)
}

func TestBackupNow_MissingDatabase(t *testing.T) {
	svc, err := NewService(Config{DBPath: filepath.Join(t.TempDir(), "nope.db"), Dir: t.TempDir()}, logging.Discard())
	require.NoError(t, err)
	_, err = svc.BackupNow(context.Background())
	assert.Error(t, err)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{Dir: t.TempDir()}, nil)
	assert.Error(t, err)
	_, err = NewService(Config{DBPath: "x.db"}, nil)
	assert.Error(t, err)

	svc, err := NewService(Config{DBPath: "x.db", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.cfg.Interval)
	assert.Equal(t, DefaultRetention(), svc.cfg.Retention)
}

func TestSnapshotName_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 123456000, time.UTC)
	got, ok := parseSnapshotName(snapshotName(ts))
	require.True(t, ok)
	assert.True(t, ts.Equal(got))

	_, ok = parseSnapshotName("notes.db")
	assert.False(t, ok)
	_, ok = parseSnapshotName("memora-garbage.db")
	assert.False(t, ok)
}

func TestExpired_Tiers(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(age time.Duration) Info {
		ts := now.Add(-age)
		return Info{Path: snapshotName(ts), Timestamp: ts}
	}
	// Newest first.
	snapshots := []Info{
		at(1 * time.Hour),
		at(2 * time.Hour),
		at(3 * time.Hour),       // third hourly: dropped
		at(2 * 24 * time.Hour),  // daily
		at(3 * 24 * time.Hour),  // second daily: dropped
		at(10 * 24 * time.Hour), // weekly
		at(60 * 24 * time.Hour), // monthly
		at(400 * 24 * time.Hour),
	}
	policy := RetentionPolicy{Hourly: 2, Daily: 1, Weekly: 1, Monthly: 1}

	assert.Equal(t, []string{snapshots[2].Path, snapshots[4].Path, snapshots[7].Path}, expired(snapshots, policy, now))
}

func TestApplyRetention_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotName(now.Add(-time.Duration(i)*time.Minute))), []byte("x"), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep-me.txt"), []byte("x"), 0o600))

	removed, err := applyRetention(dir, RetentionPolicy{Hourly: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
