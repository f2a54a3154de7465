package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/lifecycle"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{"tracking_config", "tracking_sessions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestPragmas(t *testing.T) {
	db := newTestDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown(Migrations()))
	version, _, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	_, err = db.Exec(`SELECT 1 FROM tracking_sessions`)
	assert.Error(t, err, "table should be gone after down migration")

	require.NoError(t, db.MigrateUp(Migrations()))
	require.NoError(t, db.MigrateUp(Migrations()), "second up is a no-op")
}

func TestMigrateForce(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "force.db"))
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"000001_init.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE t1 (id INTEGER PRIMARY KEY);")},
		"000001_init.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE t1;")},
		"000002_more.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE t2 (id INTEGER PRIMARY KEY);")},
		"000002_more.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE t2;")},
	}
	require.NoError(t, db.MigrateUp(migrations))
	require.NoError(t, db.MigrateForce(migrations, 1))

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestMigrate_ClosedDB(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	db.Close()

	assert.Error(t, db.MigrateUp(Migrations()))
}

func TestTrackingConfig_SaveAndLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	latest, err := db.LatestTrackingConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty table yields nil")

	first := config.DefaultTrackingConfig()
	_, err = db.SaveTrackingConfig(ctx, first, "defaults")
	require.NoError(t, err)

	second := config.DefaultTrackingConfig()
	port := 6000
	second.ServerPort = &port
	id, err := db.SaveTrackingConfig(ctx, second, "new port")
	require.NoError(t, err)

	latest, err = db.LatestTrackingConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, "new port", latest.Note)
	assert.Equal(t, 6000, latest.Config.GetServerPort())
	assert.False(t, latest.CreatedAt.IsZero())
}

func TestTrackingConfig_RejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.SaveTrackingConfig(ctx, nil, "")
	assert.Error(t, err)

	bad := config.DefaultTrackingConfig()
	dev := -1
	bad.Device = &dev
	_, err = db.SaveTrackingConfig(ctx, bad, "")
	assert.Error(t, err)

	latest, err := db.LatestTrackingConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestConfigSource(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	fallback := config.EmptyTrackingConfig()
	ip := "10.0.0.9"
	fallback.ServerIP = &ip
	src := &ConfigSource{DB: db, Fallback: fallback}

	cfg, err := src.TrackingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.GetServerIP())

	// The fallback is copied, not shared.
	other := "10.0.0.10"
	cfg.ServerIP = &other
	assert.Equal(t, "10.0.0.9", fallback.GetServerIP())

	stored := config.DefaultTrackingConfig()
	storedIP := "192.168.1.50"
	stored.ServerIP = &storedIP
	_, err = db.SaveTrackingConfig(ctx, stored, "")
	require.NoError(t, err)

	cfg, err = src.TrackingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", cfg.GetServerIP())
}

func TestConfigSource_NoFallback(t *testing.T) {
	src := &ConfigSource{DB: newTestDB(t)}
	cfg, err := src.TrackingConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5065, cfg.GetServerPort())
}

func TestSessions_RecordAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SessionStarted(ctx, "s1", base, config.DefaultTrackingConfig()))
	require.NoError(t, db.SessionEnded(ctx, lifecycle.Report{
		ID:        "s1",
		StartedAt: base,
		EndedAt:   base.Add(time.Minute),
		State:     lifecycle.StoppedByRequest,
		Summary:   lifecycle.Summary{Frames: 1800, Detections: 1700, Frozen: 12, Dropped: 3, Sent: 1697, SendErrors: 1},
	}))

	require.NoError(t, db.SessionStarted(ctx, "s2", base.Add(2*time.Minute), nil))
	require.NoError(t, db.SessionEnded(ctx, lifecycle.Report{
		ID:      "s2",
		EndedAt: base.Add(2 * time.Minute),
		State:   lifecycle.StoppedByFailure,
		Reason:  "open camera 0: no device",
	}))

	require.NoError(t, db.SessionStarted(ctx, "s3", base.Add(3*time.Minute), config.DefaultTrackingConfig()))

	sessions, err := db.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	assert.Equal(t, "s3", sessions[0].ID, "newest first")
	assert.Nil(t, sessions[0].EndedAt, "running session has no end")

	failed := sessions[1]
	assert.Equal(t, "stopped_by_failure", failed.EndState)
	assert.Equal(t, "open camera 0: no device", failed.Reason)
	assert.Nil(t, failed.Config)

	done := sessions[2]
	assert.Equal(t, "stopped_by_request", done.EndState)
	require.NotNil(t, done.EndedAt)
	assert.Equal(t, base.Add(time.Minute), *done.EndedAt)
	assert.Equal(t, lifecycle.Summary{Frames: 1800, Detections: 1700, Frozen: 12, Dropped: 3, Sent: 1697, SendErrors: 1}, done.Summary)
	assert.True(t, json.Valid(done.Config))

	limited, err := db.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSessionEnded_Unknown(t *testing.T) {
	db := newTestDB(t)
	err := db.SessionEnded(context.Background(), lifecycle.Report{ID: "missing", EndedAt: time.Now()})
	assert.Error(t, err)
}

func TestSessionStarted_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SessionStarted(ctx, "dup", time.Now(), nil))
	assert.Error(t, db.SessionStarted(ctx, "dup", time.Now(), nil))
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))
}

func TestServeBackup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SessionStarted(context.Background(), "b1", time.Now(), nil))

	rec := httptest.NewRecorder()
	db.serveBackup(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tracker-backup-")
	assert.Greater(t, rec.Body.Len(), 0)
	// sqlite files start with a fixed magic header.
	assert.Equal(t, "SQLite format 3\x00", rec.Body.String()[:16])
}
