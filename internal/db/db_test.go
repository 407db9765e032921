package db

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(Migrations())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	// Running again is a no-op.
	if err := db.MigrateUp(Migrations()); err != nil {
		t.Errorf("second MigrateUp failed: %v", err)
	}
}

func TestMigrations_EmbeddedFilesPaired(t *testing.T) {
	ups, err := fs.Glob(Migrations(), "*.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	downs, err := fs.Glob(Migrations(), "*.down.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Errorf("got %d up and %d down migrations", len(ups), len(downs))
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(Migrations()); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion(Migrations())
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='render_splits'`).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("render_splits should be dropped")
	}
}

func TestMigrateUp_CustomSource(t *testing.T) {
	db := setupTestDB(t)

	extra := fstest.MapFS{
		"000001_create_render_runs.up.sql":     {Data: []byte("SELECT 1;")},
		"000001_create_render_runs.down.sql":   {Data: []byte("SELECT 1;")},
		"000002_create_render_splits.up.sql":   {Data: []byte("SELECT 1;")},
		"000002_create_render_splits.down.sql": {Data: []byte("SELECT 1;")},
		"000003_add_note.up.sql":               {Data: []byte("ALTER TABLE render_runs ADD COLUMN note TEXT;")},
		"000003_add_note.down.sql":             {Data: []byte("SELECT 1;")},
	}
	if err := db.MigrateUp(extra); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if _, err := db.Exec(`UPDATE render_runs SET note = 'x'`); err != nil {
		t.Errorf("new column missing: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runID, err := db.StartRun(ctx, "/out/model", 14000, start)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	fps := 29.5
	if err := db.RecordSplit(ctx, runID, SplitRecord{
		Split: "test", Frames: 3, FPS: &fps, WriteRetries: 1,
		RenderDir: "/out/model/test/ours_14000/renders",
		GTDir:     "/out/model/test/ours_14000/gt",
		VideoPath: "/out/model/test/ours_14000/video_rgb.mp4",
	}); err != nil {
		t.Fatalf("RecordSplit failed: %v", err)
	}
	if err := db.RecordSplit(ctx, runID, SplitRecord{
		Split: "video", Frames: 1, RenderDir: "/out/model/video/ours_14000/renders",
	}); err != nil {
		t.Fatalf("RecordSplit failed: %v", err)
	}
	if err := db.FinishRun(ctx, runID, StatusComplete, start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err := db.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if run.RunID != runID || run.Status != StatusComplete || run.Iteration != 14000 {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("FinishedAt = %v", run.FinishedAt)
	}
	if len(run.Splits) != 2 {
		t.Fatalf("got %d splits, want 2", len(run.Splits))
	}
	testSplit := run.Splits[0]
	if testSplit.Split != "test" || testSplit.FPS == nil || *testSplit.FPS != fps || testSplit.WriteRetries != 1 {
		t.Errorf("unexpected test split: %+v", testSplit)
	}
	videoSplit := run.Splits[1]
	if videoSplit.FPS != nil || videoSplit.GTDir != "" {
		t.Errorf("video split should have no fps or gt: %+v", videoSplit)
	}
}

func TestFinishRun_UnknownRun(t *testing.T) {
	db := setupTestDB(t)
	if err := db.FinishRun(context.Background(), "nope", StatusFailed, time.Now()); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestLatestRun_Empty(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.LatestRun(context.Background()); !errors.Is(err, ErrNoRuns) {
		t.Errorf("err = %v, want ErrNoRuns", err)
	}
}
