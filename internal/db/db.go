// Package db records render runs in a small SQLite database kept next to
// the model output.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the run log created inside the model directory.
const FileName = "render_log.db"

// Run status values.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the run log at path and applies the
// embedded migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer is enough and avoids SQLITE_BUSY between pooled connections.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(Migrations()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is one invocation of the render command.
type Run struct {
	RunID      string
	ModelPath  string
	Iteration  int
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Splits     []SplitRecord
}

// SplitRecord is the outcome of rendering one split.
type SplitRecord struct {
	Split        string
	Frames       int
	FPS          *float64
	WriteRetries int
	RenderDir    string
	GTDir        string
	VideoPath    string
}

// StartRun inserts a new run and returns its id.
func (db *DB) StartRun(ctx context.Context, modelPath string, iteration int, startedAt time.Time) (string, error) {
	runID := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO render_runs (run_id, model_path, iteration, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		runID, modelPath, iteration, startedAt.UTC(), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// RecordSplit stores or replaces the outcome of one split.
func (db *DB) RecordSplit(ctx context.Context, runID string, rec SplitRecord) error {
	var fps sql.NullFloat64
	if rec.FPS != nil {
		fps = sql.NullFloat64{Float64: *rec.FPS, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO render_splits
			(run_id, split, frames, fps, write_retries, render_dir, gt_dir, video_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Split, rec.Frames, fps, rec.WriteRetries, rec.RenderDir,
		nullString(rec.GTDir), nullString(rec.VideoPath))
	if err != nil {
		return fmt.Errorf("failed to record split %s: %w", rec.Split, err)
	}
	return nil
}

// FinishRun marks a run as complete or failed.
func (db *DB) FinishRun(ctx context.Context, runID, status string, finishedAt time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE render_runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		finishedAt.UTC(), status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs returns all runs, newest first, with their splits.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, model_path, iteration, started_at, finished_at, status
		FROM render_runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.RunID, &r.ModelPath, &r.Iteration, &r.StartedAt, &finished, &r.Status); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		splits, err := db.splits(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Splits = splits
	}
	return runs, nil
}

func (db *DB) splits(ctx context.Context, runID string) ([]SplitRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT split, frames, fps, write_retries, render_dir, gt_dir, video_path
		FROM render_splits WHERE run_id = ? ORDER BY split`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	defer rows.Close()

	var out []SplitRecord
	for rows.Next() {
		var s SplitRecord
		var fps sql.NullFloat64
		var gt, video sql.NullString
		if err := rows.Scan(&s.Split, &s.Frames, &fps, &s.WriteRetries, &s.RenderDir, &gt, &video); err != nil {
			return nil, err
		}
		if fps.Valid {
			v := fps.Float64
			s.FPS = &v
		}
		s.GTDir = gt.String
		s.VideoPath = video.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// ErrNoRuns is returned by LatestRun on an empty log.
var ErrNoRuns = errors.New("no render runs recorded")

// LatestRun returns the most recently started run.
func (db *DB) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := db.Runs(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return &runs[0], nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
