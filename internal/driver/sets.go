package driver

import (
	"context"

	"github.com/banshee-data/splat.report/internal/db"
	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/report"
	"github.com/banshee-data/splat.report/internal/scene"
	"github.com/banshee-data/splat.report/internal/splat"
)

// SetsOptions selects which splits RenderSets renders.
type SetsOptions struct {
	SkipTrain       bool
	SkipTest        bool
	SkipVideo       bool
	RenderStatic    bool
	WhiteBackground bool
	Pipeline        render.Pipeline
}

type plannedSet struct {
	split splat.Split
	views []*splat.Camera
}

// plan returns the splits to render in order. With RenderStatic only the
// video trajectory is rendered, under the name "static".
func plan(sc *scene.Scene, opts SetsOptions) []plannedSet {
	if opts.RenderStatic {
		monitoring.Logf("Rendering first multi-view frame in test set.")
		return []plannedSet{{splat.SplitStatic, sc.VideoCameras()}}
	}
	var sets []plannedSet
	if !opts.SkipTrain {
		sets = append(sets, plannedSet{splat.SplitTrain, sc.TrainCameras()})
	}
	if !opts.SkipTest {
		sets = append(sets, plannedSet{splat.SplitTest, sc.TestCameras()})
	}
	if !opts.SkipVideo {
		sets = append(sets, plannedSet{splat.SplitVideo, sc.VideoCameras()})
	}
	return sets
}

// RenderSets renders the selected splits of sc one after another and stops
// at the first failing split. Splits without views are skipped.
func (d *Driver) RenderSets(ctx context.Context, sc *scene.Scene, opts SetsOptions) (results []*SetResult, err error) {
	bg := splat.Background(opts.WhiteBackground)

	runID := d.startRun(ctx, sc)
	if runID != "" {
		defer func() {
			status := db.StatusComplete
			if err != nil {
				status = db.StatusFailed
			}
			if ferr := d.RunLog.FinishRun(context.WithoutCancel(ctx), runID, status, d.clock().Now()); ferr != nil {
				monitoring.Logf("run log: %v", ferr)
			}
		}()
	}

	for _, set := range plan(sc, opts) {
		if len(set.views) == 0 {
			monitoring.Logf("skipping %s: no views", set.split)
			continue
		}
		res, err := d.RenderSet(ctx, SetRequest{
			ModelPath:   sc.ModelPath,
			Split:       set.split,
			Iteration:   sc.Iteration,
			Views:       set.views,
			Gaussians:   sc.Gaussians,
			Pipeline:    opts.Pipeline,
			Background:  bg,
			DatasetType: sc.DatasetType,
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
		d.recordSplit(ctx, runID, res)
		if d.Metrics != nil {
			d.Metrics.Observe(report.SplitMetrics{
				Split:      string(res.Split),
				Iteration:  sc.Iteration,
				Frames:     res.Frames,
				FPS:        res.FPS,
				FPSValid:   res.FPSErr == nil,
				Retries:    res.WriteRetries,
				FrameTimes: res.FrameTimes,
			})
		}
	}
	return results, nil
}

func (d *Driver) startRun(ctx context.Context, sc *scene.Scene) string {
	if d.RunLog == nil {
		return ""
	}
	runID, err := d.RunLog.StartRun(ctx, sc.ModelPath, sc.Iteration, d.clock().Now())
	if err != nil {
		monitoring.Logf("run log disabled: %v", err)
		return ""
	}
	return runID
}

func (d *Driver) recordSplit(ctx context.Context, runID string, res *SetResult) {
	if runID == "" {
		return
	}
	rec := db.SplitRecord{
		Split:        string(res.Split),
		Frames:       res.Frames,
		WriteRetries: res.WriteRetries,
		RenderDir:    res.RenderDir,
		GTDir:        res.GTDir,
		VideoPath:    res.VideoPath,
	}
	if res.FPSErr == nil {
		fps := res.FPS
		rec.FPS = &fps
	}
	if err := d.RunLog.RecordSplit(ctx, runID, rec); err != nil {
		monitoring.Logf("run log: %v", err)
	}
}
