// Package driver renders camera splits of a loaded scene and persists the
// results: numbered PNGs for predictions and ground truth, an MP4 of the
// predictions and an FPS diagnostic.
package driver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/splat.report/internal/db"
	"github.com/banshee-data/splat.report/internal/fsutil"
	"github.com/banshee-data/splat.report/internal/imgio"
	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/report"
	"github.com/banshee-data/splat.report/internal/security"
	"github.com/banshee-data/splat.report/internal/splat"
	"github.com/banshee-data/splat.report/internal/timeutil"
	"github.com/banshee-data/splat.report/internal/video"
)

// ErrNoViews is returned by RenderSet for a split without camera views.
// Nothing is created on disk in that case.
var ErrNoViews = errors.New("split has no views")

// DefaultFrameRate is the frame rate of every written video.
const DefaultFrameRate = 30

// Output names inside <model>/<split>/ours_<iter>/.
const (
	RendersDir    = "renders"
	GTDir         = "gt"
	VideoFile     = "video_rgb.mp4"
	TimesPlotFile = "frame_times.png"
	TimesHTMLFile = "frame_times.html"
)

// RunLog persists one row per invocation and per rendered split. *db.DB
// satisfies it.
type RunLog interface {
	StartRun(ctx context.Context, modelPath string, iteration int, startedAt time.Time) (string, error)
	RecordSplit(ctx context.Context, runID string, rec db.SplitRecord) error
	FinishRun(ctx context.Context, runID, status string, finishedAt time.Time) error
}

// Driver renders splits. Renderer, Writer and Video are required.
type Driver struct {
	Renderer render.Renderer
	Writer   *imgio.Writer
	Video    video.Encoder
	// Clock times the render loop. Nil means the wall clock.
	Clock timeutil.Clock
	// RunLog is optional.
	RunLog RunLog
	// FrameRate of the written video. Zero means DefaultFrameRate.
	FrameRate int
	// Reports writes frame-time charts next to each split's outputs.
	Reports bool
	// Metrics, when set, receives one observation per rendered split.
	Metrics *report.Metrics
}

// SetRequest describes one split to render.
type SetRequest struct {
	ModelPath   string
	Split       splat.Split
	Iteration   int
	Views       []*splat.Camera
	Gaussians   *splat.GaussianModel
	Pipeline    render.Pipeline
	Background  splat.Color
	DatasetType splat.DatasetType
}

// SetResult describes what RenderSet wrote.
type SetResult struct {
	Split     splat.Split
	Frames    int
	RenderDir string
	GTDir     string
	VideoPath string
	// FPS is valid only when FPSErr is nil.
	FPS        float64
	FPSErr     error
	FrameTimes []time.Duration
	// WriteRetries counts images that needed a second attempt.
	WriteRetries int
}

// SetDir returns <model>/<split>/ours_<iter>.
func SetDir(modelPath string, split splat.Split, iteration int) string {
	return filepath.Join(modelPath, string(split), "ours_"+strconv.Itoa(iteration))
}

func (d *Driver) clock() timeutil.Clock {
	if d.Clock == nil {
		return timeutil.RealClock{}
	}
	return d.Clock
}

func (d *Driver) fs() fsutil.FileSystem {
	if d.Writer.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return d.Writer.FS
}

func (d *Driver) frameRate() int {
	if d.FrameRate > 0 {
		return d.FrameRate
	}
	return DefaultFrameRate
}

// RenderSet renders every view of req in order, then writes ground truth,
// predictions and the video. Per-image write failures are retried once by
// the writer; renderer, ground-truth and video errors abort the split.
// A request without views fails with ErrNoViews before any directory is
// created.
func (d *Driver) RenderSet(ctx context.Context, req SetRequest) (*SetResult, error) {
	if d.Renderer == nil || d.Writer == nil || d.Video == nil {
		return nil, errors.New("driver: renderer, writer and video encoder are required")
	}
	if len(req.Views) == 0 {
		return nil, fmt.Errorf("%s: %w", req.Split, ErrNoViews)
	}
	setDir := SetDir(req.ModelPath, req.Split, req.Iteration)
	res := &SetResult{
		Split:     req.Split,
		RenderDir: filepath.Join(setDir, RendersDir),
		VideoPath: filepath.Join(setDir, VideoFile),
	}
	gtDir := filepath.Join(setDir, GTDir)
	if err := security.ValidateOutputDirs(req.ModelPath, res.RenderDir, gtDir); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Split, err)
	}

	fsys := d.fs()
	for _, dir := range []string{res.RenderDir, gtDir} {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%s: failed to create %s: %w", req.Split, dir, err)
		}
	}

	monitoring.Logf("point nums: %d", req.Gaussians.NumPoints())

	withGT := req.Split.HasGroundTruth()
	renders := make([]*splat.Image, 0, len(req.Views))
	frames := make([]*image.NRGBA, 0, len(req.Views))
	var gts []*splat.Image
	res.FrameTimes = make([]time.Duration, 0, len(req.Views))

	clock := d.clock()
	var start, prev time.Time
	for idx, view := range req.Views {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := clock.Now()
		if idx == 0 {
			start = now
		} else {
			res.FrameTimes = append(res.FrameTimes, now.Sub(prev))
		}
		prev = now

		out, err := d.Renderer.Render(ctx, view, req.Gaussians, req.Pipeline, req.Background, req.DatasetType)
		if err != nil {
			return nil, fmt.Errorf("%s view %d: %w", req.Split, idx, err)
		}
		if out == nil || out.Render == nil {
			return nil, fmt.Errorf("%s view %d: renderer returned no image", req.Split, idx)
		}
		frame, err := out.Render.ToNRGBA(splat.QuantizeTruncate)
		if err != nil {
			return nil, fmt.Errorf("%s view %d: %w", req.Split, idx, err)
		}
		renders = append(renders, out.Render)
		frames = append(frames, frame)

		if withGT {
			gt, err := splat.GroundTruth(view, req.DatasetType)
			if err != nil {
				return nil, fmt.Errorf("%s view %d: %w", req.Split, idx, err)
			}
			gts = append(gts, gt)
		}
	}
	end := clock.Now()
	res.FrameTimes = append(res.FrameTimes, end.Sub(prev))
	res.FPS, res.FPSErr = report.FPS(len(req.Views), end.Sub(start))
	res.Frames = len(renders)

	if res.FPSErr != nil {
		monitoring.Logf("FPS: unavailable: %v", res.FPSErr)
	} else {
		monitoring.Logf("FPS: %v", res.FPS)
	}
	if req.Pipeline.Debug {
		monitoring.Logf("%s frame times: %s", req.Split, report.Summarise(res.FrameTimes))
	}

	monitoring.Logf("writing training images to %s.", gtDir)
	sum, err := d.Writer.WriteAll(ctx, gts, gtDir)
	if sum != nil {
		res.WriteRetries += len(sum.Retried)
	}
	if err != nil {
		return res, fmt.Errorf("%s ground truth: %w", req.Split, err)
	}
	if withGT {
		res.GTDir = gtDir
	}

	monitoring.Logf("writing rendering images to %s.", res.RenderDir)
	sum, err = d.Writer.WriteAll(ctx, renders, res.RenderDir)
	if sum != nil {
		res.WriteRetries += len(sum.Retried)
	}
	if err != nil {
		return res, fmt.Errorf("%s renders: %w", req.Split, err)
	}

	if err := d.Video.Encode(ctx, res.VideoPath, frames, d.frameRate()); err != nil {
		return res, fmt.Errorf("%s video: %w", req.Split, err)
	}

	if d.Reports {
		d.writeReports(req, setDir, res.FrameTimes)
	}
	return res, nil
}

// writeReports logs failures instead of returning them; the charts are a
// diagnostic and must not fail a completed split.
func (d *Driver) writeReports(req SetRequest, setDir string, times []time.Duration) {
	if len(times) == 0 {
		return
	}
	fsys := d.fs()
	title := fmt.Sprintf("%s ours_%d", req.Split, req.Iteration)

	write := func(name string, fn func(w io.Writer) error) {
		path := filepath.Join(setDir, name)
		f, err := fsys.Create(path)
		if err != nil {
			monitoring.Logf("failed to create %s: %v", path, err)
			return
		}
		werr := fn(f)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			monitoring.Logf("failed to write %s: %v", path, werr)
		}
	}
	write(TimesPlotFile, func(w io.Writer) error {
		return report.WriteFrameTimePlot(w, title, times)
	})
	write(TimesHTMLFile, func(w io.Writer) error {
		return report.WriteFrameTimeChart(w, title, times)
	})
}
