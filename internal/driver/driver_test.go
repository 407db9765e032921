package driver

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splat.report/internal/db"
	"github.com/banshee-data/splat.report/internal/fsutil"
	"github.com/banshee-data/splat.report/internal/imgio"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/report"
	"github.com/banshee-data/splat.report/internal/scene"
	"github.com/banshee-data/splat.report/internal/splat"
	"github.com/banshee-data/splat.report/internal/testutil"
	"github.com/banshee-data/splat.report/internal/timeutil"
)

// fakeRenderer fills each frame with a grey level derived from the view
// time and records the calls it receives.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
	bg    []splat.Color
	err   error
	errAt int
}

func (r *fakeRenderer) Render(_ context.Context, view *splat.Camera, _ *splat.GaussianModel, _ render.Pipeline, bg splat.Color, _ splat.DatasetType) (*render.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil && len(r.calls) == r.errAt {
		return nil, r.err
	}
	r.calls = append(r.calls, view.Name)
	r.bg = append(r.bg, bg)
	v := float32(view.Time)
	return &render.Result{Render: splat.NewFilledImage(view.Height, view.Width, v, v, v)}, nil
}

type encodeCall struct {
	path   string
	frames []*image.NRGBA
	fps    int
}

type fakeEncoder struct {
	calls []encodeCall
	err   error
}

func (e *fakeEncoder) Encode(_ context.Context, path string, frames []*image.NRGBA, fps int) error {
	e.calls = append(e.calls, encodeCall{path: path, frames: frames, fps: fps})
	return e.err
}

func views(n, size int, withGT bool) []*splat.Camera {
	out := make([]*splat.Camera, n)
	for i := range out {
		c := &splat.Camera{
			UID: i, Name: "view" + string(rune('a'+i)),
			Width: size, Height: size, FoVx: 1, FoVy: 1,
			R:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Time: float64(i) / float64(n),
		}
		if withGT {
			c.OriginalImage = splat.NewFilledImage(size, size, 0.1, 0.2, 0.3, 1)
		}
		out[i] = c
	}
	return out
}

func newTestDriver(t *testing.T) (*Driver, *fsutil.MemoryFileSystem, *fakeRenderer, *fakeEncoder) {
	t.Helper()
	testutil.QuietLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	r := &fakeRenderer{}
	enc := &fakeEncoder{}
	d := &Driver{
		Renderer: r,
		Writer:   imgio.NewWriter(mfs, 2),
		Video:    enc,
		Clock:    timeutil.NewSteppingClock(time.Unix(1000, 0), time.Second),
	}
	return d, mfs, r, enc
}

func TestRenderSet_EndToEnd(t *testing.T) {
	d, mfs, r, enc := newTestDriver(t)
	logs := testutil.RecordLogs(t)

	res, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath:   "/out/model",
		Split:       splat.SplitTest,
		Iteration:   7000,
		Views:       views(3, 4, true),
		Gaussians:   &splat.GaussianModel{},
		DatasetType: splat.DatasetBlender,
	})
	require.NoError(t, err)

	setDir := "/out/model/test/ours_7000"
	wantGT := []string{
		filepath.Join(setDir, "gt", "00000.png"),
		filepath.Join(setDir, "gt", "00001.png"),
		filepath.Join(setDir, "gt", "00002.png"),
	}
	wantRenders := []string{
		filepath.Join(setDir, "renders", "00000.png"),
		filepath.Join(setDir, "renders", "00001.png"),
		filepath.Join(setDir, "renders", "00002.png"),
	}
	if diff := cmp.Diff(wantGT, mfs.Files(filepath.Join(setDir, "gt"))); diff != "" {
		t.Errorf("gt files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRenders, mfs.Files(filepath.Join(setDir, "renders"))); diff != "" {
		t.Errorf("render files mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, enc.calls, 1)
	assert.Equal(t, filepath.Join(setDir, "video_rgb.mp4"), enc.calls[0].path)
	assert.Equal(t, 30, enc.calls[0].fps)
	require.Len(t, enc.calls[0].frames, 3)
	assert.Equal(t, image.Rect(0, 0, 4, 4), enc.calls[0].frames[0].Bounds())

	assert.Equal(t, []string{"viewa", "viewb", "viewc"}, r.calls)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, filepath.Join(setDir, "gt"), res.GTDir)
	assert.Zero(t, res.WriteRetries)

	// Four clock readings one second apart: (3-1)/3s.
	require.NoError(t, res.FPSErr)
	assert.InDelta(t, 2.0/3.0, res.FPS, 1e-9)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, res.FrameTimes)

	assert.True(t, logs.Contains("point nums: 0"))
	assert.True(t, logs.Contains("FPS: 0.666"))
}

func TestRenderSet_VideoFramesTruncate(t *testing.T) {
	d, _, _, enc := newTestDriver(t)
	v := views(2, 2, false)
	v[1].Time = 0.999 // 254.745 truncates to 254

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitVideo, Views: v, Gaussians: &splat.GaussianModel{},
	})
	require.NoError(t, err)
	require.Len(t, enc.calls, 1)
	assert.Equal(t, uint8(254), enc.calls[0].frames[1].Pix[0])
}

func TestRenderSet_VideoSplitHasNoGroundTruth(t *testing.T) {
	d, mfs, _, _ := newTestDriver(t)

	res, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitVideo, Iteration: 1,
		Views: views(2, 2, false), Gaussians: &splat.GaussianModel{},
	})
	require.NoError(t, err)
	assert.Empty(t, res.GTDir)
	assert.Empty(t, mfs.Files("/m/video/ours_1/gt"))
	assert.True(t, mfs.Exists("/m/video/ours_1/gt"), "gt dir is still created")
	assert.Len(t, mfs.Files("/m/video/ours_1/renders"), 2)
}

func TestRenderSet_SingleViewFPSIsNotFatal(t *testing.T) {
	d, mfs, _, enc := newTestDriver(t)

	res, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitTest, Views: views(1, 2, true), Gaussians: &splat.GaussianModel{},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, res.FPSErr, report.ErrInsufficientFrames)
	assert.Len(t, mfs.Files("/m/test/ours_0/renders"), 1)
	assert.Len(t, enc.calls, 1)
}

func TestRenderSet_NoViews(t *testing.T) {
	d, mfs, r, enc := newTestDriver(t)

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitTest, Gaussians: &splat.GaussianModel{},
	})
	assert.ErrorIs(t, err, ErrNoViews)
	assert.False(t, mfs.Exists("/m/test"), "no directories for an empty split")
	assert.Empty(t, r.calls)
	assert.Empty(t, enc.calls)
}

func TestRenderSet_MissingGroundTruth(t *testing.T) {
	d, _, _, enc := newTestDriver(t)

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitTrain, Views: views(2, 2, false), Gaussians: &splat.GaussianModel{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train view 0")
	assert.Empty(t, enc.calls)
}

func TestRenderSet_RendererError(t *testing.T) {
	d, mfs, r, _ := newTestDriver(t)
	boom := errors.New("rasterizer exploded")
	r.err, r.errAt = boom, 1

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitVideo, Views: views(3, 2, false), Gaussians: &splat.GaussianModel{},
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "video view 1")
	assert.Empty(t, mfs.Files("/m/video/ours_0/renders"))
}

func TestRenderSet_VideoError(t *testing.T) {
	d, mfs, _, enc := newTestDriver(t)
	enc.err = errors.New("ffmpeg missing")

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitVideo, Views: views(2, 2, false), Gaussians: &splat.GaussianModel{},
	})
	assert.ErrorIs(t, err, enc.err)
	assert.Len(t, mfs.Files("/m/video/ours_0/renders"), 2, "images are written before the video")
}

func TestRenderSet_RejectsEscapingSplit(t *testing.T) {
	d, _, _, _ := newTestDriver(t)

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.Split("../escape"), Views: views(1, 2, false), Gaussians: &splat.GaussianModel{},
	})
	assert.Error(t, err)
}

func TestRenderSet_Reports(t *testing.T) {
	d, mfs, _, _ := newTestDriver(t)
	d.Reports = true

	_, err := d.RenderSet(context.Background(), SetRequest{
		ModelPath: "/m", Split: splat.SplitVideo, Iteration: 3, Views: views(3, 2, false), Gaussians: &splat.GaussianModel{},
	})
	require.NoError(t, err)

	html, err := mfs.ReadFile("/m/video/ours_3/frame_times.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "video ours_3")
	png, err := mfs.ReadFile("/m/video/ours_3/frame_times.png")
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestRenderSets_SplitSelection(t *testing.T) {
	cams := map[splat.Split][]*splat.Camera{
		splat.SplitTrain: views(2, 2, true),
		splat.SplitTest:  views(1, 2, true),
		splat.SplitVideo: views(3, 2, false),
	}
	tests := []struct {
		name   string
		opts   SetsOptions
		splits []splat.Split
	}{
		{"all", SetsOptions{}, []splat.Split{splat.SplitTrain, splat.SplitTest, splat.SplitVideo}},
		{"skip train", SetsOptions{SkipTrain: true}, []splat.Split{splat.SplitTest, splat.SplitVideo}},
		{"only video", SetsOptions{SkipTrain: true, SkipTest: true}, []splat.Split{splat.SplitVideo}},
		{"static ignores skips", SetsOptions{RenderStatic: true, SkipVideo: true}, []splat.Split{splat.SplitStatic}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _, _ := newTestDriver(t)
			sc := scene.New("/m", 5, splat.DatasetColmap, &splat.GaussianModel{}, cams)

			results, err := d.RenderSets(context.Background(), sc, tt.opts)
			require.NoError(t, err)
			var got []splat.Split
			for _, r := range results {
				got = append(got, r.Split)
			}
			assert.Equal(t, tt.splits, got)
		})
	}
}

func TestRenderSets_StaticUsesVideoCameras(t *testing.T) {
	d, mfs, r, _ := newTestDriver(t)
	sc := scene.New("/m", 5, splat.DatasetColmap, &splat.GaussianModel{}, map[splat.Split][]*splat.Camera{
		splat.SplitVideo: views(3, 2, false),
	})

	_, err := d.RenderSets(context.Background(), sc, SetsOptions{RenderStatic: true})
	require.NoError(t, err)
	assert.Len(t, r.calls, 3)
	assert.Len(t, mfs.Files("/m/static/ours_5/renders"), 3)
}

func TestRenderSets_BackgroundAndEmptySplits(t *testing.T) {
	d, _, r, _ := newTestDriver(t)
	sc := scene.New("/m", 1, splat.DatasetColmap, &splat.GaussianModel{}, map[splat.Split][]*splat.Camera{
		splat.SplitVideo: views(1, 2, false),
	})

	results, err := d.RenderSets(context.Background(), sc, SetsOptions{WhiteBackground: true})
	require.NoError(t, err)
	require.Len(t, results, 1, "empty train and test splits are skipped")
	assert.Equal(t, []splat.Color{splat.White}, r.bg)
}

func TestRenderSets_RunLog(t *testing.T) {
	runLog, err := db.NewDB(filepath.Join(t.TempDir(), db.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { runLog.Close() })

	d, _, _, _ := newTestDriver(t)
	d.RunLog = runLog
	sc := scene.New("/m", 9, splat.DatasetColmap, &splat.GaussianModel{}, map[splat.Split][]*splat.Camera{
		splat.SplitTest:  views(3, 2, true),
		splat.SplitVideo: views(2, 2, false),
	})

	_, err = d.RenderSets(context.Background(), sc, SetsOptions{})
	require.NoError(t, err)

	run, err := runLog.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.StatusComplete, run.Status)
	assert.Equal(t, 9, run.Iteration)
	require.Len(t, run.Splits, 2)
	assert.Equal(t, "test", run.Splits[0].Split)
	assert.Equal(t, 3, run.Splits[0].Frames)
	require.NotNil(t, run.Splits[0].FPS)
	assert.Equal(t, "video", run.Splits[1].Split)
}

func TestRenderSets_RunLogRecordsFailure(t *testing.T) {
	runLog, err := db.NewDB(filepath.Join(t.TempDir(), db.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { runLog.Close() })

	d, _, _, enc := newTestDriver(t)
	d.RunLog = runLog
	enc.err = errors.New("encode failed")
	sc := scene.New("/m", 9, splat.DatasetColmap, &splat.GaussianModel{}, map[splat.Split][]*splat.Camera{
		splat.SplitVideo: views(2, 2, false),
	})

	_, err = d.RenderSets(context.Background(), sc, SetsOptions{})
	require.Error(t, err)

	run, err := runLog.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, run.Status)
	assert.Empty(t, run.Splits)
}

func TestRenderSets_Metrics(t *testing.T) {
	d, _, _, _ := newTestDriver(t)
	d.Metrics = report.NewMetrics()
	sc := scene.New("/m", 2, splat.DatasetColmap, &splat.GaussianModel{}, map[splat.Split][]*splat.Camera{
		splat.SplitTest:  views(3, 2, true),
		splat.SplitVideo: views(1, 2, false),
	})

	_, err := d.RenderSets(context.Background(), sc, SetsOptions{})
	require.NoError(t, err)

	families, err := d.Metrics.Registry().Gather()
	require.NoError(t, err)
	counts := map[string]int{}
	for _, f := range families {
		counts[f.GetName()] = len(f.GetMetric())
	}
	assert.Equal(t, 2, counts["splat_render_frames"])
	assert.Equal(t, 1, counts["splat_render_fps"], "single-view split has no fps")
}
