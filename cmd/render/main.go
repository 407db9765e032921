// Command render renders the train, test and video splits of a trained
// dynamic Gaussian splatting checkpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/splat.report/internal/config"
	"github.com/banshee-data/splat.report/internal/db"
	"github.com/banshee-data/splat.report/internal/driver"
	"github.com/banshee-data/splat.report/internal/fsutil"
	"github.com/banshee-data/splat.report/internal/imgio"
	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/report"
	"github.com/banshee-data/splat.report/internal/scene"
	"github.com/banshee-data/splat.report/internal/version"
	"github.com/banshee-data/splat.report/internal/video"
)

// options holds the parsed command line. params only carries values that
// were given explicitly, so they can be layered over cfg_args.
type options struct {
	params config.Params

	iteration    int
	skipTrain    bool
	skipTest     bool
	skipVideo    bool
	quiet        bool
	renderStatic bool
	noHexplane   bool
	configs      string

	workers      int
	timingReport bool
	runLog       bool
	logJSON      bool
	ffmpeg       string
	metricsFile  string
	showVersion  bool
}

func parseArgs(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(output)

	o := &options{}
	var (
		shDegree        int
		sourcePath      string
		modelPath       string
		images          string
		whiteBackground bool
		debug           bool
		scaleModifier   float64
		noDx            bool
		noDs            bool
		noDo            bool
		bounds          float64
	)

	fs.StringVar(&modelPath, "model_path", "", "Trained model directory")
	fs.StringVar(&modelPath, "m", "", "Shorthand for --model_path")
	fs.StringVar(&sourcePath, "source_path", "", "Dataset directory holding ground-truth images")
	fs.StringVar(&sourcePath, "s", "", "Shorthand for --source_path")
	fs.IntVar(&shDegree, "sh_degree", 3, "Spherical harmonics degree")
	fs.StringVar(&images, "images", "images", "Image directory name inside the dataset")
	fs.BoolVar(&whiteBackground, "white_background", false, "Render on a white background")

	fs.BoolVar(&debug, "debug", false, "Log per-view renderer statistics")
	fs.Float64Var(&scaleModifier, "scale_modifier", 1.0, "Multiplier applied to every Gaussian scale")

	fs.BoolVar(&noDx, "no_dx", false, "Disable position deformation")
	fs.BoolVar(&noDs, "no_ds", false, "Disable scale deformation")
	fs.BoolVar(&noDo, "no_do", false, "Disable opacity deformation")
	fs.Float64Var(&bounds, "bounds", 0, "Clamp deformed positions to this box (0 disables)")

	fs.IntVar(&o.iteration, "iteration", -1, "Checkpoint iteration to render (-1 for the latest)")
	fs.BoolVar(&o.skipTrain, "skip_train", false, "Do not render the train split")
	fs.BoolVar(&o.skipTest, "skip_test", false, "Do not render the test split")
	fs.BoolVar(&o.skipVideo, "skip_video", false, "Do not render the video split")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress log output")
	fs.BoolVar(&o.renderStatic, "render_static", false, "Render only the static split over the video cameras")
	fs.BoolVar(&o.noHexplane, "no_hexplane", false, "Render static Gaussians without deformation")
	fs.StringVar(&o.configs, "configs", "", "Parameter file (.json, .yaml or .yml) overriding all other settings")

	fs.IntVar(&o.workers, "workers", 0, "Concurrent image writers (0 for one per CPU)")
	fs.BoolVar(&o.timingReport, "timing_report", false, "Write frame_times.png and frame_times.html per split")
	fs.BoolVar(&o.runLog, "run_log", true, "Record the run in <model_path>/"+db.FileName)
	fs.BoolVar(&o.logJSON, "log_json", false, "Emit structured JSON logs")
	fs.StringVar(&o.ffmpeg, "ffmpeg", video.DefaultBinary, "ffmpeg binary used to encode videos")
	fs.StringVar(&o.metricsFile, "metrics_file", "", "Write Prometheus textfile metrics to this path")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	p := &o.params
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model_path", "m":
			p.Model.ModelPath = config.PtrString(modelPath)
		case "source_path", "s":
			p.Model.SourcePath = config.PtrString(sourcePath)
		case "sh_degree":
			p.Model.SHDegree = config.PtrInt(shDegree)
		case "images":
			p.Model.Images = config.PtrString(images)
		case "white_background":
			p.Model.WhiteBackground = config.PtrBool(whiteBackground)
		case "debug":
			p.Pipeline.Debug = config.PtrBool(debug)
		case "scale_modifier":
			p.Pipeline.ScaleModifier = config.PtrFloat64(scaleModifier)
		case "no_dx":
			p.Hidden.NoDx = config.PtrBool(noDx)
		case "no_ds":
			p.Hidden.NoDs = config.PtrBool(noDs)
		case "no_do":
			p.Hidden.NoDo = config.PtrBool(noDo)
		case "bounds":
			p.Hidden.Bounds = config.PtrFloat64(bounds)
		}
	})
	return o, nil
}

// resolve layers cfg_args, the command line and the --configs file.
func resolve(o *options) (*config.Params, error) {
	modelPath := o.params.Model.GetModelPath()
	if modelPath == "" {
		return nil, errors.New("model_path is required (-m)")
	}
	cfgArgs, err := config.LoadCfgArgs(modelPath)
	if err != nil {
		return nil, err
	}
	var fileParams *config.Params
	if o.configs != "" {
		if fileParams, err = config.LoadConfigFile(o.configs); err != nil {
			return nil, err
		}
	}
	return config.Combine(cfgArgs, &o.params, fileParams)
}

// run renders the model described by o. A nil encoder means ffmpeg.
func run(ctx context.Context, o *options, enc video.Encoder) error {
	params, err := resolve(o)
	if err != nil {
		return err
	}
	modelPath := params.Model.GetModelPath()
	monitoring.Logf("Rendering %s", modelPath)

	flush, err := monitoring.Configure(o.quiet, o.logJSON)
	if err != nil {
		return err
	}
	defer flush()

	sc, err := scene.Load(ctx, modelPath, params.Model.GetSourcePath(), o.iteration, scene.Options{
		SkipTrainImages: o.skipTrain || o.renderStatic,
		SkipTestImages:  o.skipTest || o.renderStatic,
		Images:          params.Model.GetImages(),
		SHDegree:        config.PtrInt(params.Model.GetSHDegree()),
	})
	if err != nil {
		return err
	}

	if enc == nil {
		enc = video.NewFFmpeg(o.ffmpeg)
	}
	d := &driver.Driver{
		Renderer: render.NewSplatter(params.Hidden.Deformation(o.noHexplane)),
		Writer:   imgio.NewWriter(fsutil.OSFileSystem{}, o.workers),
		Video:    enc,
		Reports:  o.timingReport,
	}
	if o.runLog {
		runLog, err := db.NewDB(filepath.Join(modelPath, db.FileName))
		if err != nil {
			monitoring.Logf("run log disabled: %v", err)
		} else {
			defer runLog.Close()
			d.RunLog = runLog
		}
	}

	if o.metricsFile != "" {
		d.Metrics = report.NewMetrics()
	}

	_, err = d.RenderSets(ctx, sc, driver.SetsOptions{
		SkipTrain:       o.skipTrain,
		SkipTest:        o.skipTest,
		SkipVideo:       o.skipVideo,
		RenderStatic:    o.renderStatic,
		WhiteBackground: params.Model.GetWhiteBackground(),
		Pipeline:        params.Pipeline.RenderPipeline(),
	})
	if d.Metrics != nil {
		if merr := d.Metrics.WriteTextfile(o.metricsFile); merr != nil {
			monitoring.Logf("%v", merr)
		}
	}
	return err
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("render: %v", err)
		os.Exit(2)
	}
	if o.showVersion {
		fmt.Println(version.String("render"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, nil); err != nil {
		log.Printf("render: %v", err)
		stop()
		os.Exit(1)
	}
}
