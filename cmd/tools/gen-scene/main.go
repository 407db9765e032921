// Command gen-scene writes a synthetic dataset and checkpoint that the
// render command can consume.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/splat.report/internal/config"
	"github.com/banshee-data/splat.report/internal/deform"
	"github.com/banshee-data/splat.report/internal/fsutil"
	"github.com/banshee-data/splat.report/internal/imgio"
	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/scene"
	"github.com/banshee-data/splat.report/internal/splat"
	"github.com/banshee-data/splat.report/internal/synthetic"
)

type options struct {
	modelPath       string
	sourcePath      string
	iteration       int
	datasetType     string
	whiteBackground bool
	gen             synthetic.Generator
}

func parseArgs(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("gen-scene", flag.ContinueOnError)
	fs.SetOutput(output)

	o := &options{}
	var seed int64
	fs.StringVar(&o.modelPath, "m", "", "Model output directory")
	fs.StringVar(&o.sourcePath, "s", "", "Dataset output directory for ground-truth images")
	fs.StringVar(&o.gen.Images, "images", "images", "Image directory inside the dataset")
	fs.IntVar(&o.gen.Points, "points", 200, "Number of Gaussians")
	fs.IntVar(&o.gen.Train, "train", 8, "Number of train views")
	fs.IntVar(&o.gen.Test, "test", 2, "Number of test views")
	fs.IntVar(&o.gen.Video, "video", 30, "Number of video views")
	fs.IntVar(&o.gen.Size, "size", 64, "View width and height in pixels")
	fs.IntVar(&o.iteration, "iteration", 1000, "Iteration recorded for the checkpoint")
	fs.Int64Var(&seed, "seed", 1, "Random seed")
	fs.StringVar(&o.datasetType, "dataset_type", string(splat.DatasetColmap), "Dataset type stored with the checkpoint")
	fs.BoolVar(&o.whiteBackground, "white_background", false, "Render ground truth on white")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.modelPath == "" {
		return nil, fmt.Errorf("-m is required")
	}
	if o.sourcePath == "" {
		o.sourcePath = filepath.Join(o.modelPath, "source")
	}
	if o.iteration < 0 {
		return nil, fmt.Errorf("iteration must be non-negative, got %d", o.iteration)
	}
	o.gen.Seed = uint64(seed)
	if err := o.gen.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func run(ctx context.Context, o *options) error {
	dt, err := splat.ParseDatasetType(o.datasetType)
	if err != nil {
		return err
	}

	model := o.gen.Model()
	cams := o.gen.Cameras()
	renderer := render.NewSplatter(deform.Linear{})
	writer := imgio.NewWriter(fsutil.OSFileSystem{}, 0)
	bg := splat.Background(o.whiteBackground)

	for _, split := range []splat.Split{splat.SplitTrain, splat.SplitTest} {
		views := cams[split]
		if len(views) == 0 {
			continue
		}
		imgs, err := synthetic.Render(ctx, renderer, model, views, bg)
		if err != nil {
			return fmt.Errorf("%s: %w", split, err)
		}
		dir := filepath.Join(o.sourcePath, o.gen.ImageDir(), filepath.Dir(views[0].ImagePath))
		if _, err := writer.WriteAll(ctx, imgs, dir); err != nil {
			return fmt.Errorf("%s ground truth: %w", split, err)
		}
		monitoring.Logf("%d %s images written to %s", len(imgs), split, dir)
	}

	if err := config.SaveCfgArgs(o.modelPath, &config.ModelParams{
		SHDegree:        config.PtrInt(model.SHDegree),
		SourcePath:      config.PtrString(o.sourcePath),
		ModelPath:       config.PtrString(o.modelPath),
		Images:          config.PtrString(o.gen.ImageDir()),
		WhiteBackground: config.PtrBool(o.whiteBackground),
	}); err != nil {
		return err
	}

	path, err := scene.Save(ctx, o.modelPath, &scene.Checkpoint{
		Iteration:   o.iteration,
		DatasetType: dt,
		Gaussians:   model,
		Cameras:     cams,
	})
	if err != nil {
		return err
	}
	monitoring.Logf("✓ Created: %s (%d points)", path, model.NumPoints())
	return nil
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		log.Printf("gen-scene: %v", err)
		os.Exit(2)
	}
	if err := run(context.Background(), o); err != nil {
		log.Printf("gen-scene: %v", err)
		os.Exit(1)
	}
}
