// Package scene loads a trained checkpoint and its camera splits.
package scene

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	bildio "github.com/anthonynsimon/bild/imgio"

	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/scenedb"
	"github.com/banshee-data/splat.report/internal/splat"
)

// ErrNoCheckpoint is returned when no point_cloud/iteration_<N> directory
// exists under the model path.
var ErrNoCheckpoint = errors.New("no checkpoint found")

const (
	pointCloudDir   = "point_cloud"
	iterationPrefix = "iteration_"
)

// DefaultImages is the image folder inside a dataset.
const DefaultImages = "images"

// Scene is a loaded checkpoint.
type Scene struct {
	ModelPath   string
	SourcePath  string
	Iteration   int
	DatasetType splat.DatasetType
	Gaussians   *splat.GaussianModel

	train []*splat.Camera
	test  []*splat.Camera
	video []*splat.Camera
}

// TrainCameras returns the training views.
func (s *Scene) TrainCameras() []*splat.Camera { return s.train }

// TestCameras returns the held-out views.
func (s *Scene) TestCameras() []*splat.Camera { return s.test }

// VideoCameras returns the novel-view trajectory.
func (s *Scene) VideoCameras() []*splat.Camera { return s.video }

// New assembles a scene from parts already in memory.
func New(modelPath string, iteration int, datasetType splat.DatasetType, gaussians *splat.GaussianModel, cams map[splat.Split][]*splat.Camera) *Scene {
	return &Scene{
		ModelPath:   modelPath,
		Iteration:   iteration,
		DatasetType: datasetType,
		Gaussians:   gaussians,
		train:       cams[splat.SplitTrain],
		test:        cams[splat.SplitTest],
		video:       cams[splat.SplitVideo],
	}
}

// Options controls how a checkpoint is loaded.
type Options struct {
	SkipTrainImages bool
	SkipTestImages  bool
	// Images is the folder under the source path that relative camera
	// image paths live in. Empty means DefaultImages.
	Images string
	// SHDegree caps the spherical harmonics degree of the loaded model.
	// Nil keeps the degree stored with the checkpoint.
	SHDegree *int
}

func (o Options) images() string {
	if o.Images == "" {
		return DefaultImages
	}
	return o.Images
}

// CheckpointDir returns <modelPath>/point_cloud/iteration_<iter>.
func CheckpointDir(modelPath string, iter int) string {
	return filepath.Join(modelPath, pointCloudDir, iterationPrefix+strconv.Itoa(iter))
}

// SearchMaxIteration returns the largest N among iteration_<N> entries of
// folder.
func SearchMaxIteration(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w in %s", ErrNoCheckpoint, folder)
		}
		return 0, err
	}
	best := -1
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, iterationPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, iterationPrefix))
		if err != nil || n < 0 {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoCheckpoint, folder)
	}
	return best, nil
}

// Load opens the checkpoint for iteration (-1 selects the latest) and its
// cameras. Ground truth for train and test views is decoded from
// ImagePath, resolved against <sourcePath>/<opts.Images> when relative.
func Load(ctx context.Context, modelPath, sourcePath string, iteration int, opts Options) (*Scene, error) {
	if iteration < 0 {
		var err error
		iteration, err = SearchMaxIteration(filepath.Join(modelPath, pointCloudDir))
		if err != nil {
			return nil, err
		}
	}
	monitoring.Logf("Loading trained model at iteration %d", iteration)

	path := filepath.Join(CheckpointDir(modelPath, iteration), scenedb.FileName)
	db, err := scenedb.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, path)
		}
		return nil, err
	}
	defer db.Close()

	dt, _, err := db.Meta(scenedb.MetaDatasetType)
	if err != nil {
		return nil, err
	}
	datasetType, err := splat.ParseDatasetType(dt)
	if err != nil {
		return nil, err
	}

	gaussians, err := db.Gaussians(ctx)
	if err != nil {
		return nil, err
	}
	if opts.SHDegree != nil {
		if *opts.SHDegree < 0 {
			return nil, fmt.Errorf("sh_degree must be non-negative, got %d", *opts.SHDegree)
		}
		if gaussians.SHDegree > *opts.SHDegree {
			monitoring.Logf("capping sh_degree %d to %d", gaussians.SHDegree, *opts.SHDegree)
			gaussians.SHDegree = *opts.SHDegree
		}
	}

	s := &Scene{
		ModelPath:   modelPath,
		SourcePath:  sourcePath,
		Iteration:   iteration,
		DatasetType: datasetType,
		Gaussians:   gaussians,
	}

	splits := []struct {
		split  splat.Split
		dst    *[]*splat.Camera
		images bool
	}{
		{splat.SplitTrain, &s.train, !opts.SkipTrainImages},
		{splat.SplitTest, &s.test, !opts.SkipTestImages},
		{splat.SplitVideo, &s.video, false},
	}
	for _, sp := range splits {
		cams, err := db.Cameras(ctx, sp.split)
		if err != nil {
			return nil, err
		}
		if sp.images {
			for _, c := range cams {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if err := s.loadImage(c, opts.images()); err != nil {
					return nil, fmt.Errorf("%s camera %s: %w", sp.split, c.Name, err)
				}
			}
		}
		*sp.dst = cams
	}
	return s, nil
}

func (s *Scene) loadImage(c *splat.Camera, images string) error {
	if c.ImagePath == "" {
		return nil
	}
	path := c.ImagePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.SourcePath, images, path)
	}
	img, err := bildio.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load ground truth: %w", err)
	}
	keepAlpha := true
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		keepAlpha = false
	}
	c.OriginalImage = splat.FromImage(img, keepAlpha)
	return nil
}
