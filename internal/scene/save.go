package scene

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/splat.report/internal/scenedb"
	"github.com/banshee-data/splat.report/internal/splat"
)

// Checkpoint is everything Save persists for one iteration.
type Checkpoint struct {
	Iteration   int
	DatasetType splat.DatasetType
	Gaussians   *splat.GaussianModel
	Cameras     map[splat.Split][]*splat.Camera
}

// Save writes cp under modelPath/point_cloud/iteration_<N>/ and returns the
// checkpoint file path. An existing checkpoint for the same iteration is
// replaced.
func Save(ctx context.Context, modelPath string, cp *Checkpoint) (string, error) {
	if cp == nil || cp.Gaussians == nil {
		return "", fmt.Errorf("checkpoint has no gaussians")
	}
	dir := CheckpointDir(modelPath, cp.Iteration)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	path := filepath.Join(dir, scenedb.FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}

	db, err := scenedb.Create(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	dt := cp.DatasetType
	if dt == "" {
		dt = splat.DatasetColmap
	}
	if err := db.PutMeta(scenedb.MetaDatasetType, string(dt)); err != nil {
		return "", err
	}
	if err := db.PutMeta(scenedb.MetaIteration, strconv.Itoa(cp.Iteration)); err != nil {
		return "", err
	}
	if err := db.PutGaussians(ctx, cp.Gaussians); err != nil {
		return "", err
	}
	for _, split := range []splat.Split{splat.SplitTrain, splat.SplitTest, splat.SplitVideo} {
		if err := db.PutCameras(ctx, split, cp.Cameras[split]); err != nil {
			return "", err
		}
	}
	return path, nil
}
