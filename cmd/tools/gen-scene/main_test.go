package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splat.report/internal/config"
	"github.com/banshee-data/splat.report/internal/scene"
	"github.com/banshee-data/splat.report/internal/splat"
)

func TestParseArgs(t *testing.T) {
	o, err := parseArgs([]string{"-m", "/out/m", "--points", "10", "--seed", "3"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out/m", "source"), o.sourcePath)
	assert.Equal(t, 10, o.gen.Points)
	assert.Equal(t, uint64(3), o.gen.Seed)

	_, err = parseArgs(nil, io.Discard)
	assert.Error(t, err, "-m is required")

	_, err = parseArgs([]string{"-m", "/x", "--size", "0"}, io.Discard)
	assert.Error(t, err)
}

func TestRun_LoadableScene(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model")
	o, err := parseArgs([]string{
		"-m", modelPath,
		"--points", "12", "--train", "2", "--test", "1", "--video", "3",
		"--size", "8", "--iteration", "500", "--dataset_type", "dynerf",
		"--images", "images_2",
	}, io.Discard)
	require.NoError(t, err)
	require.NoError(t, run(context.Background(), o))

	_, err = os.Stat(filepath.Join(o.sourcePath, "images_2", "train", "00001.png"))
	require.NoError(t, err)

	cfg, err := config.LoadCfgArgs(modelPath)
	require.NoError(t, err)
	assert.Equal(t, o.sourcePath, cfg.GetSourcePath())
	assert.Equal(t, "images_2", cfg.GetImages())

	sc, err := scene.Load(context.Background(), modelPath, cfg.GetSourcePath(), -1, scene.Options{Images: cfg.GetImages()})
	require.NoError(t, err)
	assert.Equal(t, 500, sc.Iteration)
	assert.Equal(t, splat.DatasetDyNeRF, sc.DatasetType)
	assert.Equal(t, 12, sc.Gaussians.NumPoints())
	require.Len(t, sc.TrainCameras(), 2)
	require.NotNil(t, sc.TrainCameras()[0].OriginalImage)
	assert.Equal(t, 8, sc.TrainCameras()[0].OriginalImage.W)
	assert.Len(t, sc.VideoCameras(), 3)
}

func TestRun_UnknownDatasetType(t *testing.T) {
	o, err := parseArgs([]string{"-m", t.TempDir(), "--dataset_type", "bogus", "--points", "1"}, io.Discard)
	require.NoError(t, err)
	assert.Error(t, run(context.Background(), o))
}
