package scenedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splat.report/internal/splat"
)

func newTestDB(t *testing.T) *SceneDB {
	t.Helper()
	db, err := Create(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)

	_, ok, err := db.Meta(MetaDatasetType)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.PutMeta(MetaDatasetType, "Blender"))
	require.NoError(t, db.PutMeta(MetaDatasetType, "dynerf"))

	v, ok, err := db.Meta(MetaDatasetType)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dynerf", v)
}

func TestGaussians_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	want := &splat.GaussianModel{
		SHDegree:  3,
		Means:     [][3]float64{{1, 2, 3}, {-1, 0, 0.5}},
		Scales:    [][3]float64{{0.1, 0.2, 0.3}, {1, 1, 1}},
		Rotations: [][4]float64{{1, 0, 0, 0}, {0.5, 0.5, 0.5, 0.5}},
		Opacities: []float64{0.9, 0.1},
		SHDC:      [][3]float64{{0.1, 0.2, 0.3}, {-1, -2, -3}},
		Motion: []splat.Motion{
			{Velocity: [3]float64{1, 0, 0}},
			{ScaleRate: [3]float64{0, 0.5, 0}, OpacityRate: -0.2},
		},
	}
	require.NoError(t, db.PutGaussians(ctx, want))

	got, err := db.Gaussians(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gaussians mismatch (-want +got):\n%s", diff)
	}

	// Replacing drops the old set and the motion flag.
	static := &splat.GaussianModel{
		Means:     [][3]float64{{0, 0, 0}},
		Scales:    [][3]float64{{1, 1, 1}},
		Rotations: [][4]float64{{1, 0, 0, 0}},
		Opacities: []float64{1},
		SHDC:      [][3]float64{{0, 0, 0}},
	}
	require.NoError(t, db.PutGaussians(ctx, static))
	got, err = db.Gaussians(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumPoints())
	assert.Nil(t, got.Motion)
	assert.Equal(t, 0, got.SHDegree)
}

func TestPutGaussians_RejectsInconsistentModel(t *testing.T) {
	db := newTestDB(t)
	bad := &splat.GaussianModel{Means: [][3]float64{{0, 0, 0}}}
	assert.Error(t, db.PutGaussians(context.Background(), bad))
}

func TestCameras_RoundTripPerSplit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	R, T := splat.LookAt([3]float64{0, 0, -4}, [3]float64{}, [3]float64{0, 1, 0})
	train := []*splat.Camera{
		{UID: 7, Name: "train_0", Width: 4, Height: 3, FoVx: 1, FoVy: 0.8, R: R, T: T, Time: 0.25, ImagePath: "images/train_0.png"},
		{UID: 8, Name: "train_1", Width: 4, Height: 3, FoVx: 1, FoVy: 0.8, R: R, T: T, Time: 0.5},
	}
	test := []*splat.Camera{{UID: 9, Name: "test_0", Width: 4, Height: 3, FoVx: 1, FoVy: 0.8, R: R, T: T}}

	require.NoError(t, db.PutCameras(ctx, splat.SplitTrain, train))
	require.NoError(t, db.PutCameras(ctx, splat.SplitTest, test))

	got, err := db.Cameras(ctx, splat.SplitTrain)
	require.NoError(t, err)
	if diff := cmp.Diff(train, got); diff != "" {
		t.Errorf("train cameras mismatch (-want +got):\n%s", diff)
	}

	got, err = db.Cameras(ctx, splat.SplitTest)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = db.Cameras(ctx, splat.SplitVideo)
	require.NoError(t, err)
	assert.Empty(t, got)
}
