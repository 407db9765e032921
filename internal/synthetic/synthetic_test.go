package synthetic

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splat.report/internal/deform"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/splat"
)

func TestModel_DeterministicAndValid(t *testing.T) {
	g := Generator{Points: 50, Size: 8, Seed: 7}

	a := g.Model()
	b := g.Model()
	require.NoError(t, a.Validate())
	assert.Equal(t, 50, a.NumPoints())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different models (-a +b):\n%s", diff)
	}

	c := Generator{Points: 50, Size: 8, Seed: 8}.Model()
	assert.NotEqual(t, a.Means[0], c.Means[0])

	for i, q := range a.Rotations {
		n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		assert.InDelta(t, 1.0, n, 1e-9, "rotation %d not normalised", i)
	}
	for i, o := range a.Opacities {
		assert.True(t, o >= 0.5 && o <= 1, "opacity %d out of range: %f", i, o)
	}
}

func TestCameras_Layout(t *testing.T) {
	g := Generator{Train: 4, Test: 2, Video: 5, Size: 16}
	cams := g.Cameras()

	require.Len(t, cams[splat.SplitTrain], 4)
	require.Len(t, cams[splat.SplitTest], 2)
	require.Len(t, cams[splat.SplitVideo], 5)

	train := cams[splat.SplitTrain]
	assert.Equal(t, filepath.Join("train", "00003.png"), train[3].ImagePath)
	assert.Equal(t, "images", g.ImageDir())
	assert.Equal(t, "images_4", Generator{Images: "images_4"}.ImageDir())
	assert.Empty(t, cams[splat.SplitVideo][0].ImagePath)

	video := cams[splat.SplitVideo]
	assert.Equal(t, 0.0, video[0].Time)
	assert.Equal(t, 1.0, video[4].Time)
	for _, c := range video {
		require.NoError(t, c.Validate())
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, Generator{Size: 0}.Validate())
	assert.Error(t, Generator{Size: 4, Points: -1}.Validate())
	assert.NoError(t, Generator{Size: 4}.Validate())
}

func TestRender_ProducesOneImagePerView(t *testing.T) {
	g := Generator{Points: 20, Video: 3, Size: 6, Seed: 1}
	model := g.Model()
	views := g.Cameras()[splat.SplitVideo]

	imgs, err := Render(context.Background(), render.NewSplatter(deform.Linear{}), model, views, splat.Black)
	require.NoError(t, err)
	require.Len(t, imgs, 3)
	for _, im := range imgs {
		assert.Equal(t, 3, im.C)
		assert.Equal(t, 6, im.W)
		assert.Equal(t, 6, im.H)
	}
}
