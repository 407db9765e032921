package splat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatasetType(t *testing.T) {
	dt, err := ParseDatasetType("")
	require.NoError(t, err)
	assert.Equal(t, DatasetColmap, dt)

	dt, err = ParseDatasetType("PanopticSports")
	require.NoError(t, err)
	assert.Equal(t, DatasetPanopticSports, dt)

	_, err = ParseDatasetType("lidar")
	assert.Error(t, err)
}

func TestGroundTruth(t *testing.T) {
	view := &Camera{Name: "cam0", OriginalImage: NewFilledImage(2, 2, 1, 0.5, 0.25, 0.1)}

	gt, err := GroundTruth(view, DatasetColmap)
	require.NoError(t, err)
	assert.Equal(t, 3, gt.C, "alpha must be dropped")

	gt, err = GroundTruth(view, DatasetPanopticSports)
	require.NoError(t, err)
	assert.Same(t, view.OriginalImage, gt)

	_, err = GroundTruth(&Camera{Name: "empty"}, DatasetBlender)
	assert.ErrorContains(t, err, "empty")

	_, err = GroundTruth(nil, DatasetBlender)
	assert.Error(t, err)
}

func TestGaussianModel_ValidateAndColor(t *testing.T) {
	g := &GaussianModel{
		Means:     [][3]float64{{0, 0, 0}},
		Scales:    [][3]float64{{1, 1, 1}},
		Rotations: [][4]float64{{1, 0, 0, 0}},
		Opacities: []float64{0.5},
		SHDC:      [][3]float64{RGBToSH(Color{1, 0, 0.5})},
	}
	require.NoError(t, g.Validate())
	assert.Equal(t, 1, g.NumPoints())

	c := g.Color(0)
	assert.InDelta(t, 1, c[0], 1e-6)
	assert.InDelta(t, 0, c[1], 1e-6)
	assert.InDelta(t, 0.5, c[2], 1e-6)

	g.Motion = []Motion{{}, {}}
	assert.Error(t, g.Validate())

	var nilModel *GaussianModel
	assert.Equal(t, 0, nilModel.NumPoints())
}

func TestGaussianModel_CloneIsDeep(t *testing.T) {
	g := &GaussianModel{
		Means:     [][3]float64{{1, 2, 3}},
		Scales:    [][3]float64{{1, 1, 1}},
		Rotations: [][4]float64{{1, 0, 0, 0}},
		Opacities: []float64{1},
		SHDC:      [][3]float64{{0, 0, 0}},
		Motion:    []Motion{{Velocity: [3]float64{1, 0, 0}}},
	}
	c := g.Clone()
	c.Means[0][0] = 99
	c.Motion[0].Velocity[0] = 5
	assert.Equal(t, 1.0, g.Means[0][0])
	assert.Equal(t, 1.0, g.Motion[0].Velocity[0])
}
