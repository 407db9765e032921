// Package render turns a Gaussian model and a camera view into an image.
//
// Renderer is the seam the driver renders through. Splatter is a small
// reference CPU implementation: each Gaussian is projected to a 2D
// footprint (EWA splatting), footprints are depth sorted and composited
// front to back. It exists so the driver runs end to end without a GPU
// rasterizer; it makes no attempt at speed.
package render

import (
	"context"
	"errors"

	"github.com/banshee-data/splat.report/internal/splat"
)

// Pipeline carries the per-call rendering switches.
type Pipeline struct {
	// ScaleModifier multiplies every Gaussian scale. Zero means 1.
	ScaleModifier float64
	// Debug logs per-view culling statistics.
	Debug bool
}

func (p Pipeline) scaleModifier() float64 {
	if p.ScaleModifier <= 0 {
		return 1
	}
	return p.ScaleModifier
}

// Result is the output of one Render call.
type Result struct {
	// Render is the predicted RGB image.
	Render *splat.Image
	// Depth is the alpha-weighted depth per pixel, row-major H×W.
	Depth []float32
	// Visible counts the Gaussians that survived culling.
	Visible int
}

// Renderer renders one view. Implementations are not required to be safe
// for concurrent use; the driver calls Render from a single goroutine.
type Renderer interface {
	Render(ctx context.Context, view *splat.Camera, model *splat.GaussianModel, pipe Pipeline, bg splat.Color, camType splat.DatasetType) (*Result, error)
}

// ErrNilModel is returned when Render is called without a model.
var ErrNilModel = errors.New("render: nil gaussian model")
