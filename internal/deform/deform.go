// Package deform applies the time-dependent deformation stored with a
// dynamic checkpoint to the canonical Gaussian set.
package deform

import (
	"math"

	"github.com/banshee-data/splat.report/internal/splat"
)

// Field deforms a canonical model to time t. Implementations must not
// modify the input model.
type Field interface {
	Apply(model *splat.GaussianModel, t float64) *splat.GaussianModel
}

// None leaves the model static. It is used when the deformation is
// disabled with --no_hexplane.
type None struct{}

// Apply returns model unchanged.
func (None) Apply(model *splat.GaussianModel, _ float64) *splat.GaussianModel {
	return model
}

// Linear moves every point along its stored per-point motion:
// position by velocity*t, scale by exp(scale_rate*t) and opacity by
// opacity_rate*t. Each component can be switched off the same way the
// hidden-parameter group switches off deformation heads.
type Linear struct {
	NoDx bool
	NoDs bool
	NoDo bool
	// Bounds clamps deformed positions to [-Bounds, Bounds] when positive.
	Bounds float64
}

// Apply returns a deformed copy. Models without motion are returned as is.
func (l Linear) Apply(model *splat.GaussianModel, t float64) *splat.GaussianModel {
	if model == nil || len(model.Motion) == 0 || t == 0 {
		return model
	}
	if l.NoDx && l.NoDs && l.NoDo {
		return model
	}

	out := model.Clone()
	for i, m := range model.Motion {
		if !l.NoDx {
			for k := 0; k < 3; k++ {
				p := out.Means[i][k] + m.Velocity[k]*t
				if l.Bounds > 0 {
					p = math.Max(-l.Bounds, math.Min(l.Bounds, p))
				}
				out.Means[i][k] = p
			}
		}
		if !l.NoDs {
			for k := 0; k < 3; k++ {
				out.Scales[i][k] *= math.Exp(m.ScaleRate[k] * t)
			}
		}
		if !l.NoDo {
			out.Opacities[i] = math.Max(0, math.Min(1, out.Opacities[i]+m.OpacityRate*t))
		}
	}
	return out
}
