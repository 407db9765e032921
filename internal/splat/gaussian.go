package splat

import "fmt"

// SHC0 is the zeroth-order real spherical harmonic coefficient.
const SHC0 = 0.28209479177387814

// GaussianModel is the trained point set. All per-point slices share one
// length. Values are stored activated: scales are positive, rotations are
// unit quaternions (w,x,y,z) and opacities lie in [0,1].
type GaussianModel struct {
	SHDegree int

	Means     [][3]float64
	Scales    [][3]float64
	Rotations [][4]float64
	Opacities []float64
	// SHDC holds the degree-0 colour coefficients per point.
	SHDC [][3]float64

	// Motion is optional; when present it has one entry per point.
	Motion []Motion
}

// Motion is the per-point deformation stored with dynamic checkpoints.
type Motion struct {
	Velocity    [3]float64
	ScaleRate   [3]float64
	OpacityRate float64
}

// NumPoints returns the number of Gaussians.
func (g *GaussianModel) NumPoints() int {
	if g == nil {
		return 0
	}
	return len(g.Means)
}

// Validate checks every attribute slice has one entry per point.
func (g *GaussianModel) Validate() error {
	n := len(g.Means)
	check := func(name string, l int) error {
		if l != n {
			return fmt.Errorf("gaussian model: %s has %d entries, want %d", name, l, n)
		}
		return nil
	}
	if err := check("scales", len(g.Scales)); err != nil {
		return err
	}
	if err := check("rotations", len(g.Rotations)); err != nil {
		return err
	}
	if err := check("opacities", len(g.Opacities)); err != nil {
		return err
	}
	if err := check("sh_dc", len(g.SHDC)); err != nil {
		return err
	}
	if g.Motion != nil {
		if err := check("motion", len(g.Motion)); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (g *GaussianModel) Clone() *GaussianModel {
	out := &GaussianModel{
		SHDegree:  g.SHDegree,
		Means:     append([][3]float64(nil), g.Means...),
		Scales:    append([][3]float64(nil), g.Scales...),
		Rotations: append([][4]float64(nil), g.Rotations...),
		Opacities: append([]float64(nil), g.Opacities...),
		SHDC:      append([][3]float64(nil), g.SHDC...),
	}
	if g.Motion != nil {
		out.Motion = append([]Motion(nil), g.Motion...)
	}
	return out
}

// Color evaluates the view-independent colour of point i.
func (g *GaussianModel) Color(i int) Color {
	var c Color
	for k := 0; k < 3; k++ {
		v := SHC0*g.SHDC[i][k] + 0.5
		if v < 0 {
			v = 0
		}
		c[k] = float32(v)
	}
	return c
}

// RGBToSH inverts Color for degree-0 coefficients.
func RGBToSH(c Color) [3]float64 {
	return [3]float64{
		(float64(c[0]) - 0.5) / SHC0,
		(float64(c[1]) - 0.5) / SHC0,
		(float64(c[2]) - 0.5) / SHC0,
	}
}
