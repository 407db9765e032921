// Package synthetic generates small random dynamic scenes with orbiting
// cameras, for exercising the render pipeline without a trained model.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/splat.report/internal/imgio"
	"github.com/banshee-data/splat.report/internal/render"
	"github.com/banshee-data/splat.report/internal/splat"
)

// Generator describes the scene to build. Equal generators produce equal
// scenes.
type Generator struct {
	Points int
	Train  int
	Test   int
	Video  int
	// Size is the width and height of every view in pixels.
	Size int
	Seed uint64
	// Images is the image directory inside the dataset, "images" if empty.
	// Camera image paths are relative to it.
	Images string
	// Radius of the camera orbit around the origin.
	Radius float64
}

// Validate checks the generator parameters.
func (g Generator) Validate() error {
	if g.Points < 0 || g.Train < 0 || g.Test < 0 || g.Video < 0 {
		return fmt.Errorf("counts must be non-negative")
	}
	if g.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", g.Size)
	}
	return nil
}

func (g Generator) radius() float64 {
	if g.Radius > 0 {
		return g.Radius
	}
	return 4
}

// ImageDir returns the image directory inside the dataset.
func (g Generator) ImageDir() string {
	if g.Images == "" {
		return "images"
	}
	return g.Images
}

// Model samples Points Gaussians clustered around the origin, each with a
// small linear velocity.
func (g Generator) Model() *splat.GaussianModel {
	src := rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15)
	pos := distuv.Normal{Mu: 0, Sigma: 0.6, Src: src}
	vel := distuv.Normal{Mu: 0, Sigma: 0.3, Src: src}
	rot := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	scale := distuv.Uniform{Min: 0.05, Max: 0.2, Src: src}
	opacity := distuv.Uniform{Min: 0.5, Max: 1, Src: src}
	unit := distuv.Uniform{Min: 0, Max: 1, Src: src}

	n := g.Points
	m := &splat.GaussianModel{
		SHDegree:  0,
		Means:     make([][3]float64, n),
		Scales:    make([][3]float64, n),
		Rotations: make([][4]float64, n),
		Opacities: make([]float64, n),
		SHDC:      make([][3]float64, n),
		Motion:    make([]splat.Motion, n),
	}
	for i := 0; i < n; i++ {
		m.Means[i] = [3]float64{pos.Rand(), pos.Rand(), pos.Rand()}
		m.Scales[i] = [3]float64{scale.Rand(), scale.Rand(), scale.Rand()}

		q := [4]float64{rot.Rand(), rot.Rand(), rot.Rand(), rot.Rand()}
		norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		if norm == 0 {
			q, norm = [4]float64{1, 0, 0, 0}, 1
		}
		for k := range q {
			q[k] /= norm
		}
		m.Rotations[i] = q

		m.Opacities[i] = opacity.Rand()
		m.SHDC[i] = splat.RGBToSH(splat.Color{float32(unit.Rand()), float32(unit.Rand()), float32(unit.Rand())})
		m.Motion[i] = splat.Motion{Velocity: [3]float64{vel.Rand(), vel.Rand(), vel.Rand()}}
	}
	return m
}

// Cameras places each split on a circular orbit looking at the origin.
// Test views sit halfway between train views. Train and test views point
// at their ground-truth image under the images directory.
func (g Generator) Cameras() map[splat.Split][]*splat.Camera {
	return map[splat.Split][]*splat.Camera{
		splat.SplitTrain: g.orbit(splat.SplitTrain, g.Train, 0, true),
		splat.SplitTest:  g.orbit(splat.SplitTest, g.Test, 0.5, true),
		splat.SplitVideo: g.orbit(splat.SplitVideo, g.Video, 0, false),
	}
}

func (g Generator) orbit(split splat.Split, n int, phase float64, withImage bool) []*splat.Camera {
	cams := make([]*splat.Camera, n)
	fov := splat.FocalToFoV(1.2*float64(g.Size), g.Size)
	r := g.radius()
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * (float64(i) + phase) / float64(n)
		eye := [3]float64{r * math.Sin(theta), -0.5, -r * math.Cos(theta)}
		R, T := splat.LookAt(eye, [3]float64{}, [3]float64{0, -1, 0})

		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		c := &splat.Camera{
			UID:    i,
			Name:   fmt.Sprintf("%s_%03d", split, i),
			Width:  g.Size,
			Height: g.Size,
			FoVx:   fov,
			FoVy:   fov,
			R:      R,
			T:      T,
			Time:   t,
		}
		if withImage {
			c.ImagePath = filepath.Join(string(split), imgio.FrameName(i))
		}
		cams[i] = c
	}
	return cams
}

// Render produces the image of model seen from every view, in order.
func Render(ctx context.Context, r render.Renderer, model *splat.GaussianModel, views []*splat.Camera, bg splat.Color) ([]*splat.Image, error) {
	out := make([]*splat.Image, len(views))
	for i, v := range views {
		res, err := r.Render(ctx, v, model, render.Pipeline{}, bg, splat.DatasetColmap)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", v.Name, err)
		}
		out[i] = res.Render
	}
	return out, nil
}
