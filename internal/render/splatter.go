package render

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/splat.report/internal/deform"
	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/splat"
)

const (
	nearPlane       = 0.2
	lowPassFilter   = 0.3
	maxAlpha        = 0.99
	minAlpha        = 1.0 / 255.0
	minTransmission = 1e-4
	// frustumSlack widens the clamp on x/z and y/z used for the Jacobian.
	frustumSlack = 1.3
)

// Splatter is the reference CPU renderer.
type Splatter struct {
	// Field deforms the canonical model to the view time. Nil means static.
	Field deform.Field
}

// NewSplatter returns a renderer using field for dynamic scenes.
func NewSplatter(field deform.Field) *Splatter {
	if field == nil {
		field = deform.None{}
	}
	return &Splatter{Field: field}
}

// footprint is one projected Gaussian.
type footprint struct {
	u, v    float64
	conic   [3]float64 // inverse 2D covariance: a, b, c
	color   splat.Color
	opacity float64
	depth   float64
	x0, y0  int
	x1, y1  int // exclusive
}

// Render implements Renderer.
func (s *Splatter) Render(ctx context.Context, view *splat.Camera, model *splat.GaussianModel, pipe Pipeline, bg splat.Color, camType splat.DatasetType) (*Result, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if err := view.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	field := s.Field
	if field == nil {
		field = deform.None{}
	}
	posed := field.Apply(model, view.Time)

	fps, err := s.project(ctx, view, posed, pipe.scaleModifier())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(fps, func(i, j int) bool { return fps[i].depth < fps[j].depth })

	if pipe.Debug {
		monitoring.Logf("render: view %d (%s) %s: %d/%d gaussians visible",
			view.UID, view.Name, camType, len(fps), posed.NumPoints())
	}

	img, depth := composite(view.Width, view.Height, fps, bg)
	return &Result{Render: img, Depth: depth, Visible: len(fps)}, nil
}

func (s *Splatter) project(ctx context.Context, view *splat.Camera, model *splat.GaussianModel, scaleMod float64) ([]footprint, error) {
	W := mat.NewDense(3, 3, view.R[:])
	T := mat.NewVecDense(3, view.T[:])
	fx, fy := view.Focal()
	limX := frustumSlack * math.Tan(view.FoVx/2)
	limY := frustumSlack * math.Tan(view.FoVy/2)
	cx := float64(view.Width)/2 - 0.5
	cy := float64(view.Height)/2 - 0.5

	out := make([]footprint, 0, model.NumPoints())
	var pc mat.VecDense
	for i := range model.Means {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if model.Opacities[i] < minAlpha {
			continue
		}

		pc.MulVec(W, mat.NewVecDense(3, model.Means[i][:]))
		pc.AddVec(&pc, T)
		x, y, z := pc.AtVec(0), pc.AtVec(1), pc.AtVec(2)
		if z <= nearPlane {
			continue
		}

		cov := covariance3D(model.Scales[i], model.Rotations[i], scaleMod)

		tx := clamp(x/z, -limX, limX) * z
		ty := clamp(y/z, -limY, limY) * z
		J := mat.NewDense(2, 3, []float64{
			fx / z, 0, -fx * tx / (z * z),
			0, fy / z, -fy * ty / (z * z),
		})
		var JW, tmp, cov2 mat.Dense
		JW.Mul(J, W)
		tmp.Mul(&JW, cov)
		cov2.Mul(&tmp, JW.T())

		a := cov2.At(0, 0) + lowPassFilter
		b := cov2.At(0, 1)
		c := cov2.At(1, 1) + lowPassFilter
		det := a*c - b*b
		if det <= 0 {
			continue
		}

		mid := 0.5 * (a + c)
		lambda := mid + math.Sqrt(math.Max(0.1, mid*mid-det))
		radius := math.Ceil(3 * math.Sqrt(lambda))

		u := fx*x/z + cx
		v := fy*y/z + cy
		x0 := max(0, int(math.Floor(u-radius)))
		y0 := max(0, int(math.Floor(v-radius)))
		x1 := min(view.Width, int(math.Ceil(u+radius))+1)
		y1 := min(view.Height, int(math.Ceil(v+radius))+1)
		if x0 >= x1 || y0 >= y1 {
			continue
		}

		out = append(out, footprint{
			u: u, v: v,
			conic:   [3]float64{c / det, -b / det, a / det},
			color:   model.Color(i),
			opacity: model.Opacities[i],
			depth:   z,
			x0:      x0, y0: y0, x1: x1, y1: y1,
		})
	}
	return out, nil
}

// covariance3D builds R S Sᵀ Rᵀ for one Gaussian.
func covariance3D(scale [3]float64, q [4]float64, mod float64) *mat.Dense {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		n = 1
		q = [4]float64{1, 0, 0, 0}
	}
	w, x, y, z := q[0]/n, q[1]/n, q[2]/n, q[3]/n

	R := mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
	S := mat.NewDiagDense(3, []float64{scale[0] * mod, scale[1] * mod, scale[2] * mod})

	var M, cov mat.Dense
	M.Mul(R, S)
	cov.Mul(&M, M.T())
	return &cov
}

func composite(width, height int, fps []footprint, bg splat.Color) (*splat.Image, []float32) {
	n := width * height
	trans := make([]float64, n)
	done := make([]bool, n)
	accum := make([][3]float64, n)
	depth := make([]float32, n)
	for i := range trans {
		trans[i] = 1
	}

	for _, f := range fps {
		for py := f.y0; py < f.y1; py++ {
			for px := f.x0; px < f.x1; px++ {
				idx := py*width + px
				if done[idx] {
					continue
				}
				dx := float64(px) - f.u
				dy := float64(py) - f.v
				power := -0.5*(f.conic[0]*dx*dx+f.conic[2]*dy*dy) - f.conic[1]*dx*dy
				if power > 0 {
					continue
				}
				alpha := math.Min(maxAlpha, f.opacity*math.Exp(power))
				if alpha < minAlpha {
					continue
				}
				next := trans[idx] * (1 - alpha)
				if next < minTransmission {
					done[idx] = true
					continue
				}
				w := alpha * trans[idx]
				for k := 0; k < 3; k++ {
					accum[idx][k] += float64(f.color[k]) * w
				}
				depth[idx] += float32(f.depth * w)
				trans[idx] = next
			}
		}
	}

	img := splat.NewImage(3, height, width)
	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			idx := py*width + px
			for k := 0; k < 3; k++ {
				img.Set(k, py, px, float32(accum[idx][k]+trans[idx]*float64(bg[k])))
			}
		}
	}
	return img, depth
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

var _ Renderer = (*Splatter)(nil)

// String describes the renderer for logs.
func (s *Splatter) String() string {
	return fmt.Sprintf("cpu-splatter(field=%T)", s.Field)
}
