package splat

import (
	"fmt"
	"math"
)

// Camera is one posed view of the scene.
type Camera struct {
	UID    int
	Name   string
	Width  int
	Height int
	// FoVx and FoVy are full field-of-view angles in radians.
	FoVx float64
	FoVy float64
	// R is the row-major world-to-camera rotation; T the translation, so
	// p_cam = R*p_world + T.
	R [9]float64
	T [3]float64
	// Time is the normalised capture time in [0,1] for dynamic scenes.
	Time float64

	ImagePath     string
	OriginalImage *Image
}

// Validate checks the intrinsics are usable for projection.
func (c *Camera) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("camera %d: invalid size %dx%d", c.UID, c.Width, c.Height)
	}
	if c.FoVx <= 0 || c.FoVx >= math.Pi || c.FoVy <= 0 || c.FoVy >= math.Pi {
		return fmt.Errorf("camera %d: invalid field of view (%g, %g)", c.UID, c.FoVx, c.FoVy)
	}
	return nil
}

// Focal returns the pixel focal lengths implied by the field of view.
func (c *Camera) Focal() (fx, fy float64) {
	fx = float64(c.Width) / (2 * math.Tan(c.FoVx/2))
	fy = float64(c.Height) / (2 * math.Tan(c.FoVy/2))
	return fx, fy
}

// FocalToFoV converts a focal length in pixels to a field-of-view angle.
func FocalToFoV(focal float64, pixels int) float64 {
	return 2 * math.Atan(float64(pixels)/(2*focal))
}

// LookAt builds a world-to-camera pose for a camera at eye looking towards
// target, with +y of the image pointing down (OpenCV convention).
func LookAt(eye, target, up [3]float64) (R [9]float64, T [3]float64) {
	fwd := normalize(sub(target, eye))
	right := normalize(cross(fwd, up))
	down := cross(fwd, right)
	rows := [3][3]float64{right, down, fwd}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i*3+j] = rows[i][j]
		}
		T[i] = -dot(rows[i], eye)
	}
	return R, T
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func dot(a, b [3]float64) float64    { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(a [3]float64) [3]float64 {
	n := math.Sqrt(dot(a, a))
	if n == 0 {
		return a
	}
	return [3]float64{a[0] / n, a[1] / n, a[2] / n}
}
