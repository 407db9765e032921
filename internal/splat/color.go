package splat

// Color is a linear RGB triple in [0,1].
type Color [3]float32

var (
	Black = Color{0, 0, 0}
	White = Color{1, 1, 1}
)

// Background returns the render background for the white_background setting.
func Background(white bool) Color {
	if white {
		return White
	}
	return Black
}
