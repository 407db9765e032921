package splat

import (
	"fmt"
	"image"
	"image/color"
)

// Image is a channel-major (C×H×W) float32 tensor with values nominally in
// [0,1]. Supported channel counts are 1 (grey), 3 (RGB) and 4 (RGBA).
type Image struct {
	C, H, W int
	Pix     []float32
}

// NewImage allocates a zeroed image.
func NewImage(c, h, w int) *Image {
	return &Image{C: c, H: h, W: w, Pix: make([]float32, c*h*w)}
}

// NewFilledImage allocates an image whose channels are set to fill.
// len(fill) must equal c.
func NewFilledImage(h, w int, fill ...float32) *Image {
	im := NewImage(len(fill), h, w)
	plane := h * w
	for c, v := range fill {
		p := im.Pix[c*plane : (c+1)*plane]
		for i := range p {
			p[i] = v
		}
	}
	return im
}

func (im *Image) offset(c, y, x int) int {
	return (c*im.H+y)*im.W + x
}

// At returns the value at channel c, row y, column x.
func (im *Image) At(c, y, x int) float32 {
	return im.Pix[im.offset(c, y, x)]
}

// Set stores v at channel c, row y, column x.
func (im *Image) Set(c, y, x int, v float32) {
	im.Pix[im.offset(c, y, x)] = v
}

// Channels returns a copy holding channels [lo, hi).
func (im *Image) Channels(lo, hi int) (*Image, error) {
	if lo < 0 || hi > im.C || lo >= hi {
		return nil, fmt.Errorf("channel range [%d:%d) out of bounds for %d channels", lo, hi, im.C)
	}
	plane := im.H * im.W
	out := NewImage(hi-lo, im.H, im.W)
	copy(out.Pix, im.Pix[lo*plane:hi*plane])
	return out, nil
}

// Validate checks the tensor shape.
func (im *Image) Validate() error {
	if im == nil {
		return fmt.Errorf("nil image")
	}
	if im.H <= 0 || im.W <= 0 {
		return fmt.Errorf("invalid image size %dx%d", im.W, im.H)
	}
	switch im.C {
	case 1, 3, 4:
	default:
		return fmt.Errorf("unsupported channel count %d", im.C)
	}
	if len(im.Pix) != im.C*im.H*im.W {
		return fmt.Errorf("pixel buffer has %d values, want %d", len(im.Pix), im.C*im.H*im.W)
	}
	return nil
}

// QuantizeMode selects how float values become bytes.
type QuantizeMode int

const (
	// QuantizeRound scales by 255, adds 0.5 and clamps, the way image
	// sequences are saved to PNG.
	QuantizeRound QuantizeMode = iota
	// QuantizeTruncate clamps to [0,1] then truncates 255*v, the way
	// video frames are prepared.
	QuantizeTruncate
)

func quantize(v float32, mode QuantizeMode) uint8 {
	switch mode {
	case QuantizeTruncate:
		if v != v || v < 0 { // NaN or negative
			return 0
		}
		if v > 1 {
			v = 1
		}
		return uint8(255 * v)
	default:
		f := v*255 + 0.5
		if f != f || f < 0 {
			return 0
		}
		if f > 255 {
			return 255
		}
		return uint8(f)
	}
}

// ToNRGBA converts the tensor to an 8-bit image. Grey images are
// replicated across RGB; images without alpha are fully opaque.
func (im *Image) ToNRGBA(mode QuantizeMode) (*image.NRGBA, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, im.W, im.H))
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			var c color.NRGBA
			switch im.C {
			case 1:
				g := quantize(im.At(0, y, x), mode)
				c = color.NRGBA{R: g, G: g, B: g, A: 255}
			case 3:
				c = color.NRGBA{
					R: quantize(im.At(0, y, x), mode),
					G: quantize(im.At(1, y, x), mode),
					B: quantize(im.At(2, y, x), mode),
					A: 255,
				}
			case 4:
				c = color.NRGBA{
					R: quantize(im.At(0, y, x), mode),
					G: quantize(im.At(1, y, x), mode),
					B: quantize(im.At(2, y, x), mode),
					A: quantize(im.At(3, y, x), mode),
				}
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

// FromImage converts a decoded image into a 3- or 4-channel tensor. The
// alpha channel is kept only when keepAlpha is set.
func FromImage(src image.Image, keepAlpha bool) *Image {
	b := src.Bounds()
	c := 3
	if keepAlpha {
		c = 4
	}
	im := NewImage(c, b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			px := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			im.Set(0, y, x, float32(px.R)/255)
			im.Set(1, y, x, float32(px.G)/255)
			im.Set(2, y, x, float32(px.B)/255)
			if keepAlpha {
				im.Set(3, y, x, float32(px.A)/255)
			}
		}
	}
	return im
}
