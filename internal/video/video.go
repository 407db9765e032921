// Package video encodes rendered frame sequences as MP4 files by piping raw
// RGB frames into an ffmpeg subprocess.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
)

// ErrNoFrames is returned when asked to encode an empty sequence.
var ErrNoFrames = errors.New("video: no frames to encode")

// Encoder writes frames to path as a video at fps frames per second.
type Encoder interface {
	Encode(ctx context.Context, path string, frames []*image.NRGBA, fps int) error
}

// Defaults follow the imageio-ffmpeg writer the render outputs have always
// been produced with.
const (
	DefaultBinary         = "ffmpeg"
	DefaultCodec          = "libx264"
	DefaultPixFmt         = "yuv420p"
	DefaultMacroBlockSize = 16
	// DefaultCRF corresponds to imageio quality 5 on a 0-10 scale.
	DefaultCRF = 25
)

// FFmpeg encodes through the ffmpeg command line tool.
type FFmpeg struct {
	Binary string
	Codec  string
	PixFmt string
	CRF    int
	// MacroBlockSize rounds the output size up to a multiple of this value;
	// 1 disables resizing.
	MacroBlockSize int
	Commands       CommandBuilder
}

// NewFFmpeg returns an encoder with default settings. An empty binary
// means "ffmpeg" from PATH.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}
	return &FFmpeg{
		Binary:         binary,
		Codec:          DefaultCodec,
		PixFmt:         DefaultPixFmt,
		CRF:            DefaultCRF,
		MacroBlockSize: DefaultMacroBlockSize,
		Commands:       RealCommandBuilder{},
	}
}

// Available reports whether the configured binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Binary)
	return err == nil
}

// OutputSize rounds w and h up to the macro block size.
func (f *FFmpeg) OutputSize(w, h int) (int, int) {
	mb := f.MacroBlockSize
	if mb <= 1 {
		return w, h
	}
	return (w + mb - 1) / mb * mb, (h + mb - 1) / mb * mb
}

// Args returns the ffmpeg argument list for frames of size w×h.
func (f *FFmpeg) Args(path string, w, h, fps int) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-vcodec", "rawvideo",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-pix_fmt", "rgb24",
		"-r", fmt.Sprintf("%.02f", float64(fps)),
		"-i", "-",
		"-an",
		"-vcodec", f.Codec,
		"-pix_fmt", f.PixFmt,
		"-crf", fmt.Sprintf("%d", f.CRF),
		"-v", "warning",
	}
	if ow, oh := f.OutputSize(w, h); ow != w || oh != h {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", ow, oh))
	}
	return append(args, path)
}

// Encode implements Encoder.
func (f *FFmpeg) Encode(ctx context.Context, path string, frames []*image.NRGBA, fps int) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if fps <= 0 {
		return fmt.Errorf("video: invalid frame rate %d", fps)
	}
	size := frames[0].Bounds().Size()
	for i, fr := range frames {
		if fr.Bounds().Size() != size {
			return fmt.Errorf("video: frame %d is %v, want %v", i, fr.Bounds().Size(), size)
		}
	}

	commands := f.Commands
	if commands == nil {
		commands = RealCommandBuilder{}
	}
	cmd := commands.BuildCommand(ctx, f.Binary, f.Args(path, size.X, size.Y, fps)...)
	cmd.SetStdin(newFrameReader(frames))
	out, err := cmd.Run()
	if err != nil {
		return fmt.Errorf("ffmpeg failed writing %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// frameReader streams frames as packed rgb24.
type frameReader struct {
	frames []*image.NRGBA
	next   int
	buf    []byte
}

func newFrameReader(frames []*image.NRGBA) *frameReader {
	return &frameReader{frames: frames}
}

func (r *frameReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next >= len(r.frames) {
			return 0, io.EOF
		}
		r.buf = packRGB(r.frames[r.next])
		r.next++
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func packRGB(img *image.NRGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}
