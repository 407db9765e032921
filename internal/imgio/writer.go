// Package imgio persists image sequences as numbered PNG files.
//
// Writes fan out over a bounded worker pool. Every task reports a
// WriteResult instead of failing the batch; once the pool has drained,
// failed indices are written again synchronously and only indices that
// fail twice are reported.
package imgio

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	bildio "github.com/anthonynsimon/bild/imgio"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/splat.report/internal/fsutil"
	"github.com/banshee-data/splat.report/internal/monitoring"
	"github.com/banshee-data/splat.report/internal/splat"
)

// EncodeFunc encodes one image to w.
type EncodeFunc func(w io.Writer, img image.Image) error

// WriteResult is the outcome of writing one image.
type WriteResult struct {
	Index int
	OK    bool
	Err   error
}

// Summary describes a completed batch.
type Summary struct {
	// Written counts files present after the batch.
	Written int
	// Retried lists indices whose first attempt failed, ascending.
	Retried []int
}

// WriteError reports the indices that failed both attempts.
type WriteError struct {
	Failed []WriteResult
}

func (e *WriteError) Error() string {
	idx := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		idx[i] = fmt.Sprintf("%d", r.Index)
	}
	msg := fmt.Sprintf("failed to write %d image(s) after retry: indices [%s]", len(e.Failed), strings.Join(idx, " "))
	if len(e.Failed) > 0 && e.Failed[0].Err != nil {
		msg += ": " + e.Failed[0].Err.Error()
	}
	return msg
}

// Unwrap exposes the per-index errors to errors.Is and errors.As.
func (e *WriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, r := range e.Failed {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Indices returns the failed indices.
func (e *WriteError) Indices() []int {
	out := make([]int, len(e.Failed))
	for i, r := range e.Failed {
		out[i] = r.Index
	}
	return out
}

// Writer writes image sequences to a directory.
type Writer struct {
	FS fsutil.FileSystem
	// Workers bounds concurrent writes. Zero or less means one per CPU.
	Workers int
	// Encode defaults to PNG.
	Encode EncodeFunc
	// Quantize selects how float pixels become bytes.
	Quantize splat.QuantizeMode
}

// NewWriter returns a PNG writer on fsys.
func NewWriter(fsys fsutil.FileSystem, workers int) *Writer {
	return &Writer{
		FS:       fsys,
		Workers:  workers,
		Encode:   EncodeFunc(bildio.PNGEncoder()),
		Quantize: splat.QuantizeRound,
	}
}

// FrameName returns the zero-padded file name for index i.
func FrameName(i int) string {
	return fmt.Sprintf("%05d.png", i)
}

func (w *Writer) workers() int {
	if w.Workers > 0 {
		return w.Workers
	}
	return runtime.NumCPU()
}

func (w *Writer) fs() fsutil.FileSystem {
	if w.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return w.FS
}

// WriteAll writes images[i] to dir/FrameName(i) for every i. The returned
// error is a *WriteError when some indices failed twice, or the context
// error when ctx was cancelled before the batch finished.
func (w *Writer) WriteAll(ctx context.Context, images []*splat.Image, dir string) (*Summary, error) {
	if err := w.fs().MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	summary := &Summary{}
	if len(images) == 0 {
		return summary, nil
	}

	results := make([]WriteResult, len(images))
	var g errgroup.Group
	g.SetLimit(w.workers())
	for i, img := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = WriteResult{Index: i, Err: err}
				return nil
			}
			results[i] = w.write(img, i, dir)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	var failed []WriteResult
	for _, r := range results {
		if r.OK {
			continue
		}
		summary.Retried = append(summary.Retried, r.Index)
		monitoring.Logf("retrying %s: %v", filepath.Join(dir, FrameName(r.Index)), r.Err)
		if retry := w.write(images[r.Index], r.Index, dir); !retry.OK {
			failed = append(failed, retry)
		}
	}
	sort.Ints(summary.Retried)
	summary.Written = len(images) - len(failed)

	if len(failed) > 0 {
		return summary, &WriteError{Failed: failed}
	}
	return summary, nil
}

// write never panics; encoder panics are reported as failures.
func (w *Writer) write(img *splat.Image, index int, dir string) (res WriteResult) {
	res.Index = index
	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Err = fmt.Errorf("panic writing image %d: %v", index, r)
		}
	}()

	if img == nil {
		res.Err = fmt.Errorf("image %d is nil", index)
		return res
	}
	out, err := img.ToNRGBA(w.Quantize)
	if err != nil {
		res.Err = fmt.Errorf("image %d: %w", index, err)
		return res
	}

	path := filepath.Join(dir, FrameName(index))
	f, err := w.fs().Create(path)
	if err != nil {
		res.Err = err
		return res
	}

	encode := w.Encode
	if encode == nil {
		encode = EncodeFunc(bildio.PNGEncoder())
	}
	if err := encode(f, out); err != nil {
		_ = f.Close()
		res.Err = fmt.Errorf("failed to encode %s: %w", path, err)
		return res
	}
	if err := f.Close(); err != nil {
		res.Err = fmt.Errorf("failed to close %s: %w", path, err)
		return res
	}

	res.OK = true
	return res
}
