package imgio

import (
	"context"
	"log"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/banshee-data/splat.report/internal/monitoring"
)

// Every index in [0, n) ends up as exactly one file, whatever the pool size
// and whichever indices fail on their first attempt.
func TestWriteAll_PropertyNoGapsAfterTransientFailures(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		workers := rapid.IntRange(1, 8).Draw(rt, "workers")

		failures := make(map[string]int)
		if n > 0 {
			flaky := rapid.SliceOfDistinct(rapid.IntRange(0, n-1), rapid.ID[int]).Draw(rt, "flaky")
			for _, i := range flaky {
				failures[FrameName(i)] = 1
			}
		}

		fsys := newFlakyFS(failures)
		w := NewWriter(fsys, workers)
		sum, err := w.WriteAll(context.Background(), testImages(n), "/out")
		if err != nil {
			rt.Fatalf("WriteAll: %v", err)
		}
		if sum.Written != n {
			rt.Fatalf("Written = %d, want %d", sum.Written, n)
		}
		if len(sum.Retried) != len(failures) {
			rt.Fatalf("Retried = %v, want %d entries", sum.Retried, len(failures))
		}

		files := fsys.Files("/out")
		if len(files) != n {
			rt.Fatalf("got %d files, want %d", len(files), n)
		}
		for i, f := range files {
			if want := filepath.Join("/out", FrameName(i)); f != want {
				rt.Fatalf("file %d = %s, want %s", i, f, want)
			}
		}
	})
}
