// Package report computes render timing diagnostics and writes them as
// plots.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInsufficientFrames is returned when FPS cannot be measured: the first
// view is warm-up, so at least two views and a positive elapsed time are
// required.
var ErrInsufficientFrames = errors.New("fps needs at least two views and a positive elapsed time")

// FPS returns (n-1)/elapsed, the throughput over a view sequence whose
// first render is treated as warm-up.
func FPS(n int, elapsed time.Duration) (float64, error) {
	if n < 2 || elapsed <= 0 {
		return 0, fmt.Errorf("%w (views=%d, elapsed=%s)", ErrInsufficientFrames, n, elapsed)
	}
	return float64(n-1) / elapsed.Seconds(), nil
}

// FrameStats summarises per-view render durations.
type FrameStats struct {
	Count int
	Total time.Duration
	Mean  time.Duration
	P50   time.Duration
	Max   time.Duration
}

// Summarise computes FrameStats. An empty slice yields the zero value.
func Summarise(times []time.Duration) FrameStats {
	if len(times) == 0 {
		return FrameStats{}
	}
	sorted := append([]time.Duration(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return FrameStats{
		Count: len(sorted),
		Total: total,
		Mean:  total / time.Duration(len(sorted)),
		P50:   sorted[(len(sorted)-1)/2],
		Max:   sorted[len(sorted)-1],
	}
}

func (s FrameStats) String() string {
	return fmt.Sprintf("views=%d total=%s mean=%s p50=%s max=%s", s.Count, s.Total, s.Mean, s.P50, s.Max)
}
