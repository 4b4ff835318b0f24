package stats

import "fmt"

// WindowConfig describes how a time series is cut into sliding windows and
// binned.
type WindowConfig struct {
	Width  int     // Time steps per window.
	Stride int     // Time steps between window starts.
	Bins   int     // Number of equal-width bins.
	Lo     float64 // Lower edge of the first bin.
	Hi     float64 // Upper edge of the last bin.
}

// DefaultWindowConfig returns the monthly-data defaults: 90-step windows
// advanced 3 steps at a time, binned into 200 bins. The range is left
// unset; fill it from SampleRange or from known physical bounds.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{Width: 90, Stride: 3, Bins: 200}
}

// Validate checks the configuration for a series of numTimes steps.
func (c WindowConfig) Validate(numTimes int) error {
	switch {
	case c.Width <= 0:
		return fmt.Errorf("%w: width=%d", ErrInvalidWindow, c.Width)
	case c.Stride <= 0:
		return fmt.Errorf("%w: stride=%d", ErrInvalidWindow, c.Stride)
	case c.Bins <= 0, c.Bins > MaxBins:
		return fmt.Errorf("%w: bins=%d (want 1..%d)", ErrInvalidWindow, c.Bins, MaxBins)
	case !(c.Hi > c.Lo):
		return fmt.Errorf("%w: range [%v, %v]", ErrInvalidWindow, c.Lo, c.Hi)
	case numTimes < c.Width:
		return fmt.Errorf("%w: %d time steps shorter than window width %d", ErrInvalidWindow, numTimes, c.Width)
	}
	return nil
}

// NumWindows returns 1 + (numTimes-Width)/Stride, or 0 when the series is
// shorter than one window.
func (c WindowConfig) NumWindows(numTimes int) int {
	if c.Width <= 0 || c.Stride <= 0 || numTimes < c.Width {
		return 0
	}
	return 1 + (numTimes-c.Width)/c.Stride
}

// WindowedDensity holds one normalised histogram per time window. All
// windows share Edges.
type WindowedDensity struct {
	Edges     []float64   `json:"edges"`
	Densities [][]float64 `json:"densities"`
	Offsets   []int       `json:"offsets"`
	Width     int         `json:"width"`
	Stride    int         `json:"stride"`
}

// NumWindows returns the number of windows.
func (w *WindowedDensity) NumWindows() int { return len(w.Densities) }

// BinWidth returns the common bin width.
func (w *WindowedDensity) BinWidth() float64 {
	if len(w.Edges) < 2 {
		return 0
	}
	return w.Edges[1] - w.Edges[0]
}

// NewWindowedDensity computes a density histogram for every window of
// samples, a (location x time) matrix. Window k pools
// samples[:, k*Stride : k*Stride+Width] across all locations. Values
// outside [Lo, Hi] are dropped in every window alike, and a window with no
// in-range value gets an all-zero density.
func NewWindowedDensity(samples [][]float64, cfg WindowConfig) (*WindowedDensity, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no locations", ErrEmptySample)
	}
	numTimes := len(samples[0])
	for i, row := range samples {
		if len(row) != numTimes {
			return nil, fmt.Errorf("%w: location %d has %d time steps, expected %d",
				ErrInvalidWindow, i, len(row), numTimes)
		}
	}
	if err := cfg.Validate(numTimes); err != nil {
		return nil, err
	}
	edges, err := BinEdges(cfg.Lo, cfg.Hi, cfg.Bins)
	if err != nil {
		return nil, err
	}

	nw := cfg.NumWindows(numTimes)
	out := &WindowedDensity{
		Edges:     edges,
		Densities: make([][]float64, nw),
		Offsets:   make([]int, nw),
		Width:     cfg.Width,
		Stride:    cfg.Stride,
	}
	pooled := make([]float64, 0, len(samples)*cfg.Width)
	for k := 0; k < nw; k++ {
		start := k * cfg.Stride
		pooled = pooled[:0]
		for _, row := range samples {
			pooled = append(pooled, row[start:start+cfg.Width]...)
		}
		counts, n := Counts(pooled, edges)
		densityFromCounts(counts, edges, n)
		out.Densities[k] = counts
		out.Offsets[k] = start
	}
	return out, nil
}
