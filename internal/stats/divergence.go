package stats

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DefaultSmoothing is the additive constant used by Smooth when none is given.
const DefaultSmoothing = 1e-8

// Policy selects how KLDivergence treats empty bins.
type Policy struct {
	smooth  bool
	epsilon float64
}

// Truncate skips every bin where either density is zero.
var Truncate = Policy{}

// Smooth replaces each density value v by (v+eps)/(1+n*eps) before the
// truncated sum, so no bin is empty. A non-positive eps selects
// DefaultSmoothing.
func Smooth(eps float64) Policy {
	if eps <= 0 {
		eps = DefaultSmoothing
	}
	return Policy{smooth: true, epsilon: eps}
}

func (p Policy) String() string {
	if p.smooth {
		return fmt.Sprintf("smooth(%g)", p.epsilon)
	}
	return "truncate"
}

// ParsePolicy maps "truncate" or "smooth" to a Policy.
func ParsePolicy(name string, eps float64) (Policy, error) {
	switch name {
	case "", "truncate":
		return Truncate, nil
	case "smooth":
		return Smooth(eps), nil
	}
	return Policy{}, fmt.Errorf("stats: unknown divergence policy %q", name)
}

func (p Policy) apply(d []float64) []float64 {
	if !p.smooth {
		return d
	}
	n := float64(len(d))
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = (v + p.epsilon) / (1 + n*p.epsilon)
	}
	return out
}

// KLDivergence returns the base-2 Kullback-Leibler divergence of q from p,
// sum p*log2(p/q)*dx over bins where both p and q are positive.
func KLDivergence(p, q []float64, dx float64, policy Policy) (float64, error) {
	if len(p) != len(q) {
		return 0, fmt.Errorf("%w: %d vs %d bins", ErrLengthMismatch, len(p), len(q))
	}
	p, q = policy.apply(p), policy.apply(q)
	var sum float64
	for i := range p {
		if p[i] <= 0 || q[i] <= 0 {
			continue
		}
		sum += p[i] * math.Log2(p[i]/q[i]) * dx
	}
	return sum, nil
}

// DivergenceMatrix returns the W x W matrix whose (i, j) entry is
// KLDivergence(densities[i], densities[j]). Rows are computed concurrently
// on up to workers goroutines; workers <= 0 means one per row.
func DivergenceMatrix(densities [][]float64, dx float64, policy Policy, workers int) (*mat.Dense, error) {
	n := len(densities)
	if n == 0 {
		return nil, fmt.Errorf("%w: no densities", ErrEmptySample)
	}
	for i, d := range densities {
		if len(d) != len(densities[0]) {
			return nil, fmt.Errorf("%w: density %d has %d bins, expected %d",
				ErrLengthMismatch, i, len(d), len(densities[0]))
		}
	}

	smoothed := make([][]float64, n)
	for i, d := range densities {
		smoothed[i] = policy.apply(d)
	}

	m := mat.NewDense(n, n, nil)
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			row := make([]float64, n)
			for j := 0; j < n; j++ {
				// Already smoothed above.
				v, err := KLDivergence(smoothed[i], smoothed[j], dx, Truncate)
				if err != nil {
					return fmt.Errorf("row %d col %d: %w", i, j, err)
				}
				row[j] = v
			}
			m.SetRow(i, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// Divergence computes the divergence matrix of a windowed density.
func (w *WindowedDensity) Divergence(policy Policy, workers int) (*mat.Dense, error) {
	return DivergenceMatrix(w.Densities, w.BinWidth(), policy, workers)
}

// DivergenceSummary condenses a divergence matrix to a few scalars.
type DivergenceSummary struct {
	Windows int     `json:"windows"`
	Mean    float64 `json:"mean"`
	Max     float64 `json:"max"`
	MaxRow  int     `json:"max_row"`
	MaxCol  int     `json:"max_col"`
}

// Summarize returns the mean and maximum of the off-diagonal entries of m.
func Summarize(m *mat.Dense) DivergenceSummary {
	r, c := m.Dims()
	s := DivergenceSummary{Windows: r, Max: math.Inf(-1)}
	var sum float64
	var n int
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i == j {
				continue
			}
			v := m.At(i, j)
			sum += v
			n++
			if v > s.Max {
				s.Max, s.MaxRow, s.MaxCol = v, i, j
			}
		}
	}
	if n == 0 {
		s.Max = 0
		return s
	}
	s.Mean = sum / float64(n)
	return s
}
