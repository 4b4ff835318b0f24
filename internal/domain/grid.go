// Package domain holds the grid geometry, region model and sub-region
// extraction logic for AWAP/BIOS2 lat/lon rasters.
package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Epsilon is the roundoff tolerance used for latitude, longitude and
// missing-value comparisons.
const Epsilon = 1e-6

// GridHeader is a decoded AWAP/BIOS2 header record.
type GridHeader struct {
	NCols       int     // Number of longitudes.
	NRows       int     // Number of latitudes.
	XLLCorner   float64 // Longitude of the lower-left edge of the domain.
	YLLCorner   float64 // Latitude of the lower-left edge of the domain.
	CellSize    float64 // Cell size in degrees (square cells).
	NoDataValue float64 // Missing-value sentinel.
	ByteOrder   string  // E.g., "LSBFIRST".

	// FileStem is the path of the header file minus its extension, if known.
	FileStem string
}

// Validate checks that the header describes a non-empty grid.
func (h GridHeader) Validate() error {
	if h.NRows <= 0 || h.NCols <= 0 {
		return fmt.Errorf("%w: nrows=%d ncols=%d", ErrInvalidHeader, h.NRows, h.NCols)
	}
	if !(h.CellSize > 0) {
		return fmt.Errorf("%w: cellsize=%v", ErrInvalidHeader, h.CellSize)
	}
	return nil
}

// Size returns the number of cells in the grid.
func (h GridHeader) Size() int {
	return h.NRows * h.NCols
}

// CellCenterLatitudes returns the latitudes of the grid cell centers.
// With reverse set the values are descending, matching north-up raster rows.
func CellCenterLatitudes(h GridHeader, reverse bool) []float64 {
	lats := linspace(h.YLLCorner+0.5*h.CellSize, h.CellSize, h.NRows)
	if reverse {
		for i, j := 0, len(lats)-1; i < j; i, j = i+1, j-1 {
			lats[i], lats[j] = lats[j], lats[i]
		}
	}
	return lats
}

// CellCenterLongitudes returns the ascending longitudes of the grid cell centers.
func CellCenterLongitudes(h GridHeader) []float64 {
	return linspace(h.XLLCorner+0.5*h.CellSize, h.CellSize, h.NCols)
}

func linspace(first, step float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = first
		return out
	}
	return floats.Span(out, first, first+float64(n-1)*step)
}

// CellAreaWeights returns per-cell spherical area weights,
// cos(lat) * dLat * dLon * radius², with rows in descending latitude order.
// The weights are unmasked and unnormalised; callers apply a data mask
// before any weighted reduction.
func CellAreaWeights(h GridHeader, radius float64) [][]float64 {
	lats := CellCenterLatitudes(h, true)
	d := h.CellSize * math.Pi / 180
	weights := make([][]float64, h.NRows)
	for i, lat := range lats {
		w := math.Cos(lat*math.Pi/180) * d * d * radius * radius
		row := make([]float64, h.NCols)
		for j := range row {
			row[j] = w
		}
		weights[i] = row
	}
	return weights
}

// MaskedAreaWeights returns area weights with masked cells set to zero.
func MaskedAreaWeights(h GridHeader, radius float64, mask MaskedGrid) ([][]float64, error) {
	if mask.Rows() != h.NRows || mask.Cols() != h.NCols {
		return nil, fmt.Errorf("%w: mask is %dx%d, header is %dx%d",
			ErrShapeMismatch, mask.Rows(), mask.Cols(), h.NRows, h.NCols)
	}
	weights := CellAreaWeights(h, radius)
	for i := range weights {
		for j := range weights[i] {
			if mask.Masked[i][j] {
				weights[i][j] = 0
			}
		}
	}
	return weights, nil
}

// MaskedGrid is a 2-D array of cell values with a parallel missing-value mask.
// Values[i][j] belongs to row i (latitude) and column j (longitude).
type MaskedGrid struct {
	Values [][]float64
	Masked [][]bool
}

// NewMaskedGrid masks every value equal to nodata (within Epsilon) or NaN.
func NewMaskedGrid(values [][]float64, nodata float64) MaskedGrid {
	tol := Epsilon * math.Max(1, math.Abs(nodata))
	masked := make([][]bool, len(values))
	for i, row := range values {
		masked[i] = make([]bool, len(row))
		for j, v := range row {
			masked[i][j] = math.IsNaN(v) || math.Abs(v-nodata) <= tol
		}
	}
	return MaskedGrid{Values: values, Masked: masked}
}

// Rows returns the number of rows.
func (g MaskedGrid) Rows() int { return len(g.Values) }

// Cols returns the number of columns, or 0 for an empty grid.
func (g MaskedGrid) Cols() int {
	if len(g.Values) == 0 {
		return 0
	}
	return len(g.Values[0])
}

// Count returns the number of unmasked cells.
func (g MaskedGrid) Count() int {
	n := 0
	for _, row := range g.Masked {
		for _, m := range row {
			if !m {
				n++
			}
		}
	}
	return n
}

// Valid reports whether cell (i, j) holds data.
func (g MaskedGrid) Valid(i, j int) bool {
	return !g.Masked[i][j]
}

// Clone returns a deep copy of the grid.
func (g MaskedGrid) Clone() MaskedGrid {
	out := MaskedGrid{
		Values: make([][]float64, len(g.Values)),
		Masked: make([][]bool, len(g.Masked)),
	}
	for i := range g.Values {
		out.Values[i] = append([]float64(nil), g.Values[i]...)
	}
	for i := range g.Masked {
		out.Masked[i] = append([]bool(nil), g.Masked[i]...)
	}
	return out
}

// checkShape validates that values is exactly nrows x ncols.
func checkShape(values [][]float64, nrows, ncols int) error {
	if len(values) != nrows {
		return fmt.Errorf("%w: got %d rows, expected %d", ErrShapeMismatch, len(values), nrows)
	}
	for i, row := range values {
		if len(row) != ncols {
			return fmt.Errorf("%w: row %d has %d values, expected %d", ErrShapeMismatch, i, len(row), ncols)
		}
	}
	return nil
}
