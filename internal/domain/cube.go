package domain

import "fmt"

// DataCube is a time-ordered stack of 2-D slices of a single field.
// Slices[t] has the header's shape; Dates[t] is its YYYYMMDD stamp.
type DataCube struct {
	Field  string
	Header GridHeader
	Dates  []int
	Slices []MaskedGrid
	Span   string // Period covered by the source files, "YYYYMMDD-YYYYMMDD".
}

// NewDataCube validates that every slice matches the header and that
// dates and slices line up.
func NewDataCube(field string, h GridHeader, dates []int, slices []MaskedGrid) (*DataCube, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("cube %s: %w", field, err)
	}
	if len(dates) != len(slices) {
		return nil, fmt.Errorf("cube %s: %w: %d dates for %d slices", field, ErrShapeMismatch, len(dates), len(slices))
	}
	for t, s := range slices {
		if err := checkShape(s.Values, h.NRows, h.NCols); err != nil {
			return nil, fmt.Errorf("cube %s: slice %d (%d): %w", field, t, dates[t], err)
		}
		if len(s.Masked) != h.NRows {
			return nil, fmt.Errorf("cube %s: slice %d (%d): %w: mask rows", field, t, dates[t], ErrShapeMismatch)
		}
	}
	return &DataCube{Field: field, Header: h, Dates: dates, Slices: slices}, nil
}

// NTimes returns the number of time slices.
func (c *DataCube) NTimes() int { return len(c.Slices) }

// StartDate returns the first date stamp, or 0 for an empty cube.
func (c *DataCube) StartDate() int {
	if len(c.Dates) == 0 {
		return 0
	}
	return c.Dates[0]
}

// EndDate returns the last date stamp, or 0 for an empty cube.
func (c *DataCube) EndDate() int {
	if len(c.Dates) == 0 {
		return 0
	}
	return c.Dates[len(c.Dates)-1]
}

// Scaled returns a new cube with every unmasked value multiplied by factor.
// The receiver is not modified.
func (c *DataCube) Scaled(factor float64) *DataCube {
	out := &DataCube{
		Field:  c.Field,
		Header: c.Header,
		Dates:  append([]int(nil), c.Dates...),
		Slices: make([]MaskedGrid, len(c.Slices)),
		Span:   c.Span,
	}
	for t, s := range c.Slices {
		cp := s.Clone()
		for i := range cp.Values {
			for j := range cp.Values[i] {
				if !cp.Masked[i][j] {
					cp.Values[i][j] *= factor
				}
			}
		}
		out.Slices[t] = cp
	}
	return out
}

// LocationSamples returns a (location x time) matrix of values for every
// cell that is unmasked in all slices. When window is non-nil only cells
// inside it are considered, and regionMask (shaped like the window) can
// further restrict cells to a sub-region. Locations are ordered row-major.
func (c *DataCube) LocationSamples(window *IndexWindow, regionMask *MaskedGrid) ([][]float64, error) {
	w := IndexWindow{RowStart: 0, RowStop: c.Header.NRows, ColStart: 0, ColStop: c.Header.NCols}
	if window != nil {
		w = *window
	}
	if w.RowStart < 0 || w.ColStart < 0 || w.RowStop > c.Header.NRows || w.ColStop > c.Header.NCols || w.Rows() <= 0 || w.Cols() <= 0 {
		return nil, fmt.Errorf("cube %s: %w: window %v outside %dx%d grid",
			c.Field, ErrShapeMismatch, w.Tuple(), c.Header.NRows, c.Header.NCols)
	}
	if regionMask != nil && (regionMask.Rows() != w.Rows() || regionMask.Cols() != w.Cols()) {
		return nil, fmt.Errorf("cube %s: %w: region mask is %dx%d, window is %dx%d",
			c.Field, ErrShapeMismatch, regionMask.Rows(), regionMask.Cols(), w.Rows(), w.Cols())
	}

	var samples [][]float64
	for i := w.RowStart; i < w.RowStop; i++ {
		for j := w.ColStart; j < w.ColStop; j++ {
			if regionMask != nil && regionMask.Masked[i-w.RowStart][j-w.ColStart] {
				continue
			}
			series := make([]float64, 0, len(c.Slices))
			for _, s := range c.Slices {
				if s.Masked[i][j] {
					break
				}
				series = append(series, s.Values[i][j])
			}
			if len(series) == len(c.Slices) {
				samples = append(samples, series)
			}
		}
	}
	return samples, nil
}
