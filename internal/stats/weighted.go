package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"go.ngs.io/awap/internal/domain"
)

// EarthRadiusKm is the mean Earth radius used for cell areas.
const EarthRadiusKm = 6371.0

// AreaWeightedMean returns the weighted mean of the unmasked cells of g.
// weights must have the shape of g.
func AreaWeightedMean(g domain.MaskedGrid, weights [][]float64) (float64, error) {
	if len(weights) != g.Rows() {
		return 0, fmt.Errorf("%w: %d weight rows for %d grid rows", domain.ErrShapeMismatch, len(weights), g.Rows())
	}
	var x, w []float64
	for i, row := range g.Values {
		if len(weights[i]) != len(row) {
			return 0, fmt.Errorf("%w: weight row %d has %d values, expected %d",
				domain.ErrShapeMismatch, i, len(weights[i]), len(row))
		}
		for j, v := range row {
			if g.Masked[i][j] || weights[i][j] == 0 {
				continue
			}
			x = append(x, v)
			w = append(w, weights[i][j])
		}
	}
	if len(x) == 0 {
		return 0, ErrEmptySample
	}
	return stat.Mean(x, w), nil
}

// AreaWeightedSeries returns the area-weighted mean of every slice of cube.
// When window is non-nil the slices are first cropped to it, and regionMask
// (shaped like the window) restricts the cells further.
func AreaWeightedSeries(cube *domain.DataCube, window *domain.IndexWindow, regionMask *domain.MaskedGrid) ([]float64, error) {
	h := cube.Header
	layout := h
	if window != nil {
		var err error
		if layout, err = window.Header(h); err != nil {
			return nil, fmt.Errorf("failed to window area weights: %w", err)
		}
	}
	weights := domain.CellAreaWeights(layout, EarthRadiusKm)
	if regionMask != nil {
		var err error
		if weights, err = domain.MaskedAreaWeights(layout, EarthRadiusKm, *regionMask); err != nil {
			return nil, fmt.Errorf("region mask: %w", err)
		}
	}

	series := make([]float64, cube.NTimes())
	for t, s := range cube.Slices {
		if window != nil {
			var err error
			s, err = window.CropMasked(s, h.NRows, h.NCols)
			if err != nil {
				return nil, fmt.Errorf("slice %d: %w", cube.Dates[t], err)
			}
		}
		m, err := AreaWeightedMean(s, weights)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", cube.Dates[t], err)
		}
		series[t] = m
	}
	return series, nil
}
