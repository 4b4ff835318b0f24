package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellCenterAxes_Lengths(t *testing.T) {
	headers := []GridHeader{
		{NRows: 1, NCols: 1, CellSize: 0.05},
		{NRows: 3, NCols: 3, CellSize: 1},
		{NRows: 691, NCols: 886, CellSize: 0.05, XLLCorner: 112, YLLCorner: -44.5},
	}
	for _, h := range headers {
		require.Len(t, CellCenterLatitudes(h, true), h.NRows)
		require.Len(t, CellCenterLatitudes(h, false), h.NRows)
		require.Len(t, CellCenterLongitudes(h), h.NCols)
	}
}

func TestCellCenterLatitudes_Orientation(t *testing.T) {
	h := GridHeader{NRows: 3, NCols: 2, CellSize: 1, XLLCorner: 10, YLLCorner: -20}

	desc := CellCenterLatitudes(h, true)
	require.InDeltaSlice(t, []float64{-17.5, -18.5, -19.5}, desc, 1e-12)

	asc := CellCenterLatitudes(h, false)
	require.InDeltaSlice(t, []float64{-19.5, -18.5, -17.5}, asc, 1e-12)

	require.InDeltaSlice(t, []float64{10.5, 11.5}, CellCenterLongitudes(h), 1e-12)
}

func TestCellAreaWeights(t *testing.T) {
	h := GridHeader{NRows: 2, NCols: 3, CellSize: 1, YLLCorner: 0}
	w := CellAreaWeights(h, 1)
	require.Len(t, w, 2)

	d := math.Pi / 180
	// Row 0 is the northern row (lat 1.5) in the descending convention.
	require.InDelta(t, math.Cos(1.5*d)*d*d, w[0][0], 1e-15)
	require.InDelta(t, math.Cos(0.5*d)*d*d, w[1][2], 1e-15)
	for j := range w[0] {
		require.Equal(t, w[0][0], w[0][j], "weights must be uniform along a row")
	}

	scaled := CellAreaWeights(h, 2)
	require.InDelta(t, 4*w[1][1], scaled[1][1], 1e-15)
}

func TestMaskedAreaWeights(t *testing.T) {
	h := GridHeader{NRows: 2, NCols: 2, CellSize: 1, NoDataValue: -999}
	mask := NewMaskedGrid([][]float64{{1, -999}, {-999, 2}}, -999)

	w, err := MaskedAreaWeights(h, 1, mask)
	require.NoError(t, err)
	require.Zero(t, w[0][1])
	require.Zero(t, w[1][0])
	require.Positive(t, w[0][0])

	_, err = MaskedAreaWeights(GridHeader{NRows: 3, NCols: 2, CellSize: 1}, 1, mask)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestGridHeader_Validate(t *testing.T) {
	tests := []struct {
		name    string
		h       GridHeader
		wantErr bool
	}{
		{"valid", GridHeader{NRows: 2, NCols: 2, CellSize: 0.05}, false},
		{"zero rows", GridHeader{NRows: 0, NCols: 2, CellSize: 0.05}, true},
		{"negative cols", GridHeader{NRows: 2, NCols: -1, CellSize: 0.05}, true},
		{"zero cellsize", GridHeader{NRows: 2, NCols: 2, CellSize: 0}, true},
		{"NaN cellsize", GridHeader{NRows: 2, NCols: 2, CellSize: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.h.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidHeader)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewMaskedGrid(t *testing.T) {
	g := NewMaskedGrid([][]float64{{-999, 1, math.NaN()}, {0, -999.0000001, 5}}, -999)
	require.Equal(t, [][]bool{{true, false, true}, {false, true, false}}, g.Masked)
	require.Equal(t, 3, g.Count())
	require.Equal(t, 2, g.Rows())
	require.Equal(t, 3, g.Cols())

	c := g.Clone()
	c.Values[0][1] = 42
	require.Equal(t, 1.0, g.Values[0][1], "clone must not share storage")
}
