// Package netcdf reads category masks from NetCDF lat/lon grids and writes
// windowed-density and divergence reports as NetCDF files.
package netcdf

import (
	"fmt"
	"math"

	cdf "github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/awap/internal/domain"
)

// DefaultNoData is used for missing cells when a variable has no fill value.
const DefaultNoData = -999.0

// Mask is a category grid decoded from a NetCDF variable.
type Mask struct {
	Header domain.GridHeader
	Values [][]float64
	// Ascending is set when the file stores row 0 as the southernmost row.
	Ascending bool
}

// Region builds a top-level region from the mask, honouring the stored
// latitude order.
func (m *Mask) Region(opts ...domain.RegionOption) (*domain.Region, error) {
	if m.Ascending {
		opts = append(opts, domain.WithAscendingLatitudes())
	}
	return domain.NewRegion(m.Header, m.Values, opts...)
}

// ReadMask reads the 2-D variable varName and its lat/lon coordinate
// variables from path. Fill values and NaNs become the header's nodata
// value. The axes must be evenly spaced with equal lat and lon steps.
func ReadMask(path, varName string) (*Mask, error) {
	nc, err := cdf.OpenFile(path, cdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	lats, err := readAxis(nc, "lat", "latitude", "y")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lons, err := readAxis(nc, "lon", "longitude", "x")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	v, err := nc.Var(varName)
	if err != nil {
		return nil, fmt.Errorf("%s: variable %q not found: %w", path, varName, err)
	}
	values, err := readLatLonVar(v, len(lats), len(lons))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read %s: %w", path, varName, err)
	}

	nodata := DefaultNoData
	if fv, ok := fillValue(v); ok && !math.IsNaN(fv) {
		nodata = fv
	}
	for i := range values {
		for j := range values[i] {
			if math.IsNaN(values[i][j]) {
				values[i][j] = nodata
			}
		}
	}

	cellSize, err := axisStep(lons)
	if err != nil {
		return nil, fmt.Errorf("%s: longitude %w", path, err)
	}
	if len(lats) > 1 {
		latStep, err := axisStep(lats)
		if err != nil {
			return nil, fmt.Errorf("%s: latitude %w", path, err)
		}
		if len(lons) == 1 {
			cellSize = latStep
		} else if math.Abs(latStep-cellSize) > domain.Epsilon {
			return nil, fmt.Errorf("%s: %w: lat step %v differs from lon step %v",
				path, domain.ErrInvalidHeader, latStep, cellSize)
		}
	}
	if cellSize == 0 {
		return nil, fmt.Errorf("%s: %w: cannot infer cell size from single-cell axes", path, domain.ErrInvalidHeader)
	}

	ascending := len(lats) > 1 && lats[0] < lats[len(lats)-1]
	minLat := math.Min(lats[0], lats[len(lats)-1])
	minLon := math.Min(lons[0], lons[len(lons)-1])

	return &Mask{
		Header: domain.GridHeader{
			NCols:       len(lons),
			NRows:       len(lats),
			XLLCorner:   minLon - 0.5*cellSize,
			YLLCorner:   minLat - 0.5*cellSize,
			CellSize:    cellSize,
			NoDataValue: nodata,
			ByteOrder:   "LSBFIRST",
		},
		Values:    values,
		Ascending: ascending,
	}, nil
}

func readAxis(nc cdf.Dataset, names ...string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		dims, err := v.Dims()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimensions of %s: %w", name, err)
		}
		if len(dims) != 1 {
			return nil, fmt.Errorf("expected 1D %s, got %dD", name, len(dims))
		}
		n, err := dims[0].Len()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("axis %s is empty", name)
		}
		return readFloats(v, int(n))
	}
	return nil, fmt.Errorf("coordinate variable not found (tried: %v)", names)
}

// axisStep returns the absolute spacing of an evenly spaced axis, or 0 for
// a single value.
func axisStep(axis []float64) (float64, error) {
	if len(axis) < 2 {
		return 0, nil
	}
	step := math.Abs(axis[1] - axis[0])
	for i := 2; i < len(axis); i++ {
		if math.Abs(math.Abs(axis[i]-axis[i-1])-step) > domain.Epsilon {
			return 0, fmt.Errorf("axis is not evenly spaced at index %d", i)
		}
	}
	return step, nil
}

// readLatLonVar reads a [lat, lon] or [lon, lat] variable as [lat][lon].
func readLatLonVar(v cdf.Var, nLat, nLon int) ([][]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("expected 2D data, got %dD", len(dims))
	}
	d0, err := dims[0].Len()
	if err != nil {
		return nil, err
	}
	d1, err := dims[1].Len()
	if err != nil {
		return nil, err
	}

	flat, err := readFloats(v, int(d0*d1))
	if err != nil {
		return nil, err
	}
	switch {
	case int(d0) == nLat && int(d1) == nLon:
		return reshape(flat, nLat, nLon), nil
	case int(d0) == nLon && int(d1) == nLat:
		return transpose(reshape(flat, nLon, nLat)), nil
	}
	return nil, fmt.Errorf("%w: data is [%d, %d], expected [%d, %d] or [%d, %d]",
		domain.ErrShapeMismatch, d0, d1, nLat, nLon, nLon, nLat)
}

// readFloats reads n values of any numeric variable type as float64.
func readFloats(v cdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	out := make([]float64, n)
	switch t {
	case cdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case cdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, x := range tmp {
			out[i] = float64(x)
		}
	case cdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, x := range tmp {
			out[i] = float64(x)
		}
	case cdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, x := range tmp {
			out[i] = float64(x)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

// fillValue returns the _FillValue or missing_value attribute if present.
func fillValue(v cdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if n, err := a.Len(); err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
		bufi := make([]int32, 1)
		if err := a.ReadInt32s(bufi); err == nil {
			return float64(bufi[0]), true
		}
	}
	return 0, false
}

func reshape(flat []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols]
	}
	return out
}

func transpose(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	out := make([][]float64, len(data[0]))
	for i := range out {
		out[i] = make([]float64, len(data))
		for j := range data {
			out[i][j] = data[j][i]
		}
	}
	return out
}
