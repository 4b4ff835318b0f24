package netcdf

import (
	"math"
	"path/filepath"
	"testing"

	cdf "github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"go.ngs.io/awap/internal/domain"
	"go.ngs.io/awap/internal/stats"
)

// createMaskNC writes a 3x3 FLOAT "states" variable with the given
// latitudes (row order) and a -9999 fill value.
func createMaskNC(t *testing.T, path string, lats []float64, flat []float32) {
	t.Helper()
	f, err := cdf.CreateFile(path, cdf.CLOBBER)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	latDim, err := f.AddDim("lat", uint64(len(lats)))
	require.NoError(t, err)
	lonDim, err := f.AddDim("lon", 3)
	require.NoError(t, err)
	vlat, err := f.AddVar("lat", cdf.DOUBLE, []cdf.Dim{latDim})
	require.NoError(t, err)
	vlon, err := f.AddVar("lon", cdf.DOUBLE, []cdf.Dim{lonDim})
	require.NoError(t, err)
	vmask, err := f.AddVar("states", cdf.FLOAT, []cdf.Dim{latDim, lonDim})
	require.NoError(t, err)
	require.NoError(t, vmask.Attr("_FillValue").WriteFloat32s([]float32{-9999}))
	require.NoError(t, f.EndDef())

	require.NoError(t, vlat.WriteFloat64s(lats))
	require.NoError(t, vlon.WriteFloat64s([]float64{140, 141, 142}))
	require.NoError(t, vmask.WriteFloat32s(flat))
}

func TestReadMask_NorthUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.nc")
	nan := float32(math.NaN())
	createMaskNC(t, path, []float64{-29, -30, -31}, []float32{
		1, 1, 2,
		1, 1, 2,
		3, nan, -9999,
	})

	m, err := ReadMask(path, "states")
	require.NoError(t, err)
	require.False(t, m.Ascending)
	require.Equal(t, 3, m.Header.NRows)
	require.Equal(t, 3, m.Header.NCols)
	require.InDelta(t, 1.0, m.Header.CellSize, 1e-12)
	require.InDelta(t, 139.5, m.Header.XLLCorner, 1e-12)
	require.InDelta(t, -31.5, m.Header.YLLCorner, 1e-12)
	require.Equal(t, -9999.0, m.Header.NoDataValue)
	require.Equal(t, -9999.0, m.Values[2][1], "NaN becomes nodata")

	r, err := m.Region(domain.WithName("states"))
	require.NoError(t, err)
	require.Equal(t, 7, r.NumUnmasked())
	require.Equal(t, domain.Descending, r.Orientation())
	require.Equal(t, []float64{-29, -30, -31}, r.Lats())

	sr, err := domain.NewSubRegion(r, 1, nil)
	require.NoError(t, err)
	require.Equal(t, [4]int{0, 2, 0, 2}, sr.Window.Tuple())
}

func TestReadMask_SouthUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.nc")
	createMaskNC(t, path, []float64{-31, -30, -29}, []float32{
		3, 3, 3,
		1, 1, 2,
		1, 1, 2,
	})

	m, err := ReadMask(path, "states")
	require.NoError(t, err)
	require.True(t, m.Ascending)
	require.InDelta(t, -31.5, m.Header.YLLCorner, 1e-12)

	r, err := m.Region()
	require.NoError(t, err)
	require.Equal(t, domain.Ascending, r.Orientation())
	require.Equal(t, []float64{-31, -30, -29}, r.Lats())

	sr, err := domain.NewSubRegion(r, 1, nil)
	require.NoError(t, err)
	require.Equal(t, [4]int{1, 3, 0, 2}, sr.Window.Tuple())
	require.Equal(t, 4, sr.Region.NumUnmasked())
}

func TestReadMask_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadMask(filepath.Join(dir, "absent.nc"), "states")
	require.Error(t, err)

	path := filepath.Join(dir, "states.nc")
	createMaskNC(t, path, []float64{-29, -30, -31}, make([]float32, 9))
	_, err = ReadMask(path, "rainfall")
	require.Error(t, err)

	uneven := filepath.Join(dir, "uneven.nc")
	createMaskNC(t, uneven, []float64{-29, -30, -32}, make([]float32, 9))
	_, err = ReadMask(uneven, "states")
	require.Error(t, err)
}

func TestTranspose(t *testing.T) {
	in := [][]float64{{1, 2, 3}, {4, 5, 6}}
	require.Equal(t, [][]float64{{1, 4}, {2, 5}, {3, 6}}, transpose(in))
}

func TestWriteDensityReport(t *testing.T) {
	samples := [][]float64{{0, 1, 2, 0, 1, 2}, {2, 2, 1, 0, 0, 1}}
	wd, err := stats.NewWindowedDensity(samples, stats.WindowConfig{Width: 3, Stride: 3, Bins: 3, Lo: 0, Hi: 3})
	require.NoError(t, err)
	kld, err := wd.Divergence(stats.Truncate, 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "NSW_FWPrec_djf.nc")
	require.NoError(t, WriteDensityReport(path, DensityReport{
		Region:     "NSW",
		Field:      "FWPrec",
		Cycle:      "djf",
		Policy:     stats.Truncate.String(),
		Span:       "20000101-20000630",
		Dates:      []int{20000131, 20000229, 20000331, 20000430, 20000531, 20000630},
		Density:    wd,
		Divergence: kld,
	}))

	nc, err := cdf.OpenFile(path, cdf.NOWRITE)
	require.NoError(t, err)
	defer func() { _ = nc.Close() }()

	v, err := nc.Var("edges")
	require.NoError(t, err)
	edges, err := readFloats(v, 4)
	require.NoError(t, err)
	require.Equal(t, wd.Edges, edges)

	v, err = nc.Var("density")
	require.NoError(t, err)
	dens, err := readFloats(v, 6)
	require.NoError(t, err)
	require.Equal(t, append(append([]float64{}, wd.Densities[0]...), wd.Densities[1]...), dens)

	v, err = nc.Var("start_date")
	require.NoError(t, err)
	starts, err := readFloats(v, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{20000131, 20000430}, starts)

	v, err = nc.Var("start_julian")
	require.NoError(t, err)
	julian, err := readFloats(v, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{2451574.5, 2451664.5}, julian)

	span := nc.Attr("date_span")
	n, err := span.Len()
	require.NoError(t, err)
	buf := make([]byte, n)
	require.NoError(t, span.ReadBytes(buf))
	require.Equal(t, "20000101-20000630", string(buf))

	v, err = nc.Var("kld")
	require.NoError(t, err)
	got, err := readFloats(v, 4)
	require.NoError(t, err)
	require.Equal(t, mat.DenseCopyOf(kld).RawMatrix().Data, got)
}

func TestWriteDensityReport_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.ErrorIs(t, WriteDensityReport(filepath.Join(dir, "a.nc"), DensityReport{}), stats.ErrInvalidWindow)

	wd := &stats.WindowedDensity{Edges: []float64{0, 1}, Densities: [][]float64{{1}, {1}}, Offsets: []int{0, 1}}
	err := WriteDensityReport(filepath.Join(dir, "b.nc"), DensityReport{Density: wd, Divergence: mat.NewDense(3, 3, nil)})
	require.ErrorIs(t, err, stats.ErrLengthMismatch)
}
