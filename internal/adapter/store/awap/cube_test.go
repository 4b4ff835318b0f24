package awap

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.ngs.io/awap/internal/domain"
)

// writeSeries writes count monthly 2x2 grids of field under root/field,
// the k-th grid filled with value k.
func writeSeries(t *testing.T, root, field string, year, month, count int) {
	t.Helper()
	h := domain.GridHeader{NCols: 2, NRows: 2, CellSize: 1, XLLCorner: 140, YLLCorner: -30, NoDataValue: nodata, ByteOrder: LSBFirst}
	for k := 0; k < count; k++ {
		y := year + (month-1+k)/12
		m := (month-1+k)%12 + 1
		stem := filepath.Join(root, field, fmt.Sprintf("%s_mth_%04d%02d28", field, y, m))
		v := float64(k)
		g := domain.NewMaskedGrid([][]float64{{v, v}, {v, nodata}}, nodata)
		require.NoError(t, WriteField(stem, h, g))
	}
}

func TestLoadCube(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, root, "FWPrec", 2000, 1, 12)
	cal := domain.DefaultCalendar()

	cube, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec"}, cal)
	require.NoError(t, err)
	require.Equal(t, "FWPrec", cube.Field)
	require.Equal(t, 12, cube.NTimes())
	require.Equal(t, 20000128, cube.StartDate())
	require.Equal(t, 20001228, cube.EndDate())
	require.Equal(t, 2, cube.Header.NRows)
	require.Equal(t, 5.0, cube.Slices[5].Values[0][0])
	require.True(t, cube.Slices[0].Masked[1][1])
	require.Equal(t, "20000101-20001228", cube.Span)

	ranged, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec", Start: 20000301, End: 20000630}, cal)
	require.NoError(t, err)
	require.Equal(t, []int{20000328, 20000428, 20000528, 20000628}, ranged.Dates)

	winter, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec", Cycle: "JJA"}, cal)
	require.NoError(t, err)
	require.Equal(t, []int{20000628, 20000728, 20000828}, winter.Dates)
	require.Equal(t, "20000601-20000828", winter.Span)

	samples, err := cube.LocationSamples(nil, nil)
	require.NoError(t, err)
	require.Len(t, samples, 3)
}

func TestLoadCube_Errors(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, root, "FWPrec", 2000, 1, 3)
	cal := domain.DefaultCalendar()

	_, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec", Interval: "ann"}, cal)
	require.Error(t, err)

	_, err = LoadCube(CubeQuery{Root: root, Field: "FWPrec", Cycle: "monsoon"}, cal)
	require.Error(t, err)

	_, err = LoadCube(CubeQuery{Root: root, Field: "FWPrec", Cycle: "djf"}, cal)
	require.Error(t, err)

	// A grid of a different size in the same directory.
	odd := domain.GridHeader{NCols: 3, NRows: 1, CellSize: 1, NoDataValue: nodata}
	stem := filepath.Join(root, "FWPrec", "FWPrec_mth_20000428")
	require.NoError(t, WriteField(stem, odd, domain.NewMaskedGrid([][]float64{{1, 2, 3}}, nodata)))
	_, err = LoadCube(CubeQuery{Root: root, Field: "FWPrec"}, cal)
	require.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestLoadCube_PercentileRank(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, root, "FWPrec", 2000, 1, 3)
	h := domain.GridHeader{NCols: 2, NRows: 2, CellSize: 1, XLLCorner: 140, YLLCorner: -30, NoDataValue: nodata, ByteOrder: LSBFirst}
	g := domain.NewMaskedGrid([][]float64{{50, 60}, {70, nodata}}, nodata)
	require.NoError(t, WriteField(filepath.Join(root, "FWPrec", "pcr_FWPrec_mth_20000228"), h, g))
	cal := domain.DefaultCalendar()

	values, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec"}, cal)
	require.NoError(t, err)
	require.Equal(t, 3, values.NTimes())

	ranks, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec", PercentileRank: true}, cal)
	require.NoError(t, err)
	require.Equal(t, []int{20000228}, ranks.Dates)
	require.Equal(t, 60.0, ranks.Slices[0].Values[0][1])
}

func TestLoadCube_ForeignField(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, root, "FWPrec", 2000, 1, 2)
	h := domain.GridHeader{NCols: 2, NRows: 2, CellSize: 1, NoDataValue: nodata, ByteOrder: LSBFirst}
	g := domain.NewMaskedGrid([][]float64{{1, 1}, {1, 1}}, nodata)
	require.NoError(t, WriteField(filepath.Join(root, "FWPrec", "WRel1_mth_20000128"), h, g))

	cube, err := LoadCube(CubeQuery{Root: root, Field: "FWPrec"}, domain.DefaultCalendar())
	require.NoError(t, err)
	require.Equal(t, 2, cube.NTimes(), "files of other fields are skipped")

	require.NoError(t, os.Rename(filepath.Join(root, "FWPrec"), filepath.Join(root, "FWSoil")))
	_, err = LoadCube(CubeQuery{Root: root, Field: "FWSoil"}, domain.DefaultCalendar())
	require.ErrorContains(t, err, "fields present: FWPrec, WRel1")
}

func TestLoadCube_FieldOutsideRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "data")
	writeSeries(t, root, "FWPrec", 2000, 1, 2)
	writeSeries(t, filepath.Join(base, "private"), "secret", 2000, 1, 2)
	cal := domain.DefaultCalendar()

	for _, field := range []string{
		"",
		".",
		"..",
		"../private/secret",
		"FWPrec/../../private/secret",
		"..\\private",
		filepath.Join(base, "private", "secret"),
	} {
		_, err := LoadCube(CubeQuery{Root: root, Field: field}, cal)
		require.ErrorIs(t, err, ErrBadFieldName, "field %q", field)
	}
	require.NoError(t, CheckField("FWPrec"))
	require.NoError(t, CheckField("WRel1"))
}
