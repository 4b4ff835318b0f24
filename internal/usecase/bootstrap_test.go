package usecase

import (
	"os"
	"path/filepath"
	"testing"

	cdf "github.com/fhs/go-netcdf/netcdf"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"go.ngs.io/awap/internal/adapter/store/awap"
	"go.ngs.io/awap/internal/domain"
)

func writeMask(t *testing.T, stem string) {
	t.Helper()
	g := domain.NewMaskedGrid([][]float64{{1, 1, 2}, {1, 1, 2}, {3, 3, 3}}, nodata)
	require.NoError(t, awap.WriteField(stem, header, g))
}

func TestOpenRegionService_LookupTable(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "quads")
	writeMask(t, stem)
	require.NoError(t, awap.WriteLookupTable(stem+awap.LUTExt, map[string]int{"NW": 1, "NE": 2, "S": 3}))

	log, hook := logtest.NewNullLogger()
	svc, err := OpenRegionService(MaskSource{Path: stem + awap.HeaderExt, Name: "QUADS"}, log)
	require.NoError(t, err)
	require.Equal(t, "QUADS", svc.Parent().Name())
	require.Equal(t, []string{"NW", "NE", "S"}, svc.Names())
	require.NotEmpty(t, hook.AllEntries(), "region summary is logged")

	sr, err := svc.SubRegion("S")
	require.NoError(t, err)
	require.Equal(t, [4]int{2, 3, 0, 3}, sr.Window.Tuple())
}

func TestOpenRegionService_Definitions(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "quads")
	writeMask(t, stem)
	defs := filepath.Join(dir, "quads.toml")
	require.NoError(t, os.WriteFile(defs, []byte(`type = "Quadrant"
[regions.North]
id = 1
bbox = [140.0, -30.0, 142.0, -29.0]
[regions.South]
id = 3
`), 0o644))

	log, _ := logtest.NewNullLogger()
	svc, err := OpenRegionService(MaskSource{Path: stem, Name: "QUADS", Defs: defs}, log)
	require.NoError(t, err)
	require.Equal(t, []string{"North", "South"}, svc.Names())

	north, err := svc.SubRegion("North")
	require.NoError(t, err)
	require.Equal(t, "Quadrant", north.Region.Type())
	require.Equal(t, [4]int{0, 2, 0, 3}, north.Window.Tuple())

	south, err := svc.SubRegion("South")
	require.NoError(t, err)
	require.Equal(t, [4]int{2, 3, 0, 3}, south.Window.Tuple())
}

func TestOpenRegionService_NetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.nc")
	f, err := cdf.CreateFile(path, cdf.CLOBBER)
	require.NoError(t, err)
	latDim, err := f.AddDim("lat", 2)
	require.NoError(t, err)
	lonDim, err := f.AddDim("lon", 2)
	require.NoError(t, err)
	vlat, err := f.AddVar("lat", cdf.DOUBLE, []cdf.Dim{latDim})
	require.NoError(t, err)
	vlon, err := f.AddVar("lon", cdf.DOUBLE, []cdf.Dim{lonDim})
	require.NoError(t, err)
	vids, err := f.AddVar("state", cdf.DOUBLE, []cdf.Dim{latDim, lonDim})
	require.NoError(t, err)
	require.NoError(t, f.EndDef())
	require.NoError(t, vlat.WriteFloat64s([]float64{-30, -35}))
	require.NoError(t, vlon.WriteFloat64s([]float64{145, 150}))
	require.NoError(t, vids.WriteFloat64s([]float64{1, 1, 3, 3}))
	require.NoError(t, f.Close())

	log, hook := logtest.NewNullLogger()
	svc, err := OpenRegionService(MaskSource{Path: path, Variable: "state", Name: "SE"}, log)
	require.NoError(t, err)
	require.Len(t, svc.Names(), 8)

	subs, err := svc.SubRegions(nil)
	require.NoError(t, err)
	var present []string
	for _, sr := range subs {
		require.Equal(t, "State", sr.Region.Type())
		if sr.Region.NumUnmasked() > 0 {
			present = append(present, sr.Region.Name())
		}
	}
	require.Equal(t, []string{"NSW", "VIC"}, present)
	require.NotEmpty(t, hook.AllEntries())
}

func TestOpenRegionService_Errors(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	_, err := OpenRegionService(MaskSource{Path: filepath.Join(t.TempDir(), "absent")}, log)
	require.Error(t, err)

	_, err = OpenRegionService(MaskSource{Path: "x", Defs: filepath.Join(t.TempDir(), "absent.toml")}, log)
	require.Error(t, err)
}
