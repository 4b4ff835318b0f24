package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"go.ngs.io/awap/internal/domain"
	"go.ngs.io/awap/internal/stats"
)

const jobTOML = `
data_root = "/data/awap"
region_mask = "/data/masks/states"
regions = ["NSW", "VIC"]
fields = ["FWPrec", "FWDis"]
intervals = ["mth"]
cycles = ["djf", "jja"]
start = 19110101
end = 20101231
policy = "smooth"
workers = 4

[window]
width = 60
stride = 6
bins = 100
lo = 0.0
hi = 500.0

[scale]
FWPrec = 1000.0
`

func writeJob(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	job, err := Load(v, writeJob(t, jobTOML))
	require.NoError(t, err)

	require.Equal(t, "/data/awap", job.DataRoot)
	require.Equal(t, []string{"NSW", "VIC"}, job.Regions)
	require.Equal(t, []string{"FWPrec", "FWDis"}, job.Fields)
	require.Equal(t, []string{"djf", "jja"}, job.Cycles)
	require.Equal(t, 19110101, job.Start)
	require.Equal(t, Window{Width: 60, Stride: 6, Bins: 100, Lo: 0, Hi: 500}, job.Window)
	require.False(t, job.Window.AutoRange())
	require.Equal(t, 4, job.Workers)
	require.Equal(t, "output", job.OutputDir)
	require.Equal(t, "CONAUS", job.RegionName)

	require.Equal(t, 1000.0, job.ScaleFor("FWPrec"))
	require.Equal(t, 1.0, job.ScaleFor("FWDis"))

	p, err := job.DivergencePolicy()
	require.NoError(t, err)
	require.Equal(t, stats.Smooth(stats.DefaultSmoothing), p)
}

func TestLoad_Defaults(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	job, err := Load(v, writeJob(t, "data_root = \"d\"\nregion_mask = \"m\"\nfields = [\"FWPrec\"]\n"))
	require.NoError(t, err)

	def := stats.DefaultWindowConfig()
	require.Equal(t, def.Width, job.Window.Width)
	require.Equal(t, def.Stride, job.Window.Stride)
	require.Equal(t, def.Bins, job.Window.Bins)
	require.True(t, job.Window.AutoRange())
	require.Equal(t, []string{"mth"}, job.Intervals)
	require.Equal(t, "truncate", job.Policy)
	require.Equal(t, "info", job.LogLevel)

	cfg := job.Window.Stats(-1, 7)
	require.Equal(t, -1.0, cfg.Lo)
	require.Equal(t, 7.0, cfg.Hi)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("AWAP_DATA_ROOT", "/env/root")
	t.Setenv("AWAP_WINDOW_WIDTH", "12")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("region_mask", "", "")
	flags.StringSlice("fields", nil, "")
	require.NoError(t, flags.Parse([]string{"--region_mask=/flag/mask", "--fields=FWPrec,FWDis"}))

	v, err := New(flags)
	require.NoError(t, err)
	job, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, "/env/root", job.DataRoot)
	require.Equal(t, 12, job.Window.Width)
	require.Equal(t, "/flag/mask", job.RegionMask)
	require.Equal(t, []string{"FWPrec", "FWDis"}, job.Fields)
}

func TestRead_SkipsValidation(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	job, err := Read(v, writeJob(t, "region_mask = \"m\"\n"))
	require.NoError(t, err)
	require.Equal(t, "m", job.RegionMask)

	_, err = Load(v, "")
	require.ErrorIs(t, err, ErrInvalidJob)
}

func TestJob_Validate(t *testing.T) {
	valid := func() Job {
		return Job{
			DataRoot: "d", RegionMask: "m", Fields: []string{"FWPrec"},
			Intervals: []string{"mth"}, Cycles: []string{""},
			Window: Window{Width: 3, Stride: 1, Bins: 10}, Policy: "truncate",
			Workers: 1, LogLevel: "info",
		}
	}
	j := valid()
	require.NoError(t, j.Validate())

	tests := map[string]func(*Job){
		"no data root":   func(j *Job) { j.DataRoot = "" },
		"no fields":      func(j *Job) { j.Fields = nil },
		"bad interval":   func(j *Job) { j.Intervals = []string{"wk"} },
		"bad cycle":      func(j *Job) { j.Cycles = []string{"wet"} },
		"inverted dates": func(j *Job) { j.Start, j.End = 20000101, 19990101 },
		"zero width":     func(j *Job) { j.Window.Width = 0 },
		"inverted range": func(j *Job) { j.Window.Lo, j.Window.Hi = 5, 1 },
		"bad policy":     func(j *Job) { j.Policy = "clip" },
		"no workers":     func(j *Job) { j.Workers = 0 },
		"bad log level":  func(j *Job) { j.LogLevel = "loud" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			j := valid()
			mutate(&j)
			require.ErrorIs(t, j.Validate(), ErrInvalidJob)
		})
	}
}

func TestDefaultRegionDefs(t *testing.T) {
	defs, err := DefaultRegionDefs()
	require.NoError(t, err)
	require.Equal(t, "State", defs.Type)
	require.Len(t, defs.Regions, 8)
	require.Equal(t, 1, defs.Table()["NSW"])
	require.Equal(t, 8, defs.Table()["QLD"])

	boxes := defs.Boxes()
	require.Equal(t, domain.BoundingBox{MinLon: 141.0, MinLat: -39.15, MaxLon: 149.98, MaxLat: -33.95}, boxes["VIC"])

	ids, err := defs.IDs(nil)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, ids)

	ids, err = defs.IDs([]string{"TAS", "NT"})
	require.NoError(t, err)
	require.Equal(t, []int{4, 7}, ids)

	_, err = defs.IDs([]string{"NZ"})
	require.ErrorIs(t, err, domain.ErrCategoryNotFound)
}

func TestDecodeRegionDefs_Invalid(t *testing.T) {
	tests := map[string]string{
		"duplicate id": "[regions.A]\nid = 1\n[regions.B]\nid = 1\n",
		"short bbox":   "[regions.A]\nid = 1\nbbox = [1.0, 2.0]\n",
		"inverted":     "[regions.A]\nid = 1\nbbox = [5.0, 0.0, 1.0, 1.0]\n",
		"not toml":     "[regions.A\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRegionDefs(strings.NewReader(content))
			require.Error(t, err)
		})
	}

	defs, err := DecodeRegionDefs(strings.NewReader("[regions.A]\nid = 3\n"))
	require.NoError(t, err)
	require.Empty(t, defs.Boxes())
}

func TestLoadRegionDefs_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basins.toml")
	require.NoError(t, os.WriteFile(path, []byte("type = \"Basin\"\n[regions.Murray]\nid = 12\n"), 0o644))
	defs, err := LoadRegionDefs(path)
	require.NoError(t, err)
	require.Equal(t, "Basin", defs.Type)
	require.Equal(t, map[string]int{"Murray": 12}, defs.Table())

	_, err = LoadRegionDefs(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
