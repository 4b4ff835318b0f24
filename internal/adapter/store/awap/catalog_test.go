package awap

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.ngs.io/awap/internal/domain"
)

func TestParseName(t *testing.T) {
	cal := domain.DefaultCalendar()
	tests := []struct {
		stem string
		want Name
	}{
		{"FWPrec_mth_19110131", Name{Stem: "FWPrec_mth_19110131", Field: "FWPrec", Interval: "mth", Date: 19110131}},
		{"/data/FWDis/FWDis_ann_20001231.hdr", Name{Stem: "FWDis_ann_20001231", Field: "FWDis", Interval: "ann", Date: 20001231}},
		{"pcr_FWPrec_mth_19500228", Name{Stem: "pcr_FWPrec_mth_19500228", Field: "FWPrec", Interval: "mth", Date: 19500228, PercentileRank: true}},
		{"Tmax_avg_mth_19800331.flt", Name{Stem: "Tmax_avg_mth_19800331", Field: "Tmax_avg", Interval: "mth", Date: 19800331}},
	}
	for _, tt := range tests {
		t.Run(tt.stem, func(t *testing.T) {
			got, err := ParseName(tt.stem, cal)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseName_Invalid(t *testing.T) {
	cal := domain.DefaultCalendar()
	for _, stem := range []string{
		"FWPrec_mth",                   // no date
		"FWPrec_19110131",              // no interval
		"mth_19110131",                 // no field
		"FWPrec_mth_19110131_19110228", // two dates
	} {
		_, err := ParseName(stem, cal)
		require.ErrorIs(t, err, ErrBadFileName, stem)
	}
}

func TestName_Dates(t *testing.T) {
	n := Name{Interval: "mth", Date: 19110228}
	require.Equal(t, 1911, n.Year())
	require.Equal(t, 2, n.Month())
	require.Equal(t, 28, n.Day())

	require.Equal(t, 2451544.5, JulianDate(2000, 1, 1))
	require.Equal(t, 2451544.5, Name{Date: 20000101}.JulianDate())
	require.Equal(t, 2415020.5, JulianDate(1900, 1, 1))
}

// monthly builds mth names for consecutive months starting at year/month.
func monthly(field string, year, month, count int) []Name {
	var out []Name
	for i := 0; i < count; i++ {
		y := year + (month-1+i)/12
		m := (month-1+i)%12 + 1
		out = append(out, Name{
			Stem:     fmt.Sprintf("%s_mth_%04d%02d28", field, y, m),
			Field:    field,
			Interval: "mth",
			Date:     y*10000 + m*100 + 28,
		})
	}
	return out
}

func TestCatalog_BasicFilters(t *testing.T) {
	cal := domain.DefaultCalendar()
	names := monthly("rain", 2000, 1, 24)
	names = append(names, Name{Stem: "rain_ann_20001231", Field: "rain", Interval: "ann", Date: 20001231})
	names = append(names, Name{Stem: "pcr_rain_mth_20000128", Field: "rain", Interval: "mth", Date: 20000128, PercentileRank: true})
	names = append(names, monthly("tmax", 2000, 1, 2)...)
	c := NewCatalog("/data", names, cal)

	require.Equal(t, 28, c.Len())
	require.Equal(t, []string{"rain", "tmax"}, c.Fields())
	require.Equal(t, 27, c.ByInterval("mth").Len())
	require.Equal(t, 26, c.ByField("rain").Len())
	require.Equal(t, 1, c.ExtractPercentileRank().Len())
	require.Equal(t, 27, c.ExcludePercentileRank().Len())

	jan, err := c.ByField("rain").ExcludePercentileRank().ByMonth("JAN")
	require.NoError(t, err)
	require.Equal(t, []int{20000128, 20010128}, jan.Dates())

	_, err = c.ByMonth("foo")
	require.Error(t, err)
	_, err = c.ByMonthNumber(13)
	require.Error(t, err)

	r := c.ByField("rain").ByInterval("mth").ExcludePercentileRank().ByDateRange(20000301, 20000528)
	require.Equal(t, []int{20000328, 20000428, 20000528}, r.Dates())
	require.Equal(t, filepath.Join("/data", "rain_mth_20000328"), r.Stems()[0])
}

func TestCatalog_Dates(t *testing.T) {
	c := NewCatalog("/data", monthly("rain", 1911, 3, 5), domain.DefaultCalendar())

	first, err := c.EarliestDate()
	require.NoError(t, err)
	require.Equal(t, 19110301, first)

	last, err := c.LatestDate()
	require.NoError(t, err)
	require.Equal(t, 19110728, last)

	span, err := c.DateSpan()
	require.NoError(t, err)
	require.Equal(t, "19110301-19110728", span)

	empty := NewCatalog("/data", nil, domain.DefaultCalendar())
	_, err = empty.EarliestDate()
	require.Error(t, err)
}

func TestCatalog_SortByDate(t *testing.T) {
	names := monthly("rain", 2000, 1, 3)
	names[0], names[2] = names[2], names[0]
	c := NewCatalog("/data", names, domain.DefaultCalendar())
	require.Equal(t, []int{20000128, 20000228, 20000328}, c.SortByDate().Dates())
	require.Equal(t, 20000328, c.Dates()[0], "receiver is unchanged")
}

func TestCatalog_BySeason(t *testing.T) {
	cal := domain.DefaultCalendar()
	// Jan 2000 .. Dec 2001: Jan and Feb 2000 are a partial DJF, Dec 2001 too.
	c := NewCatalog("/data", monthly("rain", 2000, 1, 24), cal)

	djf, err := c.BySeason("DJF")
	require.NoError(t, err)
	require.Equal(t, []int{20001228, 20010128, 20010228}, djf.Dates())

	jja, err := c.BySeason("jja")
	require.NoError(t, err)
	require.Equal(t, []int{20000628, 20000728, 20000828, 20010628, 20010728, 20010828}, jja.Dates())

	_, err = c.BySeason("wet")
	require.Error(t, err)

	// A gap in the record breaks a run.
	gappy := NewCatalog("/data", append(monthly("rain", 2000, 6, 1), monthly("rain", 2001, 7, 2)...), cal)
	none, err := gappy.BySeason("jja")
	require.NoError(t, err)
	require.Zero(t, none.Len())
}

func TestCatalog_ByCycle(t *testing.T) {
	c := NewCatalog("/data", monthly("rain", 2000, 1, 12), domain.DefaultCalendar())

	same, err := c.ByCycle("")
	require.NoError(t, err)
	require.Equal(t, 12, same.Len())

	m, err := c.ByCycle("mar")
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	s, err := c.ByCycle("son")
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	_, err = c.ByCycle("monsoon")
	require.Error(t, err)
}
