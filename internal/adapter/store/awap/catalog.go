package awap

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.ngs.io/awap/internal/domain"
)

// ErrBadFileName is returned for names that do not follow the AWAP/BIOS2
// naming convention.
var ErrBadFileName = errors.New("awap: file name does not follow naming convention")

var (
	chunkSep  = regexp.MustCompile(`\W+|_`)
	dateStamp = regexp.MustCompile(`\d{8}`)
)

// Name is a parsed AWAP/BIOS2 file stem such as "FWPrec_mth_19110131".
type Name struct {
	Stem           string `json:"stem"`
	Field          string `json:"field"`
	Interval       string `json:"interval"`
	Date           int    `json:"date"`
	PercentileRank bool   `json:"percentile_rank"`
}

// ParseName splits a file stem into field, sampling interval, date and
// percentile-rank tag. Any directory and .hdr/.flt extension are ignored.
func ParseName(stem string, cal domain.Calendar) (Name, error) {
	base := filepath.Base(stem)
	for _, ext := range []string{HeaderExt, FloatExt} {
		base = strings.TrimSuffix(base, ext)
	}

	dates := dateStamp.FindAllString(base, -1)
	if len(dates) != 1 {
		return Name{}, fmt.Errorf("%w: %s: expected one YYYYMMDD date, found %d", ErrBadFileName, base, len(dates))
	}
	date, _ := strconv.Atoi(dates[0])

	n := Name{Stem: base, Date: date}
	var fieldChunks []string
	for _, chunk := range chunkSep.Split(base, -1) {
		switch {
		case chunk == "":
		case cal.IsSamplingInterval(chunk):
			if n.Interval == "" {
				n.Interval = chunk
			}
		case cal.IsPercentileRankTag(chunk):
			n.PercentileRank = true
		case len(chunk) == 8 && isDigits(chunk):
		default:
			fieldChunks = append(fieldChunks, chunk)
		}
	}
	if n.Interval == "" {
		return Name{}, fmt.Errorf("%w: %s: no sampling interval tag (want one of %v)",
			ErrBadFileName, base, cal.SamplingIntervals())
	}
	if len(fieldChunks) == 0 {
		return Name{}, fmt.Errorf("%w: %s: no field name", ErrBadFileName, base)
	}
	n.Field = strings.Join(fieldChunks, "_")
	return n, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Year returns the YYYY part of the date stamp.
func (n Name) Year() int { return n.Date / 10000 }

// Month returns the MM part of the date stamp.
func (n Name) Month() int { return n.Date / 100 % 100 }

// Day returns the DD part of the date stamp.
func (n Name) Day() int { return n.Date % 100 }

// JulianDate returns the Julian date at 00:00 on the stamped day.
func (n Name) JulianDate() float64 {
	return JulianDate(n.Year(), n.Month(), n.Day())
}

// JulianDate converts a proleptic Gregorian calendar date to a Julian date
// at midnight.
func JulianDate(year, month, day int) float64 {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3
	jdn := day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
	return float64(jdn) - 0.5
}

// Catalog is an immutable, filterable list of parsed file names. Filters
// return new catalogs.
type Catalog struct {
	dir   string
	names []Name
	cal   domain.Calendar
}

// NewCatalog wraps already parsed names.
func NewCatalog(dir string, names []Name, cal domain.Calendar) *Catalog {
	return &Catalog{dir: dir, names: append([]Name(nil), names...), cal: cal}
}

// Scan catalogs every .hdr file in dir.
func Scan(dir string, cal domain.Calendar) (*Catalog, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+HeaderExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]Name, 0, len(matches))
	for _, m := range matches {
		n, err := ParseName(m, cal)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return &Catalog{dir: dir, names: names, cal: cal}, nil
}

func (c *Catalog) derive(names []Name) *Catalog {
	return &Catalog{dir: c.dir, names: names, cal: c.cal}
}

func (c *Catalog) filter(keep func(Name) bool) *Catalog {
	var out []Name
	for _, n := range c.names {
		if keep(n) {
			out = append(out, n)
		}
	}
	return c.derive(out)
}

// Dir returns the directory the catalog was scanned from.
func (c *Catalog) Dir() string { return c.dir }

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.names) }

// Names returns a copy of the entries.
func (c *Catalog) Names() []Name { return append([]Name(nil), c.names...) }

// Stems returns the full paths of the entries without extensions.
func (c *Catalog) Stems() []string {
	out := make([]string, len(c.names))
	for i, n := range c.names {
		out[i] = filepath.Join(c.dir, n.Stem)
	}
	return out
}

// Dates returns the date stamps in catalog order.
func (c *Catalog) Dates() []int {
	out := make([]int, len(c.names))
	for i, n := range c.names {
		out[i] = n.Date
	}
	return out
}

// Fields returns the distinct field names, sorted.
func (c *Catalog) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range c.names {
		if !seen[n.Field] {
			seen[n.Field] = true
			out = append(out, n.Field)
		}
	}
	sort.Strings(out)
	return out
}

// SortByDate returns the entries in ascending date order.
func (c *Catalog) SortByDate() *Catalog {
	out := c.Names()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return c.derive(out)
}

// ByInterval keeps entries with the given sampling interval.
func (c *Catalog) ByInterval(interval string) *Catalog {
	return c.filter(func(n Name) bool { return n.Interval == interval })
}

// ByField keeps entries whose field name equals field.
func (c *Catalog) ByField(field string) *Catalog {
	return c.filter(func(n Name) bool { return n.Field == field })
}

// ByDateRange keeps entries with start <= date <= end, sorted by date.
func (c *Catalog) ByDateRange(start, end int) *Catalog {
	return c.filter(func(n Name) bool { return n.Date >= start && n.Date <= end }).SortByDate()
}

// ByMonthNumber keeps entries stamped in month 1..12.
func (c *Catalog) ByMonthNumber(month int) (*Catalog, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("awap: month number %d out of range", month)
	}
	return c.filter(func(n Name) bool { return n.Month() == month }), nil
}

// ByMonth keeps entries stamped in the named month (e.g. "Jan").
func (c *Catalog) ByMonth(abbr string) (*Catalog, error) {
	num := c.cal.MonthNumber(abbr)
	if num == 0 {
		return nil, fmt.Errorf("awap: month name %q not recognised", abbr)
	}
	return c.ByMonthNumber(num)
}

// BySeason keeps the months of a season (e.g. "DJF"), sorted by date, and
// trims partial seasons at either end so the result starts at the first
// complete run of consecutive season months and ends at the last one.
func (c *Catalog) BySeason(season string) (*Catalog, error) {
	months := c.cal.SeasonMonths(season)
	if months == nil {
		return nil, fmt.Errorf("awap: season %q not recognised", season)
	}
	nums := make(map[int]bool, len(months))
	for _, m := range months {
		nums[c.cal.MonthNumber(m)] = true
	}
	inSeason := c.filter(func(n Name) bool { return nums[n.Month()] }).SortByDate().names

	first, last := -1, -1
	run := len(months)
	for i := 0; i+run <= len(inSeason); i++ {
		if c.isSeasonRun(inSeason[i:i+run], months) {
			if first < 0 {
				first = i
			}
			last = i + run
		}
	}
	if first < 0 {
		return c.derive(nil), nil
	}
	return c.derive(append([]Name(nil), inSeason[first:last]...)), nil
}

// isSeasonRun reports whether names are the season's months, in order, in
// consecutive calendar months.
func (c *Catalog) isSeasonRun(names []Name, months []string) bool {
	for k, n := range names {
		if c.cal.MonthAbbr(n.Month()) != months[k] {
			return false
		}
		if k > 0 {
			prev := names[k-1]
			if n.Year()*12+n.Month() != prev.Year()*12+prev.Month()+1 {
				return false
			}
		}
	}
	return true
}

// ByCycle applies a month or season filter; an empty cycle is a no-op.
func (c *Catalog) ByCycle(cycle string) (*Catalog, error) {
	switch {
	case cycle == "":
		return c, nil
	case c.cal.IsMonth(cycle):
		return c.ByMonth(cycle)
	case c.cal.IsSeason(cycle):
		return c.BySeason(cycle)
	}
	return nil, fmt.Errorf("awap: cycle filter %q is neither a month nor a season", cycle)
}

// ExcludePercentileRank drops percentile-rank files.
func (c *Catalog) ExcludePercentileRank() *Catalog {
	return c.filter(func(n Name) bool { return !n.PercentileRank })
}

// ExtractPercentileRank keeps only percentile-rank files.
func (c *Catalog) ExtractPercentileRank() *Catalog {
	return c.filter(func(n Name) bool { return n.PercentileRank })
}

// EarliestDate returns the first day of the month of the earliest entry.
func (c *Catalog) EarliestDate() (int, error) {
	if len(c.names) == 0 {
		return 0, fmt.Errorf("awap: empty catalog for %s", c.dir)
	}
	first := c.names[0].Date
	for _, n := range c.names[1:] {
		first = min(first, n.Date)
	}
	return first - first%100 + 1, nil
}

// LatestDate returns the latest date stamp.
func (c *Catalog) LatestDate() (int, error) {
	if len(c.names) == 0 {
		return 0, fmt.Errorf("awap: empty catalog for %s", c.dir)
	}
	last := c.names[0].Date
	for _, n := range c.names[1:] {
		last = max(last, n.Date)
	}
	return last, nil
}

// DateSpan returns "YYYYMMDD-YYYYMMDD" from EarliestDate to LatestDate.
func (c *Catalog) DateSpan() (string, error) {
	first, err := c.EarliestDate()
	if err != nil {
		return "", err
	}
	last, err := c.LatestDate()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d-%08d", first, last), nil
}
