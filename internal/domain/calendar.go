package domain

import "strings"

// Calendar holds the month, season, sampling-interval and percentile-rank
// tag tables used to interpret AWAP/BIOS2 file names. Build one with
// DefaultCalendar at startup and pass it to whatever needs it.
type Calendar struct {
	months         []string
	seasons        map[string][]string
	seasonOrder    []string
	intervals      []string
	percentileTags []string
}

// DefaultCalendar returns the standard AWAP/BIOS2 tables.
func DefaultCalendar() Calendar {
	return Calendar{
		months: []string{"jan", "feb", "mar", "apr", "may", "jun",
			"jul", "aug", "sep", "oct", "nov", "dec"},
		seasons: map[string][]string{
			"djf": {"dec", "jan", "feb"},
			"mam": {"mar", "apr", "may"},
			"jja": {"jun", "jul", "aug"},
			"son": {"sep", "oct", "nov"},
		},
		seasonOrder:    []string{"djf", "mam", "jja", "son"},
		intervals:      []string{"mth", "ann"},
		percentileTags: []string{"pcr"},
	}
}

// IsMonth reports whether name is a month abbreviation (case-insensitive).
func (c Calendar) IsMonth(name string) bool {
	return c.MonthNumber(name) > 0
}

// MonthNumber returns 1..12 for a month abbreviation, or 0.
func (c Calendar) MonthNumber(name string) int {
	name = strings.ToLower(name)
	for i, m := range c.months {
		if m == name {
			return i + 1
		}
	}
	return 0
}

// MonthAbbr returns the abbreviation for month 1..12, or "".
func (c Calendar) MonthAbbr(num int) string {
	if num < 1 || num > len(c.months) {
		return ""
	}
	return c.months[num-1]
}

// IsSeason reports whether name is a season abbreviation (case-insensitive).
func (c Calendar) IsSeason(name string) bool {
	_, ok := c.seasons[strings.ToLower(name)]
	return ok
}

// SeasonMonths returns the months of a season in calendar-run order
// (e.g. djf -> dec, jan, feb), or nil for an unknown season.
func (c Calendar) SeasonMonths(name string) []string {
	m, ok := c.seasons[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return append([]string(nil), m...)
}

// Seasons returns the season abbreviations.
func (c Calendar) Seasons() []string {
	return append([]string(nil), c.seasonOrder...)
}

// IsSamplingInterval reports whether tag is a known sampling interval.
func (c Calendar) IsSamplingInterval(tag string) bool {
	return contains(c.intervals, tag)
}

// SamplingIntervals returns the sampling interval tags.
func (c Calendar) SamplingIntervals() []string {
	return append([]string(nil), c.intervals...)
}

// IsPercentileRankTag reports whether tag marks percentile-rank data.
func (c Calendar) IsPercentileRankTag(tag string) bool {
	return contains(c.percentileTags, tag)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
