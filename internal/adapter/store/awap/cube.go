package awap

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.ngs.io/awap/internal/domain"
)

// ErrBadFieldName is returned for field names that are not a single
// directory name under the collection root.
var ErrBadFieldName = errors.New("awap: invalid field name")

// CubeQuery selects the files of one field that make up a DataCube.
type CubeQuery struct {
	Root           string // Collection root; files live in Root/Field.
	Field          string
	Interval       string // Sampling interval tag; default "mth".
	Start          int    // YYYYMMDD; 0 means the earliest available.
	End            int    // YYYYMMDD; 0 means the latest available.
	Cycle          string // Month ("jan") or season ("djf") filter; empty for none.
	PercentileRank bool   // Load the percentile-rank files instead of the values.
}

// CheckField rejects names that are empty or would resolve outside the
// collection root.
func CheckField(field string) error {
	if field == "" || field == "." || strings.Contains(field, "..") ||
		strings.ContainsAny(field, `/\`) || filepath.IsAbs(field) || filepath.VolumeName(field) != "" {
		return fmt.Errorf("%w: %q", ErrBadFieldName, field)
	}
	return nil
}

// LoadCube reads every file matching q, in date order, into a DataCube.
// All files must share the first file's grid layout.
func LoadCube(q CubeQuery, cal domain.Calendar) (*domain.DataCube, error) {
	if err := CheckField(q.Field); err != nil {
		return nil, err
	}
	if q.Interval == "" {
		q.Interval = "mth"
	}
	dir := filepath.Join(q.Root, q.Field)
	all, err := Scan(dir, cal)
	if err != nil {
		return nil, err
	}
	files := all.ByField(q.Field)
	if files.Len() == 0 {
		return nil, fmt.Errorf("no %s files found in %s (fields present: %s)",
			q.Field, dir, strings.Join(all.Fields(), ", "))
	}
	files = files.ByInterval(q.Interval)
	if q.PercentileRank {
		files = files.ExtractPercentileRank()
	} else {
		files = files.ExcludePercentileRank()
	}
	if files.Len() == 0 {
		return nil, fmt.Errorf("no %s files found in %s", q.Interval, dir)
	}

	start, end := q.Start, q.End
	if start == 0 {
		if start, err = files.EarliestDate(); err != nil {
			return nil, err
		}
	}
	if end == 0 {
		if end, err = files.LatestDate(); err != nil {
			return nil, err
		}
	}
	files = files.ByDateRange(start, end)
	if files, err = files.ByCycle(q.Cycle); err != nil {
		return nil, err
	}
	if files.Len() == 0 {
		return nil, fmt.Errorf("no %s files in %s between %d and %d matching cycle %q",
			q.Interval, dir, start, end, q.Cycle)
	}
	span, err := files.DateSpan()
	if err != nil {
		return nil, err
	}

	var layout domain.GridHeader
	slices := make([]domain.MaskedGrid, 0, files.Len())
	for i, stem := range files.Stems() {
		h, g, err := ReadField(stem)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			layout = h
		} else if h.NRows != layout.NRows || h.NCols != layout.NCols {
			return nil, fmt.Errorf("%s: %w: %dx%d grid, expected %dx%d",
				stem, domain.ErrShapeMismatch, h.NRows, h.NCols, layout.NRows, layout.NCols)
		}
		slices = append(slices, g)
	}
	layout.FileStem = ""
	cube, err := domain.NewDataCube(q.Field, layout, files.Dates(), slices)
	if err != nil {
		return nil, err
	}
	cube.Span = span
	return cube, nil
}
