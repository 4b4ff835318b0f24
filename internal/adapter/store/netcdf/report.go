package netcdf

import (
	"fmt"
	"os"
	"path/filepath"

	cdf "github.com/fhs/go-netcdf/netcdf"
	"gonum.org/v1/gonum/mat"

	"go.ngs.io/awap/internal/adapter/store/awap"
	"go.ngs.io/awap/internal/stats"
)

// DensityReport is the result of a windowed-density analysis for one
// region, field and cycle.
type DensityReport struct {
	Region     string
	Field      string
	Cycle      string
	Policy     string
	Span       string // Period of the source files, "YYYYMMDD-YYYYMMDD".
	Dates      []int  // Dates of the analysed slices (YYYYMMDD).
	Density    *stats.WindowedDensity
	Divergence *mat.Dense // Optional.
}

// WriteDensityReport writes r to path as a NetCDF file with variables
// edges(edge), density(window, bin), offset(window), start_date(window),
// start_julian(window) and, when present, kld(window, window2).
func WriteDensityReport(path string, r DensityReport) error {
	if r.Density == nil || r.Density.NumWindows() == 0 {
		return fmt.Errorf("%w: report for %s has no windows", stats.ErrInvalidWindow, r.Region)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	nWin := r.Density.NumWindows()
	nBin := len(r.Density.Edges) - 1
	if r.Divergence != nil {
		if rows, cols := r.Divergence.Dims(); rows != nWin || cols != nWin {
			return fmt.Errorf("%w: divergence is %dx%d, expected %dx%d",
				stats.ErrLengthMismatch, rows, cols, nWin, nWin)
		}
	}

	ds, err := cdf.CreateFile(path, cdf.CLOBBER)
	if err != nil {
		return fmt.Errorf("failed to create NetCDF file %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	edgeDim, err := ds.AddDim("edge", uint64(nBin+1))
	if err != nil {
		return err
	}
	binDim, err := ds.AddDim("bin", uint64(nBin))
	if err != nil {
		return err
	}
	winDim, err := ds.AddDim("window", uint64(nWin))
	if err != nil {
		return err
	}

	edgesVar, err := ds.AddVar("edges", cdf.DOUBLE, []cdf.Dim{edgeDim})
	if err != nil {
		return err
	}
	densVar, err := ds.AddVar("density", cdf.DOUBLE, []cdf.Dim{winDim, binDim})
	if err != nil {
		return err
	}
	offVar, err := ds.AddVar("offset", cdf.DOUBLE, []cdf.Dim{winDim})
	if err != nil {
		return err
	}
	var dateVar, julianVar, kldVar cdf.Var
	haveDates := len(r.Dates) > 0
	if haveDates {
		if dateVar, err = ds.AddVar("start_date", cdf.DOUBLE, []cdf.Dim{winDim}); err != nil {
			return err
		}
		if julianVar, err = ds.AddVar("start_julian", cdf.DOUBLE, []cdf.Dim{winDim}); err != nil {
			return err
		}
	}
	if r.Divergence != nil {
		win2Dim, err := ds.AddDim("window2", uint64(nWin))
		if err != nil {
			return err
		}
		if kldVar, err = ds.AddVar("kld", cdf.DOUBLE, []cdf.Dim{winDim, win2Dim}); err != nil {
			return err
		}
	}

	attrs := map[string]string{
		"region":    r.Region,
		"field":     r.Field,
		"cycle":     r.Cycle,
		"policy":    r.Policy,
		"date_span": r.Span,
	}
	for name, value := range attrs {
		if value == "" {
			continue
		}
		if err := ds.Attr(name).WriteBytes([]byte(value)); err != nil {
			return fmt.Errorf("failed to write attribute %s: %w", name, err)
		}
	}
	if err := ds.EndDef(); err != nil {
		return err
	}

	if err := edgesVar.WriteFloat64s(r.Density.Edges); err != nil {
		return fmt.Errorf("failed to write edges: %w", err)
	}
	flat := make([]float64, 0, nWin*nBin)
	for _, d := range r.Density.Densities {
		flat = append(flat, d...)
	}
	if err := densVar.WriteFloat64s(flat); err != nil {
		return fmt.Errorf("failed to write density: %w", err)
	}
	offsets := make([]float64, nWin)
	for i, o := range r.Density.Offsets {
		offsets[i] = float64(o)
	}
	if err := offVar.WriteFloat64s(offsets); err != nil {
		return fmt.Errorf("failed to write offset: %w", err)
	}
	if haveDates {
		starts := make([]float64, nWin)
		julian := make([]float64, nWin)
		for i, o := range r.Density.Offsets {
			if o < len(r.Dates) {
				starts[i] = float64(r.Dates[o])
				julian[i] = awap.Name{Date: r.Dates[o]}.JulianDate()
			}
		}
		if err := dateVar.WriteFloat64s(starts); err != nil {
			return fmt.Errorf("failed to write start_date: %w", err)
		}
		if err := julianVar.WriteFloat64s(julian); err != nil {
			return fmt.Errorf("failed to write start_julian: %w", err)
		}
	}
	if r.Divergence != nil {
		if err := kldVar.WriteFloat64s(mat.DenseCopyOf(r.Divergence).RawMatrix().Data); err != nil {
			return fmt.Errorf("failed to write kld: %w", err)
		}
	}
	return nil
}
