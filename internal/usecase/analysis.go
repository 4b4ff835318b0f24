package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"

	"go.ngs.io/awap/internal/adapter/store/awap"
	"go.ngs.io/awap/internal/adapter/store/sqlite"
	"go.ngs.io/awap/internal/domain"
	"go.ngs.io/awap/internal/stats"
)

// ErrNoStore is returned by the stored-result readers when no results
// store is configured.
var ErrNoStore = errors.New("usecase: no results store configured")

// FieldQuery selects the slices of one field to analyse.
type FieldQuery struct {
	Field    string
	Interval string
	Cycle    string
	Start    int
	End      int
	Scale    float64 // Multiplier applied after loading; 0 means 1.
	Ranks    bool    // Analyse the percentile-rank files instead of the values.
	Persist  bool    // Store the result when a results store is configured.
}

// storedField names q's field in the results store; percentile ranks are
// kept apart from the values.
func (q FieldQuery) storedField() string {
	if q.Ranks {
		return "pcr_" + q.Field
	}
	return q.Field
}

// SeriesResult is an area-weighted time series over a region.
type SeriesResult struct {
	Region string    `json:"region"`
	Field  string    `json:"field"`
	Span   string    `json:"date_span,omitempty"`
	Dates  []int     `json:"dates"`
	Values []float64 `json:"values"`
}

// DensityResult bundles the windowed densities of a sample matrix with
// their divergence matrix and the whole-record density.
type DensityResult struct {
	Region     string                  `json:"region,omitempty"`
	Field      string                  `json:"field,omitempty"`
	Cycle      string                  `json:"cycle,omitempty"`
	Span       string                  `json:"date_span,omitempty"`
	Policy     string                  `json:"policy"`
	Dates      []int                   `json:"dates,omitempty"`
	Locations  int                     `json:"locations"`
	Density    *stats.WindowedDensity  `json:"density"`
	Divergence *mat.Dense              `json:"-"`
	Summary    stats.DivergenceSummary `json:"summary"`
	Grand      []float64               `json:"grand_density"`
	GrandEdges []float64               `json:"grand_edges"`
}

// DivergenceRows returns the divergence matrix as nested slices.
func (r *DensityResult) DivergenceRows() [][]float64 {
	if r.Divergence == nil {
		return nil
	}
	n, c := r.Divergence.Dims()
	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(make([]float64, c), i, r.Divergence)
	}
	return out
}

// AnalysisUseCase runs time-series and density analyses of AWAP fields
// over the regions of a RegionService.
type AnalysisUseCase struct {
	regions *RegionService
	root    string
	cal     domain.Calendar
	store   *sqlite.Store
	log     logrus.FieldLogger
	loads   singleflight.Group
}

// NewAnalysisUseCase reads fields from root/<field>. store may be nil, in
// which case results are not persisted.
func NewAnalysisUseCase(regions *RegionService, root string, cal domain.Calendar, store *sqlite.Store, log logrus.FieldLogger) *AnalysisUseCase {
	return &AnalysisUseCase{regions: regions, root: root, cal: cal, store: store, log: log}
}

// LoadCube reads and rescales the slices selected by q. Concurrent loads
// of the same query share one read.
func (a *AnalysisUseCase) LoadCube(q FieldQuery) (*domain.DataCube, error) {
	if err := awap.CheckField(q.Field); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%s|%s|%d|%d|%t", q.Field, q.Interval, q.Cycle, q.Start, q.End, q.Ranks)
	v, err, _ := a.loads.Do(key, func() (any, error) {
		return awap.LoadCube(awap.CubeQuery{
			Root:           a.root,
			Field:          q.Field,
			Interval:       q.Interval,
			Start:          q.Start,
			End:            q.End,
			Cycle:          q.Cycle,
			PercentileRank: q.Ranks,
		}, a.cal)
	})
	if err != nil {
		return nil, err
	}
	cube := v.(*domain.DataCube)

	rows, cols := a.regions.Parent().Shape()
	if cube.Header.NRows != rows || cube.Header.NCols != cols {
		return nil, fmt.Errorf("field %s: %w: %dx%d grid, region %s is %dx%d",
			q.Field, domain.ErrShapeMismatch, cube.Header.NRows, cube.Header.NCols,
			a.regions.Parent().Name(), rows, cols)
	}
	if q.Scale != 0 && q.Scale != 1 {
		cube = cube.Scaled(q.Scale)
	}
	return cube, nil
}

// selection returns the crop window and mask for a region key; the empty
// key selects the whole parent region.
func (a *AnalysisUseCase) selection(regionKey string) (string, *domain.IndexWindow, *domain.MaskedGrid, error) {
	if regionKey == "" {
		parent := a.regions.Parent()
		mask := parent.Mask()
		return parent.Name(), nil, &mask, nil
	}
	sr, err := a.regions.SubRegion(regionKey)
	if err != nil {
		return "", nil, nil, err
	}
	mask := sr.Region.Mask()
	window := sr.Window
	return sr.Region.Name(), &window, &mask, nil
}

// Timeseries computes the area-weighted mean of q's field over a region
// for every selected slice. The result is stored when q.Persist is set and
// a store is configured.
func (a *AnalysisUseCase) Timeseries(ctx context.Context, regionKey string, q FieldQuery) (*SeriesResult, error) {
	name, window, mask, err := a.selection(regionKey)
	if err != nil {
		return nil, err
	}
	cube, err := a.LoadCube(q)
	if err != nil {
		return nil, err
	}
	values, err := stats.AreaWeightedSeries(cube, window, mask)
	if err != nil {
		return nil, fmt.Errorf("region %s, field %s: %w", name, q.Field, err)
	}
	res := &SeriesResult{Region: name, Field: q.Field, Span: cube.Span, Dates: cube.Dates, Values: values}

	if q.Persist && a.store != nil {
		key := sqlite.SeriesKey{Region: name, Field: q.storedField(), Interval: q.Interval}
		if key.Interval == "" {
			key.Interval = "mth"
		}
		if err := a.store.SaveSeries(ctx, key, res.Dates, res.Values); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Divergence computes windowed densities of q's field over a region and
// their pairwise divergence. A summary is stored when q.Persist is set and
// a store is configured.
// When autoRange is set the histogram range comes from the data and the
// range in cfg is ignored.
func (a *AnalysisUseCase) Divergence(ctx context.Context, regionKey string, q FieldQuery, cfg stats.WindowConfig, autoRange bool, policy stats.Policy, workers int) (*DensityResult, error) {
	name, window, mask, err := a.selection(regionKey)
	if err != nil {
		return nil, err
	}
	cube, err := a.LoadCube(q)
	if err != nil {
		return nil, err
	}
	samples, err := cube.LocationSamples(window, mask)
	if err != nil {
		return nil, err
	}
	res, err := AnalyzeSamples(samples, cfg, autoRange, policy, workers)
	if err != nil {
		return nil, fmt.Errorf("region %s, field %s: %w", name, q.Field, err)
	}
	res.Region, res.Field, res.Cycle, res.Span, res.Dates = name, q.Field, q.Cycle, cube.Span, cube.Dates

	a.log.WithFields(logrus.Fields{
		"region":    name,
		"field":     q.Field,
		"cycle":     q.Cycle,
		"locations": res.Locations,
		"windows":   res.Summary.Windows,
		"mean_kld":  res.Summary.Mean,
	}).Info("computed windowed divergence")

	if q.Persist && a.store != nil {
		rec := sqlite.DivergenceRecord{
			Region:            name,
			Field:             q.storedField(),
			Cycle:             q.Cycle,
			Policy:            res.Policy,
			StartDate:         cube.StartDate(),
			EndDate:           cube.EndDate(),
			DivergenceSummary: res.Summary,
		}
		if err := a.store.SaveDivergence(ctx, rec); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// StoredSeries returns the persisted points of a time series.
func (a *AnalysisUseCase) StoredSeries(ctx context.Context, key sqlite.SeriesKey) ([]sqlite.SeriesPoint, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	if key.Interval == "" {
		key.Interval = "mth"
	}
	return a.store.Series(ctx, key)
}

// StoredDivergences returns the persisted divergence summaries of region,
// or of every region when region is empty.
func (a *AnalysisUseCase) StoredDivergences(ctx context.Context, region string) ([]sqlite.DivergenceRecord, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	return a.store.Divergences(ctx, region)
}

// AnalyzeSamples runs the windowed density and divergence analysis on a
// (location x time) sample matrix.
func AnalyzeSamples(samples [][]float64, cfg stats.WindowConfig, autoRange bool, policy stats.Policy, workers int) (*DensityResult, error) {
	if len(samples) == 0 {
		return nil, stats.ErrEmptySample
	}
	if autoRange {
		var all []float64
		for _, row := range samples {
			all = append(all, row...)
		}
		lo, hi, err := stats.SampleRange(all)
		if err != nil {
			return nil, err
		}
		cfg.Lo, cfg.Hi = lo, hi
	}
	wd, err := stats.NewWindowedDensity(samples, cfg)
	if err != nil {
		return nil, err
	}
	kld, err := wd.Divergence(policy, workers)
	if err != nil {
		return nil, err
	}
	grand, grandEdges, err := stats.GrandDensity(samples)
	if err != nil {
		return nil, err
	}
	return &DensityResult{
		Policy:     policy.String(),
		Locations:  len(samples),
		Density:    wd,
		Divergence: kld,
		Summary:    stats.Summarize(kld),
		Grand:      grand,
		GrandEdges: grandEdges,
	}, nil
}
