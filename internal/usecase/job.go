package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/awap/internal/adapter/store/awap"
	"go.ngs.io/awap/internal/adapter/store/netcdf"
	"go.ngs.io/awap/internal/config"
)

// Unit is one independent piece of a job.
type Unit struct {
	Field    string `json:"field"`
	Interval string `json:"interval"`
	Region   string `json:"region"`
	Cycle    string `json:"cycle"`
}

func (u Unit) fields() logrus.Fields {
	return logrus.Fields{"field": u.Field, "interval": u.Interval, "region": u.Region, "cycle": u.Cycle}
}

// ReportName is the file name of the unit's NetCDF report.
func (u Unit) ReportName() string {
	cycle := u.Cycle
	if cycle == "" {
		cycle = "all"
	}
	return fmt.Sprintf("%s_%s_%s_%s.nc", u.Region, u.Field, u.Interval, strings.ToLower(cycle))
}

// UnitResult records the outcome of one unit.
type UnitResult struct {
	Unit
	Report   string        `json:"report,omitempty"`
	Windows  int           `json:"windows"`
	MeanKLD  float64       `json:"mean_kld"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// JobRunner executes a config.Job: one unit per (field, interval,
// sub-region, cycle), run concurrently.
type JobRunner struct {
	job      *config.Job
	regions  *RegionService
	analysis *AnalysisUseCase
	log      logrus.FieldLogger
}

// NewJobRunner creates a runner.
func NewJobRunner(job *config.Job, regions *RegionService, analysis *AnalysisUseCase, log logrus.FieldLogger) *JobRunner {
	return &JobRunner{job: job, regions: regions, analysis: analysis, log: log}
}

// Units expands the job into its units of work.
func (r *JobRunner) Units() ([]Unit, error) {
	subs, err := r.regions.SubRegions(r.job.Regions)
	if err != nil {
		return nil, err
	}
	cycles := r.job.Cycles
	if len(cycles) == 0 {
		cycles = []string{""}
	}
	var units []Unit
	for _, field := range r.job.Fields {
		for _, interval := range r.job.Intervals {
			for _, sr := range subs {
				for _, cycle := range cycles {
					units = append(units, Unit{Field: field, Interval: interval, Region: sr.Region.Name(), Cycle: cycle})
				}
			}
		}
	}
	return units, nil
}

// Run prepares the output tree, writes the sub-region masks and then runs
// every unit. A failing unit is logged and recorded in its result without
// stopping the others; the returned error is reserved for setup failures
// and cancellation.
func (r *JobRunner) Run(ctx context.Context) ([]UnitResult, error) {
	units, err := r.Units()
	if err != nil {
		return nil, err
	}
	if err := prepareOutputDirs(r.job.OutputDir, r.job.Fields); err != nil {
		return nil, err
	}
	if err := r.writeMasks(); err != nil {
		return nil, err
	}

	results := make([]UnitResult, len(units))
	g := new(errgroup.Group)
	g.SetLimit(r.job.Workers)
	for i, u := range units {
		g.Go(func() error {
			results[i] = r.runUnit(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.log.WithFields(logrus.Fields{"units": len(units), "failed": failed}).Info("job finished")
	return results, ctx.Err()
}

func (r *JobRunner) runUnit(ctx context.Context, u Unit) (res UnitResult) {
	res.Unit = u
	start := time.Now()
	log := r.log.WithFields(u.fields())
	defer func() { res.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	q := FieldQuery{
		Field:    u.Field,
		Interval: u.Interval,
		Cycle:    u.Cycle,
		Start:    r.job.Start,
		End:      r.job.End,
		Scale:    r.job.ScaleFor(u.Field),
		Persist:  true,
	}
	if _, err := r.analysis.Timeseries(ctx, u.Region, q); err != nil {
		log.WithError(err).Error("time series failed")
		res.Err = err
		return res
	}

	policy, err := r.job.DivergencePolicy()
	if err != nil {
		res.Err = err
		return res
	}
	cfg := r.job.Window.Stats(0, 0)
	d, err := r.analysis.Divergence(ctx, u.Region, q, cfg, r.job.Window.AutoRange(), policy, 1)
	if err != nil {
		log.WithError(err).Error("divergence failed")
		res.Err = err
		return res
	}

	path := filepath.Join(r.job.OutputDir, u.Field, u.ReportName())
	err = netcdf.WriteDensityReport(path, netcdf.DensityReport{
		Region:     d.Region,
		Field:      d.Field,
		Cycle:      d.Cycle,
		Policy:     d.Policy,
		Span:       d.Span,
		Dates:      d.Dates,
		Density:    d.Density,
		Divergence: d.Divergence,
	})
	if err != nil {
		log.WithError(err).Error("failed to write report")
		res.Err = err
		return res
	}
	res.Report = path
	res.Windows = d.Summary.Windows
	res.MeanKLD = d.Summary.Mean
	log.WithField("report", path).Info("unit done")
	return res
}

// writeMasks exports the job's sub-region masks under OutputDir/masks.
func (r *JobRunner) writeMasks() error {
	subs, err := r.regions.SubRegions(r.job.Regions)
	if err != nil {
		return err
	}
	for _, sr := range subs {
		stem := filepath.Join(r.job.OutputDir, maskDir, sr.Region.Name())
		if err := awap.WriteSubRegion(stem, sr, awap.LSBFirst); err != nil {
			return fmt.Errorf("failed to write mask for %s: %w", sr.Region.Name(), err)
		}
	}
	return nil
}

const maskDir = "masks"

// prepareOutputDirs creates every directory the units write into, so the
// units never race on directory creation.
func prepareOutputDirs(root string, fields []string) error {
	dirs := []string{filepath.Join(root, maskDir)}
	for _, f := range fields {
		dirs = append(dirs, filepath.Join(root, f))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", d, err)
		}
	}
	return nil
}
