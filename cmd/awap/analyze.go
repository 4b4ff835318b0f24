package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"go.ngs.io/awap/internal/adapter/store/netcdf"
	"go.ngs.io/awap/internal/usecase"
)

// selection flags shared by timeseries and tdpdf.
type selection struct {
	interval string
	cycle    string
	start    int
	end      int
	ranks    bool
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.interval, "interval", "mth", "sampling interval tag")
	cmd.Flags().StringVar(&s.cycle, "cycle", "", "month (jan..dec) or season (djf, mam, jja, son)")
	cmd.Flags().IntVar(&s.start, "start", 0, "first date, YYYYMMDD (default: job start)")
	cmd.Flags().IntVar(&s.end, "end", 0, "last date, YYYYMMDD (default: job end)")
	cmd.Flags().BoolVar(&s.ranks, "percentile_rank", false, "analyse the percentile-rank (pcr) files of the field")
}

func (s *selection) query(a *app, field string) usecase.FieldQuery {
	q := usecase.FieldQuery{
		Field:    field,
		Interval: s.interval,
		Cycle:    s.cycle,
		Start:    s.start,
		End:      s.end,
		Scale:    a.job.ScaleFor(field),
		Ranks:    s.ranks,
		Persist:  true,
	}
	if q.Start == 0 {
		q.Start = a.job.Start
	}
	if q.End == 0 {
		q.End = a.job.End
	}
	if q.Ranks {
		// Percentile ranks carry no units.
		q.Scale = 0
	}
	return q
}

// regionKey maps the "all" argument to the whole parent region.
func regionKey(arg string) string {
	if strings.EqualFold(arg, "all") {
		return ""
	}
	return arg
}

func newTimeseriesCmd(a *app) *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "timeseries REGION FIELD",
		Short: "Print the area-weighted time series of a field over a region",
		Long: "Print date,value lines of the area-weighted mean of FIELD over " +
			"REGION (a sub-region name or id, or \"all\" for the whole mask).",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := a.openRegions()
			if err != nil {
				return err
			}
			analysis, cleanup, err := a.openAnalysis(regions)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := analysis.Timeseries(cmd.Context(), regionKey(args[0]), sel.query(a, args[1]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "date,value")
			for i, d := range res.Dates {
				fmt.Fprintf(out, "%d,%g\n", d, res.Values[i])
			}
			return nil
		},
	}
	sel.register(cmd)
	return cmd
}

func newTDPDFCmd(a *app) *cobra.Command {
	var (
		sel    selection
		report string
	)
	cmd := &cobra.Command{
		Use:   "tdpdf REGION FIELD",
		Short: "Compute windowed densities and their KL divergence matrix",
		Long: "Build the time-dependent density of FIELD over REGION from sliding " +
			"windows of the job's window settings, compute the KL divergence " +
			"between every pair of windows and write both to a NetCDF report.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.job.DivergencePolicy()
			if err != nil {
				return err
			}
			regions, err := a.openRegions()
			if err != nil {
				return err
			}
			analysis, cleanup, err := a.openAnalysis(regions)
			if err != nil {
				return err
			}
			defer cleanup()

			q := sel.query(a, args[1])
			cfg := a.job.Window.Stats(0, 0)
			res, err := analysis.Divergence(cmd.Context(), regionKey(args[0]), q, cfg, a.job.Window.AutoRange(), policy, a.job.Workers)
			if err != nil {
				return err
			}

			path := report
			if path == "" {
				u := usecase.Unit{Field: q.Field, Interval: q.Interval, Region: res.Region, Cycle: q.Cycle}
				path = filepath.Join(a.job.OutputDir, q.Field, u.ReportName())
			}
			err = netcdf.WriteDensityReport(path, netcdf.DensityReport{
				Region:     res.Region,
				Field:      res.Field,
				Cycle:      res.Cycle,
				Policy:     res.Policy,
				Span:       res.Span,
				Dates:      res.Dates,
				Density:    res.Density,
				Divergence: res.Divergence,
			})
			if err != nil {
				return err
			}

			s := res.Summary
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "region:    %s\n", res.Region)
			fmt.Fprintf(out, "span:      %s\n", res.Span)
			fmt.Fprintf(out, "locations: %d\n", res.Locations)
			fmt.Fprintf(out, "windows:   %d\n", s.Windows)
			fmt.Fprintf(out, "mean KLD:  %g\n", s.Mean)
			fmt.Fprintf(out, "max KLD:   %g (windows %d, %d)\n", s.Max, s.MaxRow, s.MaxCol)
			fmt.Fprintf(out, "report:    %s\n", path)
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&report, "report", "", "NetCDF report path (default: <output_dir>/<field>/<region>_<field>_<interval>_<cycle>.nc)")
	return cmd
}
