package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.ngs.io/awap/internal/usecase"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every unit of the job file",
		Long: "Run the time series and divergence analysis for every combination " +
			"of field, interval, sub-region and cycle in the job, writing one " +
			"NetCDF report per combination under output_dir.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.job.Validate(); err != nil {
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

			results, err := usecase.NewJobRunner(a.job, regions, analysis, a.log).Run(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tINTERVAL\tREGION\tCYCLE\tWINDOWS\tMEAN KLD\tSTATUS")
			failed := 0
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
					failed++
				}
				cycle := r.Cycle
				if cycle == "" {
					cycle = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4g\t%s\n", r.Field, r.Interval, r.Region, cycle, r.Windows, r.MeanKLD, status)
			}
			if ferr := w.Flush(); ferr != nil && err == nil {
				err = ferr
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d units failed", failed, len(results))
			}
			return nil
		},
	}
}
