package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.ngs.io/awap/internal/adapter/store/sqlite"
	"go.ngs.io/awap/internal/config"
	"go.ngs.io/awap/internal/domain"
	"go.ngs.io/awap/internal/usecase"
)

// app carries state shared by the subcommands.
type app struct {
	configFile string
	v          *viper.Viper
	job        *config.Job
	log        *logrus.Logger
}

func newRootCmd(log *logrus.Logger) *cobra.Command {
	a := &app{log: log}
	root := &cobra.Command{
		Use:   "awap",
		Short: "Regional analysis of AWAP gridded climate fields.",
		Long: `awap derives sub-regions from a categorical region mask and analyses
AWAP water balance fields over them: area-weighted time series, windowed
probability densities and the KL divergence between every pair of windows.

Settings come from the job file given by --config, AWAP_ environment
variables and the flags below, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.startup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "job file location (TOML, YAML or JSON)")
	flags.String("data_root", "", "AWAP collection root holding one directory per field")
	flags.String("region_mask", "", "region mask: AWAP stem (.hdr/.flt[/.csv]) or NetCDF file")
	flags.String("mask_variable", "region", "NetCDF variable holding category ids")
	flags.String("region_name", "CONAUS", "name of the top-level region")
	flags.String("region_defs", "", "region definition TOML (default: built-in Australian states)")
	flags.String("database", "", "SQLite file for storing results")
	flags.String("output_dir", "output", "directory for reports and masks")
	flags.Int("workers", 0, "concurrent workers (default: number of CPUs)")
	flags.String("log_level", "info", "log level")

	v, err := config.New(flags)
	if err != nil {
		// Binding only fails for a nil flag set.
		panic(err)
	}
	a.v = v

	root.AddCommand(
		newVersionCmd(),
		newRegionsCmd(a),
		newTimeseriesCmd(a),
		newTDPDFCmd(a),
		newRunCmd(a),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of awap",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "awap v%s\n", version)
		},
	}
}

// startup reads the job and configures logging.
func (a *app) startup() error {
	job, err := config.Read(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.job = job
	a.log.SetLevel(job.Level())
	return nil
}

func (a *app) openRegions() (*usecase.RegionService, error) {
	if a.job.RegionMask == "" {
		return nil, fmt.Errorf("%w: region_mask is required", config.ErrInvalidJob)
	}
	return usecase.OpenRegionService(usecase.MaskSource{
		Path:     a.job.RegionMask,
		Variable: a.job.MaskVariable,
		Name:     a.job.RegionName,
		Defs:     a.job.RegionDefs,
	}, a.log)
}

// openAnalysis opens the results store when one is configured and wraps
// regions in an analysis use case. The returned cleanup closes the store.
func (a *app) openAnalysis(regions *usecase.RegionService) (*usecase.AnalysisUseCase, func(), error) {
	if a.job.DataRoot == "" {
		return nil, nil, fmt.Errorf("%w: data_root is required", config.ErrInvalidJob)
	}
	cleanup := func() {}
	var store *sqlite.Store
	if a.job.Database != "" {
		var err error
		store, err = sqlite.Open(a.job.Database)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := store.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close results database")
			}
		}
	}
	return usecase.NewAnalysisUseCase(regions, a.job.DataRoot, domain.DefaultCalendar(), store, a.log), cleanup, nil
}
