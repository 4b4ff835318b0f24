// Package config holds the typed job configuration and the region
// definition tables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.ngs.io/awap/internal/domain"
	"go.ngs.io/awap/internal/stats"
)

// ErrInvalidJob is returned by Validate.
var ErrInvalidJob = errors.New("config: invalid job")

// EnvPrefix prefixes environment overrides, e.g. AWAP_DATA_ROOT or
// AWAP_WINDOW_WIDTH.
const EnvPrefix = "AWAP"

// Window mirrors stats.WindowConfig in configuration files. When Lo and Hi
// are equal the range is taken from the data.
type Window struct {
	Width  int     `mapstructure:"width"`
	Stride int     `mapstructure:"stride"`
	Bins   int     `mapstructure:"bins"`
	Lo     float64 `mapstructure:"lo"`
	Hi     float64 `mapstructure:"hi"`
}

// AutoRange reports whether the histogram range should come from the data.
func (w Window) AutoRange() bool { return w.Lo == w.Hi }

// Stats converts w for a given data range; lo and hi are used only when
// AutoRange is set.
func (w Window) Stats(lo, hi float64) stats.WindowConfig {
	if !w.AutoRange() {
		lo, hi = w.Lo, w.Hi
	}
	return stats.WindowConfig{Width: w.Width, Stride: w.Stride, Bins: w.Bins, Lo: lo, Hi: hi}
}

// Job describes a batch analysis: which fields, intervals and cycles to
// process over which sub-regions, and where to put the results.
type Job struct {
	DataRoot     string             `mapstructure:"data_root"`
	OutputDir    string             `mapstructure:"output_dir"`
	Database     string             `mapstructure:"database"`
	RegionMask   string             `mapstructure:"region_mask"`
	MaskVariable string             `mapstructure:"mask_variable"`
	RegionName   string             `mapstructure:"region_name"`
	RegionDefs   string             `mapstructure:"region_defs"`
	Regions      []string           `mapstructure:"regions"`
	Fields       []string           `mapstructure:"fields"`
	Intervals    []string           `mapstructure:"intervals"`
	Cycles       []string           `mapstructure:"cycles"`
	Start        int                `mapstructure:"start"`
	End          int                `mapstructure:"end"`
	Window       Window             `mapstructure:"window"`
	Policy       string             `mapstructure:"policy"`
	Smoothing    float64            `mapstructure:"smoothing"`
	Workers      int                `mapstructure:"workers"`
	Scale        map[string]float64 `mapstructure:"scale"`
	LogLevel     string             `mapstructure:"log_level"`
}

// SetDefaults registers the default value of every job key on v.
func SetDefaults(v *viper.Viper) {
	w := stats.DefaultWindowConfig()
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("data_root", "")
	v.SetDefault("region_mask", "")
	v.SetDefault("region_defs", "")
	v.SetDefault("regions", []string{})
	v.SetDefault("fields", []string{})
	v.SetDefault("start", 0)
	v.SetDefault("end", 0)
	v.SetDefault("scale", map[string]float64{})
	v.SetDefault("output_dir", "output")
	v.SetDefault("database", "")
	v.SetDefault("mask_variable", "region")
	v.SetDefault("region_name", "CONAUS")
	v.SetDefault("intervals", []string{"mth"})
	v.SetDefault("cycles", []string{""})
	v.SetDefault("window.width", w.Width)
	v.SetDefault("window.stride", w.Stride)
	v.SetDefault("window.bins", w.Bins)
	v.SetDefault("window.lo", 0.0)
	v.SetDefault("window.hi", 0.0)
	v.SetDefault("policy", "truncate")
	v.SetDefault("smoothing", stats.DefaultSmoothing)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("log_level", "info")
}

// New returns a viper instance with defaults and AWAP_ environment
// overrides configured. flags, if non-nil, are bound by name.
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	return v, nil
}

// Load reads the job file at path (TOML, YAML or JSON by extension) into
// v and returns the validated Job. An empty path uses only defaults,
// environment and flags.
func Load(v *viper.Viper, path string) (*Job, error) {
	job, err := Read(v, path)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Read is Load without validation, for commands that use only part of a job.
func Read(v *viper.Viper, path string) (*Job, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
		}
	}
	var job Job
	if err := v.Unmarshal(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Validate checks the job for missing inputs and unknown tags.
func (j *Job) Validate() error {
	cal := domain.DefaultCalendar()
	var problems []string
	if j.DataRoot == "" {
		problems = append(problems, "data_root is required")
	}
	if j.RegionMask == "" {
		problems = append(problems, "region_mask is required")
	}
	if len(j.Fields) == 0 {
		problems = append(problems, "at least one field is required")
	}
	for _, iv := range j.Intervals {
		if !cal.IsSamplingInterval(iv) {
			problems = append(problems, fmt.Sprintf("unknown sampling interval %q", iv))
		}
	}
	for _, c := range j.Cycles {
		if c != "" && !cal.IsMonth(c) && !cal.IsSeason(c) {
			problems = append(problems, fmt.Sprintf("unknown cycle %q", c))
		}
	}
	if j.Start != 0 && j.End != 0 && j.End < j.Start {
		problems = append(problems, fmt.Sprintf("end %d precedes start %d", j.End, j.Start))
	}
	if j.Window.Width <= 0 || j.Window.Stride <= 0 || j.Window.Bins <= 0 {
		problems = append(problems, "window width, stride and bins must be positive")
	}
	if j.Window.Hi < j.Window.Lo {
		problems = append(problems, fmt.Sprintf("window range [%v, %v] is inverted", j.Window.Lo, j.Window.Hi))
	}
	if _, err := j.DivergencePolicy(); err != nil {
		problems = append(problems, err.Error())
	}
	if j.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if _, err := logrus.ParseLevel(j.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidJob, strings.Join(problems, "; "))
	}
	return nil
}

// DivergencePolicy returns the configured KL policy.
func (j *Job) DivergencePolicy() (stats.Policy, error) {
	return stats.ParsePolicy(j.Policy, j.Smoothing)
}

// ScaleFor returns the multiplier for field, 1 when none is configured.
// Keys match case-insensitively since viper lower-cases map keys.
func (j *Job) ScaleFor(field string) float64 {
	if s, ok := j.Scale[strings.ToLower(field)]; ok && s != 0 {
		return s
	}
	return 1
}

// Level returns the configured log level, or Info when it does not parse.
func (j *Job) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(j.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
