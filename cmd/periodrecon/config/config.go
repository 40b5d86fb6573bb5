// Package config turns command-line, config file and environment settings
// into the configurations of the internal packages.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/parsers"
	"github.com/wdfday/personalfinance-fe-sub001/internal/periods"
	"github.com/wdfday/personalfinance-fe-sub001/internal/reconciler"
	"github.com/wdfday/personalfinance-fe-sub001/internal/reporter"
	"github.com/wdfday/personalfinance-fe-sub001/internal/source"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// DateLayout is the layout of every date given on the command line
const DateLayout = "2006-01-02"

// Options are the raw settings of a run, as collected from flags, the config
// file and PERIODRECON_* environment variables
type Options struct {
	RecordFiles []string
	PeriodFiles []string
	InputFormat string

	APIURL      string
	APIToken    string
	APITimeout  time.Duration
	APIPageSize int
	APIRetries  int

	Kind                 string
	Series               []string
	ReferenceDate        string
	Timezone             string
	WarningThreshold     float64
	RequireCategoryMatch bool

	OutputFormat       string
	OutputFile         string
	IncludeAssignments bool

	Strict             bool
	Progress           bool
	MaxConcurrentFiles int
}

// DefaultOptions returns the defaults the flags are registered with
func DefaultOptions() *Options {
	src := source.DefaultConfig()
	return &Options{
		InputFormat:          string(parsers.FormatAuto),
		APITimeout:           src.Timeout,
		APIPageSize:          src.PageSize,
		APIRetries:           src.MaxRetries,
		Kind:                 "budget",
		Timezone:             "UTC",
		WarningThreshold:     0.8,
		RequireCategoryMatch: true,
		OutputFormat:         string(reporter.FormatConsole),
		MaxConcurrentFiles:   4,
	}
}

// UsesAPI reports whether inputs come from the backend instead of files
func (o *Options) UsesAPI() bool {
	return strings.TrimSpace(o.APIURL) != ""
}

// Settings are the validated configurations for one run
type Settings struct {
	Reconciler *reconciler.Config
	Report     *reporter.ReportConfig

	// Source is nil when inputs are read from files
	Source *source.Config

	Request    *reconciler.Request
	OutputFile string
}

// Build validates opts and derives the package configurations. Every problem
// found is reported, not just the first.
func Build(opts *Options) (*Settings, error) {
	var errs error

	periodsConfig, err := CreatePeriodsConfig(opts)
	errs = multierr.Append(errs, err)

	format, err := parsers.ParseFormat(opts.InputFormat)
	errs = multierr.Append(errs, err)

	reportConfig, err := CreateReportConfig(opts.OutputFormat, opts.IncludeAssignments)
	errs = multierr.Append(errs, err)

	var src *source.Config
	if opts.UsesAPI() {
		if len(opts.RecordFiles) > 0 || len(opts.PeriodFiles) > 0 {
			errs = multierr.Append(errs, fmt.Errorf("--api-url cannot be combined with --records or --periods"))
		}
		src, err = CreateSourceConfig(opts)
		errs = multierr.Append(errs, err)
	} else {
		if len(opts.RecordFiles) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("at least one --records file is required"))
		}
		if len(opts.PeriodFiles) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("at least one --periods file is required"))
		}
	}

	if opts.MaxConcurrentFiles <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("max concurrent files must be positive, got %d", opts.MaxConcurrentFiles))
	}

	var ref *time.Time
	if periodsConfig != nil && opts.ReferenceDate != "" {
		t, err := ParseReferenceDate(opts.ReferenceDate, periodsConfig.Location())
		errs = multierr.Append(errs, err)
		if err == nil {
			ref = &t
		}
	}

	if errs != nil {
		return nil, errs
	}
	if src != nil {
		src.Location = periodsConfig.Location()
	}

	reconcilerConfig := reconciler.DefaultConfig()
	reconcilerConfig.Periods = periodsConfig
	reconcilerConfig.StrictParsing = opts.Strict
	reconcilerConfig.ProgressReporting = opts.Progress
	reconcilerConfig.MaxConcurrentFiles = opts.MaxConcurrentFiles

	request := &reconciler.Request{
		RecordFiles:   opts.RecordFiles,
		PeriodFiles:   opts.PeriodFiles,
		Format:        format,
		SeriesFilter:  opts.Series,
		ReferenceDate: ref,
		Location:      periodsConfig.Location(),
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	return &Settings{
		Reconciler: reconcilerConfig,
		Report:     reportConfig,
		Source:     src,
		Request:    request,
		OutputFile: opts.OutputFile,
	}, nil
}

// CreatePeriodsConfig creates the calculator configuration
func CreatePeriodsConfig(opts *Options) (*periods.Config, error) {
	config := periods.DefaultConfig()

	kind, err := models.ParsePeriodKind(opts.Kind)
	if err != nil {
		return nil, err
	}
	config.Kind = kind
	config.RequireCategoryMatch = opts.RequireCategoryMatch
	config.WarningThreshold = decimal.NewFromFloat(opts.WarningThreshold)

	if err := config.SetTimezone(opts.Timezone); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateSourceConfig creates the API client configuration
func CreateSourceConfig(opts *Options) (*source.Config, error) {
	config := source.DefaultConfig()
	config.BaseURL = strings.TrimSpace(opts.APIURL)
	config.Token = opts.APIToken
	config.StrictMode = opts.Strict
	if opts.APITimeout > 0 {
		config.Timeout = opts.APITimeout
	}
	if opts.APIPageSize > 0 {
		config.PageSize = opts.APIPageSize
	}
	config.MaxRetries = opts.APIRetries

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, includeAssignments bool) (*reporter.ReportConfig, error) {
	outputFormat, err := reporter.ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}

	config := reporter.DefaultReportConfig()
	config.Format = outputFormat
	config.IncludeAssignments = includeAssignments

	switch outputFormat {
	case reporter.FormatJSON:
		// JSON always carries the record to period map
		config.IncludeAssignments = true
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}
	return config, nil
}

// CreateLoggerConfig creates the logger configuration. verbose raises the
// level to debug.
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseReferenceDate parses a YYYY-MM-DD date as midnight in loc
func ParseReferenceDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference date %q, use YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
