// Package reconciler runs the period calculator over a complete data set.
//
// A run loads records and periods through a Loader (local files or the
// backend API), splits the periods into series, reconciles every series with
// the periods engine and folds the outcomes into a Result with a summary.
// Only I/O and configuration problems are errors; data anomalies are
// reported in the result.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/parsers"
	"github.com/wdfday/personalfinance-fe-sub001/internal/periods"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// Service orchestrates a reconciliation run
type Service struct {
	loader Loader
	config *Config
	engine *periods.Engine
	logger logger.Logger
	now    func() time.Time
}

// Config holds configuration options for the reconciliation service
type Config struct {
	// ReferenceDate is "today" for period selection and status. Zero means
	// the wall clock at the start of the run.
	ReferenceDate time.Time

	Periods *periods.Config

	// Processing options
	StrictParsing      bool
	ProgressReporting  bool
	MaxConcurrentFiles int
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Periods:            periods.DefaultConfig(),
		MaxConcurrentFiles: 4,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Periods == nil {
		return fmt.Errorf("periods configuration is required")
	}
	if err := c.Periods.Validate(); err != nil {
		return fmt.Errorf("periods: %w", err)
	}
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}
	return nil
}

// Request represents a request for reconciliation
type Request struct {
	RecordFiles []string
	PeriodFiles []string
	Format      parsers.Format

	// SeriesFilter limits the run to the named series. Empty means all.
	SeriesFilter []string

	// ReferenceDate overrides the configured reference date when set
	ReferenceDate *time.Time

	// Location reads input dates that carry no zone. Process fills it from
	// the periods configuration when nil.
	Location *time.Location
}

// Validate validates the reconciliation request
func (r *Request) Validate() error {
	if _, err := parsers.ParseFormat(string(r.Format)); err != nil {
		return err
	}

	seen := make(map[string]bool, len(r.RecordFiles)+len(r.PeriodFiles))
	for _, path := range append(append([]string{}, r.RecordFiles...), r.PeriodFiles...) {
		if path == "" {
			return fmt.Errorf("file path cannot be empty")
		}
		if seen[path] {
			return fmt.Errorf("file %s is listed more than once", path)
		}
		seen[path] = true
	}
	return nil
}

// Result contains the complete results of a reconciliation run
type Result struct {
	RunID         string                `json:"run_id"`
	ProcessedAt   time.Time             `json:"processed_at"`
	ReferenceDate time.Time             `json:"reference_date"`
	Kind          models.PeriodKind     `json:"kind"`
	Timezone      string                `json:"timezone"`
	Summary       *Summary              `json:"summary"`
	Series        []*SeriesResult       `json:"series"`
	Anomalies     []periods.Anomaly     `json:"anomalies,omitempty"`
	ParseStats    []*parsers.ParseStats `json:"parse_stats,omitempty"`
}

// SeriesResult is the calculator outcome for one series
type SeriesResult struct {
	Key string `json:"key"`
	*periods.Outcome

	// RecordPeriods maps record ids to period ids, nil when unassigned
	RecordPeriods map[string]*string `json:"assignments,omitempty"`
}

// Label returns a printable series name
func (s *SeriesResult) Label() string {
	if s.Key == "" {
		return "(uncategorized)"
	}
	return s.Key
}

// Summary provides a high-level overview of a run
type Summary struct {
	TotalRecords     int `json:"total_records"`
	DuplicateRecords int `json:"duplicate_records"`
	AssignedByLink   int `json:"assigned_by_link"`
	AssignedByDate   int `json:"assigned_by_date"`
	Unassigned       int `json:"unassigned"`

	// Run-wide totals count every assigned record once, even when it landed
	// in more than one series
	TotalSpent  decimal.Decimal `json:"total_spent"`
	TotalInflow decimal.Decimal `json:"total_inflow"`

	SeriesCount    int `json:"series_count"`
	PeriodCount    int `json:"period_count"`
	SkippedPeriods int `json:"skipped_periods"`
	AnomalyCount   int `json:"anomaly_count"`
	ParseErrors    int `json:"parse_errors"`
	ParseWarnings  int `json:"parse_warnings"`

	Duration time.Duration `json:"duration"`
}

// NewService creates a new reconciliation service
func NewService(loader Loader, config *Config) (*Service, error) {
	if loader == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "loader", nil, fmt.Errorf("a loader is required"))
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}

	return &Service{
		loader: loader,
		config: config,
		engine: periods.NewEngine(config.Periods, logger.GetGlobalLogger()),
		logger: logger.WithComponent("reconciler"),
		now:    time.Now,
	}, nil
}

// GetConfiguration returns the service configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// Process performs a complete reconciliation run
func (s *Service) Process(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		req = &Request{}
	}
	if err := req.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidData, "request", nil, err)
	}
	if req.Location == nil {
		scoped := *req
		scoped.Location = s.config.Periods.Location()
		req = &scoped
	}

	startTime := s.now()
	kind := s.config.Periods.Kind
	result := &Result{
		RunID:         uuid.NewString(),
		ProcessedAt:   startTime,
		ReferenceDate: s.referenceDate(req, startTime),
		Kind:          kind,
		Timezone:      s.config.Periods.Location().String(),
		Summary:       &Summary{TotalSpent: decimal.Zero, TotalInflow: decimal.Zero},
		Series:        make([]*SeriesResult, 0),
	}

	log := s.logger.WithFields(logger.Fields{
		"run_id":         result.RunID,
		"kind":           string(kind),
		"reference_date": result.ReferenceDate.Format("2006-01-02"),
	})
	log.Info("Starting reconciliation")

	var (
		records     []*models.Record
		periodList  []*models.Period
		recordStats []*parsers.ParseStats
		periodStats []*parsers.ParseStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return logger.TimedOperation("load_records", s.logger, func() error {
			var err error
			records, recordStats, err = s.loader.LoadRecords(gctx, req)
			return err
		})
	})
	g.Go(func() error {
		return logger.TimedOperation("load_periods", s.logger, func() error {
			var err error
			periodList, periodStats, err = s.loader.LoadPeriods(gctx, req, kind)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Failed to load inputs")
		return nil, errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeProcessingError, "failed to load inputs")
	}
	result.ParseStats = append(recordStats, periodStats...)

	records, result.Summary.DuplicateRecords = s.dedupeRecords(records)
	periodList, result.Summary.SkippedPeriods = s.filterKind(periodList, kind)

	if err := s.reconcileSeries(ctx, result, records, periodList, req.SeriesFilter); err != nil {
		return nil, err
	}

	s.buildSummary(result, records)
	result.Summary.Duration = s.now().Sub(startTime)

	log.WithFields(logger.Fields{
		"series":     result.Summary.SeriesCount,
		"periods":    result.Summary.PeriodCount,
		"records":    result.Summary.TotalRecords,
		"unassigned": result.Summary.Unassigned,
		"anomalies":  result.Summary.AnomalyCount,
		"duration":   result.Summary.Duration.String(),
	}).Info("Reconciliation completed")

	return result, nil
}

func (s *Service) referenceDate(req *Request, now time.Time) time.Time {
	switch {
	case req.ReferenceDate != nil && !req.ReferenceDate.IsZero():
		return *req.ReferenceDate
	case !s.config.ReferenceDate.IsZero():
		return s.config.ReferenceDate
	default:
		return now
	}
}
