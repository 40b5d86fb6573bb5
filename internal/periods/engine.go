package periods

import (
	"time"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// Engine runs the calculator for one configuration and logs every anomaly
// it meets. It holds no mutable state and may be shared between goroutines.
type Engine struct {
	config *Config
	logger logger.Logger
}

// Outcome is everything the calculator derives for one series
type Outcome struct {
	Periods     []*models.BoundedPeriod        `json:"periods"`
	Assignments []Assignment                   `json:"-"`
	Totals      map[string]*PeriodTotals       `json:"totals"`
	Current     Selection                      `json:"current"`
	Statuses    map[string]models.PeriodStatus `json:"statuses"`
	Monthly     []MonthlyPoint                 `json:"monthly,omitempty"`
	Anomalies   []Anomaly                      `json:"anomalies,omitempty"`
}

// AssignmentMap returns recordId -> periodId for the outcome
func (o *Outcome) AssignmentMap() map[string]*string {
	return AssignmentMap(o.Assignments)
}

// CountByMethod tallies assignments by match method
func (o *Outcome) CountByMethod() map[Method]int {
	counts := make(map[Method]int, 3)
	for _, a := range o.Assignments {
		counts[a.Method]++
	}
	return counts
}

// NewEngine creates an engine. A nil config means DefaultConfig and a nil
// logger means the global logger.
func NewEngine(config *Config, log logger.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Engine{
		config: config.Clone(),
		logger: log.WithComponent("periods_engine"),
	}
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// InferBounds is InferPeriodBounds with anomaly logging
func (e *Engine) InferBounds(periods []*models.Period) ([]*models.BoundedPeriod, []Anomaly) {
	bounded, anomalies := InferPeriodBounds(periods)
	e.logAnomalies(anomalies)
	return bounded, anomalies
}

// Assign is AssignRecordToPeriod with anomaly logging
func (e *Engine) Assign(record *models.Record, bounded []*models.BoundedPeriod) Assignment {
	a := AssignRecordToPeriod(record, bounded, e.config)
	if a.Anomaly != nil {
		e.logAnomalies([]Anomaly{*a.Anomaly})
	}
	return a
}

// Select is SelectCurrentPeriod with the engine configuration
func (e *Engine) Select(bounded []*models.BoundedPeriod, ref time.Time) Selection {
	selection := SelectCurrentPeriod(bounded, ref, e.config)
	e.logSelection(selection, ref)
	return selection
}

// Reconcile runs every operation for one series of periods: bounds, record
// assignment, totals, current period selection, statuses and the monthly
// spend trend of the assigned records. It never fails; data problems end up
// in Outcome.Anomalies.
func (e *Engine) Reconcile(records []*models.Record, periods []*models.Period, ref time.Time) *Outcome {
	bounded, anomalies := e.InferBounds(periods)
	index := NewPeriodIndex(bounded)

	assignments, assignAnomalies := assignAll(records, index, e.config)
	e.logAnomalies(assignAnomalies)
	anomalies = append(anomalies, assignAnomalies...)

	totals := totalsFromAssignments(index, assignments)
	current := e.Select(bounded, ref)

	statuses := make(map[string]models.PeriodStatus, len(bounded))
	for _, bp := range bounded {
		if _, exists := statuses[bp.ID]; !exists {
			statuses[bp.ID] = EvaluateStatus(bp, totals[bp.ID], ref, e.config)
		}
	}

	var assigned []*models.Record
	for _, a := range assignments {
		if a.Assigned() {
			assigned = append(assigned, a.Record)
		}
	}

	var monthly []MonthlyPoint
	if len(bounded) > 0 {
		to := ref
		if last := bounded[len(bounded)-1]; last.EffectiveEndDate != nil && last.EffectiveEndDate.Before(ref) {
			to = last.EffectiveEndDate.Add(-time.Nanosecond)
		}
		monthly = MonthlySpend(assigned, e.config, bounded[0].StartDate, to)
	}

	outcome := &Outcome{
		Periods:     bounded,
		Assignments: assignments,
		Totals:      totals,
		Current:     current,
		Statuses:    statuses,
		Monthly:     monthly,
		Anomalies:   anomalies,
	}

	methods := outcome.CountByMethod()
	e.logger.WithFields(logger.Fields{
		"periods":        len(bounded),
		"records":        len(assignments),
		"assigned_link":  methods[MethodLink],
		"assigned_date":  methods[MethodDate],
		"unassigned":     methods[MethodNone],
		"anomalies":      len(anomalies),
		"current_rule":   string(current.Rule),
		"reference_date": ref.Format(dateLayout),
	}).Debug("Series reconciled")

	return outcome
}

func (e *Engine) logAnomalies(anomalies []Anomaly) {
	for _, a := range anomalies {
		fields := logger.Fields{
			"anomaly":    string(a.Kind),
			"period_ids": a.PeriodIDs,
		}
		if a.RecordID != "" {
			fields["record_id"] = a.RecordID
		}
		e.logger.WithFields(fields).Warn(a.Message)
	}
}

func (e *Engine) logSelection(s Selection, ref time.Time) {
	fields := logger.Fields{
		"rule":           string(s.Rule),
		"reference_date": ref.Format(dateLayout),
	}
	if s.Period != nil {
		fields["period_id"] = s.Period.ID
	}

	switch {
	case s.Period == nil:
		e.logger.WithFields(fields).Debug("No active period")
	case s.Fallback:
		e.logger.WithFields(fields).Info("No period covers the reference month, showing previous period")
	default:
		e.logger.WithFields(fields).Debug("Current period selected")
	}
}
