package reconciler

import (
	"context"
	"sort"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/periods"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// dedupeRecords drops records whose id was already seen, keeping the first
// occurrence in input order
func (s *Service) dedupeRecords(records []*models.Record) ([]*models.Record, int) {
	seen := make(map[string]bool, len(records))
	unique := make([]*models.Record, 0, len(records))
	duplicates := 0

	for _, record := range records {
		if record == nil {
			continue
		}
		if seen[record.ID] {
			duplicates++
			s.logger.WithField("record_id", record.ID).Warn("Dropping duplicate record")
			continue
		}
		seen[record.ID] = true
		unique = append(unique, record)
	}

	return unique, duplicates
}

// filterKind keeps the periods of the configured kind
func (s *Service) filterKind(periodList []*models.Period, kind models.PeriodKind) ([]*models.Period, int) {
	kept := make([]*models.Period, 0, len(periodList))
	for _, p := range periodList {
		if p != nil && p.Kind == kind {
			kept = append(kept, p)
		}
	}

	skipped := len(periodList) - len(kept)
	if skipped > 0 {
		s.logger.WithFields(logger.Fields{
			"kind":    string(kind),
			"skipped": skipped,
		}).Warn("Ignoring periods of another kind")
	}
	return kept, skipped
}

// reconcileSeries runs the engine once per series and appends the outcomes
// to result in series key order
func (s *Service) reconcileSeries(ctx context.Context, result *Result, records []*models.Record, periodList []*models.Period, filter []string) error {
	groups := periods.GroupBySeries(periodList)
	keys := selectSeries(periods.SeriesKeys(groups), filter)

	if len(filter) > 0 {
		for _, missing := range missingSeries(groups, filter) {
			s.logger.WithField("series", missing).Warn("Requested series has no periods")
		}
	}

	var progress *logger.ProgressTracker
	if s.config.ProgressReporting {
		progress = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "reconcile_series",
			Unit:      "series",
			Total:     int64(len(keys)),
			Logger:    s.logger,
		})
	}

	cfg := s.engine.Config()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return errors.InternalError(errors.CodeCancelled, "reconcile", err)
		}

		series := groups[key]
		scoped := recordsForSeries(records, series, cfg)
		outcome := s.engine.Reconcile(scoped, series, result.ReferenceDate)

		result.Series = append(result.Series, &SeriesResult{
			Key:           key,
			Outcome:       outcome,
			RecordPeriods: outcome.AssignmentMap(),
		})
		result.Anomalies = append(result.Anomalies, outcome.Anomalies...)

		s.logger.WithFields(logger.Fields{
			"series":  key,
			"periods": len(outcome.Periods),
			"records": len(scoped),
		}).Debug("Reconciled series")

		if progress != nil {
			progress.Increment()
		}
	}

	if progress != nil {
		progress.Complete()
	}
	return nil
}

// recordsForSeries narrows the record set for one series. When every period
// of the series is scoped to the same category and category matching is on,
// only records of that category or linked to one of the periods can land in
// it; everything else is left out so monthly totals stay per category.
func recordsForSeries(records []*models.Record, series []*models.Period, cfg *periods.Config) []*models.Record {
	if !cfg.RequireCategoryMatch || len(series) == 0 {
		return records
	}

	category := series[0].CategoryID
	ids := make(map[string]bool, len(series))
	for _, p := range series {
		if p.CategoryID != category {
			return records
		}
		ids[p.ID] = true
	}
	if category == "" {
		return records
	}

	linkType := cfg.Kind.LinkType()
	scoped := make([]*models.Record, 0)
	for _, record := range records {
		if record.CategoryID == category || linkedToAny(record, linkType, ids) {
			scoped = append(scoped, record)
		}
	}
	return scoped
}

func linkedToAny(record *models.Record, linkType models.LinkType, ids map[string]bool) bool {
	for _, link := range record.Links {
		if link.Type == linkType && ids[link.ID] {
			return true
		}
	}
	return false
}

func selectSeries(keys []string, filter []string) []string {
	if len(filter) == 0 {
		return keys
	}

	wanted := make(map[string]bool, len(filter))
	for _, key := range filter {
		wanted[key] = true
	}

	selected := make([]string, 0, len(keys))
	for _, key := range keys {
		if wanted[key] {
			selected = append(selected, key)
		}
	}
	return selected
}

func missingSeries(groups map[string][]*models.Period, filter []string) []string {
	var missing []string
	for _, key := range filter {
		if _, ok := groups[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// buildSummary counts every record once, by the strongest way any series
// assigned it: link beats date beats none. Money totals likewise take each
// assigned record once; per-period totals stay per series.
func (s *Service) buildSummary(result *Result, records []*models.Record) {
	summary := result.Summary
	summary.TotalRecords = len(records)
	summary.SeriesCount = len(result.Series)
	summary.AnomalyCount = len(result.Anomalies)

	best := make(map[string]periods.Method, len(records))
	counted := make(map[string]bool, len(records))
	for _, series := range result.Series {
		summary.PeriodCount += len(series.Periods)

		for _, a := range series.Assignments {
			id := a.RecordID()
			if methodRank(a.Method) > methodRank(best[id]) {
				best[id] = a.Method
			}

			if !a.Assigned() || counted[id] {
				continue
			}
			counted[id] = true
			switch {
			case a.Record.IsOutflow():
				summary.TotalSpent = summary.TotalSpent.Add(a.Record.Amount.Abs())
			case a.Record.IsInflow():
				summary.TotalInflow = summary.TotalInflow.Add(a.Record.Amount.Abs())
			}
		}
	}

	for _, record := range records {
		switch best[record.ID] {
		case periods.MethodLink:
			summary.AssignedByLink++
		case periods.MethodDate:
			summary.AssignedByDate++
		default:
			summary.Unassigned++
		}
	}

	for _, stats := range result.ParseStats {
		summary.ParseErrors += stats.ErrorCount
		summary.ParseWarnings += stats.WarningCount
	}
}

func methodRank(m periods.Method) int {
	switch m {
	case periods.MethodLink:
		return 2
	case periods.MethodDate:
		return 1
	default:
		return 0
	}
}
