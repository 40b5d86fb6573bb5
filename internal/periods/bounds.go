package periods

import (
	"fmt"
	"sort"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// InferPeriodBounds resolves the effective end date of every period in one
// series. Periods are ordered by start date, ties broken by id. A period
// keeps its explicit end date; otherwise it ends where the next period
// starts; the last period without an end date stays open.
//
// Identical start dates, explicit ends that reach into the next period, and
// explicit ends at or before the start are reported as anomalies. Nil periods
// are skipped. The input slice is not modified.
func InferPeriodBounds(periods []*models.Period) ([]*models.BoundedPeriod, []Anomaly) {
	sorted := make([]*models.Period, 0, len(periods))
	for _, p := range periods {
		if p != nil {
			sorted = append(sorted, p)
		}
	}
	sortPeriods(sorted)

	bounded := make([]*models.BoundedPeriod, len(sorted))
	var anomalies []Anomaly

	for i, p := range sorted {
		bp := &models.BoundedPeriod{Period: p}

		var next *models.Period
		if i+1 < len(sorted) {
			next = sorted[i+1]
		}

		switch {
		case p.EndDate != nil:
			end := *p.EndDate
			bp.EffectiveEndDate = &end

			if !end.After(p.StartDate) {
				anomalies = append(anomalies, Anomaly{
					Kind:      AnomalyInvalidRange,
					PeriodIDs: []string{p.ID},
					Message: fmt.Sprintf("end date %s is not after start date %s",
						end.Format(dateLayout), p.StartDate.Format(dateLayout)),
				})
			} else if next != nil && end.After(next.StartDate) {
				anomalies = append(anomalies, Anomaly{
					Kind:      AnomalyOverlap,
					PeriodIDs: []string{p.ID, next.ID},
					Message: fmt.Sprintf("end date %s is after the next period's start %s",
						end.Format(dateLayout), next.StartDate.Format(dateLayout)),
				})
			}
		case next != nil:
			end := next.StartDate
			bp.EffectiveEndDate = &end
			bp.Inferred = true
		}

		bounded[i] = bp
	}

	anomalies = append(anomalies, duplicateStarts(sorted)...)
	return bounded, anomalies
}

// duplicateStarts reports one anomaly per group of periods sharing a start
func duplicateStarts(sorted []*models.Period) []Anomaly {
	var anomalies []Anomaly
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].StartDate.Equal(sorted[i].StartDate) {
			j++
		}

		if j-i > 1 {
			ids := make([]string, 0, j-i)
			for _, p := range sorted[i:j] {
				ids = append(ids, p.ID)
			}
			anomalies = append(anomalies, Anomaly{
				Kind:      AnomalyDuplicateStart,
				PeriodIDs: ids,
				Message: fmt.Sprintf("%d periods start on %s; ordered by id",
					len(ids), sorted[i].StartDate.Format(dateLayout)),
			})
		}
		i = j
	}
	return anomalies
}

// sortPeriods orders by start date, then id ascending
func sortPeriods(periods []*models.Period) {
	sort.SliceStable(periods, func(i, j int) bool {
		a, b := periods[i], periods[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})
}

const dateLayout = "2006-01-02"
