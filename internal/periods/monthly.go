package periods

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// MonthlyPoint is one month of a spend trend
type MonthlyPoint struct {
	Month      time.Time       `json:"month"`
	Spent      decimal.Decimal `json:"spent"`
	Inflow     decimal.Decimal `json:"inflow"`
	Cumulative decimal.Decimal `json:"cumulative"`
	Count      int             `json:"count"`
}

// Label returns the month as YYYY-MM
func (m MonthlyPoint) Label() string {
	return m.Month.Format("2006-01")
}

// MonthlySpend buckets dated records by calendar month in the configured
// location, from the month of from through the month of to. Empty months are
// included and Cumulative carries the running spend total. Zero bounds are
// taken from the earliest and latest record dates. Undated records and
// records outside the range are skipped.
func MonthlySpend(records []*models.Record, cfg *Config, from, to time.Time) []MonthlyPoint {
	loc := orDefault(cfg).Location()

	if from.IsZero() || to.IsZero() {
		first, last := dateRange(records)
		if from.IsZero() {
			from = first
		}
		if to.IsZero() {
			to = last
		}
	}
	if from.IsZero() || to.IsZero() {
		return nil
	}

	start := models.MonthOf(from, loc)
	end := models.MonthOf(to, loc)
	if end.Before(start) {
		return nil
	}

	var points []MonthlyPoint
	slot := make(map[string]int)
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		slot[m.Format("2006-01")] = len(points)
		points = append(points, MonthlyPoint{Month: m, Spent: decimal.Zero, Inflow: decimal.Zero})
	}

	for _, r := range records {
		if r == nil || !r.HasDate() {
			continue
		}
		i, ok := slot[models.MonthOf(r.OccurredAt, loc).Format("2006-01")]
		if !ok {
			continue
		}
		switch {
		case r.IsOutflow():
			points[i].Spent = points[i].Spent.Add(r.Amount.Abs())
			points[i].Count++
		case r.IsInflow():
			points[i].Inflow = points[i].Inflow.Add(r.Amount.Abs())
			points[i].Count++
		}
	}

	running := decimal.Zero
	for i := range points {
		running = running.Add(points[i].Spent)
		points[i].Cumulative = running
	}
	return points
}

func dateRange(records []*models.Record) (first, last time.Time) {
	for _, r := range records {
		if r == nil || !r.HasDate() {
			continue
		}
		if first.IsZero() || r.OccurredAt.Before(first) {
			first = r.OccurredAt
		}
		if last.IsZero() || r.OccurredAt.After(last) {
			last = r.OccurredAt
		}
	}
	return first, last
}
