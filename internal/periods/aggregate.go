package periods

import (
	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// PeriodTotals is the aggregate of the records assigned to one period
type PeriodTotals struct {
	PeriodID     string          `json:"periodId"`
	Spent        decimal.Decimal `json:"spent"`
	Inflow       decimal.Decimal `json:"inflow"`
	OutflowCount int             `json:"outflowCount"`
	InflowCount  int             `json:"inflowCount"`
	RecordIDs    []string        `json:"recordIds"`

	Limit     decimal.Decimal `json:"limit"`
	Remaining decimal.Decimal `json:"remaining"`

	// Utilization is Spent/Limit rounded to 4 places, zero for a zero limit
	Utilization decimal.Decimal `json:"utilization"`
}

// Aggregate sums the spend of every period. Only outflow records count
// towards Spent, by absolute amount; inflow records are tracked in Inflow and
// never reduce spend. Unassigned records are ignored. Every period appears in
// the result, with zero totals when nothing matched it.
func Aggregate(bounded []*models.BoundedPeriod, records []*models.Record, cfg *Config) map[string]*PeriodTotals {
	index := NewPeriodIndex(bounded)
	assignments, _ := assignAll(records, index, orDefault(cfg))
	return totalsFromAssignments(index, assignments)
}

func totalsFromAssignments(index *PeriodIndex, assignments []Assignment) map[string]*PeriodTotals {
	totals := make(map[string]*PeriodTotals, index.Len())
	for _, bp := range index.Periods() {
		if _, exists := totals[bp.ID]; exists {
			continue
		}
		totals[bp.ID] = &PeriodTotals{
			PeriodID:  bp.ID,
			Spent:     decimal.Zero,
			Inflow:    decimal.Zero,
			RecordIDs: []string{},
			Limit:     bp.LimitAmount,
		}
	}

	for _, a := range assignments {
		if a.Period == nil || a.Record == nil {
			continue
		}
		t, ok := totals[a.Period.ID]
		if !ok {
			continue
		}
		t.add(a.Record)
	}

	for _, t := range totals {
		t.finalize()
	}
	return totals
}

func (t *PeriodTotals) add(record *models.Record) {
	t.RecordIDs = append(t.RecordIDs, record.ID)
	switch {
	case record.IsOutflow():
		t.Spent = t.Spent.Add(record.Amount.Abs())
		t.OutflowCount++
	case record.IsInflow():
		t.Inflow = t.Inflow.Add(record.Amount.Abs())
		t.InflowCount++
	}
}

func (t *PeriodTotals) finalize() {
	t.Remaining = t.Limit.Sub(t.Spent)
	if t.Limit.IsPositive() {
		t.Utilization = t.Spent.Div(t.Limit).Round(4)
	} else {
		t.Utilization = decimal.Zero
	}
}

// Exceeded reports whether spend passed the limit
func (t *PeriodTotals) Exceeded() bool {
	return t.Spent.GreaterThan(t.Limit)
}
