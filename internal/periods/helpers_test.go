package periods

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func budget(id string, start time.Time) *models.Period {
	return &models.Period{
		ID:          id,
		Kind:        models.PeriodKindBudget,
		StartDate:   start,
		LimitAmount: decimal.NewFromInt(100),
	}
}

func closedBudget(id string, start, end time.Time) *models.Period {
	p := budget(id, start)
	p.EndDate = &end
	return p
}

func rec(id string, at time.Time, amount string, links ...models.Link) *models.Record {
	return &models.Record{
		ID:         id,
		OccurredAt: at,
		Amount:     decimal.RequireFromString(amount),
		Links:      links,
	}
}

func budgetLink(id string) models.Link {
	return models.Link{Type: models.LinkTypeBudget, ID: id}
}

func bound(periods ...*models.Period) []*models.BoundedPeriod {
	bounded, _ := InferPeriodBounds(periods)
	return bounded
}

func periodIDs(bounded []*models.BoundedPeriod) []string {
	ids := make([]string, len(bounded))
	for i, bp := range bounded {
		ids[i] = bp.ID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
