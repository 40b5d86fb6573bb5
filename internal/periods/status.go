package periods

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// EvaluateStatus derives the display status of a period at ref.
//
// A paused period stays paused. Ceiling periods (budgets) are exceeded once
// spend passes the limit, ended once their effective end is reached, and in
// warning when utilization reaches the threshold. Floor periods (constraints)
// only resolve at the end: warning when spend fell short of the floor,
// ended otherwise.
func EvaluateStatus(bp *models.BoundedPeriod, totals *PeriodTotals, ref time.Time, cfg *Config) models.PeriodStatus {
	if bp == nil || bp.Period == nil {
		return ""
	}
	if bp.Status == models.StatusPaused {
		return models.StatusPaused
	}

	cfg = orDefault(cfg)
	spent := decimal.Zero
	if totals != nil {
		spent = totals.Spent
	}
	limit := bp.LimitAmount
	ended := bp.EndedBy(ref)

	if bp.Mode() == models.LimitModeFloor {
		switch {
		case ended && spent.LessThan(limit):
			return models.StatusWarning
		case ended:
			return models.StatusEnded
		default:
			return models.StatusActive
		}
	}

	switch {
	case spent.GreaterThan(limit):
		return models.StatusExceeded
	case ended:
		return models.StatusEnded
	case limit.IsPositive() && spent.Div(limit).GreaterThanOrEqual(cfg.WarningThreshold):
		return models.StatusWarning
	default:
		return models.StatusActive
	}
}
