package periods

import (
	"time"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// Rule names the precedence step that produced a Selection
type Rule string

const (
	RuleCalendarMonth Rule = "calendar_month"
	RuleLatestPast    Rule = "latest_past"
	RuleNone          Rule = "none"
)

// Selection is the period a user is currently in. Fallback is set when no
// period covers the reference month and the most recent past period is shown
// instead; callers must present that state as such.
type Selection struct {
	Period   *models.BoundedPeriod `json:"period"`
	Rule     Rule                  `json:"rule"`
	Fallback bool                  `json:"fallback"`
}

// Found reports whether any period was selected
func (s Selection) Found() bool {
	return s.Period != nil
}

// SelectCurrentPeriod picks the current period for ref:
//
//  1. a period containing ref whose start falls in ref's calendar month
//  2. otherwise the period with the latest start at or before ref, as a fallback
//  3. otherwise nothing
//
// Months are evaluated in the configured location. Overlaps resolve to the
// latest start, with ties going to the period that sorts last.
func SelectCurrentPeriod(bounded []*models.BoundedPeriod, ref time.Time, cfg *Config) Selection {
	cfg = orDefault(cfg)
	index := NewPeriodIndex(bounded)
	loc := cfg.Location()

	containing := index.Containing(ref)
	for i := len(containing) - 1; i >= 0; i-- {
		if models.SameMonth(containing[i].StartDate, ref, loc) {
			return Selection{Period: containing[i], Rule: RuleCalendarMonth}
		}
	}

	if bp := index.LatestStartedBy(ref); bp != nil {
		return Selection{Period: bp, Rule: RuleLatestPast, Fallback: true}
	}

	return Selection{Rule: RuleNone}
}
