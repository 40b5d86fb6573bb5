package periods

import (
	"sort"
	"time"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// PeriodIndex provides id lookups and date searches over bounded periods
type PeriodIndex struct {
	// byID maps period ids to periods; the first period wins on duplicate ids
	byID map[string]*models.BoundedPeriod

	// sorted holds the periods ordered by start date, then id
	sorted []*models.BoundedPeriod
}

// NewPeriodIndex creates an index over a copy of the given periods
func NewPeriodIndex(bounded []*models.BoundedPeriod) *PeriodIndex {
	index := &PeriodIndex{
		byID:   make(map[string]*models.BoundedPeriod, len(bounded)),
		sorted: make([]*models.BoundedPeriod, 0, len(bounded)),
	}

	for _, bp := range bounded {
		if bp == nil || bp.Period == nil {
			continue
		}
		index.sorted = append(index.sorted, bp)
		if _, exists := index.byID[bp.ID]; !exists {
			index.byID[bp.ID] = bp
		}
	}

	sort.SliceStable(index.sorted, func(i, j int) bool {
		a, b := index.sorted[i], index.sorted[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})

	return index
}

// Len returns the number of indexed periods
func (pi *PeriodIndex) Len() int {
	return len(pi.sorted)
}

// Get looks a period up by id
func (pi *PeriodIndex) Get(id string) (*models.BoundedPeriod, bool) {
	bp, ok := pi.byID[id]
	return bp, ok
}

// Periods returns the indexed periods in start order
func (pi *PeriodIndex) Periods() []*models.BoundedPeriod {
	out := make([]*models.BoundedPeriod, len(pi.sorted))
	copy(out, pi.sorted)
	return out
}

// startedBy returns how many periods start at or before t
func (pi *PeriodIndex) startedBy(t time.Time) int {
	return sort.Search(len(pi.sorted), func(i int) bool {
		return pi.sorted[i].StartDate.After(t)
	})
}

// Containing returns every period whose range contains t, in start order.
// More than one result means the series overlaps.
func (pi *PeriodIndex) Containing(t time.Time) []*models.BoundedPeriod {
	if t.IsZero() {
		return nil
	}

	var matches []*models.BoundedPeriod
	for _, bp := range pi.sorted[:pi.startedBy(t)] {
		if bp.Contains(t) {
			matches = append(matches, bp)
		}
	}
	return matches
}

// LatestStartedBy returns the period with the latest start at or before t.
// Among equal starts the last in index order wins.
func (pi *PeriodIndex) LatestStartedBy(t time.Time) *models.BoundedPeriod {
	n := pi.startedBy(t)
	if n == 0 {
		return nil
	}
	return pi.sorted[n-1]
}
