package periods

import (
	"sort"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// GroupBySeries splits periods into their logical series, keyed by
// Period.SeriesKey. Input order is kept inside each group.
func GroupBySeries(periods []*models.Period) map[string][]*models.Period {
	groups := make(map[string][]*models.Period)
	for _, p := range periods {
		if p == nil {
			continue
		}
		key := p.SeriesKey()
		groups[key] = append(groups[key], p)
	}
	return groups
}

// SeriesKeys returns the group keys in sorted order
func SeriesKeys(groups map[string][]*models.Period) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
