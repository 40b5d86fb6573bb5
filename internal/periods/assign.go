package periods

import (
	"fmt"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// Method records how a record was matched to its period
type Method string

const (
	MethodLink Method = "link"
	MethodDate Method = "date"
	MethodNone Method = "none"
)

// Assignment is the outcome of matching one record against a series
type Assignment struct {
	Record  *models.Record        `json:"-"`
	Period  *models.BoundedPeriod `json:"-"`
	Method  Method                `json:"method"`
	Anomaly *Anomaly              `json:"anomaly,omitempty"`
}

// RecordID returns the id of the assigned record
func (a Assignment) RecordID() string {
	if a.Record == nil {
		return ""
	}
	return a.Record.ID
}

// PeriodID returns the matched period id, or nil when unassigned
func (a Assignment) PeriodID() *string {
	if a.Period == nil {
		return nil
	}
	id := a.Period.ID
	return &id
}

// Assigned reports whether the record matched a period
func (a Assignment) Assigned() bool {
	return a.Period != nil
}

// AssignRecordToPeriod finds the period a record belongs to.
//
// An explicit link whose type matches a period's kind and whose id is in the
// set wins, even when the record's date lies outside that period. Otherwise
// the record's date is matched against [start, effective end). When several
// periods contain the date, the latest start wins and an anomaly is attached.
// Records without a usable date and without a link stay unassigned.
func AssignRecordToPeriod(record *models.Record, bounded []*models.BoundedPeriod, cfg *Config) Assignment {
	return assign(record, NewPeriodIndex(bounded), orDefault(cfg))
}

// AssignAll assigns every record against one index and collects the
// anomalies raised along the way. Assignments keep the input order.
func AssignAll(records []*models.Record, bounded []*models.BoundedPeriod, cfg *Config) ([]Assignment, []Anomaly) {
	return assignAll(records, NewPeriodIndex(bounded), orDefault(cfg))
}

// AssignmentMap converts assignments into recordId -> periodId, with nil for
// unassigned records
func AssignmentMap(assignments []Assignment) map[string]*string {
	out := make(map[string]*string, len(assignments))
	for _, a := range assignments {
		if a.Record == nil {
			continue
		}
		out[a.Record.ID] = a.PeriodID()
	}
	return out
}

func assignAll(records []*models.Record, index *PeriodIndex, cfg *Config) ([]Assignment, []Anomaly) {
	assignments := make([]Assignment, 0, len(records))
	var anomalies []Anomaly

	for _, record := range records {
		if record == nil {
			continue
		}
		a := assign(record, index, cfg)
		if a.Anomaly != nil {
			anomalies = append(anomalies, *a.Anomaly)
		}
		assignments = append(assignments, a)
	}

	return assignments, anomalies
}

func assign(record *models.Record, index *PeriodIndex, cfg *Config) Assignment {
	if record == nil {
		return Assignment{Method: MethodNone}
	}

	// Links are checked in record order; the first one pointing into the set wins.
	for _, link := range record.Links {
		bp, ok := index.Get(link.ID)
		if ok && bp.Kind.LinkType() == link.Type {
			return Assignment{Record: record, Period: bp, Method: MethodLink}
		}
	}

	if !record.HasDate() {
		return Assignment{Record: record, Method: MethodNone}
	}

	var candidates []*models.BoundedPeriod
	for _, bp := range index.Containing(record.OccurredAt) {
		if categoryAllowed(record, bp, cfg) {
			candidates = append(candidates, bp)
		}
	}

	switch len(candidates) {
	case 0:
		return Assignment{Record: record, Method: MethodNone}
	case 1:
		return Assignment{Record: record, Period: candidates[0], Method: MethodDate}
	}

	// Candidates are in start order, so the last one has the latest start.
	chosen := candidates[len(candidates)-1]
	ids := make([]string, len(candidates))
	for i, bp := range candidates {
		ids[i] = bp.ID
	}

	return Assignment{
		Record: record,
		Period: chosen,
		Method: MethodDate,
		Anomaly: &Anomaly{
			Kind:      AnomalyMultipleDateMatch,
			PeriodIDs: ids,
			RecordID:  record.ID,
			Message: fmt.Sprintf("date %s falls in %d periods; chose %s",
				record.OccurredAt.Format(dateLayout), len(candidates), chosen.ID),
		},
	}
}

func categoryAllowed(record *models.Record, bp *models.BoundedPeriod, cfg *Config) bool {
	if !cfg.RequireCategoryMatch || bp.CategoryID == "" {
		return true
	}
	return record.CategoryID == bp.CategoryID
}
