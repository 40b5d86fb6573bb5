package periods

import (
	"fmt"
	"strings"
)

// AnomalyKind classifies a data-quality problem found while resolving periods
type AnomalyKind string

const (
	// AnomalyDuplicateStart marks periods of one series sharing a start date
	AnomalyDuplicateStart AnomalyKind = "duplicate_start"

	// AnomalyOverlap marks an explicit end date reaching past the next start
	AnomalyOverlap AnomalyKind = "overlap"

	// AnomalyInvalidRange marks an explicit end date at or before the start
	AnomalyInvalidRange AnomalyKind = "invalid_range"

	// AnomalyMultipleDateMatch marks a record whose date falls in several periods
	AnomalyMultipleDateMatch AnomalyKind = "multiple_date_match"
)

// Anomaly is a non-fatal data problem. The calculator always resolves it
// deterministically and keeps going.
type Anomaly struct {
	Kind      AnomalyKind `json:"kind"`
	PeriodIDs []string    `json:"periodIds"`
	RecordID  string      `json:"recordId,omitempty"`
	Message   string      `json:"message"`
}

// String returns a one-line description of the anomaly
func (a Anomaly) String() string {
	subject := strings.Join(a.PeriodIDs, ",")
	if a.RecordID != "" {
		subject = fmt.Sprintf("record %s -> %s", a.RecordID, subject)
	}
	return fmt.Sprintf("[%s] %s: %s", a.Kind, subject, a.Message)
}

// CountAnomalies tallies anomalies by kind
func CountAnomalies(anomalies []Anomaly) map[AnomalyKind]int {
	counts := make(map[AnomalyKind]int)
	for _, a := range anomalies {
		counts[a.Kind]++
	}
	return counts
}
