package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Accounting style negatives: (12.50)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	for _, symbol := range []string{"$", "€", "£", "¥", "₫", ","} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}

	return d, nil
}

// ParseTimeWithFormats parses a time in any of the formats seen in backend
// payloads and exported CSV files. Values without a zone are read as UTC.
func ParseTimeWithFormats(s string) (time.Time, error) {
	return ParseTimeInLocation(s, time.UTC)
}

var (
	// zonedLayouts carry their own offset, or a literal Z
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"Jan 2, 2006",
	}
)

// ParseTimeInLocation is ParseTimeWithFormats with values that carry no zone,
// including plain dates, read as wall time in loc. A nil loc means UTC.
func ParseTimeInLocation(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	var lastErr error
	for _, layout := range zonedLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseDirection parses an explicit inflow/outflow marker. Empty input yields
// DirectionUnspecified so the amount sign decides.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DirectionUnspecified, nil
	case "DEBIT", "D", "DR", "EXPENSE", "OUT", "OUTFLOW":
		return DirectionDebit, nil
	case "CREDIT", "C", "CR", "INCOME", "IN", "INFLOW":
		return DirectionCredit, nil
	default:
		return DirectionUnspecified, fmt.Errorf("invalid direction '%s': must be DEBIT or CREDIT", s)
	}
}

// ParseLinkType parses a link tag, accepting the spellings used by the API
func ParseLinkType(s string) (LinkType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	switch normalized {
	case "BUDGET":
		return LinkTypeBudget, nil
	case "BUDGET_CONSTRAINT", "CONSTRAINT":
		return LinkTypeBudgetConstraint, nil
	case "GOAL":
		return LinkTypeGoal, nil
	case "DEBT":
		return LinkTypeDebt, nil
	default:
		return "", fmt.Errorf("invalid link type '%s'", s)
	}
}

// ParseLinks parses the compact "TYPE:id;TYPE:id" form used in CSV exports
func ParseLinks(s string) ([]Link, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var links []Link
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		typ, id, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid link '%s': expected TYPE:id", part)
		}

		linkType, err := ParseLinkType(typ)
		if err != nil {
			return nil, err
		}
		links = append(links, Link{Type: linkType, ID: strings.TrimSpace(id)})
	}

	return links, nil
}

// ParsePeriodKind parses budget/constraint names
func ParsePeriodKind(s string) (PeriodKind, error) {
	linkType, err := ParseLinkType(s)
	if err != nil {
		return "", fmt.Errorf("invalid period kind '%s': must be budget or constraint", s)
	}

	switch linkType {
	case LinkTypeBudget:
		return PeriodKindBudget, nil
	case LinkTypeBudgetConstraint:
		return PeriodKindBudgetConstraint, nil
	default:
		return "", fmt.Errorf("invalid period kind '%s': must be budget or constraint", s)
	}
}

// ParsePeriodStatus parses a status label. Unknown labels are rejected.
func ParsePeriodStatus(s string) (PeriodStatus, error) {
	status := PeriodStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case "", StatusActive, StatusWarning, StatusExceeded, StatusEnded, StatusPaused:
		return status, nil
	default:
		return "", fmt.Errorf("invalid period status '%s'", s)
	}
}

// MonthOf returns midnight on the first day of t's month in loc
func MonthOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// SameMonth reports whether a and b share a calendar month and year in loc
func SameMonth(a, b time.Time, loc *time.Location) bool {
	return MonthOf(a, loc).Equal(MonthOf(b, loc))
}
