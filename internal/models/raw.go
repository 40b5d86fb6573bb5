package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexString decodes a JSON string, number or null into a string. Backend
// payloads are inconsistent about quoting ids and amounts.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the trimmed value
func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

func firstNonEmpty(values ...FlexString) string {
	for _, v := range values {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

// RawLink is a link entry as delivered by the API
type RawLink struct {
	Type     string     `json:"type"`
	LinkType string     `json:"link_type"`
	ID       FlexString `json:"id"`
	LinkedID FlexString `json:"linked_entity_id"`
}

// RawRecord carries every field name a transaction payload may use. Normalize
// turns it into a Record once, at the ingestion boundary.
type RawRecord struct {
	ID            FlexString `json:"id"`
	TransactionID FlexString `json:"transaction_id"`
	Amount        FlexString `json:"amount"`
	Direction     string     `json:"direction"`
	Type          string     `json:"type"`
	Currency      string     `json:"currency"`

	CategoryID      FlexString `json:"categoryId"`
	CategoryIDSnake FlexString `json:"category_id"`

	BookingDate      FlexString `json:"bookingDate"`
	BookingDateSnake FlexString `json:"booking_date"`
	ValueDate        FlexString `json:"valueDate"`
	ValueDateSnake   FlexString `json:"value_date"`
	CreatedAt        FlexString `json:"createdAt"`
	CreatedAtSnake   FlexString `json:"created_at"`
	Date             FlexString `json:"date"`

	Links []RawLink `json:"links"`
}

// DateCandidates returns the candidate effective dates in precedence order:
// booking date, value date, creation timestamp, generic date.
func (r *RawRecord) DateCandidates() []FlexString {
	return []FlexString{
		r.BookingDate, r.BookingDateSnake,
		r.ValueDate, r.ValueDateSnake,
		r.CreatedAt, r.CreatedAtSnake,
		r.Date,
	}
}

// ResolveOccurredAt returns the effective date from the first non-empty
// candidate. Later candidates are never consulted: when that value does not
// parse, it returns the zero time and the parse error.
func ResolveOccurredAt(candidates []FlexString, loc *time.Location) (time.Time, error) {
	for _, candidate := range candidates {
		s := candidate.String()
		if s == "" {
			continue
		}
		t, err := ParseTimeInLocation(s, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	return time.Time{}, nil
}

// Normalize converts the raw payload into a Record. Dates without a zone are
// read in loc. Problems that leave the record usable, such as a malformed
// date or an odd currency code, come back as warnings rather than an error.
func (r *RawRecord) Normalize(loc *time.Location) (*Record, []error, error) {
	id := firstNonEmpty(r.ID, r.TransactionID)
	if id == "" {
		return nil, nil, fmt.Errorf("record has no id")
	}

	amount, err := ParseDecimalFromString(r.Amount.String())
	if err != nil {
		return nil, nil, fmt.Errorf("record %s: %w", id, err)
	}

	marker := r.Direction
	if strings.TrimSpace(marker) == "" {
		marker = r.Type
	}
	direction, err := ParseDirection(marker)
	if err != nil {
		return nil, nil, fmt.Errorf("record %s: %w", id, err)
	}

	links := make([]Link, 0, len(r.Links))
	for _, raw := range r.Links {
		typ := raw.Type
		if strings.TrimSpace(typ) == "" {
			typ = raw.LinkType
		}
		linkType, err := ParseLinkType(typ)
		if err != nil {
			return nil, nil, fmt.Errorf("record %s: %w", id, err)
		}
		linkID := firstNonEmpty(raw.ID, raw.LinkedID)
		if linkID == "" {
			return nil, nil, fmt.Errorf("record %s: link of type %s has no id", id, linkType)
		}
		links = append(links, Link{Type: linkType, ID: linkID})
	}

	var warnings []error
	occurredAt, err := ResolveOccurredAt(r.DateCandidates(), loc)
	if err != nil {
		warnings = append(warnings, fmt.Errorf("record %s has a malformed date and can only match by link: %w", id, err))
	}

	record := &Record{
		ID:         id,
		OccurredAt: occurredAt,
		Amount:     amount,
		Direction:  direction,
		Currency:   strings.ToUpper(strings.TrimSpace(r.Currency)),
		CategoryID: firstNonEmpty(r.CategoryID, r.CategoryIDSnake),
	}
	if len(links) > 0 {
		record.Links = links
	}
	if record.Currency != "" && len(record.Currency) != 3 {
		warnings = append(warnings, fmt.Errorf("record %s: currency %q is not a 3-letter code", id, record.Currency))
	}

	if err := record.Validate(); err != nil {
		return nil, nil, err
	}
	return record, warnings, nil
}

// RawPeriod carries every field name a budget or constraint payload may use
type RawPeriod struct {
	ID   FlexString `json:"id"`
	Kind string     `json:"kind"`

	Series          string     `json:"series"`
	CategoryID      FlexString `json:"categoryId"`
	CategoryIDSnake FlexString `json:"category_id"`

	StartDate      FlexString `json:"startDate"`
	StartDateSnake FlexString `json:"start_date"`
	EndDate        FlexString `json:"endDate"`
	EndDateSnake   FlexString `json:"end_date"`

	LimitAmount      FlexString `json:"limitAmount"`
	LimitAmountSnake FlexString `json:"limit_amount"`
	Amount           FlexString `json:"amount"`
	LimitMode        string     `json:"limitMode"`

	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Normalize converts the raw payload into a Period. defaultKind applies when
// the payload carries no kind of its own; dates without a zone are read in loc.
func (r *RawPeriod) Normalize(defaultKind PeriodKind, loc *time.Location) (*Period, error) {
	id := r.ID.String()
	if id == "" {
		return nil, fmt.Errorf("period has no id")
	}

	kind := defaultKind
	if strings.TrimSpace(r.Kind) != "" {
		parsed, err := ParsePeriodKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("period %s: %w", id, err)
		}
		kind = parsed
	}

	startRaw := firstNonEmpty(r.StartDate, r.StartDateSnake)
	if startRaw == "" {
		return nil, fmt.Errorf("period %s has no start date", id)
	}
	start, err := ParseTimeInLocation(startRaw, loc)
	if err != nil {
		return nil, fmt.Errorf("period %s start date: %w", id, err)
	}

	var end *time.Time
	if endRaw := firstNonEmpty(r.EndDate, r.EndDateSnake); endRaw != "" {
		parsed, err := ParseTimeInLocation(endRaw, loc)
		if err != nil {
			return nil, fmt.Errorf("period %s end date: %w", id, err)
		}
		end = &parsed
	}

	limit, err := ParseDecimalFromString(firstNonEmpty(r.LimitAmount, r.LimitAmountSnake, r.Amount))
	if err != nil {
		return nil, fmt.Errorf("period %s limit: %w", id, err)
	}

	status, err := ParsePeriodStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("period %s: %w", id, err)
	}

	period := &Period{
		ID:          id,
		Kind:        kind,
		Series:      strings.TrimSpace(r.Series),
		CategoryID:  firstNonEmpty(r.CategoryID, r.CategoryIDSnake),
		StartDate:   start,
		EndDate:     end,
		LimitAmount: limit,
		LimitMode:   LimitMode(strings.ToUpper(strings.TrimSpace(r.LimitMode))),
		Currency:    strings.ToUpper(strings.TrimSpace(r.Currency)),
		Status:      status,
	}

	if err := period.Validate(); err != nil {
		return nil, err
	}
	return period, nil
}
