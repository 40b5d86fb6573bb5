package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// LinkType tags an explicit association between a record and another entity
type LinkType string

const (
	LinkTypeBudget           LinkType = "BUDGET"
	LinkTypeBudgetConstraint LinkType = "BUDGET_CONSTRAINT"
	LinkTypeGoal             LinkType = "GOAL"
	LinkTypeDebt             LinkType = "DEBT"
)

// String returns the string representation of LinkType
func (l LinkType) String() string {
	return string(l)
}

// IsValid checks if the link type is known
func (l LinkType) IsValid() bool {
	switch l {
	case LinkTypeBudget, LinkTypeBudgetConstraint, LinkTypeGoal, LinkTypeDebt:
		return true
	default:
		return false
	}
}

// Link associates a record with a period, goal or debt by id
type Link struct {
	Type LinkType `json:"type"`
	ID   string   `json:"id"`
}

// String renders the link in TYPE:id form
func (l Link) String() string {
	return fmt.Sprintf("%s:%s", l.Type, l.ID)
}

// Direction is an explicit inflow/outflow marker on a record
type Direction string

const (
	DirectionUnspecified Direction = ""
	DirectionDebit       Direction = "DEBIT"
	DirectionCredit      Direction = "CREDIT"
)

// Record is a single transaction as seen by the period calculator. It is
// immutable once normalized; OccurredAt is zero when no usable date was found.
type Record struct {
	ID         string          `json:"id"`
	OccurredAt time.Time       `json:"occurredAt"`
	Amount     decimal.Decimal `json:"amount"`
	Direction  Direction       `json:"direction,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	CategoryID string          `json:"categoryId,omitempty"`
	Links      []Link          `json:"links,omitempty"`
}

// HasDate reports whether the record carries a usable effective timestamp
func (r *Record) HasDate() bool {
	return !r.OccurredAt.IsZero()
}

// IsOutflow reports whether the record counts towards spend. An explicit
// direction wins over the amount sign.
func (r *Record) IsOutflow() bool {
	switch r.Direction {
	case DirectionDebit:
		return true
	case DirectionCredit:
		return false
	default:
		return r.Amount.IsNegative()
	}
}

// IsInflow mirrors IsOutflow. Zero amounts without a direction are neither.
func (r *Record) IsInflow() bool {
	switch r.Direction {
	case DirectionCredit:
		return true
	case DirectionDebit:
		return false
	default:
		return r.Amount.IsPositive()
	}
}

// LinkedTo returns true if the record has a link of the given type to id
func (r *Record) LinkedTo(linkType LinkType, id string) bool {
	for _, link := range r.Links {
		if link.Type == linkType && link.ID == id {
			return true
		}
	}
	return false
}

// Validate performs basic validation on the Record
func (r *Record) Validate() error {
	var err error
	if strings.TrimSpace(r.ID) == "" {
		err = multierr.Append(err, fmt.Errorf("record ID cannot be empty"))
	}
	for _, link := range r.Links {
		if strings.TrimSpace(link.ID) == "" {
			err = multierr.Append(err, fmt.Errorf("link of type %s has an empty id", link.Type))
		}
	}
	return err
}

// String returns a string representation of the Record
func (r *Record) String() string {
	date := "unknown"
	if r.HasDate() {
		date = r.OccurredAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("Record{ID: %s, Amount: %s, Date: %s, Links: %d}",
		r.ID, r.Amount.String(), date, len(r.Links))
}

// MarshalJSON writes the amount as a string and omits unknown dates
func (r *Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	var occurredAt string
	if r.HasDate() {
		occurredAt = r.OccurredAt.Format(time.RFC3339)
	}
	return json.Marshal(&struct {
		Amount     string `json:"amount"`
		OccurredAt string `json:"occurredAt,omitempty"`
		*Alias
	}{
		Amount:     r.Amount.String(),
		OccurredAt: occurredAt,
		Alias:      (*Alias)(r),
	})
}

// PeriodKind distinguishes the two versioned period entities
type PeriodKind string

const (
	PeriodKindBudget           PeriodKind = "BUDGET"
	PeriodKindBudgetConstraint PeriodKind = "BUDGET_CONSTRAINT"
)

// IsValid checks if the period kind is known
func (k PeriodKind) IsValid() bool {
	return k == PeriodKindBudget || k == PeriodKindBudgetConstraint
}

// LinkType returns the link tag that explicitly associates records with
// periods of this kind
func (k PeriodKind) LinkType() LinkType {
	if k == PeriodKindBudgetConstraint {
		return LinkTypeBudgetConstraint
	}
	return LinkTypeBudget
}

// DefaultLimitMode returns how LimitAmount is interpreted for the kind
func (k PeriodKind) DefaultLimitMode() LimitMode {
	if k == PeriodKindBudgetConstraint {
		return LimitModeFloor
	}
	return LimitModeCeiling
}

// LimitMode says whether LimitAmount is a ceiling or a floor
type LimitMode string

const (
	LimitModeCeiling LimitMode = "CEILING"
	LimitModeFloor   LimitMode = "FLOOR"
)

// PeriodStatus is the display label of a period
type PeriodStatus string

const (
	StatusActive   PeriodStatus = "active"
	StatusWarning  PeriodStatus = "warning"
	StatusExceeded PeriodStatus = "exceeded"
	StatusEnded    PeriodStatus = "ended"
	StatusPaused   PeriodStatus = "paused"
)

// Period is one versioned instance of a recurring monetary boundary
type Period struct {
	ID          string          `json:"id"`
	Kind        PeriodKind      `json:"kind"`
	Series      string          `json:"series,omitempty"`
	CategoryID  string          `json:"categoryId,omitempty"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	LimitAmount decimal.Decimal `json:"limitAmount"`
	LimitMode   LimitMode       `json:"limitMode,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Status      PeriodStatus    `json:"status,omitempty"`
}

// SeriesKey identifies the logical series the period belongs to
func (p *Period) SeriesKey() string {
	if p.Series != "" {
		return p.Series
	}
	return p.CategoryID
}

// Mode returns the configured limit mode or the kind's default
func (p *Period) Mode() LimitMode {
	if p.LimitMode != "" {
		return p.LimitMode
	}
	return p.Kind.DefaultLimitMode()
}

// Validate reports every problem with the period at once
func (p *Period) Validate() error {
	var err error
	if strings.TrimSpace(p.ID) == "" {
		err = multierr.Append(err, fmt.Errorf("period ID cannot be empty"))
	}
	if !p.Kind.IsValid() {
		err = multierr.Append(err, fmt.Errorf("invalid period kind: %q", p.Kind))
	}
	if p.StartDate.IsZero() {
		err = multierr.Append(err, fmt.Errorf("period %s has no start date", p.ID))
	}
	if p.LimitAmount.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("period %s limit cannot be negative: %s", p.ID, p.LimitAmount))
	}
	if p.LimitMode != "" && p.LimitMode != LimitModeCeiling && p.LimitMode != LimitModeFloor {
		err = multierr.Append(err, fmt.Errorf("invalid limit mode: %q", p.LimitMode))
	}
	return err
}

// String returns a string representation of the Period
func (p *Period) String() string {
	end := "open"
	if p.EndDate != nil {
		end = p.EndDate.Format("2006-01-02")
	}
	return fmt.Sprintf("Period{ID: %s, Kind: %s, Start: %s, End: %s, Limit: %s}",
		p.ID, p.Kind, p.StartDate.Format("2006-01-02"), end, p.LimitAmount.String())
}

// MarshalJSON writes dates as YYYY-MM-DD and the limit as a string
func (p *Period) MarshalJSON() ([]byte, error) {
	type Alias Period
	var end *string
	if p.EndDate != nil {
		s := p.EndDate.Format("2006-01-02")
		end = &s
	}
	return json.Marshal(&struct {
		StartDate   string  `json:"startDate"`
		EndDate     *string `json:"endDate,omitempty"`
		LimitAmount string  `json:"limitAmount"`
		*Alias
	}{
		StartDate:   p.StartDate.Format("2006-01-02"),
		EndDate:     end,
		LimitAmount: p.LimitAmount.String(),
		Alias:       (*Alias)(p),
	})
}

// BoundedPeriod is a period with its effective end date resolved. A nil
// EffectiveEndDate means the period is open-ended.
type BoundedPeriod struct {
	*Period
	EffectiveEndDate *time.Time `json:"effectiveEndDate,omitempty"`
	Inferred         bool       `json:"inferred,omitempty"`
}

// Contains reports whether t falls in [StartDate, EffectiveEndDate)
func (bp *BoundedPeriod) Contains(t time.Time) bool {
	if t.IsZero() || t.Before(bp.StartDate) {
		return false
	}
	return bp.EffectiveEndDate == nil || t.Before(*bp.EffectiveEndDate)
}

// EndedBy reports whether the period's effective end is at or before t
func (bp *BoundedPeriod) EndedBy(t time.Time) bool {
	return bp.EffectiveEndDate != nil && !bp.EffectiveEndDate.After(t)
}

// MarshalJSON flattens the embedded period next to the resolved bounds
func (bp *BoundedPeriod) MarshalJSON() ([]byte, error) {
	periodJSON, err := bp.Period.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(periodJSON, &fields); err != nil {
		return nil, err
	}
	if bp.EffectiveEndDate != nil {
		fields["effectiveEndDate"] = bp.EffectiveEndDate.Format("2006-01-02")
	}
	fields["inferred"] = bp.Inferred
	return json.Marshal(fields)
}
