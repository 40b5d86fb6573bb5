// Package periods resolves recurring budget periods against transaction
// records.
//
// A series of versioned periods (budgets or budget constraints) rarely carries
// explicit end dates. The calculator infers each period's effective end from
// the next period's start, assigns every record to at most one period (explicit
// links first, then date range), aggregates spend per period, and picks the
// period the user is currently in.
//
// Every function in this package is pure: inputs are never mutated, sorting
// happens on copies, and data problems are reported as Anomaly values instead
// of errors. Functions are safe for concurrent use.
//
// Example usage:
//
//	cfg := periods.DefaultConfig()
//	bounded, anomalies := periods.InferPeriodBounds(budgetVersions)
//	totals := periods.Aggregate(bounded, records, cfg)
//	current := periods.SelectCurrentPeriod(bounded, time.Now(), cfg)
package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// TimezoneMode selects the location used for calendar-month comparisons.
// Range checks always compare instants and are unaffected.
type TimezoneMode int

const (
	// TimezoneUTC evaluates calendar months in UTC
	TimezoneUTC TimezoneMode = iota

	// TimezoneLocal evaluates calendar months in the system timezone
	TimezoneLocal

	// TimezoneBusiness evaluates calendar months in BusinessTimezone.
	// Use this when users live far from UTC and a late-evening transaction
	// on the last day of the month must still count for that month.
	TimezoneBusiness
)

// String returns the string representation of TimezoneMode
func (tm TimezoneMode) String() string {
	switch tm {
	case TimezoneUTC:
		return "UTC"
	case TimezoneLocal:
		return "Local"
	case TimezoneBusiness:
		return "Business"
	default:
		return "Unknown"
	}
}

// Config holds the calculator settings shared by every operation
type Config struct {
	// Kind is the period kind being reconciled. It decides which link tag
	// counts as an explicit association.
	Kind models.PeriodKind `json:"kind" mapstructure:"kind"`

	// TimezoneHandling defines where calendar months begin and end
	TimezoneHandling TimezoneMode `json:"timezone_handling" mapstructure:"timezone_handling"`

	// BusinessTimezone is an IANA name, used with TimezoneBusiness
	BusinessTimezone string `json:"business_timezone" mapstructure:"business_timezone"`

	// RequireCategoryMatch restricts date matching of category-scoped periods
	// to records of the same category. Explicit links are never filtered.
	RequireCategoryMatch bool `json:"require_category_match" mapstructure:"require_category_match"`

	// WarningThreshold is the utilization (0..1) at which a ceiling period
	// turns to warning
	WarningThreshold decimal.Decimal `json:"warning_threshold" mapstructure:"warning_threshold"`
}

// DefaultConfig returns the configuration used by the budget screens
func DefaultConfig() *Config {
	return &Config{
		Kind:                 models.PeriodKindBudget,
		TimezoneHandling:     TimezoneUTC,
		BusinessTimezone:     "UTC",
		RequireCategoryMatch: true,
		WarningThreshold:     decimal.RequireFromString("0.8"),
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if !c.Kind.IsValid() {
		return fmt.Errorf("invalid period kind: %q", c.Kind)
	}

	switch c.TimezoneHandling {
	case TimezoneUTC, TimezoneLocal:
	case TimezoneBusiness:
		if _, err := time.LoadLocation(c.BusinessTimezone); err != nil {
			return fmt.Errorf("invalid business timezone '%s': %w", c.BusinessTimezone, err)
		}
	default:
		return fmt.Errorf("invalid timezone handling: %d", c.TimezoneHandling)
	}

	if c.WarningThreshold.IsNegative() || c.WarningThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("warning threshold must be between 0 and 1: %s", c.WarningThreshold)
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// SetTimezone configures the month location from a user supplied name:
// "" or "UTC", "Local", or any IANA zone name.
func (c *Config) SetTimezone(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utc":
		c.TimezoneHandling = TimezoneUTC
		c.BusinessTimezone = "UTC"
		return nil
	case "local":
		c.TimezoneHandling = TimezoneLocal
		return nil
	}

	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown timezone '%s': %w", name, err)
	}
	c.TimezoneHandling = TimezoneBusiness
	c.BusinessTimezone = name
	return nil
}

// Location returns the location calendar months are evaluated in. An
// unloadable business timezone falls back to UTC.
func (c *Config) Location() *time.Location {
	switch c.TimezoneHandling {
	case TimezoneLocal:
		return time.Local
	case TimezoneBusiness:
		if loc, err := time.LoadLocation(c.BusinessTimezone); err == nil {
			return loc
		}
		return time.UTC
	default:
		return time.UTC
	}
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	tz := c.TimezoneHandling.String()
	if c.TimezoneHandling == TimezoneBusiness {
		tz = c.BusinessTimezone
	}
	return fmt.Sprintf("Config{Kind: %s, Timezone: %s, RequireCategoryMatch: %t, WarningThreshold: %s}",
		c.Kind, tz, c.RequireCategoryMatch, c.WarningThreshold)
}

func orDefault(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return cfg
}
