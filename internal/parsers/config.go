package parsers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
)

// Format identifies the encoding of an input file
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat parses a format name. An empty name means auto-detection.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected json, csv or auto)", s)
	}
}

// Resolve returns the concrete format for an input. Auto-detection looks at
// the file extension first and then at the first non-blank byte.
func (f Format) Resolve(name string, data []byte) Format {
	if f == FormatJSON || f == FormatCSV {
		return f
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// columnSet describes the logical CSV fields of an entity
type columnSet struct {
	aliases  map[string][]string
	required []string
	order    []string // positional layout when the file has no header row
}

// Logical record columns
const (
	ColumnID          = "id"
	ColumnAmount      = "amount"
	ColumnDirection   = "direction"
	ColumnCurrency    = "currency"
	ColumnCategory    = "category_id"
	ColumnBookingDate = "booking_date"
	ColumnValueDate   = "value_date"
	ColumnCreatedAt   = "created_at"
	ColumnDate        = "date"
	ColumnLinks       = "links"
)

// Logical period columns
const (
	ColumnKind      = "kind"
	ColumnSeries    = "series"
	ColumnStartDate = "start_date"
	ColumnEndDate   = "end_date"
	ColumnLimit     = "limit_amount"
	ColumnLimitMode = "limit_mode"
	ColumnStatus    = "status"
)

// DefaultRecordColumns returns the header aliases accepted for each logical
// record column
func DefaultRecordColumns() map[string][]string {
	return map[string][]string{
		ColumnID:          {"id", "transaction_id", "transactionId", "trxID"},
		ColumnAmount:      {"amount", "value"},
		ColumnDirection:   {"direction", "type"},
		ColumnCurrency:    {"currency"},
		ColumnCategory:    {"category_id", "categoryId", "category"},
		ColumnBookingDate: {"booking_date", "bookingDate"},
		ColumnValueDate:   {"value_date", "valueDate"},
		ColumnCreatedAt:   {"created_at", "createdAt"},
		ColumnDate:        {"date", "transaction_date", "transactionTime"},
		ColumnLinks:       {"links"},
	}
}

// DefaultPeriodColumns returns the header aliases accepted for each logical
// period column
func DefaultPeriodColumns() map[string][]string {
	return map[string][]string{
		ColumnID:        {"id", "budget_id", "budgetId"},
		ColumnKind:      {"kind"},
		ColumnSeries:    {"series"},
		ColumnCategory:  {"category_id", "categoryId", "category"},
		ColumnStartDate: {"start_date", "startDate"},
		ColumnEndDate:   {"end_date", "endDate"},
		ColumnLimit:     {"limit_amount", "limitAmount", "amount", "limit"},
		ColumnLimitMode: {"limit_mode", "limitMode"},
		ColumnCurrency:  {"currency"},
		ColumnStatus:    {"status"},
	}
}

var (
	recordColumnOrder = []string{ColumnID, ColumnDate, ColumnAmount, ColumnDirection, ColumnCategory, ColumnCurrency, ColumnLinks}
	periodColumnOrder = []string{ColumnID, ColumnStartDate, ColumnEndDate, ColumnLimit, ColumnCategory, ColumnKind, ColumnSeries}
)

// mergeColumns overlays custom aliases on top of the defaults
func mergeColumns(defaults, custom map[string][]string) map[string][]string {
	merged := make(map[string][]string, len(defaults))
	for field, names := range defaults {
		merged[field] = names
	}
	for field, names := range custom {
		if len(names) > 0 {
			merged[field] = names
		}
	}
	return merged
}

// RecordParserConfig holds configuration for parsing transaction records
type RecordParserConfig struct {
	Format        Format              `json:"format" mapstructure:"format"`
	StrictMode    bool                `json:"strict_mode" mapstructure:"strict_mode"`
	CSV           *ParseConfig        `json:"csv" mapstructure:"csv"`
	ColumnAliases map[string][]string `json:"column_aliases" mapstructure:"column_aliases"`

	// Location reads dates that carry no zone. Nil means UTC.
	Location *time.Location `json:"-" mapstructure:"-"`
}

// DefaultRecordParserConfig returns a default record parser configuration
func DefaultRecordParserConfig() *RecordParserConfig {
	return &RecordParserConfig{
		Format: FormatAuto,
		CSV:    DefaultParseConfig(),
	}
}

// Validate checks if the record parser configuration is valid
func (c *RecordParserConfig) Validate() error {
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return err
	}
	if c.CSV != nil {
		if err := c.CSV.Validate(); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	return validateAliases(c.ColumnAliases, DefaultRecordColumns())
}

func (c *RecordParserConfig) columns() columnSet {
	return columnSet{
		aliases:  mergeColumns(DefaultRecordColumns(), c.ColumnAliases),
		required: []string{ColumnID, ColumnAmount},
		order:    recordColumnOrder,
	}
}

// PeriodParserConfig holds configuration for parsing budget periods
type PeriodParserConfig struct {
	Format        Format              `json:"format" mapstructure:"format"`
	StrictMode    bool                `json:"strict_mode" mapstructure:"strict_mode"`
	DefaultKind   models.PeriodKind   `json:"default_kind" mapstructure:"default_kind"`
	CSV           *ParseConfig        `json:"csv" mapstructure:"csv"`
	ColumnAliases map[string][]string `json:"column_aliases" mapstructure:"column_aliases"`

	// Location reads dates that carry no zone. Nil means UTC.
	Location *time.Location `json:"-" mapstructure:"-"`
}

// DefaultPeriodParserConfig returns a default period parser configuration
func DefaultPeriodParserConfig() *PeriodParserConfig {
	return &PeriodParserConfig{
		Format:      FormatAuto,
		DefaultKind: models.PeriodKindBudget,
		CSV:         DefaultParseConfig(),
	}
}

// Validate checks if the period parser configuration is valid
func (c *PeriodParserConfig) Validate() error {
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return err
	}
	if !c.DefaultKind.IsValid() {
		return fmt.Errorf("invalid default period kind %q", c.DefaultKind)
	}
	if c.CSV != nil {
		if err := c.CSV.Validate(); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	return validateAliases(c.ColumnAliases, DefaultPeriodColumns())
}

func (c *PeriodParserConfig) columns() columnSet {
	return columnSet{
		aliases:  mergeColumns(DefaultPeriodColumns(), c.ColumnAliases),
		required: []string{ColumnID, ColumnStartDate, ColumnLimit},
		order:    periodColumnOrder,
	}
}

func validateAliases(custom, known map[string][]string) error {
	for field := range custom {
		if _, ok := known[field]; !ok {
			return fmt.Errorf("unknown column %q in column aliases", field)
		}
	}
	return nil
}
