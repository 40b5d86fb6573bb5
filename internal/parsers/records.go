package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// RecordParser parses transaction records from JSON or CSV input
type RecordParser struct {
	*BaseParser
	config *RecordParserConfig
}

// NewRecordParser creates a new record parser
func NewRecordParser(config *RecordParserConfig) (*RecordParser, error) {
	if config == nil {
		config = DefaultRecordParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "record_parser", "", err)
	}

	return &RecordParser{
		BaseParser: NewBaseParser(config.CSV, "record_parser"),
		config:     config,
	}, nil
}

// ParseFile parses the records stored in a file
func (rp *RecordParser) ParseFile(ctx context.Context, filePath string) ([]*models.Record, *ParseStats, error) {
	file, err := rp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return rp.Parse(ctx, file, filePath)
}

// Parse parses the records read from r. name identifies the input in errors
// and drives format auto-detection.
func (rp *RecordParser) Parse(ctx context.Context, r io.Reader, name string) ([]*models.Record, *ParseStats, error) {
	rp.logger.WithFields(logger.Fields{
		"file_path":   name,
		"format":      string(rp.config.Format),
		"strict_mode": rp.config.StrictMode,
	}).Info("Starting record parsing")

	data, err := rp.ReadInput(ctx, r, name)
	if err != nil {
		return nil, nil, err
	}

	format := rp.config.Format.Resolve(name, data)
	stats := NewParseStats(name, format)
	records := make([]*models.Record, 0)

	accept := func(line int, raw *models.RawRecord) error {
		stats.RecordsParsed++
		record, warnings, err := raw.Normalize(rp.config.Location)
		if err != nil {
			return rp.reject(stats, rp.config.StrictMode, name, line, err)
		}
		for _, warning := range warnings {
			rp.warn(stats, name, line, warning)
		}
		records = append(records, record)
		stats.RecordsValid++
		return nil
	}

	switch format {
	case FormatJSON:
		err = rp.eachJSONItem(ctx, data, name, func(index int, item json.RawMessage) error {
			var raw models.RawRecord
			if err := json.Unmarshal(item, &raw); err != nil {
				stats.RecordsParsed++
				return rp.reject(stats, rp.config.StrictMode, name, index, err)
			}
			return accept(index, &raw)
		})
		stats.TotalLines = stats.RecordsParsed
	default:
		err = rp.eachCSVRow(ctx, data, name, rp.config.columns(), stats, rp.config.StrictMode,
			func(line int, pc *ParseContext, row []string) error {
				raw, err := rawRecordFromRow(pc, row)
				if err != nil {
					stats.RecordsParsed++
					return rp.reject(stats, rp.config.StrictMode, name, line, err)
				}
				return accept(line, raw)
			})
	}
	if err != nil {
		return nil, stats, err
	}

	rp.logCompletion(stats, "Record")
	return records, stats, nil
}

// rawRecordFromRow maps a CSV row onto the raw payload shape so both formats
// share one normalization path
func rawRecordFromRow(pc *ParseContext, row []string) (*models.RawRecord, error) {
	raw := &models.RawRecord{
		ID:          models.FlexString(pc.Field(row, ColumnID)),
		Amount:      models.FlexString(pc.Field(row, ColumnAmount)),
		Direction:   pc.Field(row, ColumnDirection),
		Currency:    pc.Field(row, ColumnCurrency),
		CategoryID:  models.FlexString(pc.Field(row, ColumnCategory)),
		BookingDate: models.FlexString(pc.Field(row, ColumnBookingDate)),
		ValueDate:   models.FlexString(pc.Field(row, ColumnValueDate)),
		CreatedAt:   models.FlexString(pc.Field(row, ColumnCreatedAt)),
		Date:        models.FlexString(pc.Field(row, ColumnDate)),
	}

	links, err := models.ParseLinks(pc.Field(row, ColumnLinks))
	if err != nil {
		return nil, fmt.Errorf("links: %w", err)
	}
	for _, link := range links {
		raw.Links = append(raw.Links, models.RawLink{Type: string(link.Type), ID: models.FlexString(link.ID)})
	}

	return raw, nil
}
