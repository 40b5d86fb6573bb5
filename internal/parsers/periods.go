package parsers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// PeriodParser parses budget and budget-constraint snapshots
type PeriodParser struct {
	*BaseParser
	config *PeriodParserConfig
}

// NewPeriodParser creates a new period parser
func NewPeriodParser(config *PeriodParserConfig) (*PeriodParser, error) {
	if config == nil {
		config = DefaultPeriodParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "period_parser", "", err)
	}

	return &PeriodParser{
		BaseParser: NewBaseParser(config.CSV, "period_parser"),
		config:     config,
	}, nil
}

// ParseFile parses the periods stored in a file
func (pp *PeriodParser) ParseFile(ctx context.Context, filePath string) ([]*models.Period, *ParseStats, error) {
	file, err := pp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return pp.Parse(ctx, file, filePath)
}

// Parse parses the periods read from r
func (pp *PeriodParser) Parse(ctx context.Context, r io.Reader, name string) ([]*models.Period, *ParseStats, error) {
	pp.logger.WithFields(logger.Fields{
		"file_path":    name,
		"format":       string(pp.config.Format),
		"default_kind": string(pp.config.DefaultKind),
	}).Info("Starting period parsing")

	data, err := pp.ReadInput(ctx, r, name)
	if err != nil {
		return nil, nil, err
	}

	format := pp.config.Format.Resolve(name, data)
	stats := NewParseStats(name, format)
	periods := make([]*models.Period, 0)

	accept := func(line int, raw *models.RawPeriod) error {
		stats.RecordsParsed++
		period, err := raw.Normalize(pp.config.DefaultKind, pp.config.Location)
		if err != nil {
			return pp.reject(stats, pp.config.StrictMode, name, line, err)
		}
		periods = append(periods, period)
		stats.RecordsValid++
		return nil
	}

	switch format {
	case FormatJSON:
		err = pp.eachJSONItem(ctx, data, name, func(index int, item json.RawMessage) error {
			var raw models.RawPeriod
			if err := json.Unmarshal(item, &raw); err != nil {
				stats.RecordsParsed++
				return pp.reject(stats, pp.config.StrictMode, name, index, err)
			}
			return accept(index, &raw)
		})
		stats.TotalLines = stats.RecordsParsed
	default:
		err = pp.eachCSVRow(ctx, data, name, pp.config.columns(), stats, pp.config.StrictMode,
			func(line int, pc *ParseContext, row []string) error {
				return accept(line, rawPeriodFromRow(pc, row))
			})
	}
	if err != nil {
		return nil, stats, err
	}

	pp.logCompletion(stats, "Period")
	return periods, stats, nil
}

func rawPeriodFromRow(pc *ParseContext, row []string) *models.RawPeriod {
	return &models.RawPeriod{
		ID:          models.FlexString(pc.Field(row, ColumnID)),
		Kind:        pc.Field(row, ColumnKind),
		Series:      pc.Field(row, ColumnSeries),
		CategoryID:  models.FlexString(pc.Field(row, ColumnCategory)),
		StartDate:   models.FlexString(pc.Field(row, ColumnStartDate)),
		EndDate:     models.FlexString(pc.Field(row, ColumnEndDate)),
		LimitAmount: models.FlexString(pc.Field(row, ColumnLimit)),
		LimitMode:   pc.Field(row, ColumnLimitMode),
		Currency:    pc.Field(row, ColumnCurrency),
		Status:      pc.Field(row, ColumnStatus),
	}
}
