// Package parsers reads transaction records and budget period snapshots from
// JSON and CSV files.
//
// Both parsers accept the payload shapes produced by the backend: a bare JSON
// array, an envelope object carrying the array under "data", "items" or
// "results", or a CSV export with a header row. Field names vary between
// endpoints and exports (camelCase, snake_case, legacy names), so every
// logical field is resolved through a list of aliases.
//
// Invalid entries are skipped and counted in ParseStats unless StrictMode is
// set, in which case the first invalid entry aborts parsing.
//
// Example usage:
//
//	parser, err := parsers.NewRecordParser(parsers.DefaultRecordParserConfig())
//	records, stats, err := parser.ParseFile(ctx, "transactions.json")
//	fmt.Println(stats)
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// ParseError represents a problem with a single CSV row or JSON item
type ParseError struct {
	Line    int // CSV line, or 1-based item index for JSON
	Column  string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	location := fmt.Sprintf("line %d", e.Line)
	if e.Column != "" {
		location = fmt.Sprintf("%s, column %s", location, e.Column)
	}
	if e.Value != "" {
		location = fmt.Sprintf("%s ('%s')", location, e.Value)
	}
	return fmt.Sprintf("parse error at %s: %s", location, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool `json:"has_header" mapstructure:"has_header"`
	Delimiter        rune `json:"delimiter" mapstructure:"delimiter"`
	Comment          rune `json:"comment" mapstructure:"comment"`
	TrimLeadingSpace bool `json:"trim_leading_space" mapstructure:"trim_leading_space"`
	SkipEmptyRows    bool `json:"skip_empty_rows" mapstructure:"skip_empty_rows"`
	MaxFieldSize     int  `json:"max_field_size" mapstructure:"max_field_size"`
	ValidateEncoding bool `json:"validate_encoding" mapstructure:"validate_encoding"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
	}
}

// Validate checks if the CSV configuration is usable
func (pc *ParseConfig) Validate() error {
	if pc.Delimiter == 0 || pc.Delimiter == '\n' || pc.Delimiter == '\r' || pc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", pc.Delimiter)
	}
	if pc.Comment != 0 && pc.Comment == pc.Delimiter {
		return fmt.Errorf("comment character cannot equal the delimiter")
	}
	if pc.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative: %d", pc.MaxFieldSize)
	}
	return nil
}

// BaseParser provides the file, encoding and CSV handling shared by the
// record and period parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser logging under the given component
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent(component)
	log.WithFields(logger.Fields{
		"has_header":        config.HasHeader,
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
		"max_field_size":    config.MaxFieldSize,
	}).Debug("Created parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// OpenFile opens an input file and maps failures to file errors
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening input file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open input file")

		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		default:
			return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	return file, nil
}

// ReadInput reads the whole input, strips a UTF-8 byte order mark and checks
// the encoding when configured. Empty input is a validation error.
func (bp *BaseParser) ReadInput(ctx context.Context, r io.Reader, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "reading "+name, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"file_content",
			nil,
			fmt.Errorf("%s is empty", name),
		).WithSuggestion("Ensure the file contains data")
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(data, name); err != nil {
			bp.logger.WithError(err).WithField("file_path", name).Error("File encoding validation failed")
			return nil, err
		}
	}

	return data, nil
}

// validateEncoding checks that the input is valid UTF-8, reporting the first
// offending line
func (bp *BaseParser) validateEncoding(data []byte, name string) error {
	if utf8.Valid(data) {
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), len(data)+1)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			break
		}
	}

	return errors.ParseError(
		errors.CodeEncodingError,
		name,
		lineNum,
		"encoding",
		"",
		fmt.Errorf("invalid UTF-8 encoding detected"),
	).WithSuggestion("Save the file in UTF-8 encoding and try again")
}

// NewCSVReader creates a csv.Reader configured from ParseConfig
func (bp *BaseParser) NewCSVReader(data []byte) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1 // Variable number of fields
	return reader
}

// ParseContext holds state during CSV parsing
type ParseContext struct {
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int

	// columns maps logical field names to resolved column indices
	columns map[string]int
	ctx     context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		HeaderMap: make(map[string]int),
		columns:   make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a header by name, or -1 if not found.
// The lookup ignores case.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	for header, index := range pc.HeaderMap {
		if strings.EqualFold(header, name) {
			return index
		}
	}

	return -1
}

// resolveColumns maps each logical field to the first alias present in the
// header row
func (pc *ParseContext) resolveColumns(aliases map[string][]string) {
	pc.columns = make(map[string]int, len(aliases))
	for field, names := range aliases {
		for _, name := range names {
			if index := pc.GetColumnIndex(name); index != -1 {
				pc.columns[field] = index
				break
			}
		}
	}
}

// HasField reports whether a logical field was resolved to a column
func (pc *ParseContext) HasField(field string) bool {
	_, ok := pc.columns[field]
	return ok
}

// Field returns the trimmed value of a logical field in record, or "" when
// the column is absent or the row is short
func (pc *ParseContext) Field(record []string, field string) string {
	index, ok := pc.columns[field]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ReadHeaders reads the header row, resolves aliases and checks that every
// required logical field has a column. Without a header row the columns are
// taken positionally from defaultOrder.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, name string, aliases map[string][]string, required, defaultOrder []string) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = append([]string(nil), defaultOrder...)
		bp.buildHeaderMap(parseCtx)
		parseCtx.resolveColumns(aliases)
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using default headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				nil,
				fmt.Errorf("%s has no header row", name),
			).WithSuggestion("Ensure the file contains header and data rows")
		}

		bp.logger.WithError(err).Error("Failed to read header row")
		return errors.ParseError(errors.CodeInvalidFormat, name, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber, _ = reader.FieldPos(0)
	parseCtx.Headers = cleanHeaders(headers)
	bp.buildHeaderMap(parseCtx)
	parseCtx.resolveColumns(aliases)

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")

	var missing []string
	for _, field := range required {
		if !parseCtx.HasField(field) {
			missing = append(missing, fmt.Sprintf("%s (one of %s)", field, strings.Join(aliases[field], ", ")))
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_columns":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required columns are missing")

		return errors.ParseError(
			errors.CodeMissingColumn,
			name,
			parseCtx.LineNumber,
			"headers",
			strings.Join(missing, "; "),
			nil,
		)
	}

	return nil
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext) {
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		if _, exists := parseCtx.HeaderMap[header]; !exists {
			parseCtx.HeaderMap[header] = i
		}
	}
}

// ReadRecord reads the next non-empty CSV row. It returns io.EOF at the end
// of input and a cancellation error once the context is done.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			bp.logger.Debug("Record reading cancelled by context")
			return nil, errors.InternalError(errors.CodeCancelled, "csv_parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				parseCtx.LineNumber = csvErr.StartLine
			} else {
				parseCtx.LineNumber++
			}
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read CSV record")
			return nil, err
		}

		// csv.Reader drops blank lines, so take the line from the reader
		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			bp.logger.WithField("line_number", parseCtx.LineNumber).Debug("Skipping empty record")
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, fmt.Errorf("field %d exceeds maximum size of %d bytes", i, bp.config.MaxFieldSize)
				}
			}
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// reject records an invalid entry. In strict mode the entry aborts parsing
// and the returned error is non-nil.
func (bp *BaseParser) reject(stats *ParseStats, strict bool, name string, line int, err error) error {
	stats.AddError(&ParseError{Line: line, Message: err.Error(), Err: err})

	bp.logger.WithError(err).WithFields(logger.Fields{
		"file_path":   name,
		"line_number": line,
	}).Warn("Skipping invalid entry")

	if strict {
		return errors.ParseError(errors.CodeInvalidData, name, line, "", "", err).
			WithSuggestion("Fix the entry or run without --strict to skip invalid entries")
	}
	return nil
}

// warn records a problem that left the entry usable. Warnings never abort
// parsing, not even in strict mode.
func (bp *BaseParser) warn(stats *ParseStats, name string, line int, err error) {
	stats.AddWarning(&ParseError{Line: line, Message: err.Error(), Err: err})

	bp.logger.WithError(err).WithFields(logger.Fields{
		"file_path":   name,
		"line_number": line,
	}).Warn("Accepted entry with a warning")
}

// eachCSVRow walks the data rows of a CSV input, calling fn with the line
// number of every row. Unreadable rows are rejected like invalid ones.
func (bp *BaseParser) eachCSVRow(ctx context.Context, data []byte, name string, cols columnSet, stats *ParseStats, strict bool, fn func(line int, pc *ParseContext, row []string) error) error {
	reader := bp.NewCSVReader(data)
	parseCtx := NewParseContext(ctx)

	if err := bp.ReadHeaders(reader, parseCtx, name, cols.aliases, cols.required, cols.order); err != nil {
		return err
	}

	for {
		row, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := errors.AsReconcilerError(err); ok {
				return err
			}
			stats.RecordsParsed++
			if rejectErr := bp.reject(stats, strict, name, parseCtx.LineNumber, err); rejectErr != nil {
				return rejectErr
			}
			continue
		}

		if err := fn(parseCtx.LineNumber, parseCtx, row); err != nil {
			return err
		}
	}

	stats.TotalLines = parseCtx.LineNumber
	return nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string        `json:"source"`
	Format        Format        `json:"format"`
	TotalLines    int           `json:"totalLines"`
	RecordsParsed int           `json:"recordsParsed"`
	RecordsValid  int           `json:"recordsValid"`
	ErrorCount    int           `json:"errorCount"`
	WarningCount  int           `json:"warningCount"`
	Errors        []*ParseError `json:"-"`
	Warnings      []*ParseError `json:"-"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string, format Format) *ParseStats {
	return &ParseStats{
		Source: source,
		Format: format,
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// AddWarning records a problem with an entry that was still accepted
func (ps *ParseStats) AddWarning(err *ParseError) {
	ps.Warnings = append(ps.Warnings, err)
	ps.WarningCount++
}

// Merge folds the counters and errors of another run into ps
func (ps *ParseStats) Merge(other *ParseStats) {
	if other == nil {
		return
	}
	ps.TotalLines += other.TotalLines
	ps.RecordsParsed += other.RecordsParsed
	ps.RecordsValid += other.RecordsValid
	ps.ErrorCount += other.ErrorCount
	ps.WarningCount += other.WarningCount
	ps.Errors = append(ps.Errors, other.Errors...)
	ps.Warnings = append(ps.Warnings, other.Warnings...)
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// Skipped returns the number of entries dropped as invalid
func (ps *ParseStats) Skipped() int {
	return ps.RecordsParsed - ps.RecordsValid
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s: parsed %d entries (%d valid, %d skipped), %d errors, %d warnings",
		ps.Source, ps.RecordsParsed, ps.RecordsValid, ps.Skipped(), ps.ErrorCount, ps.WarningCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

func (bp *BaseParser) logCompletion(stats *ParseStats, entity string) {
	bp.logger.WithFields(logger.Fields{
		"file_path":      stats.Source,
		"format":         string(stats.Format),
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
		"warning_count":  stats.WarningCount,
	}).Info(entity + " parsing completed")

	if stats.HasErrors() {
		bp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}
}
