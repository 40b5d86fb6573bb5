package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/periods"
	"github.com/wdfday/personalfinance-fe-sub001/internal/reconciler"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func budget(id, category string, start time.Time, end *time.Time, limit int64) *models.Period {
	return &models.Period{
		ID:          id,
		Kind:        models.PeriodKindBudget,
		CategoryID:  category,
		StartDate:   start,
		EndDate:     end,
		LimitAmount: decimal.NewFromInt(limit),
	}
}

func spend(id, category string, at time.Time, amount string) *models.Record {
	return &models.Record{
		ID:         id,
		CategoryID: category,
		OccurredAt: at,
		Amount:     decimal.RequireFromString(amount),
	}
}

// createSampleResult builds three series at 2024-02-10: food has a current
// period, rent only a previous one and gym none at all
func createSampleResult() *reconciler.Result {
	ref := day(2024, time.February, 10)
	engine := periods.NewEngine(nil, logger.Discard())
	rentEnd := day(2023, time.December, 31)

	food := engine.Reconcile(
		[]*models.Record{
			spend("r1", "food", day(2024, time.January, 5), "-30"),
			spend("r2", "food", day(2024, time.February, 3), "-50"),
			spend("r3", "food", day(2024, time.February, 4), "10"),
		},
		[]*models.Period{
			budget("B1", "food", day(2024, time.January, 1), nil, 100),
			budget("B2", "food", day(2024, time.February, 1), nil, 200),
		},
		ref,
	)
	rent := engine.Reconcile(nil, []*models.Period{
		budget("R1", "rent", day(2023, time.December, 1), &rentEnd, 1000),
	}, ref)
	gym := engine.Reconcile(nil, []*models.Period{
		budget("G1", "gym", day(2024, time.March, 1), nil, 40),
	}, ref)

	series := []*reconciler.SeriesResult{
		{Key: "food", Outcome: food, RecordPeriods: food.AssignmentMap()},
		{Key: "gym", Outcome: gym, RecordPeriods: gym.AssignmentMap()},
		{Key: "rent", Outcome: rent, RecordPeriods: rent.AssignmentMap()},
	}

	return &reconciler.Result{
		RunID:         "run-1",
		ProcessedAt:   ref,
		ReferenceDate: ref,
		Kind:          models.PeriodKindBudget,
		Timezone:      "UTC",
		Summary: &reconciler.Summary{
			TotalRecords:   3,
			AssignedByDate: 3,
			TotalSpent:     decimal.NewFromInt(80),
			TotalInflow:    decimal.NewFromInt(10),
			SeriesCount:    3,
			PeriodCount:    4,
			AnomalyCount:   1,
			ParseWarnings:  2,
		},
		Series: series,
		Anomalies: []periods.Anomaly{{
			Kind:      periods.AnomalyOverlap,
			PeriodIDs: []string{"B1", "B2"},
			Message:   "end date reaches past the next start",
		}},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "xml", CSVDelimiter: ','}, true},
		{"missing delimiter", &ReportConfig{Format: FormatCSV}, true},
		{"quote delimiter", &ReportConfig{Format: FormatCSV, CSVDelimiter: '"'}, true},
		{"newline delimiter", &ReportConfig{Format: FormatCSV, CSVDelimiter: '\n'}, true},
		{"semicolon delimiter", &ReportConfig{Format: FormatCSV, CSVDelimiter: ';'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil || generator.GetConfiguration() == nil {
				t.Errorf("expected generator with configuration")
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"console", FormatConsole, false},
		{" JSON ", FormatJSON, false},
		{"Csv", FormatCSV, false},
		{"table", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	var buf bytes.Buffer

	if err := generator.GenerateReport(nil, &buf); err == nil {
		t.Error("expected error for nil result")
	}
	if err := generator.GenerateReport(&reconciler.Result{}, &buf); err == nil {
		t.Error("expected error for result without summary")
	}
}

func TestConsoleOutputSections(t *testing.T) {
	generator, _ := NewReportGenerator(DefaultReportConfig())
	var buf bytes.Buffer

	if err := generator.GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	output := buf.String()

	expected := []string{
		"PERIOD RECONCILIATION REPORT",
		"Reference Date: 2024-02-10 (UTC)",
		"=== SUMMARY ===",
		"Assigned by date:   3 (100.0%)",
		"=== FINANCIAL SUMMARY ===",
		"Total Spent:          80.00",
		"Total Inflow:         10.00",
		"Parse Warnings:       2",
		"=== SERIES: food ===",
		"Current period: B2 (2024-02-01 to open)",
		"=== SERIES: rent ===",
		"Current period: R1 (2023-12-01 to 2023-12-31), no active period (showing previous period)",
		"=== SERIES: gym ===",
		"Current period: none (no active period)",
		"Monthly spend:",
		"2024-01",
		"=== ANOMALIES ===",
		"overlap: 1",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("console output missing %q\n%s", want, output)
		}
	}

	if strings.Contains(output, "Assignments:") {
		t.Error("assignments should be hidden by default")
	}
}

func TestConsolePeriodTable(t *testing.T) {
	generator, _ := NewReportGenerator(DefaultReportConfig())
	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	rows := map[string][]string{}
	for _, line := range strings.Split(buf.String(), "\n") {
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "B1" || f == "B2" || f == "R1" || f == "G1" {
				rows[f] = fields[i:]
			}
		}
	}

	tests := []struct {
		period string
		want   []string
		marker string
	}{
		// id, start, end, limit, spent, inflow, remaining, used, status
		{"B1", []string{"B1", "2024-01-01", "2024-02-01", "100.00", "30.00", "0.00", "70.00", "30.0%", "ended"}, ""},
		{"B2", []string{"B2", "2024-02-01", "open", "200.00", "50.00", "10.00", "150.00", "25.0%", "active"}, "*"},
		{"R1", []string{"R1", "2023-12-01", "2023-12-31", "1000.00", "0.00", "0.00", "1000.00", "0.0%", "ended"}, "~"},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			row, ok := rows[tt.period]
			if !ok {
				t.Fatalf("no table row for %s", tt.period)
			}
			if strings.Join(row, " ") != strings.Join(tt.want, " ") {
				t.Errorf("row = %v, want %v", row, tt.want)
			}
		})
	}

	for _, line := range strings.Split(buf.String(), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[1] {
		case "B2":
			if fields[0] != "*" {
				t.Errorf("expected B2 marked current, got %q", line)
			}
		case "R1":
			if fields[0] != "~" {
				t.Errorf("expected R1 marked as previous, got %q", line)
			}
		}
	}
}

func TestConsoleOptionalSections(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeAssignments = true
	config.IncludeMonthly = false
	config.IncludeAnomalies = false

	generator, _ := NewReportGenerator(config)
	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "r3 -> B2 (date)") {
		t.Errorf("expected assignment lines\n%s", output)
	}
	if strings.Contains(output, "Monthly spend:") || strings.Contains(output, "=== ANOMALIES ===") {
		t.Errorf("disabled sections were rendered\n%s", output)
	}
}

func TestJSONOutput(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON

	generator, _ := NewReportGenerator(config)
	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	var decoded struct {
		RunID   string `json:"run_id"`
		Summary struct {
			TotalSpent string `json:"total_spent"`
		} `json:"summary"`
		Series []struct {
			Key     string `json:"key"`
			Current struct {
				Rule     string          `json:"rule"`
				Fallback bool            `json:"fallback"`
				Period   json.RawMessage `json:"period"`
			} `json:"current"`
			Totals map[string]struct {
				Spent     string `json:"spent"`
				Remaining string `json:"remaining"`
			} `json:"totals"`
			Assignments map[string]*string `json:"assignments"`
		} `json:"series"`
		Anomalies []json.RawMessage `json:"anomalies"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}

	if decoded.RunID != "run-1" || decoded.Summary.TotalSpent != "80" {
		t.Errorf("unexpected header fields: %+v", decoded)
	}
	if len(decoded.Series) != 3 || len(decoded.Anomalies) != 1 {
		t.Fatalf("expected 3 series and 1 anomaly, got %d and %d", len(decoded.Series), len(decoded.Anomalies))
	}

	food := decoded.Series[0]
	if food.Key != "food" || food.Current.Rule != string(periods.RuleCalendarMonth) || food.Current.Fallback {
		t.Errorf("unexpected food selection %+v", food.Current)
	}
	if food.Totals["B2"].Spent != "50" || food.Totals["B2"].Remaining != "150" {
		t.Errorf("unexpected B2 totals %+v", food.Totals["B2"])
	}
	if food.Assignments != nil {
		t.Error("assignments should be omitted by default")
	}

	rent := decoded.Series[2]
	if !rent.Current.Fallback || rent.Current.Rule != string(periods.RuleLatestPast) {
		t.Errorf("expected rent fallback selection, got %+v", rent.Current)
	}
	gym := decoded.Series[1]
	if gym.Current.Rule != string(periods.RuleNone) || string(gym.Current.Period) != "null" {
		t.Errorf("expected no gym selection, got %+v", gym.Current)
	}
}

func TestFilterResultForOutput(t *testing.T) {
	result := createSampleResult()

	config := DefaultReportConfig()
	config.IncludeAssignments = true
	config.IncludeMonthly = false
	config.IncludeAnomalies = false
	generator, _ := NewReportGenerator(config)

	filtered := generator.filterResultForOutput(result)
	if filtered.Anomalies != nil {
		t.Error("expected anomalies to be dropped")
	}
	food := filtered.Series[0]
	if food.Monthly != nil {
		t.Error("expected monthly points to be dropped")
	}
	if got := food.RecordPeriods["r1"]; got == nil || *got != "B1" {
		t.Errorf("expected r1 -> B1, got %v", got)
	}

	// the input is left untouched
	if result.Anomalies == nil || result.Series[0].Monthly == nil {
		t.Error("filtering modified the original result")
	}
}

func TestCSVOutput(t *testing.T) {
	tests := []struct {
		name      string
		delimiter rune
		headers   bool
		wantRows  int
	}{
		{"with headers", ',', true, 5},
		{"without headers", ',', false, 4},
		{"semicolon", ';', true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(&ReportConfig{
				Format:       FormatCSV,
				CSVDelimiter: tt.delimiter,
				CSVHeaders:   tt.headers,
			})
			if err != nil {
				t.Fatalf("NewReportGenerator failed: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(createSampleResult(), &buf); err != nil {
				t.Fatalf("GenerateReport failed: %v", err)
			}

			reader := csv.NewReader(&buf)
			reader.Comma = tt.delimiter
			rows, err := reader.ReadAll()
			if err != nil {
				t.Fatalf("invalid CSV output: %v", err)
			}
			if len(rows) != tt.wantRows {
				t.Fatalf("expected %d rows, got %d", tt.wantRows, len(rows))
			}

			if tt.headers && rows[0][1] != "period_id" {
				t.Errorf("unexpected header %v", rows[0])
			}

			byID := map[string][]string{}
			for _, row := range rows {
				byID[row[1]] = row
			}

			b2 := byID["B2"]
			if b2[0] != "food" || b2[5] != "" || b2[9] != "50" || b2[10] != "10" || b2[11] != "150" || b2[12] != "0.25" {
				t.Errorf("unexpected B2 row %v", b2)
			}
			if b2[15] != "active" || b2[16] != "current" {
				t.Errorf("unexpected B2 status columns %v", b2)
			}
			if b1 := byID["B1"]; b1[5] != "2024-02-01" || b1[6] != "true" || b1[16] != "" {
				t.Errorf("unexpected B1 row %v", b1)
			}
			if r1 := byID["R1"]; r1[16] != "previous" || r1[6] != "false" {
				t.Errorf("unexpected R1 row %v", r1)
			}
		})
	}
}

func TestEmptyResultHandling(t *testing.T) {
	result := &reconciler.Result{
		RunID:   "empty",
		Kind:    models.PeriodKindBudget,
		Summary: &reconciler.Summary{},
		Series:  []*reconciler.SeriesResult{},
	}

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = format
			generator, _ := NewReportGenerator(config)

			var buf bytes.Buffer
			if err := generator.GenerateReport(result, &buf); err != nil {
				t.Fatalf("GenerateReport failed: %v", err)
			}
			if format == FormatConsole && !strings.Contains(buf.String(), "No periods to report.") {
				t.Errorf("expected empty notice\n%s", buf.String())
			}
			if format == FormatConsole && strings.Contains(buf.String(), "Parse Warnings:") {
				t.Errorf("warning line should be hidden when there are none\n%s", buf.String())
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, os.ErrClosed
}

func TestSafeReportGenerator(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := NewSafeReportGenerator(&ReportConfig{Format: "xml", CSVDelimiter: ','}, logger.Discard())
		re, ok := errors.AsReconcilerError(err)
		if !ok || re.Category != errors.CategoryConfiguration {
			t.Errorf("expected configuration error, got %v", err)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(nil, logger.Discard())
		err := srg.Write(nil, &bytes.Buffer{})
		re, ok := errors.AsReconcilerError(err)
		if !ok || re.Code != errors.CodeMissingField {
			t.Errorf("expected missing field error, got %v", err)
		}
	})

	t.Run("console failure is wrapped", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(nil, logger.Discard())
		if err := srg.Write(createSampleResult(), failingWriter{}); err == nil {
			t.Error("expected write failure")
		}
	})

	t.Run("write file", func(t *testing.T) {
		config := DefaultReportConfig()
		config.Format = FormatJSON
		srg, _ := NewSafeReportGenerator(config, logger.Discard())

		path := filepath.Join(t.TempDir(), "reports", "out.json")
		if err := srg.WriteFile(createSampleResult(), path); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil || !json.Valid(data) {
			t.Errorf("expected a JSON report on disk, got %v", err)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(nil, logger.Discard())
		err := srg.WriteFile(createSampleResult(), t.TempDir())
		re, ok := errors.AsReconcilerError(err)
		if !ok || re.Category != errors.CategoryFile {
			t.Errorf("expected file error, got %v", err)
		}
	})
}

func BenchmarkGenerateConsoleReport(b *testing.B) {
	generator, _ := NewReportGenerator(DefaultReportConfig())
	result := createSampleResult()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = generator.GenerateReport(result, &buf)
	}
}
