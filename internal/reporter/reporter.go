// Package reporter renders reconciliation results.
//
// Three output formats are supported:
//   - Console: sectioned, human-readable tables for a terminal
//   - JSON: the full result for programmatic consumption, decimals as strings
//   - CSV: one row per period with its totals, for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:       reporter.FormatCSV,
//		CSVDelimiter: ';',
//		CSVHeaders:   true,
//	})
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/periods"
	"github.com/wdfday/personalfinance-fe-sub001/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses a format name, case-insensitively
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %q (expected console, json or csv)", s)
	}
	return f, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeAssignments bool `json:"include_assignments"`
	IncludeMonthly     bool `json:"include_monthly"`
	IncludeAnomalies   bool `json:"include_anomalies"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeAssignments: false,
		IncludeMonthly:     true,
		IncludeAnomalies:   true,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	d := c.CSVDelimiter
	if d == 0 || d == '"' || d == '\r' || d == '\n' || !utf8.ValidRune(d) || d == utf8.RuneError {
		return fmt.Errorf("invalid CSV delimiter: %q", d)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}
	if result.Summary == nil {
		return fmt.Errorf("reconciliation result has no summary")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	fmt.Fprintf(writer, "PERIOD RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run:            %s\n", result.RunID)
	fmt.Fprintf(writer, "Generated:      %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Reference Date: %s (%s)\n", formatDate(result.ReferenceDate), result.Timezone)
	fmt.Fprintf(writer, "Period Kind:    %s\n\n", result.Kind)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	if len(result.Series) == 0 {
		fmt.Fprintf(writer, "No periods to report.\n")
	}

	for _, series := range result.Series {
		fmt.Fprintf(writer, "=== SERIES: %s ===\n", series.Label())
		rg.printCurrent(series.Current, writer)
		if err := rg.printPeriodTable(series, writer); err != nil {
			return err
		}
		fmt.Fprintf(writer, "\n")

		if rg.config.IncludeMonthly && len(series.Monthly) > 0 {
			fmt.Fprintf(writer, "Monthly spend:\n")
			if err := rg.printMonthly(series.Monthly, writer); err != nil {
				return err
			}
			fmt.Fprintf(writer, "\n")
		}

		if rg.config.IncludeAssignments && len(series.Assignments) > 0 {
			fmt.Fprintf(writer, "Assignments:\n")
			rg.printAssignments(series.Assignments, writer)
			fmt.Fprintf(writer, "\n")
		}
	}

	if rg.config.IncludeAnomalies && len(result.Anomalies) > 0 {
		fmt.Fprintf(writer, "=== ANOMALIES ===\n")
		rg.printAnomalies(result.Anomalies, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.ParseStats) > 0 {
		fmt.Fprintf(writer, "=== INPUT ===\n")
		for _, stats := range result.ParseStats {
			fmt.Fprintf(writer, "  %s\n", stats)
		}
	}

	return nil
}

func (rg *ReportGenerator) printSummary(s *reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Total Records:        %d\n", s.TotalRecords)
	fmt.Fprintf(writer, "  Assigned by link:   %d (%.1f%%)\n", s.AssignedByLink, percentage(s.AssignedByLink, s.TotalRecords))
	fmt.Fprintf(writer, "  Assigned by date:   %d (%.1f%%)\n", s.AssignedByDate, percentage(s.AssignedByDate, s.TotalRecords))
	fmt.Fprintf(writer, "  Unassigned:         %d (%.1f%%)\n", s.Unassigned, percentage(s.Unassigned, s.TotalRecords))
	if s.DuplicateRecords > 0 {
		fmt.Fprintf(writer, "Duplicate Records:    %d\n", s.DuplicateRecords)
	}
	fmt.Fprintf(writer, "Series:               %d\n", s.SeriesCount)
	fmt.Fprintf(writer, "Periods:              %d\n", s.PeriodCount)
	if s.SkippedPeriods > 0 {
		fmt.Fprintf(writer, "Skipped Periods:      %d\n", s.SkippedPeriods)
	}
	fmt.Fprintf(writer, "Anomalies:            %d\n", s.AnomalyCount)
	fmt.Fprintf(writer, "Parse Errors:         %d\n", s.ParseErrors)
	if s.ParseWarnings > 0 {
		fmt.Fprintf(writer, "Parse Warnings:       %d\n", s.ParseWarnings)
	}
	fmt.Fprintf(writer, "Processing Duration:  %v\n", s.Duration)
}

func (rg *ReportGenerator) printFinancialSummary(s *reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Total Spent:          %s\n", s.TotalSpent.StringFixed(2))
	fmt.Fprintf(writer, "Total Inflow:         %s\n", s.TotalInflow.StringFixed(2))
}

// printCurrent states which period is current. A fallback selection is
// labelled as such so it is never mistaken for an active one.
func (rg *ReportGenerator) printCurrent(sel periods.Selection, writer io.Writer) {
	switch {
	case !sel.Found():
		fmt.Fprintf(writer, "Current period: none (no active period)\n")
	case sel.Fallback:
		fmt.Fprintf(writer, "Current period: %s, no active period (showing previous period)\n", describePeriod(sel.Period))
	default:
		fmt.Fprintf(writer, "Current period: %s\n", describePeriod(sel.Period))
	}
}

func (rg *ReportGenerator) printPeriodTable(series *reconciler.SeriesResult, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\tPeriod\tStart\tEnd\tLimit\tSpent\tInflow\tRemaining\tUsed\tStatus\t\n")

	for _, p := range series.Periods {
		totals := totalsFor(series.Outcome, p)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			currentMarker(series.Current, p),
			p.ID,
			formatDate(p.StartDate),
			formatEnd(p),
			p.LimitAmount.StringFixed(2),
			totals.Spent.StringFixed(2),
			totals.Inflow.StringFixed(2),
			totals.Remaining.StringFixed(2),
			formatUtilization(totals.Utilization),
			series.Statuses[p.ID])
	}
	return tw.Flush()
}

func (rg *ReportGenerator) printMonthly(points []periods.MonthlyPoint, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Month\tSpent\tInflow\tCumulative\tRecords\t\n")
	for _, point := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t\n",
			point.Label(),
			point.Spent.StringFixed(2),
			point.Inflow.StringFixed(2),
			point.Cumulative.StringFixed(2),
			point.Count)
	}
	return tw.Flush()
}

func (rg *ReportGenerator) printAssignments(assignments []periods.Assignment, writer io.Writer) {
	for i, a := range assignments {
		target := "unassigned"
		if id := a.PeriodID(); id != nil {
			target = *id
		}
		fmt.Fprintf(writer, "  %d. %s -> %s (%s)\n", i+1, a.RecordID(), target, a.Method)

		// Limit output for very long lists
		if i >= 49 && len(assignments) > 50 {
			fmt.Fprintf(writer, "  ... and %d more\n", len(assignments)-50)
			break
		}
	}
}

func (rg *ReportGenerator) printAnomalies(anomalies []periods.Anomaly, writer io.Writer) {
	counts := periods.CountAnomalies(anomalies)
	fmt.Fprintf(writer, "Total Anomalies Found: %d\n", len(anomalies))

	kinds := []periods.AnomalyKind{
		periods.AnomalyDuplicateStart,
		periods.AnomalyOverlap,
		periods.AnomalyInvalidRange,
		periods.AnomalyMultipleDateMatch,
	}
	for _, kind := range kinds {
		if counts[kind] > 0 {
			fmt.Fprintf(writer, "  %s: %d\n", kind, counts[kind])
		}
	}
	fmt.Fprintf(writer, "\n")

	for _, anomaly := range anomalies {
		fmt.Fprintf(writer, "  - %s\n", anomaly)
	}
}

// generateJSONReport writes the result as indented JSON. Sections disabled in
// the configuration are left out.
func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) *reconciler.Result {
	filtered := *result
	if !rg.config.IncludeAnomalies {
		filtered.Anomalies = nil
	}

	filtered.Series = make([]*reconciler.SeriesResult, 0, len(result.Series))
	for _, series := range result.Series {
		outcome := *series.Outcome
		if !rg.config.IncludeMonthly {
			outcome.Monthly = nil
		}
		if !rg.config.IncludeAnomalies {
			outcome.Anomalies = nil
		}

		copied := &reconciler.SeriesResult{Key: series.Key, Outcome: &outcome}
		if rg.config.IncludeAssignments {
			copied.RecordPeriods = series.RecordPeriods
		}
		filtered.Series = append(filtered.Series, copied)
	}
	return &filtered
}

var csvHeaders = []string{
	"series",
	"period_id",
	"kind",
	"category_id",
	"start_date",
	"effective_end_date",
	"inferred",
	"limit_amount",
	"limit_mode",
	"spent",
	"inflow",
	"remaining",
	"utilization",
	"outflow_count",
	"inflow_count",
	"status",
	"current",
}

// generateCSVReport writes one row per period
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, series := range result.Series {
		for _, p := range series.Periods {
			totals := totalsFor(series.Outcome, p)
			end := ""
			if p.EffectiveEndDate != nil {
				end = formatDate(*p.EffectiveEndDate)
			}

			row := []string{
				series.Key,
				p.ID,
				string(p.Kind),
				p.CategoryID,
				formatDate(p.StartDate),
				end,
				strconv.FormatBool(p.Inferred),
				p.LimitAmount.String(),
				string(p.Mode()),
				totals.Spent.String(),
				totals.Inflow.String(),
				totals.Remaining.String(),
				totals.Utilization.String(),
				strconv.Itoa(totals.OutflowCount),
				strconv.Itoa(totals.InflowCount),
				string(series.Statuses[p.ID]),
				currentLabel(series.Current, p),
			}
			if err := csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row for period %s: %w", p.ID, err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper functions

func totalsFor(outcome *periods.Outcome, p *models.BoundedPeriod) *periods.PeriodTotals {
	if totals, ok := outcome.Totals[p.ID]; ok && totals != nil {
		return totals
	}
	return &periods.PeriodTotals{
		PeriodID:  p.ID,
		Limit:     p.LimitAmount,
		Remaining: p.LimitAmount,
	}
}

func isCurrent(sel periods.Selection, p *models.BoundedPeriod) bool {
	return sel.Found() && sel.Period.ID == p.ID
}

func currentMarker(sel periods.Selection, p *models.BoundedPeriod) string {
	switch {
	case !isCurrent(sel, p):
		return ""
	case sel.Fallback:
		return "~"
	default:
		return "*"
	}
}

func currentLabel(sel periods.Selection, p *models.BoundedPeriod) string {
	switch {
	case !isCurrent(sel, p):
		return ""
	case sel.Fallback:
		return "previous"
	default:
		return "current"
	}
}

func describePeriod(p *models.BoundedPeriod) string {
	return fmt.Sprintf("%s (%s to %s)", p.ID, formatDate(p.StartDate), formatEnd(p))
}

func formatEnd(p *models.BoundedPeriod) string {
	if p.EffectiveEndDate == nil {
		return "open"
	}
	return formatDate(*p.EffectiveEndDate)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatUtilization(u decimal.Decimal) string {
	return u.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
