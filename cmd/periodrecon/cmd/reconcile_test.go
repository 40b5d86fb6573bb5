package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
)

const recordsCSV = `id,amount,category_id,booking_date,links
t1,-40,food,2024-01-10,
t2,-25.50,food,2024-02-03,
t3,-10,food,2024-03-15,BUDGET:B1
t4,100,food,2024-02-05,
`

const periodsJSON = `[
  {"id": "B1", "categoryId": "food", "startDate": "2024-01-01", "limitAmount": "100"},
  {"id": "B2", "categoryId": "food", "startDate": "2024-02-01", "limitAmount": "200"}
]`

func writeInputs(t *testing.T, records string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	recordsPath := filepath.Join(dir, "records.csv")
	periodsPath := filepath.Join(dir, "budgets.json")
	if err := os.WriteFile(recordsPath, []byte(records), 0644); err != nil {
		t.Fatalf("failed to write records: %v", err)
	}
	if err := os.WriteFile(periodsPath, []byte(periodsJSON), 0644); err != nil {
		t.Fatalf("failed to write periods: %v", err)
	}
	return recordsPath, periodsPath
}

// resetFlags puts every flag back to its default so commands can be run
// more than once in one process
func resetFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	for _, c := range []*cobra.Command{rootCmd, reconcileCmd, currentCmd} {
		resetFlags(c.Flags())
		resetFlags(c.PersistentFlags())
	}
	cfgFile = ""
	settings = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name     string
		filePath string
		wantErr  bool
		wantCode errors.ErrorCode
	}{
		{"valid file", validFile, false, ""},
		{"empty path", "", true, errors.CodeMissingField},
		{"non-existent file", filepath.Join(tmpDir, "missing.csv"), true, errors.CodeFileNotFound},
		{"directory instead of file", tmpDir, true, errors.CodeFileCorrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "record file")
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateFileExists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			re, ok := errors.AsReconcilerError(err)
			if !ok || re.Code != tt.wantCode {
				t.Errorf("expected code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestReconcileCommandJSON(t *testing.T) {
	recordsPath, periodsPath := writeInputs(t, recordsCSV)
	outputPath := filepath.Join(filepath.Dir(recordsPath), "report.json")

	_, err := executeCommand(t, "reconcile",
		"-r", recordsPath,
		"-p", periodsPath,
		"--reference-date", "2024-02-10",
		"--output-format", "json",
		"--output-file", outputPath,
	)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}

	var report struct {
		Summary struct {
			TotalRecords   int `json:"total_records"`
			AssignedByLink int `json:"assigned_by_link"`
			AssignedByDate int `json:"assigned_by_date"`
		} `json:"summary"`
		Series []struct {
			Key     string `json:"key"`
			Current struct {
				Rule     string `json:"rule"`
				Fallback bool   `json:"fallback"`
			} `json:"current"`
			Totals map[string]struct {
				Spent  string `json:"spent"`
				Inflow string `json:"inflow"`
			} `json:"totals"`
			Assignments map[string]*string `json:"assignments"`
		} `json:"series"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}

	if report.Summary.TotalRecords != 4 || report.Summary.AssignedByLink != 1 || report.Summary.AssignedByDate != 3 {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
	if len(report.Series) != 1 {
		t.Fatalf("expected one series, got %d", len(report.Series))
	}

	food := report.Series[0]
	if food.Key != "food" || food.Current.Rule != "calendar_month" || food.Current.Fallback {
		t.Errorf("unexpected series header %+v", food)
	}
	if food.Totals["B1"].Spent != "50" {
		t.Errorf("B1 spent = %s, want 50 (t1 by date, t3 by link)", food.Totals["B1"].Spent)
	}
	if food.Totals["B2"].Spent != "25.5" || food.Totals["B2"].Inflow != "100" {
		t.Errorf("unexpected B2 totals %+v", food.Totals["B2"])
	}
	if got := food.Assignments["t3"]; got == nil || *got != "B1" {
		t.Errorf("expected t3 -> B1, got %v", got)
	}
}

func TestReconcileCommandConsole(t *testing.T) {
	recordsPath, periodsPath := writeInputs(t, recordsCSV)

	output, err := executeCommand(t, "reconcile", "-r", recordsPath, "-p", periodsPath, "--reference-date", "2024-02-10")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	for _, want := range []string{"PERIOD RECONCILIATION REPORT", "=== SERIES: food ===", "Current period: B2"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
}

func TestCurrentCommand(t *testing.T) {
	recordsPath, periodsPath := writeInputs(t, recordsCSV)

	output, err := executeCommand(t, "current", "-r", recordsPath, "-p", periodsPath, "--reference-date", "2024-04-10")
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}

	if !strings.Contains(output, "Reference date: 2024-04-10 (UTC)") {
		t.Errorf("missing reference date\n%s", output)
	}

	var row []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "food") {
			row = strings.Fields(line)
		}
	}
	if len(row) < 8 || row[1] != "B2" || row[3] != "open" || row[4] != "25.50" || row[7] != "previous" {
		t.Errorf("unexpected current row %v\n%s", row, output)
	}
}

func TestCommandErrors(t *testing.T) {
	recordsPath, periodsPath := writeInputs(t, recordsCSV+"t5,abc,food,2024-02-01,\n")
	missing := filepath.Join(filepath.Dir(recordsPath), "missing.csv")

	tests := []struct {
		name         string
		args         []string
		wantCategory errors.ErrorCategory
		wantExit     int
	}{
		{
			name:         "missing record file",
			args:         []string{"reconcile", "-r", missing, "-p", periodsPath},
			wantCategory: errors.CategoryFile,
			wantExit:     2,
		},
		{
			name:         "invalid kind",
			args:         []string{"reconcile", "-r", recordsPath, "-p", periodsPath, "--kind", "goal"},
			wantCategory: errors.CategoryConfiguration,
			wantExit:     4,
		},
		{
			name:         "no inputs",
			args:         []string{"current"},
			wantCategory: errors.CategoryConfiguration,
			wantExit:     4,
		},
		{
			name:         "strict parsing",
			args:         []string{"reconcile", "-r", recordsPath, "-p", periodsPath, "--strict"},
			wantCategory: errors.CategoryParse,
			wantExit:     3,
		},
		{
			name:         "unreachable api",
			args:         []string{"reconcile", "--api-url", "http://127.0.0.1:1/api", "--api-retries", "0"},
			wantCategory: errors.CategoryNetwork,
			wantExit:     6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			re, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %v", err)
			}
			if re.Category != tt.wantCategory {
				t.Errorf("category = %s, want %s (%v)", re.Category, tt.wantCategory, err)
			}

			var stderr bytes.Buffer
			if code := NewCLIErrorHandler(&stderr, false).HandleError(err); code != tt.wantExit {
				t.Errorf("exit code = %d, want %d", code, tt.wantExit)
			}
			if !strings.HasPrefix(stderr.String(), "Error: ") {
				t.Errorf("unexpected error output %q", stderr.String())
			}
		})
	}
}

func TestCommandSkipsBadRowsByDefault(t *testing.T) {
	recordsPath, periodsPath := writeInputs(t, recordsCSV+"t5,abc,food,2024-02-01,\n")

	output, err := executeCommand(t, "reconcile", "-r", recordsPath, "-p", periodsPath, "--reference-date", "2024-02-10")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !strings.Contains(output, "Parse Errors:         1") {
		t.Errorf("expected the bad row to be counted\n%s", output)
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		verbose  bool
		wantExit int
		contains []string
	}{
		{"nil", nil, false, 0, nil},
		{
			name:     "file error",
			err:      errors.FileError(errors.CodeFileNotFound, "/tmp/x.csv", os.ErrNotExist),
			wantExit: 2,
			contains: []string{"Error:", "file_path: /tmp/x.csv", "Suggestion:"},
		},
		{
			name:     "network error with help",
			err:      errors.NetworkError(errors.CodeTimeout, "https://api.example.com", fmt.Errorf("deadline exceeded")),
			verbose:  true,
			wantExit: 6,
			contains: []string{"Network error help"},
		},
		{
			name: "several missing inputs",
			err: errors.NewErrorSummary([]*errors.ReconcilerError{
				errors.FileError(errors.CodeFileNotFound, "a.csv", os.ErrNotExist),
				errors.FileError(errors.CodeFileNotFound, "b.json", os.ErrNotExist),
			}),
			wantExit: 2,
			contains: []string{"2 errors occurred (file: 2)", "a.csv", "b.json"},
		},
		{
			name:     "plain not found",
			err:      fmt.Errorf("open x: %w", os.ErrNotExist),
			wantExit: 2,
			contains: []string{"File not found"},
		},
		{
			name:     "unknown flag",
			err:      fmt.Errorf("unknown flag: --nope"),
			wantExit: 1,
			contains: []string{"unknown flag", "periodrecon --help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := NewCLIErrorHandler(&out, tt.verbose).HandleError(tt.err)
			if code != tt.wantExit {
				t.Errorf("exit code = %d, want %d", code, tt.wantExit)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q\n%s", want, out.String())
				}
			}
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if got := FormatValidationErrors(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := FormatValidationErrors([]error{fmt.Errorf("bad kind")}); got != "bad kind" {
		t.Errorf("unexpected single error format %q", got)
	}

	var errs []error
	for i := 0; i < 12; i++ {
		errs = append(errs, fmt.Errorf("problem %d", i))
	}
	got := FormatValidationErrors(errs)
	if !strings.HasPrefix(got, "found 12 problems:") || !strings.Contains(got, "... and 2 more") {
		t.Errorf("unexpected format:\n%s", got)
	}
}

func TestReconcileSampleData(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "report.json")

	_, err := executeCommand(t, "reconcile",
		"-r", filepath.Join("..", "..", "..", "testdata", "records.csv"),
		"-p", filepath.Join("..", "..", "..", "testdata", "budgets.json"),
		"--reference-date", "2024-02-15",
		"-f", "json",
		"-o", outputPath,
	)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}

	var report struct {
		Summary struct {
			TotalRecords     int `json:"total_records"`
			DuplicateRecords int `json:"duplicate_records"`
			AssignedByLink   int `json:"assigned_by_link"`
			AssignedByDate   int `json:"assigned_by_date"`
			Unassigned       int `json:"unassigned"`
		} `json:"summary"`
		Series []struct {
			Key     string `json:"key"`
			Current struct {
				Period *struct {
					ID string `json:"id"`
				} `json:"period"`
				Fallback bool `json:"fallback"`
			} `json:"current"`
			Totals map[string]struct {
				Spent  string `json:"spent"`
				Inflow string `json:"inflow"`
			} `json:"totals"`
			Statuses map[string]string `json:"statuses"`
		} `json:"series"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}

	s := report.Summary
	if s.TotalRecords != 8 || s.DuplicateRecords != 1 || s.AssignedByLink != 1 || s.AssignedByDate != 5 || s.Unassigned != 2 {
		t.Errorf("unexpected summary %+v", s)
	}
	if len(report.Series) != 2 {
		t.Fatalf("expected food and rent series, got %d", len(report.Series))
	}

	food, rent := report.Series[0], report.Series[1]
	if food.Key != "food" || rent.Key != "rent" {
		t.Fatalf("unexpected series order %s, %s", food.Key, rent.Key)
	}

	tests := []struct {
		name      string
		got, want string
	}{
		{"food-jan spent", food.Totals["food-jan"].Spent, "260"},
		{"food-jan status", food.Statuses["food-jan"], "exceeded"},
		{"food-feb spent", food.Totals["food-feb"].Spent, "45.5"},
		{"food-feb inflow", food.Totals["food-feb"].Inflow, "1250"},
		{"food-feb status", food.Statuses["food-feb"], "active"},
		{"rent-q1 spent", rent.Totals["rent-q1"].Spent, "300"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if food.Current.Period == nil || food.Current.Period.ID != "food-feb" || food.Current.Fallback {
		t.Errorf("food current = %+v, want food-feb", food.Current)
	}
	if rent.Current.Period == nil || rent.Current.Period.ID != "rent-q1" || !rent.Current.Fallback {
		t.Errorf("rent current = %+v, want rent-q1 as fallback", rent.Current)
	}
}

func TestVersionFlag(t *testing.T) {
	prevVersion, prevCommit, prevDate := version, commit, date
	defer SetVersionInfo(prevVersion, prevCommit, prevDate)

	SetVersionInfo("1.2.3", "abc123", "2024-02-15")
	output, err := executeCommand(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(output, "periodrecon version 1.2.3") {
		t.Errorf("unexpected version output %q", output)
	}
}
