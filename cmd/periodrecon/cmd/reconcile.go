package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/wdfday/personalfinance-fe-sub001/cmd/periodrecon/config"
	"github.com/wdfday/personalfinance-fe-sub001/internal/reconciler"
	"github.com/wdfday/personalfinance-fe-sub001/internal/reporter"
	"github.com/wdfday/personalfinance-fe-sub001/internal/source"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// settings holds the validated configuration of the running command
var settings *config.Settings

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Assign records to periods and report period totals",
	Long: `Reconcile assigns every record to at most one budget or constraint period,
totals the spend of each period, derives period statuses and selects the
current period of every series for the reference date.

Records are matched by an explicit link first and by date otherwise.
Periods without an end date run until the next period of their series starts.

Examples:
  # Files, auto-detected format
  periodrecon reconcile --records transactions.csv --periods budgets.json

  # Several inputs of each kind
  periodrecon reconcile -r jan.csv -r feb.csv -p budgets.csv --reference-date 2024-02-10

  # Budget constraints, evaluated in a business timezone, as JSON
  periodrecon reconcile -r tx.json -p constraints.json --kind constraint \
    --timezone Asia/Ho_Chi_Minh --output-format json --output-file report.json

  # Straight from the backend
  PERIODRECON_API_TOKEN=... periodrecon reconcile --api-url https://api.example.com/api/v1`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	addInputFlags(reconcileCmd.Flags())

	defaults := config.DefaultOptions()
	reconcileCmd.Flags().StringP("output-format", "f", defaults.OutputFormat, "output format: console, json, csv")
	reconcileCmd.Flags().StringP("output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().Bool("include-assignments", defaults.IncludeAssignments, "list every record assignment in console output")
}

// addInputFlags registers the flags shared by every command that runs the
// calculator. Values are read back through viper so the config file and
// environment can supply them too.
func addInputFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultOptions()

	flags.StringSliceP("records", "r", nil, "record file (JSON or CSV), repeatable")
	flags.StringSliceP("periods", "p", nil, "period file (JSON or CSV), repeatable")
	flags.String("input-format", defaults.InputFormat, "input format: auto, json, csv")

	flags.String("api-url", "", "backend API base URL, replaces --records and --periods")
	flags.String("api-token", "", "bearer token for the backend API")
	flags.Duration("api-timeout", defaults.APITimeout, "timeout of a single API request")
	flags.Int("api-page-size", defaults.APIPageSize, "items requested per API page")
	flags.Int("api-retries", defaults.APIRetries, "retries of a failed API request")

	flags.StringP("kind", "k", defaults.Kind, "period kind: budget, constraint")
	flags.StringSlice("series", nil, "only reconcile these series (category ids), repeatable")
	flags.String("reference-date", "", "reference date YYYY-MM-DD (default: today)")
	flags.String("timezone", defaults.Timezone, "timezone of calendar months: UTC, Local or an IANA name")
	flags.Float64("warning-threshold", defaults.WarningThreshold, "utilization (0-1) at which a budget turns to warning")
	flags.Bool("require-category-match", defaults.RequireCategoryMatch, "date-match category periods only with records of that category")

	flags.Bool("strict", defaults.Strict, "fail on the first invalid input entry")
	flags.Bool("progress", defaults.Progress, "log progress of long operations")
	flags.Int("max-concurrent-files", defaults.MaxConcurrentFiles, "files parsed in parallel")
}

// optionsFromViper collects the options of the running command. Keys that
// were never set keep their defaults.
func optionsFromViper() *config.Options {
	opts := config.DefaultOptions()

	stringSlices := map[string]*[]string{
		"records": &opts.RecordFiles,
		"periods": &opts.PeriodFiles,
		"series":  &opts.Series,
	}
	for key, target := range stringSlices {
		if viper.IsSet(key) {
			*target = viper.GetStringSlice(key)
		}
	}

	strs := map[string]*string{
		"input-format":   &opts.InputFormat,
		"api-url":        &opts.APIURL,
		"api-token":      &opts.APIToken,
		"kind":           &opts.Kind,
		"reference-date": &opts.ReferenceDate,
		"timezone":       &opts.Timezone,
		"output-format":  &opts.OutputFormat,
		"output-file":    &opts.OutputFile,
	}
	for key, target := range strs {
		if viper.IsSet(key) {
			*target = viper.GetString(key)
		}
	}

	bools := map[string]*bool{
		"require-category-match": &opts.RequireCategoryMatch,
		"include-assignments":    &opts.IncludeAssignments,
		"strict":                 &opts.Strict,
		"progress":               &opts.Progress,
	}
	for key, target := range bools {
		if viper.IsSet(key) {
			*target = viper.GetBool(key)
		}
	}

	ints := map[string]*int{
		"api-page-size":        &opts.APIPageSize,
		"api-retries":          &opts.APIRetries,
		"max-concurrent-files": &opts.MaxConcurrentFiles,
	}
	for key, target := range ints {
		if viper.IsSet(key) {
			*target = viper.GetInt(key)
		}
	}

	if viper.IsSet("api-timeout") {
		opts.APITimeout = viper.GetDuration("api-timeout")
	}
	if viper.IsSet("warning-threshold") {
		opts.WarningThreshold = viper.GetFloat64("warning-threshold")
	}
	return opts
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Bind here rather than in init: commands share flag names
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "bind_flags", err)
	}

	opts := optionsFromViper()

	var problems error
	for _, path := range opts.RecordFiles {
		problems = multierr.Append(problems, validateFileExists(path, "record file"))
	}
	for _, path := range opts.PeriodFiles {
		problems = multierr.Append(problems, validateFileExists(path, "period file"))
	}
	if problems != nil {
		var found []*errors.ReconcilerError
		for _, problem := range multierr.Errors(problems) {
			found = append(found, errors.WrapIfNeeded(problem, errors.CategoryFile, errors.CodeFileNotFound, "input file check failed"))
		}
		if len(found) == 1 {
			return found[0]
		}
		return errors.NewErrorSummary(found)
	}

	if opts.OutputFile != "" {
		dir := filepath.Dir(opts.OutputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}

	built, err := config.Build(opts)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "flags", nil,
			fmt.Errorf("%s", FormatValidationErrors(multierr.Errors(err)))).
			WithSuggestion("Use 'periodrecon " + cmd.Name() + " --help' to see all available options")
	}
	settings = built
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, fmt.Errorf("%s does not exist: %s", description, filePath))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, filePath, fmt.Errorf("%s is a directory, expected a file: %s", description, filePath))
	}
	return nil
}

// runReconciliation loads the inputs named by s and runs the service
func runReconciliation(ctx context.Context, s *config.Settings) (*reconciler.Result, error) {
	var loader reconciler.Loader
	if s.Source != nil {
		client, err := source.NewClient(s.Source, nil)
		if err != nil {
			return nil, err
		}
		loader = reconciler.NewAPILoader(client, source.RecordQuery{})
	} else {
		loader = reconciler.NewFileLoader(s.Reconciler.StrictParsing, s.Reconciler.MaxConcurrentFiles)
	}

	service, err := reconciler.NewService(loader, s.Reconciler)
	if err != nil {
		return nil, err
	}
	return service.Process(ctx, s.Request)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")
	log.WithFields(logger.Fields{
		"records": len(settings.Request.RecordFiles),
		"periods": len(settings.Request.PeriodFiles),
		"api":     settings.Source != nil,
		"format":  string(settings.Report.Format),
	}).Info("Starting reconciliation")

	result, err := runReconciliation(cmd.Context(), settings)
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(settings.Report, log)
	if err != nil {
		return err
	}

	if settings.OutputFile != "" {
		if err := generator.WriteFile(result, settings.OutputFile); err != nil {
			return err
		}
	} else if err := generator.Write(result, cmd.OutOrStdout()); err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"run_id":     result.RunID,
		"series":     result.Summary.SeriesCount,
		"unassigned": result.Summary.Unassigned,
		"anomalies":  result.Summary.AnomalyCount,
		"duration":   result.Summary.Duration.String(),
	}).Info("Reconciliation completed")
	return nil
}
