package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wdfday/personalfinance-fe-sub001/internal/reconciler"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging, typed errors and a
// console fallback when a structured format cannot be produced
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a report generator that reports failures as
// ReconcilerErrors
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check --output-format and the report settings")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// Write renders result to writer, falling back to the console format if the
// configured format fails before anything useful was produced
func (srg *SafeReportGenerator) Write(result *reconciler.Result, writer io.Writer) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Run the reconciliation before generating a report")
	}

	srg.logger.WithFields(logger.Fields{
		"format": string(srg.config.Format),
		"output": describeWriter(writer),
	}).Debug("Generating report")

	err := srg.GenerateReport(result, writer)
	if err == nil {
		return nil
	}
	srg.logger.WithError(err).Warn("Report generation failed")

	if srg.config.Format == FormatConsole {
		return wrapGenerationError(err)
	}

	fallback := *srg.config
	fallback.Format = FormatConsole
	fmt.Fprintf(writer, "NOTE: %s report failed (%v); console report follows\n\n", srg.config.Format, err)
	if ferr := (&ReportGenerator{config: &fallback}).GenerateReport(result, writer); ferr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, ferr),
		)
	}
	return nil
}

// WriteFile renders result into the file at path, creating missing parent
// directories
func (srg *SafeReportGenerator) WriteFile(result *reconciler.Result, path string) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return fileError(path, mkErr)
		}
	}

	file, createErr := os.Create(path)
	if createErr != nil {
		return fileError(path, createErr)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fileError(path, closeErr)
		}
	}()

	if err := srg.Write(result, file); err != nil {
		return err
	}
	srg.logger.WithField("file", path).Info("Report written")
	return nil
}

func fileError(path string, err error) error {
	code := errors.CodeFileCorrupted
	switch {
	case os.IsPermission(err):
		code = errors.CodeFilePermission
	case os.IsNotExist(err):
		code = errors.CodeFileNotFound
	}
	return errors.FileError(code, path, err).
		WithSuggestion("Check that the output location is writable")
}

func wrapGenerationError(err error) error {
	if re, ok := errors.AsReconcilerError(err); ok {
		return re
	}
	return errors.InternalError(errors.CodeProcessingError, "report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

func describeWriter(writer io.Writer) string {
	if f, ok := writer.(*os.File); ok && f.Name() != "" {
		return "file:" + f.Name()
	}
	return fmt.Sprintf("writer:%T", writer)
}
