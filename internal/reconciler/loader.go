package reconciler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/parsers"
	"github.com/wdfday/personalfinance-fe-sub001/internal/source"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
)

// Loader supplies the records and periods of a reconciliation run
type Loader interface {
	LoadRecords(ctx context.Context, req *Request) ([]*models.Record, []*parsers.ParseStats, error)
	LoadPeriods(ctx context.Context, req *Request, kind models.PeriodKind) ([]*models.Period, []*parsers.ParseStats, error)
}

// FileLoader reads records and periods from local JSON or CSV files. Several
// files of the same kind are parsed concurrently; results keep the order of
// the request.
type FileLoader struct {
	strict         bool
	maxConcurrency int
}

// NewFileLoader creates a loader for local files
func NewFileLoader(strict bool, maxConcurrency int) *FileLoader {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &FileLoader{strict: strict, maxConcurrency: maxConcurrency}
}

// LoadRecords parses every record file of the request
func (l *FileLoader) LoadRecords(ctx context.Context, req *Request) ([]*models.Record, []*parsers.ParseStats, error) {
	if len(req.RecordFiles) == 0 {
		return nil, nil, errors.ValidationError(errors.CodeMissingField, "records", nil, nil).
			WithSuggestion("Pass at least one --records file")
	}

	parser, err := parsers.NewRecordParser(&parsers.RecordParserConfig{
		Format:     req.Format,
		StrictMode: l.strict,
		CSV:        parsers.DefaultParseConfig(),
		Location:   req.Location,
	})
	if err != nil {
		return nil, nil, err
	}

	batches := make([][]*models.Record, len(req.RecordFiles))
	stats := make([]*parsers.ParseStats, len(req.RecordFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrency)
	for i, path := range req.RecordFiles {
		i, path := i, path
		g.Go(func() error {
			records, fileStats, err := parser.ParseFile(gctx, path)
			batches[i], stats[i] = records, fileStats
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, compactStats(stats), err
	}

	var all []*models.Record
	for _, batch := range batches {
		all = append(all, batch...)
	}
	return all, stats, nil
}

// LoadPeriods parses every period file of the request. Entries without a
// kind of their own take kind.
func (l *FileLoader) LoadPeriods(ctx context.Context, req *Request, kind models.PeriodKind) ([]*models.Period, []*parsers.ParseStats, error) {
	if len(req.PeriodFiles) == 0 {
		return nil, nil, errors.ValidationError(errors.CodeMissingField, "periods", nil, nil).
			WithSuggestion("Pass at least one --periods file")
	}

	parser, err := parsers.NewPeriodParser(&parsers.PeriodParserConfig{
		Format:      req.Format,
		StrictMode:  l.strict,
		DefaultKind: kind,
		CSV:         parsers.DefaultParseConfig(),
		Location:    req.Location,
	})
	if err != nil {
		return nil, nil, err
	}

	batches := make([][]*models.Period, len(req.PeriodFiles))
	stats := make([]*parsers.ParseStats, len(req.PeriodFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrency)
	for i, path := range req.PeriodFiles {
		i, path := i, path
		g.Go(func() error {
			periods, fileStats, err := parser.ParseFile(gctx, path)
			batches[i], stats[i] = periods, fileStats
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, compactStats(stats), err
	}

	var all []*models.Period
	for _, batch := range batches {
		all = append(all, batch...)
	}
	return all, stats, nil
}

func compactStats(stats []*parsers.ParseStats) []*parsers.ParseStats {
	out := make([]*parsers.ParseStats, 0, len(stats))
	for _, s := range stats {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// APILoader reads records and periods from the backend API
type APILoader struct {
	client *source.Client
	query  source.RecordQuery
}

// NewAPILoader creates a loader backed by an API client. query narrows the
// records requested.
func NewAPILoader(client *source.Client, query source.RecordQuery) *APILoader {
	return &APILoader{client: client, query: query}
}

// LoadRecords fetches records from the API
func (l *APILoader) LoadRecords(ctx context.Context, _ *Request) ([]*models.Record, []*parsers.ParseStats, error) {
	records, stats, err := l.client.ListRecords(ctx, l.query)
	if stats == nil {
		return records, nil, err
	}
	return records, []*parsers.ParseStats{stats}, err
}

// LoadPeriods fetches periods of the given kind from the API
func (l *APILoader) LoadPeriods(ctx context.Context, _ *Request, kind models.PeriodKind) ([]*models.Period, []*parsers.ParseStats, error) {
	periods, stats, err := l.client.ListPeriods(ctx, kind)
	if stats == nil {
		return periods, nil, err
	}
	return periods, []*parsers.ParseStats{stats}, err
}
