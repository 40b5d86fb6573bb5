// Package source fetches transaction records and budget period snapshots from
// the personal finance backend over its REST API.
//
// List endpoints are paginated with page/page_size query parameters. The
// client walks pages until a page comes back short or the payload reports
// has_more=false, and decodes every page through the same normalization as
// file input.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/internal/parsers"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

const (
	recordsPath           = "/transactions"
	budgetsPath           = "/budgets"
	budgetConstraintsPath = "/budget-constraints"

	maxBodySize = 32 << 20
)

// RecordQuery narrows the records requested from the API. Zero values are
// not sent.
type RecordQuery struct {
	From       time.Time
	To         time.Time
	CategoryID string
}

func (q RecordQuery) values() url.Values {
	v := url.Values{}
	if !q.From.IsZero() {
		v.Set("start_date", q.From.Format("2006-01-02"))
	}
	if !q.To.IsZero() {
		v.Set("end_date", q.To.Format("2006-01-02"))
	}
	if q.CategoryID != "" {
		v.Set("category_id", q.CategoryID)
	}
	return v
}

// Client reads records and periods from the backend API
type Client struct {
	config  *Config
	base    *url.URL
	http    *http.Client
	records *parsers.RecordParser
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. A nil httpClient gets one with the configured
// timeout.
func NewClient(config *Config, httpClient *http.Client) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "api", config.BaseURL, err).
			WithSuggestion("Set --api-url to the backend base URL, e.g. https://api.example.com/api/v1")
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "api.base_url", config.BaseURL, err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	records, err := parsers.NewRecordParser(&parsers.RecordParserConfig{
		Format:     parsers.FormatJSON,
		StrictMode: config.StrictMode,
		Location:   config.Location,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		config:  config,
		base:    base,
		http:    httpClient,
		records: records,
		logger:  logger.WithComponent("source"),
		sleep:   sleepContext,
	}, nil
}

// ListRecords fetches every transaction record matching query
func (c *Client) ListRecords(ctx context.Context, query RecordQuery) ([]*models.Record, *parsers.ParseStats, error) {
	endpoint := c.endpoint(recordsPath)
	stats := parsers.NewParseStats(endpoint, parsers.FormatJSON)
	records := make([]*models.Record, 0)

	err := c.walkPages(ctx, recordsPath, query.values(), "fetch_records", func(body []byte, name string) (int, error) {
		page, pageStats, err := c.records.Parse(ctx, bytes.NewReader(body), name)
		if err != nil {
			return 0, err
		}
		stats.Merge(pageStats)
		records = append(records, page...)
		return pageStats.RecordsParsed, nil
	})
	if err != nil {
		return nil, stats, err
	}

	c.logger.WithFields(logger.Fields{
		"endpoint":      endpoint,
		"records":       len(records),
		"invalid_items": stats.Skipped(),
	}).Info("Fetched records")

	return records, stats, nil
}

// ListPeriods fetches every period of the given kind
func (c *Client) ListPeriods(ctx context.Context, kind models.PeriodKind) ([]*models.Period, *parsers.ParseStats, error) {
	path := budgetsPath
	if kind == models.PeriodKindBudgetConstraint {
		path = budgetConstraintsPath
	}

	parser, err := parsers.NewPeriodParser(&parsers.PeriodParserConfig{
		Format:      parsers.FormatJSON,
		StrictMode:  c.config.StrictMode,
		DefaultKind: kind,
		Location:    c.config.Location,
	})
	if err != nil {
		return nil, nil, err
	}

	endpoint := c.endpoint(path)
	stats := parsers.NewParseStats(endpoint, parsers.FormatJSON)
	periods := make([]*models.Period, 0)

	err = c.walkPages(ctx, path, url.Values{}, "fetch_periods", func(body []byte, name string) (int, error) {
		page, pageStats, err := parser.Parse(ctx, bytes.NewReader(body), name)
		if err != nil {
			return 0, err
		}
		stats.Merge(pageStats)
		periods = append(periods, page...)
		return pageStats.RecordsParsed, nil
	})
	if err != nil {
		return nil, stats, err
	}

	c.logger.WithFields(logger.Fields{
		"endpoint": endpoint,
		"kind":     string(kind),
		"periods":  len(periods),
	}).Info("Fetched periods")

	return periods, stats, nil
}

// walkPages requests consecutive pages of path and hands each body to
// decode, which returns the number of items on the page
func (c *Client) walkPages(ctx context.Context, path string, params url.Values, operation string, decode func(body []byte, name string) (int, error)) error {
	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: operation,
		Unit:      "items",
		Logger:    c.logger,
	})

	for page := 1; page <= c.config.MaxPages; page++ {
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(c.config.PageSize))

		body, endpoint, err := c.get(ctx, path, params)
		if err != nil {
			return err
		}

		count, err := decode(body, endpoint)
		if err != nil {
			if re, ok := errors.AsReconcilerError(err); ok && re.Code == errors.CodeCancelled {
				return err
			}
			return errors.NetworkError(errors.CodeBadResponse, endpoint, err).
				WithSuggestion("The API returned a payload that could not be decoded")
		}
		progress.Add(int64(count))

		if !hasMore(body, count, c.config.PageSize) {
			progress.Complete()
			return nil
		}
	}

	return errors.NetworkError(
		errors.CodeBadResponse,
		c.endpoint(path),
		fmt.Errorf("pagination did not finish within %d pages", c.config.MaxPages),
	)
}

// pageInfo is the pagination metadata some endpoints send next to the items
type pageInfo struct {
	HasMore      *bool `json:"has_more"`
	HasMoreCamel *bool `json:"hasMore"`
	Pagination   *struct {
		HasMore      *bool `json:"has_more"`
		HasMoreCamel *bool `json:"hasMore"`
	} `json:"pagination"`
}

func (p pageInfo) flag() *bool {
	switch {
	case p.HasMore != nil:
		return p.HasMore
	case p.HasMoreCamel != nil:
		return p.HasMoreCamel
	case p.Pagination != nil && p.Pagination.HasMore != nil:
		return p.Pagination.HasMore
	case p.Pagination != nil:
		return p.Pagination.HasMoreCamel
	}
	return nil
}

// hasMore decides whether another page should be requested. An explicit
// has_more flag wins; otherwise a full page means there may be more. An empty
// page always ends the walk.
func hasMore(body []byte, count, pageSize int) bool {
	if count == 0 {
		return false
	}

	var info pageInfo
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &info); err == nil {
			if flag := info.flag(); flag != nil {
				return *flag
			}
		}
	}

	return count >= pageSize
}

// get performs a GET with retries. Transport errors, 429 and 5xx responses
// are retried with linear backoff; other 4xx responses fail at once.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, string, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()
	endpoint := u.String()

	var lastErr error
	lastCode := errors.CodeConnectionFailed

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.config.RetryBackoff
			c.logger.WithError(lastErr).WithFields(logger.Fields{
				"endpoint": endpoint,
				"attempt":  attempt + 1,
				"wait":     wait.String(),
			}).Warn("Retrying API request")

			if err := c.sleep(ctx, wait); err != nil {
				return nil, endpoint, errors.InternalError(errors.CodeCancelled, "GET "+path, err)
			}
		}

		body, status, err := c.do(ctx, endpoint)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, endpoint, errors.InternalError(errors.CodeCancelled, "GET "+path, ctx.Err())
			}
			lastErr = err
			lastCode = classifyTransportError(err)

		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("server returned status %d: %s", status, snippet(body))
			lastCode = errors.CodeServiceUnavailable

		case status >= 400:
			netErr := errors.NetworkError(
				errors.CodeBadResponse,
				endpoint,
				fmt.Errorf("server returned status %d: %s", status, snippet(body)),
			).WithContext("status", status)
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				netErr = netErr.WithSuggestion("Check the API token")
			}
			return nil, endpoint, netErr

		case status < 200 || status >= 300:
			return nil, endpoint, errors.NetworkError(
				errors.CodeBadResponse,
				endpoint,
				fmt.Errorf("unexpected status %d", status),
			).WithContext("status", status)

		default:
			c.logger.WithFields(logger.Fields{
				"endpoint": endpoint,
				"bytes":    len(body),
			}).Debug("API request succeeded")
			return body, endpoint, nil
		}
	}

	return nil, endpoint, errors.NetworkError(lastCode, endpoint, lastErr).
		WithContext("attempts", c.config.MaxRetries+1)
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func classifyTransportError(err error) errors.ErrorCode {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.CodeTimeout
	}
	return errors.CodeConnectionFailed
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
