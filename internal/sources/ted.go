package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
	"github.com/dataminds-hq/tender-harvester/pkg/httpclient"
)

// TEDFetcher retrieves notice batches from the TED search API, following the
// iterationNextToken pagination until the source reports no further pages.
type TEDFetcher struct {
	client httpclient.Client
	holder *ConfigHolder
	retry  RetryPolicy
}

// NewTEDFetcher wires a fetcher reading its query configuration from holder.
func NewTEDFetcher(client httpclient.Client, holder *ConfigHolder, retry RetryPolicy) *TEDFetcher {
	return &TEDFetcher{client: client, holder: holder, retry: retry}
}

type tedRequest struct {
	Query     string   `json:"query"`
	Fields    []string `json:"fields"`
	Limit     int      `json:"limit"`
	NextToken string   `json:"nextToken,omitempty"`
}

type tedPage struct {
	Notices            []domain.Notice `json:"notices"`
	IterationNextToken string          `json:"iterationNextToken"`
}

// Fetch collects all pages for the currently active query configuration.
func (f *TEDFetcher) Fetch(ctx context.Context) (*domain.Batch, error) {
	return f.fetch(ctx, "")
}

// FetchQuery collects all pages for an explicit query override, used by
// date-ranged runs. The rest of the configuration still comes from the holder.
func (f *TEDFetcher) FetchQuery(ctx context.Context, query string) (*domain.Batch, error) {
	return f.fetch(ctx, query)
}

func (f *TEDFetcher) fetch(ctx context.Context, queryOverride string) (*domain.Batch, error) {
	// Read the configuration once per run; the monitor may swap it underneath.
	cfg := f.holder.Load()
	query := cfg.Query
	if queryOverride != "" {
		query = queryOverride
	}

	var all []domain.Notice
	nextToken := ""
	pages := 0
	for {
		req := tedRequest{
			Query:     query,
			Fields:    cfg.Fields,
			Limit:     cfg.Limit,
			NextToken: nextToken,
		}

		page, err := f.fetchPage(ctx, cfg.URL, req)
		if err != nil {
			return nil, fmt.Errorf("ted page %d: %w", pages+1, err)
		}
		pages++
		all = append(all, page.Notices...)

		nextToken = page.IterationNextToken
		if nextToken == "" {
			break
		}
	}

	logger.InfoObj("ted fetch completed", "ted_fetch", map[string]any{
		"pages":   pages,
		"notices": len(all),
	})
	return &domain.Batch{Notices: all, Total: len(all)}, nil
}

// fetchPage issues one search request under the retry policy. Transport
// failures, non-2xx statuses and malformed bodies all count as failed
// attempts; after the attempt budget the whole fetch fails with no data.
func (f *TEDFetcher) fetchPage(ctx context.Context, url string, req tedRequest) (*tedPage, error) {
	var page tedPage
	err := f.retry.Do(ctx, func() error {
		resp, err := f.client.PostJSON(ctx, url, req, nil)
		if err != nil {
			return fmt.Errorf("ted request: %w", err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return fmt.Errorf("ted request returned status %d", resp.StatusCode())
		}
		page = tedPage{}
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return fmt.Errorf("decode ted response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}
