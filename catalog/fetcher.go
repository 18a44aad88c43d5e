package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acryldata/datahub-monitors/core"
)

// monitorsBatchSize is how many monitors are pulled per search page.
const monitorsBatchSize = 1000

// MonitorFetcher pulls the full monitor population from the catalog search
// API, page by page.
type MonitorFetcher struct {
	client *Client
	retry  *core.RetryExecutor
	logger *slog.Logger
}

func NewMonitorFetcher(client *Client, retry *core.RetryExecutor, logger *slog.Logger) *MonitorFetcher {
	if retry == nil {
		retry = core.NewRetryExecutor(core.DefaultRetryPolicy(), nil, logger)
	}
	return &MonitorFetcher{client: client, retry: retry, logger: logger}
}

var _ core.MonitorFetcher = (*MonitorFetcher)(nil)

// FetchMonitors retrieves and maps every monitor known to the catalog. An
// error on any page fails the whole fetch so the caller keeps its previous
// view rather than acting on a partial one.
func (f *MonitorFetcher) FetchMonitors(ctx context.Context) ([]core.Monitor, error) {
	var monitors []core.Monitor
	start := 0
	for {
		page, err := f.fetchPage(ctx, start, monitorsBatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch monitors page at %d: %w", start, err)
		}
		monitors = append(monitors, mapMonitors(page.SearchResults, f.logger)...)

		start += len(page.SearchResults)
		if start >= page.Total || len(page.SearchResults) == 0 {
			break
		}
	}
	f.logger.Debug("fetched monitors", "count", len(monitors))
	return monitors, nil
}

func (f *MonitorFetcher) fetchPage(ctx context.Context, start, count int) (*rawSearchResult, error) {
	var data rawSearchData
	err := f.retry.Execute(ctx, "search monitors", func(ctx context.Context) error {
		data = rawSearchData{}
		return f.client.ExecuteGraphQL(ctx, searchMonitorsQuery, map[string]any{
			"start": start,
			"count": count,
		}, &data)
	})
	if err != nil {
		return nil, err
	}
	return &data.SearchAcrossEntities, nil
}
