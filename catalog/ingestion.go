package catalog

import (
	"context"
	"fmt"
)

// ingestionSourcesBatchSize is how many ingestion sources are listed per
// page.
const ingestionSourcesBatchSize = 10000

// IngestionSource is a configured metadata ingestion recipe registered in
// the catalog.
type IngestionSource struct {
	URN        string
	Type       string
	Name       string
	Recipe     string
	ExecutorID string
}

type rawListSourcesData struct {
	ListIngestionSources rawListSourcesResult `json:"listIngestionSources"`
}

type rawListSourcesResult struct {
	Start            int                  `json:"start"`
	Count            int                  `json:"count"`
	Total            int                  `json:"total"`
	IngestionSources []rawIngestionSource `json:"ingestionSources"`
}

type rawIngestionSource struct {
	URN    string `json:"urn"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Config struct {
		Recipe     string `json:"recipe"`
		ExecutorID string `json:"executorId"`
	} `json:"config"`
}

// ListIngestionSources returns every ingestion source registered in the
// catalog.
func (c *Client) ListIngestionSources(ctx context.Context) ([]IngestionSource, error) {
	var sources []IngestionSource
	start := 0
	for {
		var data rawListSourcesData
		err := c.ExecuteGraphQL(ctx, listIngestionSourcesQuery, map[string]any{
			"start": start,
			"count": ingestionSourcesBatchSize,
		}, &data)
		if err != nil {
			return nil, fmt.Errorf("list ingestion sources at %d: %w", start, err)
		}
		page := data.ListIngestionSources
		for _, raw := range page.IngestionSources {
			sources = append(sources, IngestionSource{
				URN:        raw.URN,
				Type:       raw.Type,
				Name:       raw.Name,
				Recipe:     raw.Config.Recipe,
				ExecutorID: raw.Config.ExecutorID,
			})
		}
		start += len(page.IngestionSources)
		if start >= page.Total || len(page.IngestionSources) == 0 {
			break
		}
	}
	return sources, nil
}

type rawSecretValuesData struct {
	GetSecretValues []rawSecretValue `json:"getSecretValues"`
}

type rawSecretValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GetSecretValues resolves catalog-managed secrets by name. Unknown names
// are simply absent from the returned map.
func (c *Client) GetSecretValues(ctx context.Context, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	var data rawSecretValuesData
	err := c.ExecuteGraphQL(ctx, getSecretValuesQuery, map[string]any{"secrets": names}, &data)
	if err != nil {
		return nil, fmt.Errorf("get secret values: %w", err)
	}
	values := make(map[string]string, len(data.GetSecretValues))
	for _, sv := range data.GetSecretValues {
		values[sv.Name] = sv.Value
	}
	return values, nil
}
