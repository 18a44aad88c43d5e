package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	graphqlPath        = "/api/graphql"
	ingestProposalPath = "/aspects?action=ingestProposal"

	restliProtocolHeader  = "X-RestLi-Protocol-Version"
	restliProtocolVersion = "2.0.0"
)

// ClientConfig holds the coordinates and credentials of the metadata
// catalog (GMS) endpoint.
type ClientConfig struct {
	ServerURL    string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RetryMax     int
}

// Client speaks the catalog's GraphQL API and its Rest.li aspect ingestion
// endpoint. Transient HTTP failures are retried with backoff.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	auth    string
	logger  *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 4 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = &retryLogger{logger: logger}

	c := &Client{
		http:    rc,
		baseURL: cfg.ServerURL,
		logger:  logger,
	}
	if cfg.ClientID != "" {
		// The catalog expects system client credentials joined verbatim, not
		// base64 encoded.
		c.auth = "Basic " + cfg.ClientID + ":" + cfg.ClientSecret
	}
	return c
}

// graphqlRequest is the standard GraphQL POST body.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// ExecuteGraphQL posts a query and unmarshals the response data into out.
func (c *Client) ExecuteGraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	respBody, err := c.post(ctx, c.baseURL+graphqlPath, body, nil)
	if err != nil {
		return err
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql request failed: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode graphql data: %w", err)
		}
	}
	return nil
}

// MetadataChangeProposal is the Rest.li envelope used to write an aspect
// back to the catalog.
type MetadataChangeProposal struct {
	EntityType     string          `json:"entityType"`
	EntityURN      string          `json:"entityUrn"`
	AspectName     string          `json:"aspectName"`
	ChangeType     string          `json:"changeType"`
	Aspect         Aspect          `json:"aspect"`
	SystemMetadata *SystemMetadata `json:"systemMetadata,omitempty"`
}

type SystemMetadata struct {
	RunID        string `json:"runId"`
	LastObserved int64  `json:"lastObserved"`
}

type Aspect struct {
	Value       string `json:"value"`
	ContentType string `json:"contentType"`
}

// IngestProposal writes a metadata change proposal to the catalog.
func (c *Client) IngestProposal(ctx context.Context, proposal *MetadataChangeProposal) error {
	body, err := json.Marshal(map[string]any{"proposal": proposal})
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	headers := map[string]string{restliProtocolHeader: restliProtocolVersion}
	if _, err := c.post(ctx, c.baseURL+ingestProposalPath, body, headers); err != nil {
		return fmt.Errorf("ingest %s for %q: %w", proposal.AspectName, proposal.EntityURN, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, truncate(respBody, 512))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// retryLogger adapts slog to the leveled logger the retrying HTTP client
// expects.
type retryLogger struct {
	logger *slog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...any) { l.logger.Error(msg, keysAndValues...) }
func (l *retryLogger) Info(msg string, keysAndValues ...any)  { l.logger.Debug(msg, keysAndValues...) }
func (l *retryLogger) Debug(msg string, keysAndValues ...any) { l.logger.Debug(msg, keysAndValues...) }
func (l *retryLogger) Warn(msg string, keysAndValues ...any)  { l.logger.Warn(msg, keysAndValues...) }
