package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/logging/logadmin"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/api/option"

	"github.com/acryldata/datahub-monitors/core"
)

// BigQueryConfig is the connection block of a BigQuery ingestion recipe.
// Credential mirrors the service account key fields embedded in recipes.
type BigQueryConfig struct {
	ProjectID  string         `mapstructure:"project_id"`
	Credential map[string]any `mapstructure:"credential"`
}

func bigqueryConfigFromRecipe(recipe *Recipe) (*BigQueryConfig, error) {
	var cfg BigQueryConfig
	if err := mapstructure.Decode(recipe.Source.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode bigquery recipe config: %w", err)
	}
	if cfg.ProjectID == "" {
		// Some recipes nest the project under the credential block.
		if cfg.Credential != nil {
			if id, ok := cfg.Credential["project_id"].(string); ok {
				cfg.ProjectID = id
			}
		}
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("bigquery recipe missing project_id")
	}
	return &cfg, nil
}

// BigQueryConnection lazily opens a query client and a log reading client
// against the recipe's project.
type BigQueryConnection struct {
	urn string
	cfg BigQueryConfig

	mu       sync.Mutex
	bq       *bigquery.Client
	logAdmin *logadmin.Client
}

func NewBigQueryConnection(urn string, cfg BigQueryConfig) *BigQueryConnection {
	return &BigQueryConnection{urn: urn, cfg: cfg}
}

var _ core.Connection = (*BigQueryConnection)(nil)

func (c *BigQueryConnection) URN() string          { return c.urn }
func (c *BigQueryConnection) PlatformName() string { return PlatformBigQuery }
func (c *BigQueryConnection) ProjectID() string    { return c.cfg.ProjectID }

func (c *BigQueryConnection) clientOptions() ([]option.ClientOption, error) {
	if len(c.cfg.Credential) == 0 {
		// Fall back to application default credentials.
		return nil, nil
	}
	key, err := json.Marshal(c.cfg.Credential)
	if err != nil {
		return nil, fmt.Errorf("encode bigquery credential: %w", err)
	}
	return []option.ClientOption{option.WithCredentialsJSON(key)}, nil
}

// BigQuery returns the shared query client, opening it on first call.
func (c *BigQueryConnection) BigQuery(ctx context.Context) (*bigquery.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bq != nil {
		return c.bq, nil
	}
	opts, err := c.clientOptions()
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, c.cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open bigquery client: %w", err)
	}
	c.bq = client
	return c.bq, nil
}

// LogAdmin returns the shared audit log client, opening it on first call.
func (c *BigQueryConnection) LogAdmin(ctx context.Context) (*logadmin.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logAdmin != nil {
		return c.logAdmin, nil
	}
	opts, err := c.clientOptions()
	if err != nil {
		return nil, err
	}
	client, err := logadmin.NewClient(ctx, c.cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open cloud logging client: %w", err)
	}
	c.logAdmin = client
	return c.logAdmin, nil
}

func (c *BigQueryConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	if c.bq != nil {
		if err := c.bq.Close(); err != nil {
			firstErr = err
		}
		c.bq = nil
	}
	if c.logAdmin != nil {
		if err := c.logAdmin.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.logAdmin = nil
	}
	return firstErr
}
