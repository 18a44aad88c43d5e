package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/acryldata/datahub-monitors/catalog"
	"github.com/acryldata/datahub-monitors/core"
)

// Platform ids as they appear in data platform urns and ingestion source
// types.
const (
	PlatformSnowflake = "snowflake"
	PlatformBigQuery  = "bigquery"
	PlatformRedshift  = "redshift"
)

// cliExecutorID marks ingestion sources that run through the CLI rather
// than a managed executor. Their recipes reference local files and secrets
// this service cannot resolve, so they are never used for connections.
const cliExecutorID = "__datahub_cli_"

// IngestionSourceLister is the slice of the catalog client the provider
// needs.
type IngestionSourceLister interface {
	ListIngestionSources(ctx context.Context) ([]catalog.IngestionSource, error)
}

// Provider resolves connection urns by borrowing the warehouse credentials
// from the matching ingestion recipe registered in the catalog. Resolved
// connections are memoized per urn.
type Provider struct {
	catalog IngestionSourceLister
	secrets []SecretStore
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*connEntry
}

// connEntry guards resolution of one urn so concurrent callers share a
// single catalog round trip without serializing callers for other urns.
type connEntry struct {
	once sync.Once
	conn core.Connection
	err  error
}

func NewProvider(catalogClient IngestionSourceLister, secrets []SecretStore, logger *slog.Logger) *Provider {
	return &Provider{
		catalog: catalogClient,
		secrets: secrets,
		logger:  logger,
		cache:   make(map[string]*connEntry),
	}
}

var _ core.ConnectionProvider = (*Provider)(nil)

// GetConnection resolves a connection urn, today always a data platform
// urn. Returns nil without error when no usable ingestion source exists
// for the platform. The map lock is only held for the entry lookup; the
// catalog round trip and secret resolution run outside it.
func (p *Provider) GetConnection(ctx context.Context, connectionURN string) (core.Connection, error) {
	p.mu.Lock()
	entry, ok := p.cache[connectionURN]
	if !ok {
		entry = &connEntry{}
		p.cache[connectionURN] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		entry.conn, entry.err = p.resolve(ctx, connectionURN)
	})

	if entry.err != nil || entry.conn == nil {
		// Failures and platforms without a usable source are not memoized;
		// the next call resolves afresh.
		p.mu.Lock()
		if p.cache[connectionURN] == entry {
			delete(p.cache, connectionURN)
		}
		p.mu.Unlock()
	}
	return entry.conn, entry.err
}

func (p *Provider) resolve(ctx context.Context, connectionURN string) (core.Connection, error) {
	entityType, err := core.URNEntityType(connectionURN)
	if err != nil {
		return nil, err
	}
	if entityType != "dataPlatform" {
		return nil, fmt.Errorf("%w: connection urn %q is not a data platform", core.ErrUnsupportedPlatform, connectionURN)
	}
	platform, err := core.PlatformName(connectionURN)
	if err != nil {
		return nil, err
	}

	source, err := p.findIngestionSource(ctx, platform)
	if err != nil {
		return nil, err
	}
	if source == nil {
		p.logger.Warn("no usable ingestion source for platform", "platform", platform)
		return nil, nil
	}

	resolved, err := ResolveSecrets(ctx, source.Recipe, p.secrets)
	if err != nil {
		return nil, WrapRecipeError(source.URN, err)
	}
	recipe, err := ParseRecipe(resolved)
	if err != nil {
		return nil, WrapRecipeError(source.URN, err)
	}

	conn, err := p.buildConnection(connectionURN, platform, recipe)
	if err != nil {
		return nil, err
	}
	p.logger.Info("connection resolved", "urn", connectionURN, "platform", platform, "ingestionSource", source.URN)
	return conn, nil
}

// Invalidate drops a memoized connection so the next resolution re-reads
// the recipe.
func (p *Provider) Invalidate(connectionURN string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, connectionURN)
}

// findIngestionSource picks the first non-CLI ingestion source whose type
// matches the platform.
func (p *Provider) findIngestionSource(ctx context.Context, platform string) (*catalog.IngestionSource, error) {
	sources, err := p.catalog.ListIngestionSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ingestion sources for %q: %w", platform, err)
	}
	for i := range sources {
		source := &sources[i]
		if source.Type == platform && source.ExecutorID != cliExecutorID {
			return source, nil
		}
	}
	return nil, nil
}

func (p *Provider) buildConnection(urn, platform string, recipe *Recipe) (core.Connection, error) {
	switch platform {
	case PlatformSnowflake:
		cfg, err := snowflakeConfigFromRecipe(recipe)
		if err != nil {
			return nil, err
		}
		return NewSnowflakeConnection(urn, *cfg), nil
	case PlatformBigQuery:
		cfg, err := bigqueryConfigFromRecipe(recipe)
		if err != nil {
			return nil, err
		}
		return NewBigQueryConnection(urn, *cfg), nil
	case PlatformRedshift:
		cfg, err := redshiftConfigFromRecipe(recipe)
		if err != nil {
			return nil, err
		}
		return NewRedshiftConnection(urn, *cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedPlatform, platform)
	}
}

// WrapRecipeError attaches the ingestion source context to a recipe
// processing error.
func WrapRecipeError(sourceURN string, err error) error {
	return fmt.Errorf("ingestion source %q: %w", sourceURN, err)
}
