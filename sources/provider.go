package sources

import (
	"fmt"
	"log/slog"

	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
)

// Provider maps resolved connections to the warehouse adapter that knows
// how to query them.
type Provider struct {
	retry  *core.RetryExecutor
	logger *slog.Logger
}

func NewProvider(retry *core.RetryExecutor, logger *slog.Logger) *Provider {
	if retry == nil {
		retry = core.NewRetryExecutor(core.DefaultRetryPolicy(), nil, logger)
	}
	return &Provider{retry: retry, logger: logger}
}

var _ core.SourceProvider = (*Provider)(nil)

func (p *Provider) SourceForConnection(conn core.Connection) (core.Source, error) {
	switch c := conn.(type) {
	case *connection.SnowflakeConnection:
		return NewSnowflakeSource(c, p.retry, p.logger), nil
	case *connection.BigQueryConnection:
		return NewBigQuerySource(c, p.retry, p.logger), nil
	case *connection.RedshiftConnection:
		return NewRedshiftSource(c, p.retry, p.logger), nil
	default:
		return nil, fmt.Errorf("%w: no source for connection %q", core.ErrUnsupportedPlatform, conn.URN())
	}
}
