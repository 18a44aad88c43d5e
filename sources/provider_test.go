package sources

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type unknownConnection struct{}

func (unknownConnection) URN() string          { return "urn:li:dataPlatform:mysterydb" }
func (unknownConnection) PlatformName() string { return "mysterydb" }

func TestSourceForConnection(t *testing.T) {
	provider := NewProvider(nil, testLogger())

	src, err := provider.SourceForConnection(connection.NewSnowflakeConnection("urn:li:dataPlatform:snowflake", connection.SnowflakeConfig{}))
	require.NoError(t, err)
	assert.IsType(t, &SnowflakeSource{}, src)

	src, err = provider.SourceForConnection(connection.NewBigQueryConnection("urn:li:dataPlatform:bigquery", connection.BigQueryConfig{}))
	require.NoError(t, err)
	assert.IsType(t, &BigQuerySource{}, src)

	src, err = provider.SourceForConnection(connection.NewRedshiftConnection("urn:li:dataPlatform:redshift", connection.RedshiftConfig{}))
	require.NoError(t, err)
	assert.IsType(t, &RedshiftSource{}, src)
}

func TestSourceForConnectionUnknownPlatform(t *testing.T) {
	provider := NewProvider(nil, testLogger())
	_, err := provider.SourceForConnection(unknownConnection{})
	assert.ErrorIs(t, err, core.ErrUnsupportedPlatform)
}
