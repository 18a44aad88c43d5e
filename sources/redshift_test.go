package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
)

const redshiftTableURN = "urn:li:dataset:(urn:li:dataPlatform:redshift,analytics.public.events,PROD)"

func newTestRedshiftSource() *RedshiftSource {
	conn := connection.NewRedshiftConnection("urn:li:dataPlatform:redshift", connection.RedshiftConfig{})
	retry := core.NewRetryExecutor(core.RetryPolicy{Attempts: 1}, nil, testLogger())
	return NewRedshiftSource(conn, retry, testLogger())
}

func TestRedshiftInformationSchemaUnsupported(t *testing.T) {
	// There is no last-altered statistic to read, so the query degrades to
	// no evidence rather than an error.
	events, err := newTestRedshiftSource().GetEntityEvents(context.Background(),
		redshiftTableURN, core.EntityEventTypeInformationSchemaUpdate, core.Window{}, core.EventParams{})
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestRedshiftAuditLogNonInsertOperationsStillQueryInserts(t *testing.T) {
	// Requests without INSERT are downgraded with a warning, not
	// short-circuited; the load-history query still runs and here fails
	// against the unreachable test connection.
	_, err := newTestRedshiftSource().GetEntityEvents(context.Background(),
		redshiftTableURN, core.EntityEventTypeAuditLogOperation, core.Window{},
		core.EventParams{OperationTypes: []string{"UPDATE", "CREATE_TABLE"}})
	assert.Error(t, err)
}

func TestRedshiftRejectsMalformedDatasetName(t *testing.T) {
	twoPart := "urn:li:dataset:(urn:li:dataPlatform:redshift,public.events,PROD)"
	_, err := newTestRedshiftSource().GetEntityEvents(context.Background(),
		twoPart, core.EntityEventTypeAuditLogOperation, core.Window{}, core.EventParams{})
	assert.ErrorIs(t, err, core.ErrMalformedAssertion)

	injection := "urn:li:dataset:(urn:li:dataPlatform:redshift,analytics.public.events; drop table x,PROD)"
	_, err = newTestRedshiftSource().GetEntityEvents(context.Background(),
		injection, core.EntityEventTypeAuditLogOperation, core.Window{}, core.EventParams{})
	assert.ErrorIs(t, err, core.ErrMalformedAssertion)
}

func TestRedshiftUnsupportedEventType(t *testing.T) {
	_, err := newTestRedshiftSource().GetEntityEvents(context.Background(),
		redshiftTableURN, core.EntityEventTypeDataJobRunCompletedSuccess, core.Window{}, core.EventParams{})
	assert.ErrorIs(t, err, core.ErrUnsupportedSourceType)
}
