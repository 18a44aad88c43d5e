package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFreshnessEvaluator(conn Connection, source *fakeSource, now time.Time) *FreshnessEvaluator {
	return NewFreshnessEvaluator(
		&fakeConnectionProvider{conn: conn},
		&fakeSourceProvider{source: source},
		NewFakeClock(now),
		testLogger(),
	)
}

func TestFreshnessEvaluateSuccess(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)
	source := &fakeSource{events: []EntityEvent{
		{EventType: EntityEventTypeInformationSchemaUpdate, EventTimeMs: now.Add(-10 * time.Minute).UnixMilli()},
	}}
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, source, now)

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	result, err := evaluator.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, AssertionResultSuccess, result.Type)
	assert.Len(t, result.Events, 1)

	// No parameters means the information-schema default.
	assert.Equal(t, EntityEventTypeInformationSchemaUpdate, source.lastEventType)
	assert.Equal(t, "urn:li:dataset:d", source.lastEntityURN)

	// Fixed interval of one hour trailing from now.
	assert.Equal(t, now.Add(-time.Hour), source.lastWindow.Start())
	assert.Equal(t, now, source.lastWindow.End())
}

func TestFreshnessEvaluateNoEventsFails(t *testing.T) {
	now := time.Now()
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, &fakeSource{}, now)

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	result, err := evaluator.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, AssertionResultFailure, result.Type)
	assert.Empty(t, result.Events)
}

func TestFreshnessEvaluateNilConnection(t *testing.T) {
	evaluator := newTestFreshnessEvaluator(nil, &fakeSource{}, time.Now())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", "urn:li:dataPlatform:snowflake")
	_, err := evaluator.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
}

func TestFreshnessEvaluateMissingInfo(t *testing.T) {
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, &fakeSource{}, time.Now())

	noInfo := Assertion{
		URN:           "urn:li:assertion:a",
		Type:          AssertionTypeFreshness,
		ConnectionURN: conn.urn,
	}
	_, err := evaluator.Evaluate(context.Background(), &noInfo, nil, EvaluationContext{})
	assert.ErrorIs(t, err, ErrMalformedAssertion)

	noConn := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	noConn.ConnectionURN = ""
	_, err = evaluator.Evaluate(context.Background(), &noConn, nil, EvaluationContext{})
	assert.ErrorIs(t, err, ErrMalformedAssertion)
}

func TestFreshnessEvaluateFieldValueParams(t *testing.T) {
	now := time.Now()
	source := &fakeSource{}
	conn := &fakeConnection{urn: "urn:li:dataPlatform:bigquery", platform: "bigquery"}
	evaluator := newTestFreshnessEvaluator(conn, source, now)

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	params := &EvaluationParameters{
		Type: EvaluationParametersTypeDatasetFreshness,
		DatasetFreshness: &DatasetFreshnessParameters{
			SourceType: FreshnessSourceTypeFieldValue,
			Field:      &SchemaFieldSpec{Path: "updated_at", Type: "TIMESTAMP", NativeType: "TIMESTAMP"},
		},
	}
	_, err := evaluator.Evaluate(context.Background(), &assertion, params, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, EntityEventTypeFieldUpdate, source.lastEventType)
	assert.Equal(t, "updated_at", source.lastParams.Path)
	assert.Equal(t, "TIMESTAMP", source.lastParams.Type)
}

func TestFreshnessEvaluateFieldValueWithoutField(t *testing.T) {
	conn := &fakeConnection{urn: "urn:li:dataPlatform:bigquery", platform: "bigquery"}
	evaluator := newTestFreshnessEvaluator(conn, &fakeSource{}, time.Now())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	params := &EvaluationParameters{
		Type: EvaluationParametersTypeDatasetFreshness,
		DatasetFreshness: &DatasetFreshnessParameters{
			SourceType: FreshnessSourceTypeFieldValue,
		},
	}
	_, err := evaluator.Evaluate(context.Background(), &assertion, params, EvaluationContext{})
	assert.ErrorIs(t, err, ErrMalformedAssertion)
}

func TestFreshnessEvaluateAuditLogParams(t *testing.T) {
	source := &fakeSource{}
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, source, time.Now())

	user := "etl_user"
	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	params := &EvaluationParameters{
		Type: EvaluationParametersTypeDatasetFreshness,
		DatasetFreshness: &DatasetFreshnessParameters{
			SourceType: FreshnessSourceTypeAuditLog,
			AuditLog:   &AuditLogSpec{OperationTypes: []string{"INSERT"}, UserName: &user},
		},
	}
	_, err := evaluator.Evaluate(context.Background(), &assertion, params, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, EntityEventTypeAuditLogOperation, source.lastEventType)
	assert.Equal(t, []string{"INSERT"}, source.lastParams.OperationTypes)
	assert.Equal(t, "etl_user", source.lastParams.UserName)
}

func TestFreshnessEvaluateAuditLogWithoutSpec(t *testing.T) {
	// AUDIT_LOG without an audit log spec falls back to adapter defaults.
	source := &fakeSource{}
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, source, time.Now())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	params := &EvaluationParameters{
		Type: EvaluationParametersTypeDatasetFreshness,
		DatasetFreshness: &DatasetFreshnessParameters{
			SourceType: FreshnessSourceTypeAuditLog,
		},
	}
	_, err := evaluator.Evaluate(context.Background(), &assertion, params, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, EntityEventTypeAuditLogOperation, source.lastEventType)
	assert.Empty(t, source.lastParams.OperationTypes)
}

func TestFreshnessEvaluateUnsupportedSourceType(t *testing.T) {
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, &fakeSource{}, time.Now())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	params := &EvaluationParameters{
		Type: EvaluationParametersTypeDatasetFreshness,
		DatasetFreshness: &DatasetFreshnessParameters{
			SourceType: "DATAHUB_OPERATION",
		},
	}
	_, err := evaluator.Evaluate(context.Background(), &assertion, params, EvaluationContext{})
	assert.ErrorIs(t, err, ErrUnsupportedSourceType)
}

func TestFreshnessEvaluateDayIntervalUnsupported(t *testing.T) {
	conn := &fakeConnection{urn: "urn:li:dataPlatform:snowflake", platform: "snowflake"}
	evaluator := newTestFreshnessEvaluator(conn, &fakeSource{}, time.Now())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", conn.urn)
	assertion.FreshnessAssertion.Schedule.FixedInterval.Unit = CalendarIntervalDay
	_, err := evaluator.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	assert.ErrorIs(t, err, ErrUnsupportedScheduleUnit)
}
