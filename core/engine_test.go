package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRoutesToEvaluator(t *testing.T) {
	evaluator := &fakeEvaluator{
		assertionType: AssertionTypeFreshness,
		result:        &EvaluationResult{Type: AssertionResultSuccess},
	}
	handler := &fakeHandler{}
	metrics := newCaptureMetrics()
	engine := NewAssertionEngine([]Evaluator{evaluator}, []ResultHandler{handler}, metrics, testLogger())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", "urn:li:dataPlatform:snowflake")
	result, err := engine.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, AssertionResultSuccess, result.Type)
	assert.Len(t, handler.handled, 1)
	assert.Equal(t, 1, metrics.evaluations["FRESHNESS/SUCCESS"])
}

func TestEngineNoEvaluatorForType(t *testing.T) {
	engine := NewAssertionEngine(nil, nil, nil, testLogger())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", "urn:li:dataPlatform:snowflake")
	_, err := engine.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	assert.ErrorIs(t, err, ErrUnknownAssertionType)
	assert.NotErrorIs(t, err, ErrMalformedAssertion)
}

func TestEngineDryRunSkipsHandlers(t *testing.T) {
	evaluator := &fakeEvaluator{
		assertionType: AssertionTypeFreshness,
		result:        &EvaluationResult{Type: AssertionResultFailure},
	}
	handler := &fakeHandler{}
	engine := NewAssertionEngine([]Evaluator{evaluator}, []ResultHandler{handler}, nil, testLogger())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", "urn:li:dataPlatform:snowflake")
	result, err := engine.Evaluate(context.Background(), &assertion, nil, EvaluationContext{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, AssertionResultFailure, result.Type)
	assert.Empty(t, handler.handled)
}

func TestEngineHandlerFailureIsNotFatal(t *testing.T) {
	evaluator := &fakeEvaluator{
		assertionType: AssertionTypeFreshness,
		result:        &EvaluationResult{Type: AssertionResultSuccess},
	}
	failing := &fakeHandler{err: errors.New("emit failed")}
	second := &fakeHandler{}
	engine := NewAssertionEngine([]Evaluator{evaluator}, []ResultHandler{failing, second}, nil, testLogger())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", "urn:li:dataPlatform:snowflake")
	result, err := engine.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, AssertionResultSuccess, result.Type)
	// Both handlers still ran.
	assert.Len(t, failing.handled, 1)
	assert.Len(t, second.handled, 1)
}

func TestEngineEvaluatorErrorWrapsAssertion(t *testing.T) {
	evaluator := &fakeEvaluator{
		assertionType: AssertionTypeFreshness,
		err:           ErrConnectionUnavailable,
	}
	metrics := newCaptureMetrics()
	engine := NewAssertionEngine([]Evaluator{evaluator}, nil, metrics, testLogger())

	assertion := freshnessAssertion("urn:li:assertion:a", "urn:li:dataset:d", "urn:li:dataPlatform:snowflake")
	_, err := engine.Evaluate(context.Background(), &assertion, nil, EvaluationContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Contains(t, err.Error(), "urn:li:assertion:a")
	assert.Equal(t, 1, metrics.evaluations["FRESHNESS/error"])
}
