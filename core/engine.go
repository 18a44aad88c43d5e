package core

import (
	"context"
	"fmt"
	"log/slog"
)

// AssertionEngine routes assertions to the evaluator registered for their
// type and fans completed results out to the result handlers.
type AssertionEngine struct {
	evaluators map[AssertionType]Evaluator
	handlers   []ResultHandler
	metrics    MetricsRecorder
	logger     *slog.Logger
}

func NewAssertionEngine(evaluators []Evaluator, handlers []ResultHandler, metrics MetricsRecorder, logger *slog.Logger) *AssertionEngine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	byType := make(map[AssertionType]Evaluator, len(evaluators))
	for _, ev := range evaluators {
		byType[ev.AssertionType()] = ev
	}
	return &AssertionEngine{
		evaluators: byType,
		handlers:   handlers,
		metrics:    metrics,
		logger:     logger,
	}
}

// Evaluate runs a single assertion evaluation. Dry runs return the result
// without invoking any handler. Handler failures are logged and do not
// affect the returned result.
func (e *AssertionEngine) Evaluate(ctx context.Context, assertion *Assertion, params *EvaluationParameters, evalCtx EvaluationContext) (*EvaluationResult, error) {
	evaluator, ok := e.evaluators[assertion.Type]
	if !ok {
		e.metrics.RecordEvaluation(assertion.Type, "error")
		return nil, fmt.Errorf("no evaluator for assertion type %q: %w", assertion.Type, ErrUnknownAssertionType)
	}

	e.logger.Debug("evaluating assertion", "urn", assertion.URN, "type", assertion.Type)
	result, err := evaluator.Evaluate(ctx, assertion, params, evalCtx)
	if err != nil {
		e.metrics.RecordEvaluation(assertion.Type, "error")
		return nil, WrapAssertionError("evaluate", assertion.URN, err)
	}
	e.metrics.RecordEvaluation(assertion.Type, string(result.Type))

	if evalCtx.DryRun {
		e.logger.Debug("dry run, skipping result handlers", "urn", assertion.URN)
		return result, nil
	}
	for _, handler := range e.handlers {
		if err := handler.Handle(ctx, assertion, params, result, evalCtx); err != nil {
			e.logger.Error("result handler failed", "urn", assertion.URN, "error", err)
		}
	}
	return result, nil
}
