package core

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultFreshnessParameters is the fallback used when an assertion spec
// carries no evaluation parameters: check the table statistics maintained
// by the source system.
func DefaultFreshnessParameters() *EvaluationParameters {
	return &EvaluationParameters{
		Type: EvaluationParametersTypeDatasetFreshness,
		DatasetFreshness: &DatasetFreshnessParameters{
			SourceType: FreshnessSourceTypeInformationSchema,
		},
	}
}

// FreshnessEvaluator evaluates FRESHNESS assertions: it computes the
// validation window from the assertion schedule, queries the entity's
// warehouse for qualifying change events inside that window, and succeeds
// when at least one is found.
type FreshnessEvaluator struct {
	connections ConnectionProvider
	sources     SourceProvider
	clock       Clock
	logger      *slog.Logger
}

func NewFreshnessEvaluator(connections ConnectionProvider, sources SourceProvider, clock Clock, logger *slog.Logger) *FreshnessEvaluator {
	if clock == nil {
		clock = NewRealClock()
	}
	return &FreshnessEvaluator{
		connections: connections,
		sources:     sources,
		clock:       clock,
		logger:      logger,
	}
}

func (e *FreshnessEvaluator) AssertionType() AssertionType {
	return AssertionTypeFreshness
}

func (e *FreshnessEvaluator) Evaluate(ctx context.Context, assertion *Assertion, params *EvaluationParameters, evalCtx EvaluationContext) (*EvaluationResult, error) {
	if assertion.FreshnessAssertion == nil {
		return nil, fmt.Errorf("%w: missing freshness info", ErrMalformedAssertion)
	}
	if assertion.ConnectionURN == "" {
		return nil, fmt.Errorf("%w: missing connection urn", ErrMalformedAssertion)
	}

	conn, err := e.connections.GetConnection(ctx, assertion.ConnectionURN)
	if err != nil {
		return nil, WrapConnectionError("resolve", assertion.ConnectionURN, err)
	}
	if conn == nil {
		return nil, WrapConnectionError("resolve", assertion.ConnectionURN, ErrConnectionUnavailable)
	}

	if params == nil || params.DatasetFreshness == nil {
		params = DefaultFreshnessParameters()
	}

	window, err := e.validationWindow(assertion.FreshnessAssertion.Schedule)
	if err != nil {
		return nil, err
	}

	eventType, eventParams, err := resolveEventQuery(params.DatasetFreshness)
	if err != nil {
		return nil, err
	}

	source, err := e.sources.SourceForConnection(conn)
	if err != nil {
		return nil, WrapConnectionError("source for", conn.URN(), err)
	}

	events, err := source.GetEntityEvents(ctx, assertion.Entity.URN, eventType, window, eventParams)
	if err != nil {
		return nil, fmt.Errorf("fetch %s events for %q: %w", eventType, assertion.Entity.URN, err)
	}

	e.logger.Debug("freshness window evaluated",
		"urn", assertion.URN,
		"entity", assertion.Entity.URN,
		"eventType", eventType,
		"windowStart", window.Start(),
		"windowEnd", window.End(),
		"events", len(events))

	if len(events) > 0 {
		return &EvaluationResult{Type: AssertionResultSuccess, Events: events}, nil
	}
	return &EvaluationResult{Type: AssertionResultFailure}, nil
}

// validationWindow derives the window from the freshness schedule shape.
func (e *FreshnessEvaluator) validationWindow(schedule FreshnessAssertionSchedule) (Window, error) {
	now := e.clock.Now()
	switch schedule.Type {
	case FreshnessScheduleTypeCron:
		if schedule.Cron == nil {
			return Window{}, fmt.Errorf("%w: cron schedule missing cron info", ErrMalformedAssertion)
		}
		return CronWindow(*schedule.Cron, now)
	case FreshnessScheduleTypeFixedInterval:
		if schedule.FixedInterval == nil {
			return Window{}, fmt.Errorf("%w: fixed-interval schedule missing interval info", ErrMalformedAssertion)
		}
		return FixedIntervalWindow(*schedule.FixedInterval, now)
	default:
		return Window{}, fmt.Errorf("%w: unsupported freshness schedule type %q", ErrMalformedAssertion, schedule.Type)
	}
}

// resolveEventQuery maps a freshness source type to the entity event type
// to query and the flat per-variant parameters the source adapter needs.
func resolveEventQuery(params *DatasetFreshnessParameters) (EntityEventType, EventParams, error) {
	switch params.SourceType {
	case FreshnessSourceTypeFieldValue:
		if params.Field == nil {
			return "", EventParams{}, fmt.Errorf("%w: FIELD_VALUE source without field spec", ErrMalformedAssertion)
		}
		return EntityEventTypeFieldUpdate, EventParams{
			Path:       params.Field.Path,
			Type:       params.Field.Type,
			NativeType: params.Field.NativeType,
		}, nil
	case FreshnessSourceTypeInformationSchema:
		return EntityEventTypeInformationSchemaUpdate, EventParams{}, nil
	case FreshnessSourceTypeAuditLog:
		ep := EventParams{}
		if params.AuditLog != nil {
			ep.OperationTypes = params.AuditLog.OperationTypes
			if params.AuditLog.UserName != nil {
				ep.UserName = *params.AuditLog.UserName
			}
		}
		return EntityEventTypeAuditLogOperation, ep, nil
	default:
		return "", EventParams{}, fmt.Errorf("%w: %q", ErrUnsupportedSourceType, params.SourceType)
	}
}
