package core

import "context"

// Connection is a live, lazily-opened handle to an external system capable
// of answering entity event queries.
type Connection interface {
	// URN of the connection, today the entity's data platform urn.
	URN() string
	// PlatformName is the lowercase platform id, e.g. "snowflake".
	PlatformName() string
}

// ConnectionProvider resolves connection urns into Connections. Providers
// memoize: the same urn yields the same Connection until invalidated.
type ConnectionProvider interface {
	GetConnection(ctx context.Context, connectionURN string) (Connection, error)
}

// Source answers entity event queries over one concrete connection.
type Source interface {
	// GetEntityEvents returns events of the given type for the entity inside
	// the window, both bounds inclusive. An empty slice with a nil error
	// means no qualifying activity.
	GetEntityEvents(ctx context.Context, entityURN string, eventType EntityEventType, window Window, params EventParams) ([]EntityEvent, error)
}

// SourceProvider maps a resolved connection to the Source that knows how to
// query it.
type SourceProvider interface {
	SourceForConnection(conn Connection) (Source, error)
}

// Evaluator evaluates one class of assertions.
type Evaluator interface {
	AssertionType() AssertionType
	Evaluate(ctx context.Context, assertion *Assertion, params *EvaluationParameters, evalCtx EvaluationContext) (*EvaluationResult, error)
}

// ResultHandler receives completed evaluation results. Handlers never run
// for dry-run evaluations.
type ResultHandler interface {
	Handle(ctx context.Context, assertion *Assertion, params *EvaluationParameters, result *EvaluationResult, evalCtx EvaluationContext) error
}

// MonitorFetcher retrieves the full monitor population from the catalog.
type MonitorFetcher interface {
	FetchMonitors(ctx context.Context) ([]Monitor, error)
}

// MetricsRecorder receives operational counters from the scheduler and
// manager. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	RecordEvaluation(assertionType AssertionType, result string)
	RecordRefresh(success bool)
	SetScheduledAssertions(n int)
	RecordQueueDrop()
}

// NopMetrics discards all recordings.
type NopMetrics struct{}

func (NopMetrics) RecordEvaluation(AssertionType, string) {}
func (NopMetrics) RecordRefresh(bool)                     {}
func (NopMetrics) SetScheduledAssertions(int)             {}
func (NopMetrics) RecordQueueDrop()                       {}
