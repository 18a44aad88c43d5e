package core

import "time"

// The types in this file are bound from the GraphQL API response objects of
// the upstream metadata catalog (GMS). Field tags follow the wire names.

type MonitorType string

const (
	MonitorTypeAssertion MonitorType = "ASSERTION"
)

type AssertionType string

const (
	AssertionTypeDataset   AssertionType = "DATASET"
	AssertionTypeFreshness AssertionType = "FRESHNESS"
)

type FreshnessAssertionType string

const (
	FreshnessAssertionTypeDatasetChange FreshnessAssertionType = "DATASET_CHANGE"
)

type FreshnessScheduleType string

const (
	FreshnessScheduleTypeCron          FreshnessScheduleType = "CRON"
	FreshnessScheduleTypeFixedInterval FreshnessScheduleType = "FIXED_INTERVAL"
)

type CalendarInterval string

const (
	CalendarIntervalMinute CalendarInterval = "MINUTE"
	CalendarIntervalHour   CalendarInterval = "HOUR"
	CalendarIntervalDay    CalendarInterval = "DAY"
)

type AssertionResultType string

const (
	AssertionResultSuccess AssertionResultType = "SUCCESS"
	AssertionResultFailure AssertionResultType = "FAILURE"
)

// FreshnessSourceType describes where the freshness signal comes from.
type FreshnessSourceType string

const (
	// The signal comes from the last updated value of a column / field.
	FreshnessSourceTypeFieldValue FreshnessSourceType = "FIELD_VALUE"
	// The signal comes from a table last-updated statistic maintained by the
	// source system.
	FreshnessSourceTypeInformationSchema FreshnessSourceType = "INFORMATION_SCHEMA"
	// The signal comes from the warehouse audit log.
	FreshnessSourceTypeAuditLog FreshnessSourceType = "AUDIT_LOG"
)

// EntityEventType enumerates the entity events that can be retrieved through
// a particular connection.
type EntityEventType string

const (
	EntityEventTypeFieldUpdate                EntityEventType = "FIELD_UPDATE"
	EntityEventTypeInformationSchemaUpdate    EntityEventType = "INFORMATION_SCHEMA_UPDATE"
	EntityEventTypeAuditLogOperation          EntityEventType = "AUDIT_LOG_OPERATION"
	EntityEventTypeDataJobRunCompletedSuccess EntityEventType = "DATA_JOB_RUN_COMPLETED_SUCCESS"
	EntityEventTypeDataJobRunCompletedFailure EntityEventType = "DATA_JOB_RUN_COMPLETED_FAILURE"
)

type EvaluationParametersType string

const (
	EvaluationParametersTypeDatasetFreshness EvaluationParametersType = "DATASET_FRESHNESS"
)

// CronSchedule is the outer job-trigger schedule: it controls when an
// assertion is evaluated, not the validation window shape.
type CronSchedule struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
}

// FreshnessCronSchedule describes a cron-shaped validation window.
type FreshnessCronSchedule struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
	// Optional start time offset back from the window end. When absent, the
	// boundary is the previous cron evaluation time.
	WindowStartOffsetMs *int64 `json:"windowStartOffsetMs"`
}

type FixedIntervalSchedule struct {
	Unit     CalendarInterval `json:"unit"`
	Multiple int              `json:"multiple"`
}

// FreshnessAssertionSchedule is a tagged union over the two window shapes.
type FreshnessAssertionSchedule struct {
	Type          FreshnessScheduleType  `json:"type"`
	Cron          *FreshnessCronSchedule `json:"cron,omitempty"`
	FixedInterval *FixedIntervalSchedule `json:"fixedInterval,omitempty"`
}

type FreshnessAssertion struct {
	Type     FreshnessAssertionType     `json:"type"`
	Schedule FreshnessAssertionSchedule `json:"schedule"`
}

// SchemaFieldSpec identifies the dataset column carrying the freshness
// signal for FIELD_VALUE source types.
type SchemaFieldSpec struct {
	Path string `json:"path"`
	// The standardized type of the field.
	Type string `json:"type"`
	// The native type of the field as collected from the source.
	NativeType string `json:"nativeType"`
}

// AuditLogSpec narrows which audit-log operations qualify as freshness
// evidence. Empty operation types means the adapter default allowlist.
type AuditLogSpec struct {
	OperationTypes []string `json:"operationTypes,omitempty"`
	UserName       *string  `json:"userName,omitempty"`
}

type DatasetFreshnessParameters struct {
	SourceType FreshnessSourceType `json:"sourceType"`
	// Present when SourceType is FIELD_VALUE.
	Field *SchemaFieldSpec `json:"field,omitempty"`
	// Present when SourceType is AUDIT_LOG.
	AuditLog *AuditLogSpec `json:"auditLog,omitempty"`
}

type EvaluationParameters struct {
	Type             EvaluationParametersType    `json:"type"`
	DatasetFreshness *DatasetFreshnessParameters `json:"datasetFreshnessParameters,omitempty"`
}

// AssertionEntity holds the unique coordinates of the assertee inside its
// data platform.
type AssertionEntity struct {
	URN              string   `json:"urn"`
	PlatformURN      string   `json:"platformUrn"`
	PlatformInstance *string  `json:"platformInstance,omitempty"`
	SubTypes         []string `json:"subTypes,omitempty"`
}

type Assertion struct {
	URN    string          `json:"urn"`
	Type   AssertionType   `json:"type"`
	Entity AssertionEntity `json:"entity"`
	// The urn of the connection required to evaluate the assertion. In the
	// current contract this is the entity's platform urn.
	ConnectionURN      string              `json:"connectionUrn"`
	FreshnessAssertion *FreshnessAssertion `json:"freshnessAssertion,omitempty"`
}

// AssertionEvaluationSpec is the triple that uniquely determines one
// scheduled evaluation job.
type AssertionEvaluationSpec struct {
	Assertion  Assertion             `json:"assertion"`
	Schedule   CronSchedule          `json:"schedule"`
	Parameters *EvaluationParameters `json:"parameters,omitempty"`
}

type AssertionMonitor struct {
	Assertions []AssertionEvaluationSpec `json:"assertions"`
}

// Monitor is a catalog entity grouping assertion evaluation specs under a
// single lifecycle.
type Monitor struct {
	URN              string            `json:"urn"`
	Type             MonitorType       `json:"type"`
	AssertionMonitor *AssertionMonitor `json:"assertionMonitor,omitempty"`
}

// EvaluationContext carries per-evaluation flags. Dry runs still produce a
// result but never reach the result handlers.
type EvaluationContext struct {
	DryRun bool
}

// EntityEvent is a timestamped record of a qualifying activity observed in
// the warehouse. The JSON shape matches the nativeResults encoding of the
// run event aspect.
type EntityEvent struct {
	EventType   EntityEventType `json:"type"`
	EventTimeMs int64           `json:"time"`
}

// EvaluationResult is the outcome of a single assertion evaluation. Events
// is populated on SUCCESS with the matching entity events.
type EvaluationResult struct {
	Type   AssertionResultType
	Events []EntityEvent
}

// Window is the validation interval, inclusive of both bounds, in epoch
// milliseconds. StartMs <= EndMs always holds for windows produced by the
// evaluators.
type Window struct {
	StartMs int64
	EndMs   int64
}

func (w Window) Start() time.Time { return time.UnixMilli(w.StartMs).UTC() }
func (w Window) End() time.Time   { return time.UnixMilli(w.EndMs).UTC() }

// EventParams is the explicit flattening of the per-variant source
// parameters handed to a source adapter. Exactly one variant's fields are
// populated: Path/Type/NativeType for FIELD_VALUE, OperationTypes/UserName
// for AUDIT_LOG, nothing for INFORMATION_SCHEMA.
type EventParams struct {
	Path       string
	Type       string
	NativeType string

	OperationTypes []string
	UserName       string
}
