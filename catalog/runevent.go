package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/acryldata/datahub-monitors/core"
)

const (
	assertionEntityType = "assertion"
	runEventAspectName  = "assertionRunEvent"
	changeTypeUpsert    = "UPSERT"
	runStatusComplete   = "COMPLETE"
	contentTypeJSON     = "application/json"
	nativeResultsEvents = "events"
)

// RunEventHandler writes completed evaluation results back to the catalog
// as assertionRunEvent aspects. Emission failures are logged and swallowed:
// a catalog outage must not fail the evaluation that produced the result.
type RunEventHandler struct {
	client *Client
	clock  core.Clock
	logger *slog.Logger
}

func NewRunEventHandler(client *Client, clock core.Clock, logger *slog.Logger) *RunEventHandler {
	if clock == nil {
		clock = core.NewRealClock()
	}
	return &RunEventHandler{client: client, clock: clock, logger: logger}
}

var _ core.ResultHandler = (*RunEventHandler)(nil)

type assertionRunEvent struct {
	TimestampMillis int64               `json:"timestampMillis"`
	RunID           string              `json:"runId"`
	AsserteeURN     string              `json:"asserteeUrn"`
	Status          string              `json:"status"`
	AssertionURN    string              `json:"assertionUrn"`
	Result          *assertionRunResult `json:"result,omitempty"`
}

type assertionRunResult struct {
	Type          string            `json:"type"`
	NativeResults map[string]string `json:"nativeResults,omitempty"`
}

func (h *RunEventHandler) Handle(ctx context.Context, assertion *core.Assertion, _ *core.EvaluationParameters, result *core.EvaluationResult, _ core.EvaluationContext) error {
	nowMs := h.clock.Now().UnixMilli()

	event := assertionRunEvent{
		TimestampMillis: nowMs,
		RunID:           fmt.Sprintf("%s-%d", assertion.URN, nowMs),
		AsserteeURN:     assertion.Entity.URN,
		Status:          runStatusComplete,
		AssertionURN:    assertion.URN,
		Result:          &assertionRunResult{Type: string(result.Type)},
	}
	if len(result.Events) > 0 {
		encoded, err := json.Marshal(result.Events)
		if err != nil {
			return fmt.Errorf("encode entity events for %q: %w", assertion.URN, err)
		}
		event.Result.NativeResults = map[string]string{nativeResultsEvents: string(encoded)}
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode run event for %q: %w", assertion.URN, err)
	}

	proposal := &MetadataChangeProposal{
		EntityType: assertionEntityType,
		EntityURN:  assertion.URN,
		AspectName: runEventAspectName,
		ChangeType: changeTypeUpsert,
		Aspect:     Aspect{Value: string(value), ContentType: contentTypeJSON},
		SystemMetadata: &SystemMetadata{
			RunID:        fmt.Sprintf("native-%s-%d", assertion.URN, nowMs),
			LastObserved: nowMs,
		},
	}
	if err := h.client.IngestProposal(ctx, proposal); err != nil {
		h.logger.Error("failed to emit assertion run event", "urn", assertion.URN, "error", err)
		return nil
	}
	h.logger.Debug("emitted assertion run event", "urn", assertion.URN, "result", result.Type, "runId", event.RunID)
	return nil
}
