package catalog

import (
	"fmt"
	"log/slog"

	"github.com/acryldata/datahub-monitors/core"
)

// Raw GraphQL binding types. The search response is mapped tolerantly: a
// monitor that cannot be mapped is skipped with a warning so one bad
// catalog entry never blocks the rest of the population.

type rawSearchData struct {
	SearchAcrossEntities rawSearchResult `json:"searchAcrossEntities"`
}

type rawSearchResult struct {
	Start         int              `json:"start"`
	Count         int              `json:"count"`
	Total         int              `json:"total"`
	SearchResults []rawSearchEntry `json:"searchResults"`
}

type rawSearchEntry struct {
	Entity rawMonitor `json:"entity"`
}

type rawMonitor struct {
	URN  string          `json:"urn"`
	Type string          `json:"type"`
	Info *rawMonitorInfo `json:"info"`
}

type rawMonitorInfo struct {
	Type             string               `json:"type"`
	AssertionMonitor *rawAssertionMonitor `json:"assertionMonitor"`
}

type rawAssertionMonitor struct {
	Assertions []rawEvaluationSpec `json:"assertions"`
}

type rawEvaluationSpec struct {
	Assertion  *rawAssertion      `json:"assertion"`
	Schedule   *core.CronSchedule `json:"schedule"`
	Parameters *rawParameters     `json:"parameters"`
}

type rawAssertion struct {
	URN           string            `json:"urn"`
	Info          *rawAssertionInfo `json:"info"`
	Relationships *rawRelationships `json:"relationships"`
}

type rawAssertionInfo struct {
	Type               string                 `json:"type"`
	FreshnessAssertion *rawFreshnessAssertion `json:"freshnessAssertion"`
}

type rawFreshnessAssertion struct {
	Type      string                          `json:"type"`
	EntityURN string                          `json:"entityUrn"`
	Schedule  core.FreshnessAssertionSchedule `json:"schedule"`
}

type rawRelationships struct {
	Relationships []rawRelationship `json:"relationships"`
}

type rawRelationship struct {
	Entity *rawEntity `json:"entity"`
}

type rawEntity struct {
	URN      string       `json:"urn"`
	Type     string       `json:"type"`
	Platform *rawPlatform `json:"platform"`
	SubTypes *rawSubTypes `json:"subTypes"`
}

type rawPlatform struct {
	URN string `json:"urn"`
}

type rawSubTypes struct {
	TypeNames []string `json:"typeNames"`
}

type rawParameters struct {
	Type             string                           `json:"type"`
	DatasetFreshness *core.DatasetFreshnessParameters `json:"datasetFreshnessParameters"`
}

// mapMonitors converts the raw search page into domain monitors, skipping
// entries that fail to map.
func mapMonitors(entries []rawSearchEntry, logger *slog.Logger) []core.Monitor {
	monitors := make([]core.Monitor, 0, len(entries))
	for _, entry := range entries {
		monitor, err := mapMonitor(entry.Entity)
		if err != nil {
			logger.Warn("skipping unmappable monitor", "urn", entry.Entity.URN, "error", err)
			continue
		}
		monitors = append(monitors, monitor)
	}
	return monitors
}

func mapMonitor(raw rawMonitor) (core.Monitor, error) {
	if raw.URN == "" {
		return core.Monitor{}, fmt.Errorf("monitor without urn")
	}
	if raw.Info == nil {
		return core.Monitor{}, fmt.Errorf("monitor without info")
	}
	monitor := core.Monitor{
		URN:  raw.URN,
		Type: core.MonitorType(raw.Info.Type),
	}
	if monitor.Type != core.MonitorTypeAssertion {
		return core.Monitor{}, fmt.Errorf("unsupported monitor type %q", raw.Info.Type)
	}
	if raw.Info.AssertionMonitor == nil {
		return core.Monitor{}, fmt.Errorf("assertion monitor without assertions")
	}

	am := &core.AssertionMonitor{}
	for _, rawSpec := range raw.Info.AssertionMonitor.Assertions {
		spec, err := mapEvaluationSpec(rawSpec)
		if err != nil {
			return core.Monitor{}, err
		}
		am.Assertions = append(am.Assertions, spec)
	}
	monitor.AssertionMonitor = am
	return monitor, nil
}

func mapEvaluationSpec(raw rawEvaluationSpec) (core.AssertionEvaluationSpec, error) {
	if raw.Assertion == nil || raw.Assertion.URN == "" {
		return core.AssertionEvaluationSpec{}, fmt.Errorf("evaluation spec without assertion")
	}
	if raw.Assertion.Info == nil {
		return core.AssertionEvaluationSpec{}, fmt.Errorf("assertion %q without info", raw.Assertion.URN)
	}

	assertion := core.Assertion{
		URN:  raw.Assertion.URN,
		Type: core.AssertionType(raw.Assertion.Info.Type),
	}
	if fa := raw.Assertion.Info.FreshnessAssertion; fa != nil {
		assertion.FreshnessAssertion = &core.FreshnessAssertion{
			Type:     core.FreshnessAssertionType(fa.Type),
			Schedule: fa.Schedule,
		}
	}

	entity, err := mapAssertionEntity(raw.Assertion)
	if err != nil {
		return core.AssertionEvaluationSpec{}, err
	}
	assertion.Entity = entity
	// The connection is keyed by the entity's platform until connections
	// become first-class catalog entities.
	assertion.ConnectionURN = entity.PlatformURN

	spec := core.AssertionEvaluationSpec{Assertion: assertion}
	if raw.Schedule != nil {
		spec.Schedule = *raw.Schedule
	}
	if raw.Parameters != nil {
		spec.Parameters = &core.EvaluationParameters{
			Type:             core.EvaluationParametersType(raw.Parameters.Type),
			DatasetFreshness: raw.Parameters.DatasetFreshness,
		}
	}
	return spec, nil
}

// mapAssertionEntity pulls the assertee out of the assertion's Asserts
// relationship.
func mapAssertionEntity(raw *rawAssertion) (core.AssertionEntity, error) {
	if raw.Relationships == nil || len(raw.Relationships.Relationships) == 0 {
		return core.AssertionEntity{}, fmt.Errorf("assertion %q without asserted entity", raw.URN)
	}
	rel := raw.Relationships.Relationships[0].Entity
	if rel == nil || rel.URN == "" {
		return core.AssertionEntity{}, fmt.Errorf("assertion %q with empty asserted entity", raw.URN)
	}
	entity := core.AssertionEntity{URN: rel.URN}
	if rel.Platform != nil {
		entity.PlatformURN = rel.Platform.URN
	}
	if entity.PlatformURN == "" {
		return core.AssertionEntity{}, fmt.Errorf("entity %q without platform", rel.URN)
	}
	if rel.SubTypes != nil {
		entity.SubTypes = rel.SubTypes.TypeNames
	}
	return entity, nil
}
