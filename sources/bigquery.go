package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"

	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
)

// defaultBigQueryStatementTypes is the audit-log allowlist used when the
// assertion does not narrow the qualifying operations.
var defaultBigQueryStatementTypes = []string{
	"INSERT",
	"UPDATE",
	"CREATE_TABLE",
	"CREATE_TABLE_AS_SELECT",
	"CREATE_EXTERNAL_TABLE",
	"CREATE_SNAPSHOT_TABLE",
}

// BigQuerySource answers entity event queries against BigQuery using the
// __TABLES__ metadata, the Cloud Logging audit trail, or a designated
// high-watermark column.
type BigQuerySource struct {
	conn   *connection.BigQueryConnection
	retry  *core.RetryExecutor
	logger *slog.Logger
}

func NewBigQuerySource(conn *connection.BigQueryConnection, retry *core.RetryExecutor, logger *slog.Logger) *BigQuerySource {
	return &BigQuerySource{conn: conn, retry: retry, logger: logger}
}

var _ core.Source = (*BigQuerySource)(nil)

func (s *BigQuerySource) GetEntityEvents(ctx context.Context, entityURN string, eventType core.EntityEventType, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	parts, err := core.DatasetNameParts(entityURN)
	if err != nil {
		return nil, err
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: bigquery dataset %q is not project.dataset.table", core.ErrMalformedAssertion, entityURN)
	}

	switch eventType {
	case core.EntityEventTypeInformationSchemaUpdate:
		return s.tableMetadataEvents(ctx, parts, window)
	case core.EntityEventTypeAuditLogOperation:
		return s.auditLogEvents(ctx, parts, window, params)
	case core.EntityEventTypeFieldUpdate:
		return s.fieldUpdateEvents(ctx, parts, window, params)
	default:
		return nil, fmt.Errorf("%w: bigquery cannot serve event type %q", core.ErrUnsupportedSourceType, eventType)
	}
}

// tableMetadataEvents reads the table's last modification time from the
// dataset's __TABLES__ view. The value is already epoch milliseconds.
func (s *BigQuerySource) tableMetadataEvents(ctx context.Context, parts []string, window core.Window) ([]core.EntityEvent, error) {
	query := fmt.Sprintf("SELECT last_modified_time FROM `%s.%s.__TABLES__` "+
		"WHERE table_id = @table AND last_modified_time >= @start AND last_modified_time <= @end",
		parts[0], parts[1])
	parameters := []bigquery.QueryParameter{
		{Name: "table", Value: parts[2]},
		{Name: "start", Value: window.StartMs},
		{Name: "end", Value: window.EndMs},
	}
	return s.queryEvents(ctx, "bigquery table metadata", query, parameters, core.EntityEventTypeInformationSchemaUpdate)
}

func (s *BigQuerySource) auditLogEvents(ctx context.Context, parts []string, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	client, err := s.conn.LogAdmin(ctx)
	if err != nil {
		return nil, err
	}

	statementTypes := params.OperationTypes
	if len(statementTypes) == 0 {
		statementTypes = defaultBigQueryStatementTypes
	}
	quoted := make([]string, len(statementTypes))
	for i, st := range statementTypes {
		quoted[i] = fmt.Sprintf("%q", strings.ToUpper(st))
	}

	filter := fmt.Sprintf(`resource.type="bigquery_resource"
protoPayload.serviceName="bigquery.googleapis.com"
protoPayload.methodName="google.cloud.bigquery.v2.JobService.InsertJob"
protoPayload.metadata.jobChange.job.jobStatus.jobState="DONE"
NOT protoPayload.metadata.jobChange.job.jobStatus.errorResult:*
protoPayload.metadata.jobChange.job.jobConfig.queryConfig.destinationTable="projects/%s/datasets/%s/tables/%s"
protoPayload.metadata.jobChange.job.jobStats.queryStats.statementType=(%s)
timestamp>=%q
timestamp<=%q`,
		parts[0], parts[1], parts[2],
		strings.Join(quoted, " OR "),
		window.Start().Format(time.RFC3339),
		window.End().Format(time.RFC3339))
	if params.UserName != "" {
		filter += fmt.Sprintf("\nprotoPayload.authenticationInfo.principalEmail=%q", params.UserName)
	}

	var events []core.EntityEvent
	err = s.retry.Execute(ctx, "bigquery audit log", func(ctx context.Context) error {
		events = events[:0]
		it := client.Entries(ctx, logadmin.Filter(filter), logadmin.NewestFirst())
		for {
			entry, err := it.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read audit log entries: %w", err)
			}
			events = append(events, core.EntityEvent{
				EventType:   core.EntityEventTypeAuditLogOperation,
				EventTimeMs: entry.Timestamp.UnixMilli(),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *BigQuerySource) fieldUpdateEvents(ctx context.Context, parts []string, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	col := strings.ToLower(params.Path)
	if err := validateIdent(col); err != nil {
		return nil, err
	}
	start, err := bigqueryTimestampLiteral(window.StartMs, params.NativeType)
	if err != nil {
		return nil, err
	}
	end, err := bigqueryTimestampLiteral(window.EndMs, params.NativeType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s AS last_altered_date FROM `%s.%s.%s` "+
		"WHERE %s >= (%s) AND %s <= (%s) ORDER BY %s DESC",
		col, parts[0], parts[1], parts[2], col, start, col, end, col)

	client, err := s.conn.BigQuery(ctx)
	if err != nil {
		return nil, err
	}

	var events []core.EntityEvent
	err = s.retry.Execute(ctx, "bigquery field value", func(ctx context.Context) error {
		it, err := client.Query(query).Read(ctx)
		if err != nil {
			return fmt.Errorf("bigquery field value query: %w", err)
		}
		events = events[:0]
		for {
			var row []bigquery.Value
			err := it.Next(&row)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return fmt.Errorf("bigquery field value read: %w", err)
			}
			if len(row) == 0 || row[0] == nil {
				continue
			}
			ms, ok := bigqueryValueMillis(row[0])
			if !ok {
				return fmt.Errorf("bigquery field value: unexpected value %T", row[0])
			}
			events = append(events, core.EntityEvent{EventType: core.EntityEventTypeFieldUpdate, EventTimeMs: ms})
		}
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// queryEvents runs a query whose rows each carry one epoch-millisecond
// column and converts them to entity events. NULL rows are skipped.
func (s *BigQuerySource) queryEvents(ctx context.Context, op, query string, parameters []bigquery.QueryParameter, eventType core.EntityEventType) ([]core.EntityEvent, error) {
	client, err := s.conn.BigQuery(ctx)
	if err != nil {
		return nil, err
	}

	var events []core.EntityEvent
	err = s.retry.Execute(ctx, op, func(ctx context.Context) error {
		q := client.Query(query)
		q.Parameters = parameters
		it, err := q.Read(ctx)
		if err != nil {
			return fmt.Errorf("%s query: %w", op, err)
		}
		events = events[:0]
		for {
			var row []bigquery.Value
			err := it.Next(&row)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s read: %w", op, err)
			}
			if len(row) == 0 || row[0] == nil {
				continue
			}
			ms, ok := row[0].(int64)
			if !ok {
				return fmt.Errorf("%s: unexpected value %T", op, row[0])
			}
			events = append(events, core.EntityEvent{EventType: eventType, EventTimeMs: ms})
		}
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// bigqueryTimestampLiteral renders an epoch-millisecond window bound as a
// SQL expression of the freshness column's native type. DATE and DATETIME
// bounds are interpreted as UTC.
func bigqueryTimestampLiteral(ms int64, nativeType string) (string, error) {
	switch strings.ToUpper(nativeType) {
	case "DATE":
		return fmt.Sprintf("DATE(TIMESTAMP_MILLIS(CAST(%d AS INT64)))", ms), nil
	case "DATETIME":
		return fmt.Sprintf("DATETIME(TIMESTAMP_MILLIS(CAST(%d AS INT64)), 'UTC')", ms), nil
	case "TIMESTAMP":
		return fmt.Sprintf("TIMESTAMP_MILLIS(CAST(%d AS INT64))", ms), nil
	default:
		return "", fmt.Errorf("%w: bigquery field type %q", core.ErrUnsupportedColumnType, nativeType)
	}
}

// bigqueryValueMillis converts a driver row value to epoch milliseconds.
// Date-only values land on midnight UTC.
func bigqueryValueMillis(v bigquery.Value) (int64, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), true
	case civil.Date:
		return time.Date(t.Year, t.Month, t.Day, 0, 0, 0, 0, time.UTC).UnixMilli(), true
	case civil.DateTime:
		return t.In(time.UTC).UnixMilli(), true
	default:
		return 0, false
	}
}
