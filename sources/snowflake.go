package sources

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
)

// defaultSnowflakeOperationTypes is the audit-log allowlist used when the
// assertion does not narrow the qualifying operations.
var defaultSnowflakeOperationTypes = []string{
	"INSERT",
	"UPDATE",
	"CREATE",
	"CREATE_TABLE",
	"CREATE_TABLE_AS_SELECT",
	"COPY",
}

// SnowflakeSource answers entity event queries against Snowflake using the
// information schema, the account usage audit views, or a designated
// high-watermark column.
type SnowflakeSource struct {
	conn   *connection.SnowflakeConnection
	retry  *core.RetryExecutor
	logger *slog.Logger
}

func NewSnowflakeSource(conn *connection.SnowflakeConnection, retry *core.RetryExecutor, logger *slog.Logger) *SnowflakeSource {
	return &SnowflakeSource{conn: conn, retry: retry, logger: logger}
}

var _ core.Source = (*SnowflakeSource)(nil)

func (s *SnowflakeSource) GetEntityEvents(ctx context.Context, entityURN string, eventType core.EntityEventType, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	parts, err := core.DatasetNameParts(entityURN)
	if err != nil {
		return nil, err
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: snowflake dataset %q is not database.schema.table", core.ErrMalformedAssertion, entityURN)
	}
	for _, part := range parts {
		if err := validateIdent(part); err != nil {
			return nil, err
		}
	}

	switch eventType {
	case core.EntityEventTypeInformationSchemaUpdate:
		return s.informationSchemaEvents(ctx, parts, window)
	case core.EntityEventTypeAuditLogOperation:
		return s.auditLogEvents(ctx, parts, window, params)
	case core.EntityEventTypeFieldUpdate:
		return s.fieldUpdateEvents(ctx, parts, window, params)
	default:
		return nil, fmt.Errorf("%w: snowflake cannot serve event type %q", core.ErrUnsupportedSourceType, eventType)
	}
}

func (s *SnowflakeSource) informationSchemaEvents(ctx context.Context, parts []string, window core.Window) ([]core.EntityEvent, error) {
	query := fmt.Sprintf(`
SELECT DATE_PART('EPOCH', last_altered) * 1000 AS last_altered_ms
FROM %s.information_schema.tables
WHERE LOWER(table_catalog) = ?
  AND LOWER(table_schema) = ?
  AND LOWER(table_name) = ?
  AND last_altered >= to_timestamp_ltz(?, 3)
  AND last_altered < to_timestamp_ltz(?, 3)`, parts[0])

	return s.queryEvents(ctx, "snowflake information schema", query, core.EntityEventTypeInformationSchemaUpdate,
		parts[0], parts[1], parts[2], window.StartMs, window.EndMs)
}

func (s *SnowflakeSource) auditLogEvents(ctx context.Context, parts []string, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	operationTypes := params.OperationTypes
	if len(operationTypes) == 0 {
		operationTypes = defaultSnowflakeOperationTypes
	}
	inClause, err := sqlStringList(operationTypes)
	if err != nil {
		return nil, err
	}

	userFilter := ""
	args := []any{window.StartMs, window.EndMs}
	if params.UserName != "" {
		userFilter = "\n    AND LOWER(ah.user_name) = ?"
		args = append(args, strings.ToLower(params.UserName))
	}
	args = append(args, window.StartMs, window.EndMs, strings.Join(parts, "."))

	query := fmt.Sprintf(`
WITH exploded_access_history AS (
  SELECT ah.query_id, ah.query_start_time, om.value AS updated_object
  FROM snowflake.account_usage.access_history ah,
       LATERAL FLATTEN(input => ah.objects_modified) om
  WHERE ah.query_start_time >= to_timestamp_ltz(?, 3)
    AND ah.query_start_time < to_timestamp_ltz(?, 3)%s
)
SELECT DATE_PART('EPOCH', eah.query_start_time) * 1000 AS query_start_ms
FROM exploded_access_history eah
JOIN (
  SELECT query_id
  FROM snowflake.account_usage.query_history
  WHERE start_time >= to_timestamp_ltz(?, 3)
    AND start_time < to_timestamp_ltz(?, 3)
    AND query_type IN (%s)
) qh ON eah.query_id = qh.query_id
WHERE LOWER(eah.updated_object:"objectName"::STRING) = ?
ORDER BY query_start_ms DESC`, userFilter, inClause)

	return s.queryEvents(ctx, "snowflake audit log", query, core.EntityEventTypeAuditLogOperation, args...)
}

func (s *SnowflakeSource) fieldUpdateEvents(ctx context.Context, parts []string, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	col := strings.ToLower(params.Path)
	if err := validateIdent(col); err != nil {
		return nil, err
	}
	start, err := snowflakeTimestampLiteral(window.StartMs, params.NativeType)
	if err != nil {
		return nil, err
	}
	end, err := snowflakeTimestampLiteral(window.EndMs, params.NativeType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT %s AS last_altered_date
FROM %s.%s.%s
WHERE %s >= (%s)
  AND %s <= (%s)
ORDER BY %s DESC`, col, parts[0], parts[1], parts[2], col, start, col, end, col)

	return s.queryTimeEvents(ctx, "snowflake field value", query, core.EntityEventTypeFieldUpdate)
}

// queryEvents runs a query whose rows each carry one epoch-millisecond
// column and converts them to entity events. NULL rows are skipped.
func (s *SnowflakeSource) queryEvents(ctx context.Context, op, query string, eventType core.EntityEventType, args ...any) ([]core.EntityEvent, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	var events []core.EntityEvent
	err = s.retry.Execute(ctx, op, func(ctx context.Context) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s query: %w", op, err)
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			var ms sql.NullFloat64
			if err := rows.Scan(&ms); err != nil {
				return fmt.Errorf("%s scan: %w", op, err)
			}
			if !ms.Valid {
				continue
			}
			events = append(events, core.EntityEvent{EventType: eventType, EventTimeMs: int64(ms.Float64)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// queryTimeEvents runs a query whose rows each carry one timestamp-typed
// column. Sessions run in UTC, so naive values are re-anchored there
// before converting to epoch milliseconds.
func (s *SnowflakeSource) queryTimeEvents(ctx context.Context, op, query string, eventType core.EntityEventType, args ...any) ([]core.EntityEvent, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	var events []core.EntityEvent
	err = s.retry.Execute(ctx, op, func(ctx context.Context) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s query: %w", op, err)
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			var ts sql.NullTime
			if err := rows.Scan(&ts); err != nil {
				return fmt.Errorf("%s scan: %w", op, err)
			}
			if !ts.Valid {
				continue
			}
			events = append(events, core.EntityEvent{EventType: eventType, EventTimeMs: utcMillis(ts.Time)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// snowflakeTimestampLiteral renders an epoch-millisecond window bound as a
// SQL expression of the freshness column's native type.
func snowflakeTimestampLiteral(ms int64, nativeType string) (string, error) {
	switch strings.ToUpper(nativeType) {
	case "DATE":
		return fmt.Sprintf("DATE(TO_TIMESTAMP(%d, 3))", ms), nil
	case "TIMESTAMP":
		return fmt.Sprintf("TO_TIMESTAMP(%d, 3)", ms), nil
	case "TIMESTAMP_TZ":
		return fmt.Sprintf("TO_TIMESTAMP(%d, 3)::TIMESTAMP_TZ", ms), nil
	case "TIMESTAMP_LTZ":
		return fmt.Sprintf("TO_TIMESTAMP(%d, 3)::TIMESTAMP_LTZ", ms), nil
	case "TIMESTAMP_NTZ", "DATETIME":
		return fmt.Sprintf("TO_TIMESTAMP(%d, 3)::TIMESTAMP_NTZ", ms), nil
	default:
		return "", fmt.Errorf("%w: snowflake field type %q", core.ErrUnsupportedColumnType, nativeType)
	}
}

// sqlStringList renders an IN-clause body from operation type names. The
// names are interpolated, so they are restricted to identifier characters.
func sqlStringList(values []string) (string, error) {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		upper := strings.ToUpper(v)
		if err := validateIdent(strings.ToLower(upper)); err != nil {
			return "", err
		}
		quoted = append(quoted, "'"+upper+"'")
	}
	sort.Strings(quoted)
	return strings.Join(quoted, ", "), nil
}

// utcMillis re-anchors a driver timestamp in UTC before converting to
// epoch milliseconds. Date-only values land on midnight UTC.
func utcMillis(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC).UnixMilli()
}

// validateIdent restricts interpolated identifiers to a safe charset.
func validateIdent(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty identifier", core.ErrMalformedAssertion)
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '$' && r != '-' {
			return fmt.Errorf("%w: identifier %q contains unsupported character %q", core.ErrMalformedAssertion, s, r)
		}
	}
	return nil
}
