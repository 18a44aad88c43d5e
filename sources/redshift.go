package sources

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/acryldata/datahub-monitors/connection"
	"github.com/acryldata/datahub-monitors/core"
)

// RedshiftSource answers entity event queries against Redshift. The system
// tables only record load activity, so the audit log path supports INSERT
// operations and the information schema path is unavailable.
type RedshiftSource struct {
	conn   *connection.RedshiftConnection
	retry  *core.RetryExecutor
	logger *slog.Logger
}

func NewRedshiftSource(conn *connection.RedshiftConnection, retry *core.RetryExecutor, logger *slog.Logger) *RedshiftSource {
	return &RedshiftSource{conn: conn, retry: retry, logger: logger}
}

var _ core.Source = (*RedshiftSource)(nil)

func (s *RedshiftSource) GetEntityEvents(ctx context.Context, entityURN string, eventType core.EntityEventType, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	parts, err := core.DatasetNameParts(entityURN)
	if err != nil {
		return nil, err
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: redshift dataset %q is not database.schema.table", core.ErrMalformedAssertion, entityURN)
	}
	for _, part := range parts {
		if err := validateIdent(part); err != nil {
			return nil, err
		}
	}

	switch eventType {
	case core.EntityEventTypeInformationSchemaUpdate:
		// Redshift has no last-altered table statistic to read.
		s.logger.Warn("information schema freshness is not supported on redshift", "entity", entityURN)
		return nil, nil
	case core.EntityEventTypeAuditLogOperation:
		return s.auditLogEvents(ctx, parts, window, params)
	case core.EntityEventTypeFieldUpdate:
		return s.fieldUpdateEvents(ctx, parts, window, params)
	default:
		return nil, fmt.Errorf("%w: redshift cannot serve event type %q", core.ErrUnsupportedSourceType, eventType)
	}
}

// auditLogEvents reads completed loads from stl_insert. Requested
// operation types other than INSERT cannot be observed there; the insert
// query runs regardless, so they are downgraded with a warning.
func (s *RedshiftSource) auditLogEvents(ctx context.Context, parts []string, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	if len(params.OperationTypes) > 0 {
		hasInsert := false
		for _, op := range params.OperationTypes {
			if strings.EqualFold(op, "INSERT") {
				hasInsert = true
			}
		}
		if !hasInsert {
			s.logger.Warn("redshift audit log only records INSERT operations, adjusting",
				"operationTypes", params.OperationTypes)
		}
	}

	query := `
SELECT si.endtime AS endtime
FROM stl_insert si
JOIN svv_table_info sti ON si.tbl = sti.table_id
JOIN stl_query sq ON si.query = sq.query
JOIN svl_user_info sui ON sq.userid = sui.usesysid
WHERE si.endtime >= TIMESTAMP 'epoch' + $1 / 1000.0 * INTERVAL '1 second'
  AND si.endtime < TIMESTAMP 'epoch' + $2 / 1000.0 * INTERVAL '1 second'
  AND sq.starttime >= TIMESTAMP 'epoch' + $1 / 1000.0 * INTERVAL '1 second'
  AND sq.endtime < TIMESTAMP 'epoch' + $2 / 1000.0 * INTERVAL '1 second'
  AND sq.aborted = 0
  AND si.rows > 0
  AND sti.database = $3
  AND sti.schema = $4
  AND sti."table" = $5`

	args := []any{window.StartMs, window.EndMs, parts[0], parts[1], parts[2]}
	if params.UserName != "" {
		query += "\n  AND LOWER(sui.usename) = $6"
		args = append(args, strings.ToLower(params.UserName))
	}
	query += "\nORDER BY endtime DESC"

	return s.queryTimeEvents(ctx, "redshift audit log", query, core.EntityEventTypeAuditLogOperation, args...)
}

func (s *RedshiftSource) fieldUpdateEvents(ctx context.Context, parts []string, window core.Window, params core.EventParams) ([]core.EntityEvent, error) {
	col := strings.ToLower(params.Path)
	if err := validateIdent(col); err != nil {
		return nil, err
	}
	start, err := redshiftTimestampLiteral(window.StartMs, params.NativeType)
	if err != nil {
		return nil, err
	}
	end, err := redshiftTimestampLiteral(window.EndMs, params.NativeType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT %s AS last_altered_date
FROM %s.%s
WHERE %s >= (%s)
  AND %s <= (%s)
ORDER BY %s DESC`, col, parts[1], parts[2], col, start, col, end, col)

	return s.queryTimeEvents(ctx, "redshift field value", query, core.EntityEventTypeFieldUpdate)
}

// queryTimeEvents runs a query whose rows each carry one timestamp-typed
// column. Naive values are re-anchored in UTC before converting to epoch
// milliseconds.
func (s *RedshiftSource) queryTimeEvents(ctx context.Context, op, query string, eventType core.EntityEventType, args ...any) ([]core.EntityEvent, error) {
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

// redshiftTimestampLiteral renders an epoch-millisecond window bound as a
// SQL expression of the freshness column's native type.
func redshiftTimestampLiteral(ms int64, nativeType string) (string, error) {
	switch strings.ToUpper(nativeType) {
	case "TIMESTAMP", "TIMESTAMP WITHOUT TIME ZONE":
		return fmt.Sprintf("TIMESTAMP 'epoch' + %d / 1000.0 * INTERVAL '1 second'", ms), nil
	case "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		return fmt.Sprintf("TIMESTAMPTZ 'epoch' + %d / 1000.0 * INTERVAL '1 second'", ms), nil
	case "DATE":
		return fmt.Sprintf("(TIMESTAMP 'epoch' + %d / 1000.0 * INTERVAL '1 second')::DATE", ms), nil
	default:
		return "", fmt.Errorf("%w: redshift field type %q", core.ErrUnsupportedColumnType, nativeType)
	}
}
