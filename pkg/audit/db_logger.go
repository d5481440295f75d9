package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Schema creates the audit table on PostgreSQL
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	status VARCHAR(20) NOT NULL,
	organization_id BIGINT NOT NULL,
	actor_id BIGINT,
	resource_type VARCHAR(50) NOT NULL,
	resource_id VARCHAR(255),
	request_id VARCHAR(100),
	message TEXT,
	changes JSONB
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_org_time ON audit_logs(organization_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
`

// DBLogger stores audit events in PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database audit logger. The table is created by the
// rbac migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts the event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var changesJSON []byte
	if event.Changes != nil {
		var err error
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (
			timestamp, event_type, status, organization_id, actor_id,
			resource_type, resource_id, request_id, message, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		event.Timestamp, string(event.EventType), string(event.Status), event.OrganizationID, event.ActorID,
		string(event.ResourceType), event.ResourceID, event.RequestID, event.Message, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search returns the newest matching events first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	if filter.OrganizationID == 0 {
		return nil, fmt.Errorf("organization is required")
	}

	query := `
		SELECT id, timestamp, event_type, status, organization_id, actor_id,
		       resource_type, resource_id, request_id, message, changes
		FROM audit_logs
		WHERE organization_id = $1`
	args := []interface{}{filter.OrganizationID}
	argCount := 2

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		args = append(args, pq.Array(types))
		argCount++
	}
	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, string(filter.ResourceType))
		argCount++
	}
	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.Since)
		argCount++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d", argCount)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		var (
			e           Event
			actorID     sql.NullInt64
			resourceID  sql.NullString
			requestID   sql.NullString
			message     sql.NullString
			changesJSON []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.Status, &e.OrganizationID, &actorID,
			&e.ResourceType, &resourceID, &requestID, &message, &changesJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		e.ResourceID = resourceID.String
		e.RequestID = requestID.String
		e.Message = message.String
		if len(changesJSON) > 0 {
			e.Changes = &Changes{}
			if err := json.Unmarshal(changesJSON, e.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// Cleanup deletes events older than retention and returns how many were
// removed
func (l *DBLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()
	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Close implements Logger. The database is owned by the caller.
func (l *DBLogger) Close() error { return nil }
