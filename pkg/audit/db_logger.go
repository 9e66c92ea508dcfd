package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to a PostgreSQL database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_events table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		principal_id BIGINT,
		username VARCHAR(255),
		jti VARCHAR(64),
		app_name VARCHAR(100),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		reason VARCHAR(50),
		message TEXT,
		detail JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_principal_id ON audit_events(principal_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_jti ON audit_events(jti);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log appends an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var detailJSON []byte
	var err error

	if len(event.Detail) > 0 {
		detailJSON, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal detail: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status,
			principal_id, username, jti, app_name,
			ip_address, user_agent, request_id,
			reason, message, detail
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.PrincipalID, event.Username, event.JTI, event.AppName,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Reason, event.Message, detailJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Search searches audit events based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			principal_id, username, jti, app_name,
			ip_address, user_agent, request_id,
			reason, message, detail
		FROM audit_events
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.PrincipalID != nil {
		query += fmt.Sprintf(" AND principal_id = $%d", argCount)
		args = append(args, *filter.PrincipalID)
		argCount++
	}

	if filter.Username != "" {
		query += fmt.Sprintf(" AND username = $%d", argCount)
		args = append(args, filter.Username)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.AppName != "" {
		query += fmt.Sprintf(" AND app_name = $%d", argCount)
		args = append(args, filter.AppName)
		argCount++
	}

	if filter.JTI != "" {
		query += fmt.Sprintf(" AND jti = $%d", argCount)
		args = append(args, filter.JTI)
		argCount++
	}

	if filter.IPAddress != "" {
		query += fmt.Sprintf(" AND ip_address = $%d", argCount)
		args = append(args, filter.IPAddress)
		argCount++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}

		var detailJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.PrincipalID, &event.Username, &event.JTI, &event.AppName,
			&event.IPAddress, &event.UserAgent, &event.RequestID,
			&event.Reason, &event.Message, &detailJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &event.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal detail: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Cleanup removes audit events older than the retention period
func (l *DBLogger) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE timestamp < NOW() - make_interval(days => $1)",
		policy.RetentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}

	return result.RowsAffected()
}

// Close closes the database logger
func (l *DBLogger) Close() error {
	// The database connection may be shared; the owner closes it.
	return nil
}
