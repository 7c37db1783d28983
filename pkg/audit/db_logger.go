package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements Recorder on PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit recorder and ensures the
// audit table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure collab_audit_logs table: %w", err)
	}

	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS collab_audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor_id VARCHAR(255),
		token_prefix VARCHAR(20),
		project_id BIGINT,
		session_id BIGINT,
		share_id BIGINT,
		ip_address VARCHAR(45),
		request_id VARCHAR(100),
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_collab_audit_timestamp ON collab_audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_collab_audit_event_type ON collab_audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_collab_audit_actor ON collab_audit_logs(actor_id);
	CREATE INDEX IF NOT EXISTS idx_collab_audit_project ON collab_audit_logs(project_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Record inserts one audit event.
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO collab_audit_logs (
			timestamp, event_type, status,
			actor_id, token_prefix,
			project_id, session_id, share_id,
			ip_address, request_id,
			message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		nullString(event.ActorID), nullString(event.TokenPrefix),
		event.ProjectID, event.SessionID, event.ShareID,
		nullString(event.IPAddress), nullString(event.RequestID),
		nullString(event.Message), metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Search returns events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter Filter) ([]*Event, error) {
	filter.Normalize()

	query := `
		SELECT id, timestamp, event_type, status,
		       COALESCE(actor_id, ''), COALESCE(token_prefix, ''),
		       project_id, session_id, share_id,
		       COALESCE(ip_address, ''), COALESCE(request_id, ''),
		       COALESCE(message, '')
		FROM collab_audit_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argn := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argn)
		args = append(args, filter.EventType)
		argn++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, filter.Status)
		argn++
	}
	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argn)
		args = append(args, filter.ActorID)
		argn++
	}
	if filter.ProjectID != nil {
		query += fmt.Sprintf(" AND project_id = $%d", argn)
		args = append(args, *filter.ProjectID)
		argn++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argn)
		args = append(args, *filter.Since)
		argn++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argn)
		args = append(args, *filter.Until)
		argn++
	}

	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", argn, argn+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.ActorID, &event.TokenPrefix,
			&event.ProjectID, &event.SessionID, &event.ShareID,
			&event.IPAddress, &event.RequestID,
			&event.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// Cleanup deletes events older than the retention period and returns the
// number removed. Meant to run on a schedule.
func (l *DBLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	result, err := l.db.ExecContext(ctx,
		"DELETE FROM collab_audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected()
}

// Close is a no-op; the caller owns the database handle.
func (l *DBLogger) Close() error {
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
