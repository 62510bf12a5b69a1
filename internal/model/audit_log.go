package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// AuditLog persists session status transitions and finished dispatch jobs.
// A nil *AuditLog is valid and records nothing, so the service layer can run
// without APP_DATABASE_URL.
type AuditLog struct {
	db *sql.DB
}

func NewAuditLog(db *sql.DB) *AuditLog {
	if db == nil {
		return nil
	}
	return &AuditLog{db: db}
}

func (a *AuditLog) RecordStatus(ctx context.Context, sessionID string, status Status) error {
	if a == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO session_events (session_id, status)
        VALUES ($1, $2)
    `, sessionID, string(status))
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

func (a *AuditLog) RecordJob(ctx context.Context, r JobResult) error {
	if a == nil {
		return nil
	}

	var failuresJSON interface{}
	if len(r.Failures) > 0 {
		b, err := json.Marshal(r.Failures)
		if err != nil {
			return err
		}
		failuresJSON = b
	}

	var finished sql.NullTime
	if r.FinishedAt != nil {
		finished = sql.NullTime{Time: *r.FinishedAt, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, `
        INSERT INTO dispatch_jobs (job_id, session_id, state, total, sent, failed, failures, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (job_id) DO UPDATE
        SET state = EXCLUDED.state,
            sent = EXCLUDED.sent,
            failed = EXCLUDED.failed,
            failures = EXCLUDED.failures,
            finished_at = EXCLUDED.finished_at
    `, r.JobID, r.SessionID, string(r.State), r.Total, r.Sent, r.Failed, failuresJSON, r.StartedAt, finished)
	if err != nil {
		return fmt.Errorf("upsert dispatch job: %w", err)
	}
	return nil
}
