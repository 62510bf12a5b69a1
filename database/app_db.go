package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenAppDB opens the postgres database used for the session/dispatch audit
// trail. The whatsmeow device stores are kept per session on disk and never
// live here.
func OpenAppDB(appDbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", appDbURL)
	if err != nil {
		return nil, fmt.Errorf("open app db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping app db: %w", err)
	}
	return db, nil
}

// InitSchema creates the audit tables when they are missing.
func InitSchema(db *sql.DB) error {
	schema := `
        CREATE TABLE IF NOT EXISTS session_events (
            id          SERIAL PRIMARY KEY,
            session_id  VARCHAR(255) NOT NULL,
            status      VARCHAR(50) NOT NULL,
            created_at  TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);

        CREATE TABLE IF NOT EXISTS dispatch_jobs (
            job_id       VARCHAR(64) PRIMARY KEY,
            session_id   VARCHAR(255) NOT NULL,
            state        VARCHAR(20) NOT NULL,
            total        INT NOT NULL DEFAULT 0,
            sent         INT NOT NULL DEFAULT 0,
            failed       INT NOT NULL DEFAULT 0,
            failures     JSONB,
            started_at   TIMESTAMP NOT NULL,
            finished_at  TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_dispatch_jobs_session_id ON dispatch_jobs(session_id);
    `
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
