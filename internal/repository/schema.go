package repository

// Schema definitions for the run archive.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    seed TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    event_count INTEGER NOT NULL,
    total_cost REAL NOT NULL,
    anomaly_rate REAL NOT NULL,
    avg_efficiency REAL NOT NULL,
    risk_level TEXT NOT NULL,
    risk_reasons TEXT NOT NULL,
    archived_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);
`

// Events keep a few queryable columns next to the full JSON payload.
const schemaRunEvents = `
CREATE TABLE IF NOT EXISTS run_events (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    business_type TEXT NOT NULL,
    region TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    total_cost REAL NOT NULL,
    is_anomaly INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_run_events_type ON run_events(run_id, business_type);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaRunEvents,
	}
}
