package observability

import "database/sql"

// Schema contains the complete DDL for the observability tables.
// Call Init(db) to apply it, or use this constant to embed in your own
// schema management.
const Schema = `
-- Tool invocations (MCP and HTTP)
CREATE TABLE IF NOT EXISTS tool_events (
    event_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    tool TEXT NOT NULL,
    transport TEXT,
    tab_id TEXT,
    request_id TEXT,
    trace_id TEXT,
    remote_addr TEXT,
    params TEXT NOT NULL DEFAULT '{}',
    result TEXT,
    error_message TEXT,
    duration_ms INTEGER,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_tool_events_time ON tool_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tool_events_tool ON tool_events(tool, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tool_events_status ON tool_events(status);

-- Page lifecycle events (navigation, snapshot, recycle)
CREATE TABLE IF NOT EXISTS page_events (
    event_id TEXT PRIMARY KEY,
    tab_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    url TEXT,
    node_count INTEGER,
    interactive_count INTEGER,
    detail TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_page_events_tab ON page_events(tab_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_page_events_kind ON page_events(kind, created_at DESC);

-- Worker Heartbeats
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY,
    worker_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    worker_pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    memory_sys_mb REAL,
    gc_count INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);

-- Metrics Timeseries
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);

-- Metadata registry
CREATE TABLE IF NOT EXISTS _observability_metadata (
    table_name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    description TEXT
);
INSERT OR IGNORE INTO _observability_metadata (table_name, description) VALUES
    ('tool_events', 'Tool invocation trail across transports'),
    ('page_events', 'Tab lifecycle and snapshot events'),
    ('worker_heartbeats', 'Worker liveness heartbeats with runtime metrics'),
    ('metrics_timeseries', 'Timeseries metric datapoints');
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
