package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/ariatree/dbopen"
	"github.com/hazyhaar/ariatree/idgen"
)

// Page event kinds.
const (
	PageEventNavigate = "navigate"
	PageEventSnapshot = "snapshot"
	PageEventOpen     = "open"
	PageEventClose    = "close"
	PageEventRecycle  = "recycle"
)

// PageEvent records one tab lifecycle moment.
type PageEvent struct {
	TabID            string
	Kind             string
	URL              string
	NodeCount        int
	InteractiveCount int
	Detail           string // optional JSON
}

// PageLog writes tab lifecycle events.
type PageLog struct {
	db    *sql.DB
	newID idgen.Generator
}

// PageLogOption configures a PageLog.
type PageLogOption func(*PageLog)

// WithPageIDGenerator sets a custom ID generator for event IDs.
func WithPageIDGenerator(gen idgen.Generator) PageLogOption {
	return func(l *PageLog) { l.newID = gen }
}

// NewPageLog creates a log backed by the given observability database.
func NewPageLog(db *sql.DB, opts ...PageLogOption) *PageLog {
	l := &PageLog{
		db:    db,
		newID: idgen.Prefixed("pg_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records a page event. Non-blocking: errors are logged via slog but do
// not propagate, so a failing observability store never blocks the app.
func (l *PageLog) Log(ctx context.Context, event PageEvent) {
	eventID := l.newID()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO page_events (
			event_id, tab_id, kind, url, node_count, interactive_count, detail, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		eventID, event.TabID, event.Kind, event.URL,
		event.NodeCount, event.InteractiveCount, event.Detail, time.Now().Unix())
	if err != nil {
		slog.Error("observability: page event log failed", "error", err, "kind", event.Kind)
	}
}

// History returns recent page events for a tab, newest first.
func (l *PageLog) History(ctx context.Context, tabID string, limit int) ([]PageEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT tab_id, kind, url, node_count, interactive_count, detail
		FROM page_events WHERE tab_id = ?
		ORDER BY created_at DESC LIMIT ?`, tabID, limit)
	if err != nil {
		return nil, fmt.Errorf("query page events: %w", err)
	}
	defer rows.Close()

	var events []PageEvent
	for rows.Next() {
		var e PageEvent
		var url, detail sql.NullString
		var nodes, interactive sql.NullInt64
		if err := rows.Scan(&e.TabID, &e.Kind, &url, &nodes, &interactive, &detail); err != nil {
			return nil, fmt.Errorf("scan page event: %w", err)
		}
		e.URL = url.String
		e.NodeCount = int(nodes.Int64)
		e.InteractiveCount = int(interactive.Int64)
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	ToolEventsDays int
	PageEventsDays int
	HeartbeatsDays int
	MetricsDays    int
	RunVacuumAfter bool
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()

	type target struct {
		table  string
		column string
		days   int
	}
	targets := []target{
		{"tool_events", "timestamp", cfg.ToolEventsDays},
		{"page_events", "created_at", cfg.PageEventsDays},
		{"worker_heartbeats", "timestamp", cfg.HeartbeatsDays},
		{"metrics_timeseries", "timestamp", cfg.MetricsDays},
	}

	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days*86400)
		q := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.table, t.column)
		// Retries on BUSY: the async recorders share this database.
		if _, err := dbopen.Exec(ctx, db, q, cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", t.table, err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
