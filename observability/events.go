package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/ariatree/idgen"
)

// ToolEvent is a single tool invocation record: one MCP tool call or one
// HTTP API request, whichever transport carried it.
type ToolEvent struct {
	EventID   string
	Timestamp time.Time
	Tool      string // e.g. "snapshot", "click", "navigate"
	Transport string // "mcp" or "http"

	TabID      string
	RequestID  string
	TraceID    string // caller-supplied correlation ID, empty when untraced
	RemoteAddr string // HTTP peer address, empty on stdio transports

	Params       string // JSON
	Result       string // JSON
	ErrorMessage string
	DurationMs   int64

	Status string // "success", "error", "timeout", "cancelled"
}

// ToolEventFilter controls query results from the tool event log.
type ToolEventFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Tool      *string
	TabID     *string
	Status    *string
	Limit     int // default 100
	Offset    int
	OrderBy   string // "timestamp" or "duration_ms"
	OrderDir  string // "ASC" or "DESC"
}

// ToolRecorder persists tool invocations asynchronously.
type ToolRecorder struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *ToolEvent
	stop  chan struct{}
	done  chan struct{}
}

// ToolRecorderOption configures a ToolRecorder.
type ToolRecorderOption func(*ToolRecorder)

// WithToolIDGenerator sets a custom ID generator for event IDs.
func WithToolIDGenerator(gen idgen.Generator) ToolRecorderOption {
	return func(r *ToolRecorder) { r.newID = gen }
}

// NewToolRecorder creates an async recorder. Recommended bufferSize: 1000.
func NewToolRecorder(db *sql.DB, bufferSize int, opts ...ToolRecorderOption) *ToolRecorder {
	r := &ToolRecorder{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		ch:    make(chan *ToolEvent, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	go r.flushLoop()
	return r
}

// Record inserts a tool event synchronously.
func (r *ToolRecorder) Record(ctx context.Context, e *ToolEvent) error {
	r.fillDefaults(e)
	return r.insert(ctx, e)
}

// RecordAsync queues an event for async persistence.
// Falls back to synchronous insert if the buffer is full.
func (r *ToolRecorder) RecordAsync(e *ToolEvent) {
	r.fillDefaults(e)
	select {
	case r.ch <- e:
	default:
		slog.Warn("observability: tool event buffer full, sync fallback", "tool", e.Tool)
		if err := r.insert(context.Background(), e); err != nil {
			slog.Error("observability: sync fallback failed", "error", err)
		}
	}
}

// NewToolEvent builds a ToolEvent from invocation parameters, result and
// error. Params and result are marshalled to JSON.
func (r *ToolRecorder) NewToolEvent(tool, transport string, params, result any, err error, duration time.Duration) *ToolEvent {
	e := &ToolEvent{
		EventID:    r.newID(),
		Timestamp:  time.Now(),
		Tool:       tool,
		Transport:  transport,
		DurationMs: duration.Milliseconds(),
	}

	if params != nil {
		if b, mErr := json.Marshal(params); mErr == nil {
			e.Params = string(b)
		}
	}
	if err != nil {
		e.Status = "error"
		e.ErrorMessage = err.Error()
	} else {
		e.Status = "success"
		if result != nil {
			if b, mErr := json.Marshal(result); mErr == nil {
				e.Result = string(b)
			}
		}
	}
	return e
}

// Query retrieves tool events matching the given filter.
func (r *ToolRecorder) Query(ctx context.Context, f *ToolEventFilter) ([]*ToolEvent, error) {
	q := `SELECT event_id, timestamp, tool, transport, tab_id, request_id,
		trace_id, remote_addr, params, result, error_message, duration_ms, status
		FROM tool_events WHERE 1=1`
	var args []any

	if f.StartTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.StartTime.Unix())
	}
	if f.EndTime != nil {
		q += " AND timestamp <= ?"
		args = append(args, f.EndTime.Unix())
	}
	if f.Tool != nil {
		q += " AND tool = ?"
		args = append(args, *f.Tool)
	}
	if f.TabID != nil {
		q += " AND tab_id = ?"
		args = append(args, *f.TabID)
	}
	if f.Status != nil {
		q += " AND status = ?"
		args = append(args, *f.Status)
	}

	orderBy := "timestamp"
	if f.OrderBy != "" {
		switch f.OrderBy {
		case "timestamp", "duration_ms", "tool", "status":
			orderBy = f.OrderBy
		default:
			return nil, fmt.Errorf("invalid order_by column: %q", f.OrderBy)
		}
	}
	orderDir := "DESC"
	if f.OrderDir != "" {
		switch strings.ToUpper(f.OrderDir) {
		case "ASC", "DESC":
			orderDir = strings.ToUpper(f.OrderDir)
		default:
			return nil, fmt.Errorf("invalid order_dir: %q", f.OrderDir)
		}
	}
	q += fmt.Sprintf(" ORDER BY %s %s", orderBy, orderDir)

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " LIMIT ?"
	args = append(args, limit)
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool events: %w", err)
	}
	defer rows.Close()

	var events []*ToolEvent
	for rows.Next() {
		var e ToolEvent
		var ts int64
		var transport, tabID, requestID, traceID, remoteAddr sql.NullString
		var result, errorMessage sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(
			&e.EventID, &ts, &e.Tool, &transport, &tabID, &requestID,
			&traceID, &remoteAddr, &e.Params, &result, &errorMessage, &durationMs, &e.Status,
		); err != nil {
			return nil, fmt.Errorf("scan tool event: %w", err)
		}

		e.Timestamp = time.Unix(ts, 0)
		e.Transport = transport.String
		e.TabID = tabID.String
		e.RequestID = requestID.String
		e.TraceID = traceID.String
		e.RemoteAddr = remoteAddr.String
		e.Result = result.String
		e.ErrorMessage = errorMessage.String
		e.DurationMs = durationMs.Int64
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Cleanup deletes tool events older than retentionDays.
func (r *ToolRecorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := r.db.ExecContext(ctx, "DELETE FROM tool_events WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup tool events: %w", err)
	}
	return result.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine.
func (r *ToolRecorder) Close() error {
	close(r.stop)
	<-r.done
	return nil
}

func (r *ToolRecorder) fillDefaults(e *ToolEvent) {
	if e.EventID == "" {
		e.EventID = r.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

func (r *ToolRecorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]*ToolEvent, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("observability: begin tx", "error", err)
			return
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tool_events
			(event_id, timestamp, tool, transport, tab_id, request_id,
			 trace_id, remote_addr, params, result, error_message, duration_ms, status)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			tx.Rollback()
			slog.Error("observability: prepare", "error", err)
			return
		}
		defer stmt.Close()

		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx,
				e.EventID, e.Timestamp.Unix(), e.Tool, e.Transport, e.TabID, e.RequestID,
				e.TraceID, e.RemoteAddr, e.Params, e.Result, e.ErrorMessage, e.DurationMs, e.Status,
			); err != nil {
				slog.Error("observability: insert", "error", err, "event_id", e.EventID)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("observability: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-r.stop:
			for {
				select {
				case e := <-r.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *ToolRecorder) insert(ctx context.Context, e *ToolEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tool_events
		(event_id, timestamp, tool, transport, tab_id, request_id,
		 trace_id, remote_addr, params, result, error_message, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EventID, e.Timestamp.Unix(), e.Tool, e.Transport, e.TabID, e.RequestID,
		e.TraceID, e.RemoteAddr, e.Params, e.Result, e.ErrorMessage, e.DurationMs, e.Status)
	return err
}
