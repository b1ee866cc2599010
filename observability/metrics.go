// Package observability is the SQLite-backed flight recorder for the
// service: tool invocations, tab lifecycle events, worker heartbeats and
// timeseries metrics, all in one local database with no external
// monitoring stack.
//
// Call Init() on the shared *sql.DB first, then pass it to the individual
// constructors. Persistence is async where it matters; a failing
// observability store never blocks the application path.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/ariatree/dbopen"
)

// Metric names recorded by the service.
const (
	MetricSnapshotDurationMs  = "snapshot_duration_ms"
	MetricSnapshotNodeCount   = "snapshot_node_count"
	MetricSnapshotInteractive = "snapshot_interactive_count"
	MetricSnapshotRenderBytes = "snapshot_render_bytes"
	MetricBrowserJSHeapMB     = "browser_js_heap_mb"
	MetricBrowserRecycleCount = "browser_recycle_count"
	MetricActionDurationMs    = "action_duration_ms"
	MetricMemoryAllocMB       = "memory_alloc_mb"
	MetricGoroutinesCount     = "goroutines_count"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Unit      string            // "milliseconds", "bytes", "count", ...
	Labels    map[string]string // optional dimensions, e.g. tab_id
}

// MetricsManager feeds datapoints through a buffered channel into SQLite,
// batching writes the same way ToolRecorder does. Recording never blocks:
// when the channel is full the datapoint is dropped with a log line rather
// than stalling a snapshot.
type MetricsManager struct {
	db            *sql.DB
	flushInterval time.Duration
	ch            chan *Metric
	stop          chan struct{}
	done          chan struct{}
}

// NewMetricsManager creates a manager. bufferSize bounds the in-flight
// channel; flushInterval is the idle flush cadence.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	mm := &MetricsManager{
		db:            db,
		flushInterval: flushInterval,
		ch:            make(chan *Metric, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues a datapoint. A zero Timestamp is filled with now.
func (mm *MetricsManager) Record(m *Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	select {
	case mm.ch <- m:
	default:
		slog.Warn("observability metrics: buffer full, dropping", "metric", m.Name)
	}
}

// RecordSimple records an unlabelled datapoint at the current time.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string) {
	mm.Record(&Metric{Name: name, Value: value, Unit: unit})
}

// Query retrieves datapoints, newest first. Empty name matches all metrics;
// nil time bounds are open; limit 0 is unlimited.
func (mm *MetricsManager) Query(name string, start, end *time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	var args []any
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	if start != nil {
		q += " AND timestamp >= ?"
		args = append(args, start.Unix())
	}
	if end != nil {
		q += " AND timestamp <= ?"
		args = append(args, end.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		m := &Metric{}
		var ts int64
		var labels sql.NullString
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than retentionDays, returning the count.
func (mm *MetricsManager) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := dbopen.Exec(ctx, mm.db, "DELETE FROM metrics_timeseries WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return result.RowsAffected()
}

// Close drains the channel, flushes, and stops the background goroutine.
func (mm *MetricsManager) Close() error {
	close(mm.stop)
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	const batchSize = 100
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()
	batch := make([]*Metric, 0, batchSize)

	for {
		select {
		case <-mm.stop:
			for {
				select {
				case m := <-mm.ch:
					batch = append(batch, m)
				default:
					mm.flush(batch)
					return
				}
			}
		case m := <-mm.ch:
			batch = append(batch, m)
			if len(batch) >= batchSize {
				mm.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			mm.flush(batch)
			batch = batch[:0]
		}
	}
}

func (mm *MetricsManager) flush(batch []*Metric) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range batch {
			var labels sql.NullString
			if len(m.Labels) > 0 {
				if b, err := json.Marshal(m.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labels, m.Unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("observability metrics: flush", "error", err)
	}
}
