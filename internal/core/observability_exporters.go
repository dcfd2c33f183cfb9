package core

import (
	"context"
	"expvar"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation totals under /debug/vars:
// accumulated milliseconds and success/error counts.
type ExpvarMetricsRecorder struct {
	name      string
	durations *expvar.Map
	results   *expvar.Map
}

// ExpvarMetricsSnapshot is a copy of the published totals.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when empty. expvar names are process-global.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("incidentdb_operations_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: new(expvar.Map).Init(),
		results:   new(expvar.Map).Init(),
	}
	root := expvar.NewMap(name)
	root.Set("durations_ms_total", rec.durations)
	root.Set("results_total", rec.results)
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.AddFloat(operation, float64(duration)/float64(time.Millisecond))
	r.results.Add(operation+"."+status, 1)
}

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]map[string]int64),
	}
	r.durations.Do(func(kv expvar.KeyValue) {
		if f, ok := kv.Value.(*expvar.Float); ok {
			snap.DurationsMS[kv.Key] = f.Value()
		}
	})
	r.results.Do(func(kv expvar.KeyValue) {
		n, ok := kv.Value.(*expvar.Int)
		if !ok {
			return
		}
		idx := strings.LastIndex(kv.Key, ".")
		if idx < 0 {
			return
		}
		op, status := kv.Key[:idx], kv.Key[idx+1:]
		if snap.Results[op] == nil {
			snap.Results[op] = make(map[string]int64, 2)
		}
		snap.Results[op][status] = n.Value()
	})
	return snap
}

// LogTracer reports each finished span to a Logger at debug level.
type LogTracer struct {
	logger Logger
}

// NewLogTracer returns a tracer writing to logger.
func NewLogTracer(logger Logger) *LogTracer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogTracer{logger: logger}
}

// Start implements Tracer.
func (t *LogTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &logSpan{logger: t.logger, operation: operation, started: time.Now()}
}

type logSpan struct {
	logger    Logger
	operation string
	started   time.Time
}

func (s *logSpan) End(err error) {
	args := []any{"operation", s.operation, "duration_ms", float64(time.Since(s.started)) / float64(time.Millisecond)}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	s.logger.Debug("span", args...)
}

// LogAuditRecorder writes audit entries to a Logger: successes at info,
// failures at warn.
type LogAuditRecorder struct {
	logger Logger
}

// NewLogAuditRecorder returns an audit recorder writing to logger.
func NewLogAuditRecorder(logger Logger) *LogAuditRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogAuditRecorder{logger: logger}
}

// Record implements AuditRecorder. Read-only operations are skipped.
func (a *LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	switch entry.Operation {
	case "export_workbook", "render_report", "render_report_pdf":
		return
	}
	args := []any{"operation", entry.Operation, "entity", entry.Entity, "id", entry.EntityID, "at", entry.At.Format(time.RFC3339)}
	if entry.Status == AuditStatusError {
		a.logger.Warn("audit", append(args, "error", entry.Error)...)
		return
	}
	a.logger.Info("audit", args...)
}
