package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentdb/internal/core"
	"incidentdb/pkg/domain"
)

type captureMetrics struct {
	mu    sync.Mutex
	calls map[string][]bool
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string][]bool)
	}
	c.calls[op] = append(c.calls[op], success)
}

type captureTracer struct {
	spans []string
	errs  []error
}

type captureSpan struct {
	t  *captureTracer
	op string
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, core.TraceSpan) {
	return ctx, captureSpan{t: c, op: op}
}

func (s captureSpan) End(err error) {
	s.t.spans = append(s.t.spans, s.op)
	s.t.errs = append(s.t.errs, err)
}

type captureAudit struct {
	entries []core.AuditEntry
}

func (c *captureAudit) Record(_ context.Context, e core.AuditEntry) { c.entries = append(c.entries, e) }

func TestServiceReportsEveryOperation(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetrics{}
	tracer := &captureTracer{}
	audit := &captureAudit{}
	now := time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC)
	svc := core.NewInMemoryService(nil,
		core.WithMetricsRecorder(metrics),
		core.WithTracer(tracer),
		core.WithAuditRecorder(audit),
		core.WithClock(core.ClockFunc(func() time.Time { return now })),
	)

	inc := must(svc.CreateIncident(ctx, domain.Incident{Fields: incidentFields(4, "Fireworks")}))(t)
	_, err := svc.DeleteIncident(ctx, 999)
	require.Error(t, err)

	assert.Equal(t, []bool{true}, metrics.calls["create_incident"])
	assert.Equal(t, []bool{false}, metrics.calls["delete_incident"])
	assert.Equal(t, []string{"create_incident", "delete_incident"}, tracer.spans)
	assert.NoError(t, tracer.errs[0])
	var nf domain.NotFoundError
	assert.True(t, errors.As(tracer.errs[1], &nf))

	require.Len(t, audit.entries, 2)
	created := audit.entries[0]
	assert.Equal(t, core.AuditStatusSuccess, created.Status)
	assert.Equal(t, domain.EntityIncident, created.Entity)
	assert.Equal(t, inc.Key(), created.EntityID)
	assert.Equal(t, now, created.At)
	failed := audit.entries[1]
	assert.Equal(t, core.AuditStatusError, failed.Status)
	assert.Equal(t, "999", failed.EntityID)
	assert.Contains(t, failed.Error, "not found")
}

func TestLogrusLoggerCarriesFields(t *testing.T) {
	ctx := context.Background()
	base, hook := logtest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	logger := core.NewLogrusLogger(base)
	svc := core.NewInMemoryService(nil, core.WithLogger(logger), core.WithAuditRecorder(core.NewLogAuditRecorder(logger)))

	inc := must(svc.CreateIncident(ctx, domain.Incident{Fields: incidentFields(1, "Alarm")}))(t)
	_, _, err := svc.AddChild(ctx, domain.ChildTime, inc.ID, domain.Fields{"Alarm": domain.Text("10:00"), "Arrival": domain.Text("09:00")})
	require.NoError(t, err)
	_, err = svc.DeleteIncident(ctx, 404)
	require.Error(t, err)

	var warnings, audits []*logrus.Entry
	for _, e := range hook.AllEntries() {
		switch {
		case e.Message == "rule warning":
			warnings = append(warnings, e)
		case e.Message == "audit":
			audits = append(audits, e)
		}
	}
	require.Len(t, warnings, 1)
	assert.Equal(t, logrus.WarnLevel, warnings[0].Level)
	assert.Equal(t, "time_sequence", warnings[0].Data["rule"])

	require.Len(t, audits, 3)
	assert.Equal(t, "create_incident", audits[0].Data["operation"])
	assert.Equal(t, logrus.InfoLevel, audits[0].Level)
	assert.Equal(t, logrus.WarnLevel, audits[2].Level)
	assert.Contains(t, audits[2].Data["error"], "not found")

	assert.NotNil(t, core.NewLogrusLogger(nil))
}

func TestLogTracerWritesSpans(t *testing.T) {
	base, hook := logtest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	tracer := core.NewLogTracer(core.NewLogrusLogger(base))
	_, span := tracer.Start(context.Background(), "save_workbook")
	span.End(errors.New("disk full"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "span", entry.Message)
	assert.Equal(t, "save_workbook", entry.Data["operation"])
	assert.Equal(t, "disk full", entry.Data["error"])
}

func TestExpvarMetricsRecorderSnapshot(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	assert.NotEmpty(t, rec.Name())
	rec.Observe(context.Background(), "create_incident", true, 3*time.Millisecond)
	rec.Observe(context.Background(), "create_incident", false, 2*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	assert.InDelta(t, 5.0, snap.DurationsMS["create_incident"], 0.001)
	assert.Equal(t, map[string]int64{"success": 1, "error": 1}, snap.Results["create_incident"])
	assert.Len(t, snap.Results, 1)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	_, err = core.NewPrometheusMetricsRecorder(reg)
	require.Error(t, err, "collectors register once per registry")

	expvarRec := core.NewExpvarMetricsRecorder("")
	svc := core.NewInMemoryService(nil, core.WithMetricsRecorder(core.MultiMetricsRecorder{rec, expvarRec, nil}))
	must(svc.CreateIncident(context.Background(), domain.Incident{Fields: incidentFields(2, "Alarm")}))(t)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() != "incidentdb_operations_total" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		assert.InDelta(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue(), 0)
	}
	assert.True(t, found["incidentdb_operations_total"])
	assert.True(t, found["incidentdb_operation_duration_seconds"])
	assert.Equal(t, int64(1), expvarRec.Snapshot().Results["create_incident"]["success"])
}
