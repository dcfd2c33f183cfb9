package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"incidentdb/internal/blob"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns the function's result.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logger used by the service. Arguments after msg are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type logrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrusLogger adapts a logrus logger to Logger.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return logrusLogger{entry: l}
}

func (l logrusLogger) with(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields["extra"] = args[i]
		}
	}
	return l.entry.WithFields(fields)
}

func (l logrusLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l logrusLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l logrusLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l logrusLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan ends an operation started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one mutating service call.
type AuditEntry struct {
	Operation  string        `json:"operation"`
	Entity     EntityType    `json:"entity,omitempty"`
	EntityID   string        `json:"entity_id,omitempty"`
	Status     AuditStatus   `json:"status"`
	Error      string        `json:"error,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
	At         time.Time     `json:"at"`
	Duration   time.Duration `json:"duration"`
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type serviceOptions struct {
	clock          Clock
	logger         Logger
	metrics        MetricsRecorder
	tracer         Tracer
	audit          AuditRecorder
	blobs          blob.Store
	workbookPath   string
	requiredSheets []string
	resume         bool
	urlExpiry      time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		audit:     noopAudit{},
		urlExpiry: blob.DefaultURLExpiry,
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the time source.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithBlobStore sets where PublishExport writes workbooks.
func WithBlobStore(b blob.Store) ServiceOption {
	return func(o *serviceOptions) { o.blobs = b }
}

// WithWorkbook sets the source workbook path and any sheets, beyond
// Incidents, that must be present for it to load.
func WithWorkbook(path string, requiredSheets ...string) ServiceOption {
	return func(o *serviceOptions) {
		o.workbookPath = path
		o.requiredSheets = append([]string(nil), requiredSheets...)
	}
}

// WithResume makes LoadWorkbook keep state restored from a session journal
// instead of re-reading the workbook.
func WithResume(resume bool) ServiceOption {
	return func(o *serviceOptions) { o.resume = resume }
}

// WithURLExpiry bounds signed export download links.
func WithURLExpiry(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if d > 0 {
			o.urlExpiry = d
		}
	}
}
