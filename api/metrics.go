package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	observabilityEventName = "observability.event"
	habitsEventDomain      = "habits"
	attrPrefix             = "habits."
	tracerName             = "github.com/vnfma0218/habit-management/api"
)

var (
	// reorderResults counts reorder requests by outcome.
	reorderResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habits_reorder_total",
			Help: "Total number of reorder requests by result",
		},
		[]string{"result"},
	)

	lockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habits_group_lock_busy_total",
			Help: "Total number of writes rejected because the time slot was locked",
		},
	)
)

// MetricsMiddleware records request count, latency and sizes per route on reg.
func MetricsMiddleware(reg prometheus.Registerer) echo.MiddlewareFunc {
	return echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "habits",
		Registerer: reg,
	})
}

// MetricsHandler serves the metrics gathered by g.
func MetricsHandler(g prometheus.Gatherer) echo.HandlerFunc {
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: g})
}

// requestMetrics wraps one handled request in a span and emits a single
// structured observability event when it finishes.
type requestMetrics struct {
	logger     *log.Logger
	route      string
	eventName  string
	start      time.Time
	span       trace.Span
	attrs      map[string]any
	errorStage string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route, eventName string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, eventName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger:    logger,
		route:     route,
		eventName: eventName,
		start:     time.Now(),
		span:      span,
		attrs:     make(map[string]any),
	}, ctx
}

// Set records a request attribute. Keys are prefixed with "habits.".
func (m *requestMetrics) Set(key string, value any) {
	m.attrs[attrPrefix+key] = value
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)

	attrs := make(map[string]any, len(m.attrs)+5)
	for k, v := range m.attrs {
		attrs[k] = v
	}
	attrs["http.route"] = m.route
	attrs["http.status_code"] = status
	attrs[attrPrefix+"total_ms"] = durationToMillis(time.Since(m.start))
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	m.span.SetAttributes(kvs...)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", m.eventName),
		attribute.String("event.domain", habitsEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, kvs...)
	m.span.AddEvent(observabilityEventName, trace.WithAttributes(eventAttrs...))

	if err != nil || status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}

	traceID := ""
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	m.logger.WithFields(log.Fields{
		"event.name":      m.eventName,
		"event.domain":    habitsEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"trace_id":        traceID,
	}).Info(observabilityEventName)
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case []string:
		return attribute.StringSlice(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
