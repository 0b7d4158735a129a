package server

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	mutationSpanName    = "board.mutation"
	mutationEventName   = "mutation"
	mutationEventDomain = "board"

	outcomeApplied  = "applied"
	outcomeNotFound = "not_found"
	outcomeDropped  = "dropped"
)

// mutationMetrics captures one observability event per mutation intent: an
// otel span plus a structured log entry carrying the same attributes.
type mutationMetrics struct {
	logger     *log.Logger
	span       trace.Span
	start      time.Time
	kind       string
	taskID     int
	recipients int
}

func newMutationMetrics(logger *log.Logger, kind string) *mutationMetrics {
	_, span := otel.Tracer("taskboard/relay/server").Start(context.Background(), mutationSpanName)
	return &mutationMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		kind:   kind,
	}
}

func (m *mutationMetrics) SetTaskID(id int) {
	m.taskID = id
}

func (m *mutationMetrics) SetRecipients(n int) {
	if n < 0 {
		n = 0
	}
	m.recipients = n
}

// Log ends the span and emits the observability event.
func (m *mutationMetrics) Log(outcome string) {
	if m == nil {
		return
	}
	totalMs := float64(time.Since(m.start)) / float64(time.Millisecond)
	m.span.SetAttributes(
		attribute.String("board.mutation.kind", m.kind),
		attribute.String("board.mutation.outcome", outcome),
		attribute.Int("board.mutation.task_id", m.taskID),
		attribute.Int("board.mutation.recipients", m.recipients),
		attribute.Float64("board.mutation.total_ms", totalMs),
	)
	m.span.End()
	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":   mutationEventName,
		"event.domain": mutationEventDomain,
		"attributes": map[string]any{
			"board.mutation.kind":       m.kind,
			"board.mutation.outcome":    outcome,
			"board.mutation.task_id":    m.taskID,
			"board.mutation.recipients": m.recipients,
			"board.mutation.total_ms":   totalMs,
		},
		"severity_text":   "INFO",
		"severity_number": 9,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	m.logger.WithFields(fields).Info("observability.event")
}
