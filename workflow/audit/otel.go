package audit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelSink bridges audit events into OpenTelemetry spans.
//
// Each event becomes an immediately-ended span named after the event
// type, carrying the workflow id, task id, and variant payload as
// attributes. Failure variants set the span status to Error.
//
// Usage:
//
//	tracer := otel.Tracer("sagaflow")
//	log := audit.NewLog()
//	log.AddSink(audit.NewOTelSink(tracer))
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink creates a sink emitting spans through the given tracer.
func NewOTelSink(tracer trace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

// Emit implements Sink.
func (s *OTelSink) Emit(event Event) {
	if s.tracer == nil {
		return
	}

	_, span := s.tracer.Start(context.Background(), string(event.Type),
		trace.WithTimestamp(event.Timestamp))

	attrs := []attribute.KeyValue{
		attribute.String("workflow.id", event.WorkflowID),
	}
	if event.TaskID != "" {
		attrs = append(attrs, attribute.String("workflow.task_id", event.TaskID))
	}
	if event.TaskName != "" {
		attrs = append(attrs, attribute.String("workflow.task_name", event.TaskName))
	}
	if event.Result != "" {
		attrs = append(attrs, attribute.String("workflow.result", event.Result))
	}
	if event.Reason != "" {
		attrs = append(attrs, attribute.String("workflow.reason", event.Reason))
	}
	if event.Compensation != "" {
		attrs = append(attrs, attribute.String("workflow.compensation", event.Compensation))
	}
	if event.TaskCount > 0 {
		attrs = append(attrs, attribute.Int("workflow.task_count", event.TaskCount))
	}
	if len(event.RolledBackTasks) > 0 {
		attrs = append(attrs, attribute.StringSlice("workflow.rolled_back_tasks", event.RolledBackTasks))
	}
	if event.ToolName != "" {
		attrs = append(attrs, attribute.String("workflow.tool", event.ToolName))
	}
	if event.FallbackHandler != "" {
		attrs = append(attrs, attribute.String("workflow.fallback", event.FallbackHandler))
	}
	span.SetAttributes(attrs...)

	switch event.Type {
	case EventTaskFailed, EventWorkflowRolledBack:
		msg := event.Error
		if msg == "" {
			msg = event.Reason
		}
		span.SetStatus(codes.Error, msg)
	default:
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
