package audit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)
	return exporter, tp
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelSink_Emit(t *testing.T) {
	exporter, tp := newTestTracer(t)
	sink := NewOTelSink(tp.Tracer("test"))

	event := TaskCompleted("wf-001", "a", "Task A", "success")
	sink.Emit(event)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]

	if span.Name != string(EventTaskCompleted) {
		t.Errorf("span name = %q, want %q", span.Name, EventTaskCompleted)
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["workflow.id"]; got != "wf-001" {
		t.Errorf("workflow.id = %v, want wf-001", got)
	}
	if got := attrs["workflow.task_id"]; got != "a" {
		t.Errorf("workflow.task_id = %v, want a", got)
	}
	if got := attrs["workflow.result"]; got != "success" {
		t.Errorf("workflow.result = %v, want success", got)
	}

	if !span.EndTime.After(span.StartTime) && !span.EndTime.Equal(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOTelSink_ErrorStatus(t *testing.T) {
	exporter, tp := newTestTracer(t)
	sink := NewOTelSink(tp.Tracer("test"))

	sink.Emit(TaskFailed("wf-001", "a", "Task A", "validation failed"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "validation failed" {
		t.Errorf("description = %q, want %q", spans[0].Status.Description, "validation failed")
	}
}

func TestOTelSink_RollbackStatus(t *testing.T) {
	exporter, tp := newTestTracer(t)
	sink := NewOTelSink(tp.Tracer("test"))

	sink.Emit(WorkflowRolledBack("wf-001", "deadline exceeded", []string{"b", "a"}))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("rollback span should carry error status, got %v", span.Status.Code)
	}
	attrs := attributeMap(span.Attributes)
	if got := attrs["workflow.reason"]; got != "deadline exceeded" {
		t.Errorf("workflow.reason = %v", got)
	}
}

func TestOTelSink_AsLogSink(t *testing.T) {
	exporter, tp := newTestTracer(t)

	log := NewMemoryLog()
	log.AddSink(NewOTelSink(tp.Tracer("test")))

	if err := log.Record(WorkflowStarted("wf-001", 2)); err != nil {
		t.Fatal(err)
	}
	if err := log.Record(WorkflowCompleted("wf-001", 2, 2)); err != nil {
		t.Fatal(err)
	}

	if got := len(exporter.GetSpans()); got != 2 {
		t.Errorf("expected 2 spans through the log, got %d", got)
	}
}

func TestOTelSink_SpanTimestamp(t *testing.T) {
	exporter, tp := newTestTracer(t)
	sink := NewOTelSink(tp.Tracer("test"))

	event := WorkflowStarted("wf-001", 1)
	sink.Emit(event)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if !spans[0].StartTime.Equal(event.Timestamp.Truncate(time.Nanosecond)) {
		t.Errorf("span start %v should mirror event time %v", spans[0].StartTime, event.Timestamp)
	}
}
