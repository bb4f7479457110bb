package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTraceContextPropagation verifies that request spans honour an incoming
// traceparent and that application spans nest under them.
func TestTraceContextPropagation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("authgate-test"))
	r.HandleFunc("/api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		_, span := Tracer().Start(r.Context(), "token.verify")
		span.End()
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		traceParent string
	}{
		{name: "without existing trace ID"},
		{name: "with existing trace ID", traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest(http.MethodGet, "/api/auth/validate", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("Expected status OK, got %d", rr.Code)
			}

			spans := exporter.GetSpans()
			if len(spans) != 2 {
				t.Fatalf("Expected 2 spans, got %d", len(spans))
			}

			// The inner span ends first.
			inner, outer := spans[0], spans[1]
			if inner.Name != "token.verify" {
				t.Errorf("Expected inner span 'token.verify', got '%s'", inner.Name)
			}
			if inner.Parent.SpanID() != outer.SpanContext.SpanID() {
				t.Error("Expected application span to be a child of the request span")
			}
			if tt.traceParent != "" && outer.SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
				t.Errorf("Expected incoming trace id to be kept, got %s", outer.SpanContext.TraceID())
			}
		})
	}
}
