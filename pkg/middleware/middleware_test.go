package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fundsavy/fundsavy/pkg/fetch"
)

func resetMetrics(t *testing.T) *prometheus.Registry {
	t.Helper()
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
	t.Cleanup(func() {
		globalMetricsMu.Lock()
		globalMetrics = nil
		globalMetricsMu.Unlock()
	})
	return prometheus.NewRegistry()
}

func stubRetriever(results map[string]error) fetch.Retriever {
	return fetch.RetrieverFunc(func(ctx context.Context, locator string) ([]byte, error) {
		if err := results[locator]; err != nil {
			return nil, err
		}
		return []byte(`{}`), nil
	})
}

func TestPrometheusCountsOutcomes(t *testing.T) {
	reg := resetMetrics(t)

	r := fetch.Chain(stubRetriever(map[string]error{
		"groups/missing": fetch.ResponseError("groups/missing", http.StatusNotFound),
		"groups/slow":    fetch.TimeoutError("groups/slow", context.DeadlineExceeded),
		"groups/gone":    context.Canceled,
	}), Prometheus(WithRegistry(reg), WithNamespace("test")))

	for _, loc := range []string{"groups/a", "groups/b", "groups/missing", "groups/slow", "groups/gone"} {
		r.Retrieve(context.Background(), loc)
	}

	m := current()
	tests := map[string]float64{
		"success":  2,
		"response": 1,
		"timeout":  1,
		"canceled": 1,
	}
	for outcome, want := range tests {
		if got := testutil.ToFloat64(m.fetchTotal.WithLabelValues(outcome)); got != want {
			t.Errorf("fetch_total{outcome=%q}: expected %v, got %v", outcome, want, got)
		}
	}

	n, err := testutil.GatherAndCount(reg, "test_fetch_duration_seconds")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 duration series, got %d", n)
	}
}

func TestPrometheusIsSingleton(t *testing.T) {
	reg := resetMetrics(t)

	Prometheus(WithRegistry(reg))
	first := current()
	// A second call must not re-register and panic.
	Prometheus(WithRegistry(reg))
	if current() != first {
		t.Error("Expected metrics to be created once")
	}
}

func TestRecordFunctions(t *testing.T) {
	reg := resetMetrics(t)

	// No-ops before initialisation.
	RecordStaleDiscard()
	RecordSessionStart()

	Prometheus(WithRegistry(reg))
	m := current()

	RecordStaleDiscard()
	RecordStaleDiscard()
	RecordSessionStart()
	RecordSessionStart()
	RecordSessionEnd()
	RecordScreenOpen()
	RecordScreenClose()
	RecordWebSocketError("read")

	if got := testutil.ToFloat64(m.staleDiscards); got != 2 {
		t.Errorf("Expected 2 stale discards, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.liveScreens); got != 0 {
		t.Errorf("Expected 0 live screens, got %v", got)
	}
	if got := testutil.ToFloat64(m.wsErrors.WithLabelValues("read")); got != 1 {
		t.Errorf("Expected 1 websocket error, got %v", got)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{fetch.ParseError("x", errors.New("bad")), "parse"},
		{fetch.NetworkError("x", errors.New("refused")), "network"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("other"), "network"},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v): expected %q, got %q", tt.err, tt.want, got)
		}
	}
}

func TestOpenTelemetryPassesThrough(t *testing.T) {
	var extracted string
	mw := OpenTelemetry(
		WithTracerProvider(noop.NewTracerProvider()),
		WithTracerName("test"),
		WithAttributeExtractor(func(ctx context.Context, locator string) []attribute.KeyValue {
			extracted = locator
			return nil
		}),
	)

	notFound := fetch.ResponseError("groups/missing", http.StatusNotFound)
	r := mw(stubRetriever(map[string]error{"groups/missing": notFound}))

	body, err := r.Retrieve(context.Background(), "groups/a")
	if err != nil || string(body) != "{}" {
		t.Errorf("Expected body to pass through, got %q %v", body, err)
	}
	if extracted != "groups/a" {
		t.Errorf("Expected extractor to see locator, got %q", extracted)
	}

	_, err = r.Retrieve(context.Background(), "groups/missing")
	if !errors.Is(err, notFound) {
		t.Errorf("Expected error to pass through, got %v", err)
	}
}
