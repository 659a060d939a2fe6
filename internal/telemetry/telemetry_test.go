package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	res := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			res[m.Name] = m
		}
	}
	return res
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestNewMetrics_RecordsValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.AwardsSucceeded.Add(ctx, 2)
	m.AwardsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "precondition")))
	m.BidsScored.Add(ctx, 4)
	m.AwardDurationSeconds.Record(ctx, 0.25)

	got := collect(t, reader)

	succeeded, ok := got["agrotender.awards.succeeded"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, succeeded.DataPoints, 1)
	assert.Equal(t, int64(2), succeeded.DataPoints[0].Value)

	failed, ok := got["agrotender.awards.failed"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, failed.DataPoints, 1)
	reason, _ := failed.DataPoints[0].Attributes.Value("reason")
	assert.Equal(t, "precondition", reason.AsString())

	scored, ok := got["agrotender.bids.scored"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(4), scored.DataPoints[0].Value)

	duration, ok := got["agrotender.award.duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
	assert.InDelta(t, 0.25, duration.DataPoints[0].Sum, 1e-9)
}

func TestStartAwardSpan(t *testing.T) {
	sr := recordSpans(t)

	ctx, span := StartAwardSpan(context.Background(), 1, 2, 3)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "tender.award", ended[0].Name())
	assert.ElementsMatch(t, []attribute.KeyValue{
		attribute.Int64("tender.id", 1),
		attribute.Int64("bid.id", 2),
		attribute.Int64("actor.id", 3),
	}, ended[0].Attributes())
}

func TestStartEvaluateSpan(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartEvaluateSpan(context.Background(), 5, true)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "tender.evaluate", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.Bool("evaluate.force", true))
}

func TestHTTPMiddleware_RecordsServerSpan(t *testing.T) {
	sr := recordSpans(t)

	h := HTTPMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenders/1/ranking", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, trace.SpanKindServer, ended[0].SpanKind())
}

func TestSetup_EmptyEndpointDisablesExport(t *testing.T) {
	prev := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), "", "agrotender")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, prev, otel.GetTracerProvider())
}

func TestSetup_InstallsProviders(t *testing.T) {
	prevTracer := otel.GetTracerProvider()
	prevMeter := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTracer)
		otel.SetMeterProvider(prevMeter)
	})

	// gRPC-клиент подключается лениво, поэтому коллектор для проверки не нужен.
	shutdown, err := Setup(context.Background(), "localhost:4317", "agrotender")
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	_, ok = otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
