// Package telemetry содержит метрики и трассировку сервиса на OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "agrotender"

// Setup устанавливает глобальные провайдеры трассировки и метрик с экспортом по OTLP/gRPC
// на endpoint. Пустой endpoint отключает экспорт, инструменты остаются no-op.
// Возвращаемая функция сбрасывает накопленные данные и останавливает экспортёры.
func Setup(ctx context.Context, endpoint, serviceName string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Metrics содержит инструменты метрик движка оценки и присуждения.
type Metrics struct {
	AwardsSucceeded      metric.Int64Counter
	AwardsFailed         metric.Int64Counter
	BidsScored           metric.Int64Counter
	NotificationsSent    metric.Int64Counter
	NotificationsFailed  metric.Int64Counter
	AwardDurationSeconds metric.Float64Histogram
}

// NewMetrics создаёт инструменты метрик у провайдера provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.AwardsSucceeded, err = meter.Int64Counter("agrotender.awards.succeeded",
		metric.WithDescription("Number of tenders awarded"))
	if err != nil {
		return nil, err
	}

	m.AwardsFailed, err = meter.Int64Counter("agrotender.awards.failed",
		metric.WithDescription("Number of award attempts rejected or rolled back"))
	if err != nil {
		return nil, err
	}

	m.BidsScored, err = meter.Int64Counter("agrotender.bids.scored",
		metric.WithDescription("Number of bid scores calculated"))
	if err != nil {
		return nil, err
	}

	m.NotificationsSent, err = meter.Int64Counter("agrotender.notifications.sent",
		metric.WithDescription("Number of outbox notifications delivered"))
	if err != nil {
		return nil, err
	}

	m.NotificationsFailed, err = meter.Int64Counter("agrotender.notifications.failed",
		metric.WithDescription("Number of failed notification delivery attempts"))
	if err != nil {
		return nil, err
	}

	m.AwardDurationSeconds, err = meter.Float64Histogram("agrotender.award.duration_seconds",
		metric.WithDescription("Award transaction duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartAwardSpan начинает span присуждения тендера.
func StartAwardSpan(ctx context.Context, tenderID, bidID, actorID int64) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "tender.award",
		trace.WithAttributes(
			attribute.Int64("tender.id", tenderID),
			attribute.Int64("bid.id", bidID),
			attribute.Int64("actor.id", actorID),
		),
	)
}

// StartEvaluateSpan начинает span пересчёта оценок тендера.
func StartEvaluateSpan(ctx context.Context, tenderID int64, force bool) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "tender.evaluate",
		trace.WithAttributes(
			attribute.Int64("tender.id", tenderID),
			attribute.Bool("evaluate.force", force),
		),
	)
}

// HTTPMiddleware возвращает chi-совместимый middleware, создающий span на каждый запрос.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}
