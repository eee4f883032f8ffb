package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/orderlabs/order-svc/internal/jaeger"
)

// OtelController owns the tracer provider lifecycle.
type OtelController struct {
	traceProvider *sdktrace.TracerProvider
}

// MustInitOtel sets up the global tracer provider with the jaeger exporter.
func MustInitOtel() *OtelController {
	jaegerExporter := jaeger.MustNewJaeger()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(jaegerExporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("order-svc"),
		)),
	)

	otel.SetTracerProvider(tp)

	return &OtelController{
		traceProvider: tp,
	}
}

// Shutdown flushes and stops the tracer provider.
func (o *OtelController) Shutdown() error {
	return o.traceProvider.Shutdown(context.Background())
}
