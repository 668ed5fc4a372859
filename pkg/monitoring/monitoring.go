package monitoring

import (
	"context"

	"github.com/fuegoaustral/ticketera-sub000/pkg/applogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type OpenTelemetry struct {
	serviceName string
	environment string
	projectID   string
	provider    *sdktrace.TracerProvider
}

func NewOpenTelemetry(serviceName, environment, projectID string) *OpenTelemetry {
	return &OpenTelemetry{
		serviceName: serviceName,
		environment: environment,
		projectID:   projectID,
	}
}

// Start installs the global tracer provider. The exporter endpoint is read
// from the standard OTEL_EXPORTER_OTLP_* environment variables.
func (o *OpenTelemetry) Start(ctx context.Context) {
	logger := applogger.GetLogrus()

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to create trace exporter")
		return
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", o.serviceName),
		attribute.String("deployment.environment", o.environment),
		attribute.String("gcp.project_id", o.projectID),
	)

	o.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(o.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

func (o *OpenTelemetry) Stop(ctx context.Context) {
	if o.provider == nil {
		return
	}

	if err := o.provider.Shutdown(ctx); err != nil {
		applogger.GetLogrus().WithContext(ctx).WithError(err).Error("failed to shut down tracer provider")
	}
}
