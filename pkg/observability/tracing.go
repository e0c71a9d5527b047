package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

// TracerProvider wraps OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes distributed tracing
func InitTracing(serviceName, environment, endpoint string) (*TracerProvider, error) {
	// Create OTLP exporter
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(), // Use TLS in production
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(environment)),
	)

	// Set global provider
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
	}, nil
}

// createSampler picks a sampling strategy for the environment. Production
// keeps a small ratio, staging a larger one, everything else records all
// traces.
func createSampler(environment string) sdktrace.Sampler {
	switch environment {
	case "production":
		return sdktrace.TraceIDRatioBased(0.01)
	case "staging":
		return sdktrace.TraceIDRatioBased(0.1)
	default:
		return sdktrace.AlwaysSample()
	}
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the service tracer
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// TraceRepository wraps a canvas repository with tracing
func TraceRepository(repo ports.CanvasRepository, tracer trace.Tracer) ports.CanvasRepository {
	return &tracedCanvasRepository{
		inner:  repo,
		tracer: tracer,
	}
}

type tracedCanvasRepository struct {
	inner  ports.CanvasRepository
	tracer trace.Tracer
}

func (r *tracedCanvasRepository) Save(ctx context.Context, canvas *aggregates.Canvas) error {
	ctx, span := r.tracer.Start(ctx, "repository.Save",
		trace.WithAttributes(
			attribute.String("canvas.id", canvas.ID().String()),
			attribute.Int("canvas.cards", canvas.CardCount()),
		),
	)
	defer span.End()

	err := r.inner.Save(ctx, canvas)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

func (r *tracedCanvasRepository) GetByID(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error) {
	ctx, span := r.tracer.Start(ctx, "repository.GetByID",
		trace.WithAttributes(
			attribute.String("canvas.id", id.String()),
		),
	)
	defer span.End()

	canvas, err := r.inner.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
	}

	return canvas, err
}

func (r *tracedCanvasRepository) List(ctx context.Context) ([]ports.CanvasSummary, error) {
	ctx, span := r.tracer.Start(ctx, "repository.List")
	defer span.End()

	summaries, err := r.inner.List(ctx)
	if err != nil {
		span.RecordError(err)
	}

	return summaries, err
}

func (r *tracedCanvasRepository) Delete(ctx context.Context, id valueobjects.CanvasID) error {
	ctx, span := r.tracer.Start(ctx, "repository.Delete",
		trace.WithAttributes(
			attribute.String("canvas.id", id.String()),
		),
	)
	defer span.End()

	err := r.inner.Delete(ctx, id)
	if err != nil {
		span.RecordError(err)
	}

	return err
}
