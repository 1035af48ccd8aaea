package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingPublisher) PublishEnrollment(ctx context.Context, event domain.DomainEvent, e domain.Enrollment) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.PublishEnrollment",
		trace.WithAttributes(
			attribute.String("event.name", string(event)),
			attribute.String("tenant.id", e.TenantID),
			attribute.String("offering.id", e.OfferingID),
			attribute.String("enrollment.id", e.ID),
		),
	)
	defer span.End()

	err := p.next.PublishEnrollment(ctx, event, e)
	recordError(span, err)
	return err
}

func (p *TracingPublisher) PublishOffering(ctx context.Context, event domain.DomainEvent, o domain.Offering) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.PublishOffering",
		trace.WithAttributes(
			attribute.String("event.name", string(event)),
			attribute.String("tenant.id", o.TenantID),
			attribute.String("offering.id", o.ID),
			attribute.String("offering.status", string(o.Status)),
		),
	)
	defer span.End()

	err := p.next.PublishOffering(ctx, event, o)
	recordError(span, err)
	return err
}
