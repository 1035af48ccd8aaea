package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

const tracerName = "github.com/neomorfeo/enrolliq/internal/adapter/otel"

// TracingRepository wraps a domain.OfferingRepository with OpenTelemetry
// tracing. Each method creates a span with semantic attributes and records
// errors. Expected domain errors (not-found, capacity) still mark the span:
// distinguishing them is the caller's job, not the trace's.
type TracingRepository struct {
	next   domain.OfferingRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.OfferingRepository.
var _ domain.OfferingRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.OfferingRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Create(ctx context.Context, offering domain.Offering) error {
	ctx, span := r.tracer.Start(ctx, "OfferingRepository.Create",
		trace.WithAttributes(
			attribute.String("tenant.id", offering.TenantID),
			attribute.String("offering.id", offering.ID),
			attribute.String("offering.delivery_type", string(offering.DeliveryType)),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, offering)
	recordError(span, err)
	return err
}

func (r *TracingRepository) GetByID(ctx context.Context, tenantID, id string) (domain.Offering, error) {
	ctx, span := r.tracer.Start(ctx, "OfferingRepository.GetByID",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("offering.id", id),
		),
	)
	defer span.End()

	offering, err := r.next.GetByID(ctx, tenantID, id)
	recordError(span, err)
	return offering, err
}

func (r *TracingRepository) List(ctx context.Context, tenantID string, filter domain.OfferingFilter) ([]domain.Offering, error) {
	ctx, span := r.tracer.Start(ctx, "OfferingRepository.List",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	offerings, err := r.next.List(ctx, tenantID, filter)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(offerings)))
	}
	return offerings, err
}

func (r *TracingRepository) DueForStart(ctx context.Context, today time.Time) ([]domain.OfferingRef, error) {
	ctx, span := r.tracer.Start(ctx, "OfferingRepository.DueForStart",
		trace.WithAttributes(attribute.String("sweep.today", today.Format(time.RFC3339))),
	)
	defer span.End()

	refs, err := r.next.DueForStart(ctx, today)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(refs)))
	}
	return refs, err
}

func (r *TracingRepository) DueForClose(ctx context.Context, today time.Time) ([]domain.OfferingRef, error) {
	ctx, span := r.tracer.Start(ctx, "OfferingRepository.DueForClose",
		trace.WithAttributes(attribute.String("sweep.today", today.Format(time.RFC3339))),
	)
	defer span.End()

	refs, err := r.next.DueForClose(ctx, today)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(refs)))
	}
	return refs, err
}

func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
