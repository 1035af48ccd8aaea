package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// OfferingService orchestrates offering configuration and lifecycle
// operations. Every mutation runs inside the per-offering critical section so
// rule evaluation and status checks see a consistent row.
type OfferingService struct {
	repo      domain.OfferingRepository
	ledger    domain.LedgerStore
	publisher domain.EventPublisher
	validator domain.TransitionValidator
	now       func() time.Time
}

// NewOfferingService creates a service with the given adapters.
func NewOfferingService(repo domain.OfferingRepository, ledger domain.LedgerStore, publisher domain.EventPublisher, validator domain.TransitionValidator, opts ...Option) *OfferingService {
	s := newSettings(opts)
	return &OfferingService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		validator: validator,
		now:       s.now,
	}
}

// Create evaluates the configuration against the rule catalog and persists a
// new draft offering. Blocking violations reject the creation; warnings are
// returned alongside the created offering.
func (s *OfferingService) Create(ctx context.Context, tenantID string, cfg domain.Config) (domain.Offering, []domain.Violation, error) {
	violations := domain.Evaluate(cfg)
	if len(domain.Blocking(violations)) > 0 {
		return domain.Offering{}, nil, &domain.RuleViolationError{Violations: violations}
	}

	id, err := generateID()
	if err != nil {
		return domain.Offering{}, nil, fmt.Errorf("generating offering id: %w", err)
	}

	offering := domain.NewOffering(id, tenantID, cfg)

	if err := s.repo.Create(ctx, offering); err != nil {
		return domain.Offering{}, nil, fmt.Errorf("creating offering: %w", err)
	}

	return offering, domain.Warnings(violations), nil
}

// GetByID returns an offering by its tenant-scoped identifier.
func (s *OfferingService) GetByID(ctx context.Context, tenantID, id string) (domain.Offering, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// List returns offerings matching the given filter.
func (s *OfferingService) List(ctx context.Context, tenantID string, filter domain.OfferingFilter) ([]domain.Offering, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// Update is a partial update of an offering's configuration. Unset fields are
// left as they are.
type Update struct {
	Name             *string
	DeliveryType     *domain.DeliveryType
	DurationType     *domain.DurationType
	EnrollStartDate  *time.Time
	EnrollEndDate    *time.Time
	ClassStartDate   *time.Time
	ClassEndDate     *time.Time
	ClearClassEnd    bool
	DurationDays     *int
	ClearDuration    bool
	Capacity         *int
	ClearCapacity    bool
	MaxWaitingCount  *int
	ClearMaxWaiting  bool
	EnrollmentMethod *domain.EnrollmentMethod
	LocationInfo     *string
	MinProgress      *int
	LateEnrollment   *bool
}

// touched lists the fields this update changes, for the mutability check.
func (u Update) touched() []domain.Field {
	var out []domain.Field
	add := func(set bool, f domain.Field) {
		if set {
			out = append(out, f)
		}
	}
	add(u.Name != nil, domain.FieldName)
	add(u.DeliveryType != nil, domain.FieldDeliveryType)
	add(u.DurationType != nil, domain.FieldDurationType)
	add(u.EnrollStartDate != nil, domain.FieldEnrollStartDate)
	add(u.EnrollEndDate != nil, domain.FieldEnrollEndDate)
	add(u.ClassStartDate != nil, domain.FieldClassStartDate)
	add(u.ClassEndDate != nil || u.ClearClassEnd, domain.FieldClassEndDate)
	add(u.DurationDays != nil || u.ClearDuration, domain.FieldDurationDays)
	add(u.Capacity != nil || u.ClearCapacity, domain.FieldCapacity)
	add(u.MaxWaitingCount != nil || u.ClearMaxWaiting, domain.FieldMaxWaiting)
	add(u.EnrollmentMethod != nil, domain.FieldMethod)
	add(u.LocationInfo != nil, domain.FieldLocationInfo)
	add(u.MinProgress != nil, domain.FieldMinProgress)
	add(u.LateEnrollment != nil, domain.FieldLateEnrollment)
	return out
}

func (u Update) apply(o *domain.Offering) {
	if u.Name != nil {
		o.Name = *u.Name
	}
	if u.DeliveryType != nil {
		o.DeliveryType = *u.DeliveryType
	}
	if u.DurationType != nil {
		o.DurationType = *u.DurationType
	}
	if u.EnrollStartDate != nil {
		o.EnrollStartDate = *u.EnrollStartDate
	}
	if u.EnrollEndDate != nil {
		o.EnrollEndDate = *u.EnrollEndDate
	}
	if u.ClassStartDate != nil {
		o.ClassStartDate = *u.ClassStartDate
	}
	if u.ClearClassEnd {
		o.ClassEndDate = nil
	} else if u.ClassEndDate != nil {
		o.ClassEndDate = u.ClassEndDate
	}
	if u.ClearDuration {
		o.DurationDays = nil
	} else if u.DurationDays != nil {
		o.DurationDays = u.DurationDays
	}
	if u.ClearCapacity {
		o.Capacity = nil
	} else if u.Capacity != nil {
		o.Capacity = u.Capacity
	}
	if u.ClearMaxWaiting {
		o.MaxWaitingCount = nil
	} else if u.MaxWaitingCount != nil {
		o.MaxWaitingCount = u.MaxWaitingCount
	}
	if u.EnrollmentMethod != nil {
		o.EnrollmentMethod = *u.EnrollmentMethod
	}
	if u.LocationInfo != nil {
		o.LocationInfo = *u.LocationInfo
	}
	if u.MinProgress != nil {
		o.MinProgressForCompletion = *u.MinProgress
	}
	if u.LateEnrollment != nil {
		o.AllowLateEnrollment = *u.LateEnrollment
	}
}

// Apply mutates an offering's configuration. Each touched field is checked
// against the per-status mutability table, the resulting configuration is
// re-evaluated against the full rule catalog, and a finite capacity may never
// drop below the current active enrollment count. Raising the capacity (or
// removing the limit) promotes waiting learners into the new headroom within
// the same critical section.
func (s *OfferingService) Apply(ctx context.Context, tenantID, id string, update Update) (domain.Offering, []domain.Violation, error) {
	var updated domain.Offering
	var warnings []domain.Violation
	var promoted []domain.Enrollment

	err := s.ledger.WithLedger(ctx, tenantID, id, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}

		for _, field := range update.touched() {
			if !domain.FieldMutable(offering.Status, field) {
				return &domain.FieldImmutableError{Field: field, Status: offering.Status}
			}
		}

		update.apply(&offering)

		violations := domain.Evaluate(offering.Config())
		if len(domain.Blocking(violations)) > 0 {
			return &domain.RuleViolationError{Violations: violations}
		}

		if offering.Capacity != nil {
			active, err := ledger.CountByStatus(ctx, domain.EnrollmentActive)
			if err != nil {
				return fmt.Errorf("counting active enrollments: %w", err)
			}
			if *offering.Capacity < active {
				return &domain.CapacityBelowActiveError{Capacity: *offering.Capacity, Active: active}
			}
		}

		offering.UpdatedAt = s.now().UTC()
		if err := ledger.UpdateOffering(ctx, offering); err != nil {
			return fmt.Errorf("updating offering: %w", err)
		}

		if update.Capacity != nil || update.ClearCapacity {
			promoted, err = promoteWaiting(ctx, ledger, offering)
			if err != nil {
				return err
			}
		}

		updated = offering
		warnings = domain.Warnings(violations)
		return nil
	})
	if err != nil {
		return domain.Offering{}, nil, err
	}

	for _, p := range promoted {
		if err := s.publisher.PublishEnrollment(ctx, domain.EventEnrollmentPromoted, p); err != nil {
			slog.WarnContext(ctx, "publishing enrollment promoted event",
				"enrollment_id", p.ID, "error", err)
		}
	}

	return updated, warnings, nil
}

// Transition applies a lifecycle event to an offering. Publish is guarded by
// the rule catalog: a draft with blocking violations cannot recruit. The event
// is published after the critical section commits, best-effort.
func (s *OfferingService) Transition(ctx context.Context, tenantID, id string, event domain.Event) (domain.Offering, error) {
	var updated domain.Offering

	err := s.ledger.WithLedger(ctx, tenantID, id, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}

		newStatus, err := s.validator.Apply(ctx, offering.Status, event)
		if err != nil {
			return err
		}

		if event == domain.EventPublish {
			violations := domain.Evaluate(offering.Config())
			if len(domain.Blocking(violations)) > 0 {
				return &domain.RuleViolationError{Violations: violations}
			}
		}

		offering.Status = newStatus
		offering.UpdatedAt = s.now().UTC()
		if err := ledger.UpdateOffering(ctx, offering); err != nil {
			return fmt.Errorf("updating offering status: %w", err)
		}

		updated = offering
		return nil
	})
	if err != nil {
		return domain.Offering{}, err
	}

	if err := s.publisher.PublishOffering(ctx, domain.EventOfferingTransitioned, updated); err != nil {
		slog.WarnContext(ctx, "publishing offering transition event",
			"offering_id", updated.ID, "event", event, "error", err)
	}

	return updated, nil
}
