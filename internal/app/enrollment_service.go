package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// EnrollmentService orchestrates a learner's enroll, cancel, complete and
// review operations. Every seat decision happens inside the per-offering
// critical section, so the capacity and waiting-list invariants hold under
// concurrent callers; domain events are published after the section commits.
type EnrollmentService struct {
	offerings   domain.OfferingRepository
	enrollments domain.EnrollmentRepository
	ledger      domain.LedgerStore
	publisher   domain.EventPublisher
	invites     domain.InviteChecker
	now         func() time.Time
}

// NewEnrollmentService creates a service with the given adapters. invites may
// be nil when no invite-only offering exists in the deployment; enrolling in
// one then fails with InviteOnlyError.
func NewEnrollmentService(offerings domain.OfferingRepository, enrollments domain.EnrollmentRepository, ledger domain.LedgerStore, publisher domain.EventPublisher, invites domain.InviteChecker, opts ...Option) *EnrollmentService {
	s := newSettings(opts)
	return &EnrollmentService{
		offerings:   offerings,
		enrollments: enrollments,
		ledger:      ledger,
		publisher:   publisher,
		invites:     invites,
		now:         s.now,
	}
}

// Enroll allocates a seat (or a waiting-list slot) for the learner. The
// invite check for invite-only offerings runs before the lock is taken, since
// the checker is an external collaborator that may block.
func (s *EnrollmentService) Enroll(ctx context.Context, tenantID, offeringID, userID, inviteToken string) (domain.Enrollment, error) {
	preview, err := s.offerings.GetByID(ctx, tenantID, offeringID)
	if err != nil {
		return domain.Enrollment{}, err
	}

	if preview.EnrollmentMethod == domain.MethodInviteOnly {
		if err := s.checkInvite(ctx, tenantID, offeringID, userID, inviteToken); err != nil {
			return domain.Enrollment{}, err
		}
	}

	id, err := generateID()
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("generating enrollment id: %w", err)
	}

	var enrollment domain.Enrollment

	err = s.ledger.WithLedger(ctx, tenantID, offeringID, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}

		if !offering.EnrollmentOpen(s.now().UTC()) {
			return &domain.EnrollmentPeriodClosedError{OfferingID: offeringID, Status: offering.Status}
		}

		if existing, err := ledger.EnrollmentByUser(ctx, userID); err == nil {
			return &domain.AlreadyEnrolledError{UserID: userID, Current: existing.Status}
		} else if !errors.Is(err, domain.ErrEnrollmentNotFound) {
			return fmt.Errorf("looking up existing enrollment: %w", err)
		}

		seated := domain.EnrollmentActive
		if offering.EnrollmentMethod == domain.MethodApproval {
			seated = domain.EnrollmentPendingApproval
		}
		status, err := s.allocate(ctx, ledger, offering, seated)
		if err != nil {
			return err
		}

		enrollment = domain.NewEnrollment(id, tenantID, offeringID, userID, status)
		if err := ledger.InsertEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("inserting enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Enrollment{}, err
	}

	event := domain.EventEnrollmentCreated
	if enrollment.Status == domain.EnrollmentWaiting {
		event = domain.EventEnrollmentWaitlisted
	}
	s.publish(ctx, event, enrollment)

	return enrollment, nil
}

// allocate decides the status of an enrollment taking a seat: seated when one
// is free, waiting when the offering is full but the list is not, and a typed
// capacity error otherwise.
func (s *EnrollmentService) allocate(ctx context.Context, ledger domain.Ledger, offering domain.Offering, seated domain.EnrollmentStatus) (domain.EnrollmentStatus, error) {
	seatFree := offering.Capacity == nil
	if !seatFree {
		active, err := ledger.CountByStatus(ctx, domain.EnrollmentActive)
		if err != nil {
			return "", fmt.Errorf("counting active enrollments: %w", err)
		}
		seatFree = active < *offering.Capacity
	}

	if seatFree {
		return seated, nil
	}

	capacity := *offering.Capacity
	if offering.MaxWaitingCount == nil {
		return "", &domain.CapacityExceededError{OfferingID: offering.ID, Capacity: capacity}
	}

	waiting, err := ledger.CountByStatus(ctx, domain.EnrollmentWaiting)
	if err != nil {
		return "", fmt.Errorf("counting waiting enrollments: %w", err)
	}
	if waiting >= *offering.MaxWaitingCount {
		return "", &domain.CapacityExceededError{OfferingID: offering.ID, Capacity: capacity, WaitingListFull: true}
	}
	return domain.EnrollmentWaiting, nil
}

// promoteWaiting moves the longest-waiting learners (earliest enrolled, ties
// by id) into free seats until the offering is full again or nobody waits. It
// runs inside the caller's critical section; a freed seat must never sit idle
// while the waiting list is non-empty, whichever operation freed it.
func promoteWaiting(ctx context.Context, ledger domain.Ledger, offering domain.Offering) ([]domain.Enrollment, error) {
	var promoted []domain.Enrollment
	for {
		if offering.Capacity != nil {
			active, err := ledger.CountByStatus(ctx, domain.EnrollmentActive)
			if err != nil {
				return nil, fmt.Errorf("counting active enrollments: %w", err)
			}
			if active >= *offering.Capacity {
				return promoted, nil
			}
		}

		next, err := ledger.EarliestWaiting(ctx)
		if errors.Is(err, domain.ErrEnrollmentNotFound) {
			return promoted, nil
		}
		if err != nil {
			return nil, fmt.Errorf("finding waiting enrollment: %w", err)
		}

		next.Status = domain.EnrollmentActive
		if err := ledger.UpdateEnrollment(ctx, next); err != nil {
			return nil, fmt.Errorf("promoting waiting enrollment: %w", err)
		}
		promoted = append(promoted, next)
	}
}

// Cancel drops the learner's enrollment. Cancelling an active enrollment
// promotes the longest-waiting learner (earliest enrolled, ties by id) within
// the same critical section.
func (s *EnrollmentService) Cancel(ctx context.Context, tenantID, offeringID, userID string) error {
	var cancelled domain.Enrollment
	var promoted []domain.Enrollment

	err := s.ledger.WithLedger(ctx, tenantID, offeringID, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}
		enrollment, err := ledger.EnrollmentByUser(ctx, userID)
		if err != nil {
			return err
		}
		if enrollment.Status == domain.EnrollmentCompleted {
			return &domain.CannotCancelCompletedError{UserID: userID}
		}

		freedSeat := enrollment.Status == domain.EnrollmentActive

		enrollment.Status = domain.EnrollmentDropped
		if err := ledger.UpdateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("dropping enrollment: %w", err)
		}
		cancelled = enrollment

		if !freedSeat {
			return nil
		}

		promoted, err = promoteWaiting(ctx, ledger, offering)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.EventEnrollmentCancelled, cancelled)
	for _, p := range promoted {
		s.publish(ctx, domain.EventEnrollmentPromoted, p)
	}
	return nil
}

// Complete transitions an active enrollment to completed. The supplied score
// comes from the external progress tracker and, when present, must meet the
// offering's minimum progress gate. Completion frees the learner's seat, so
// the longest-waiting learner is promoted within the same critical section.
func (s *EnrollmentService) Complete(ctx context.Context, tenantID, offeringID, userID string, score *float64) (domain.Enrollment, error) {
	var completed domain.Enrollment
	var promoted []domain.Enrollment

	err := s.ledger.WithLedger(ctx, tenantID, offeringID, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}
		enrollment, err := ledger.EnrollmentByUser(ctx, userID)
		if err != nil {
			return err
		}
		if enrollment.Status != domain.EnrollmentActive {
			return &domain.EnrollmentStateError{
				Operation: "complete",
				Current:   enrollment.Status,
				Required:  domain.EnrollmentActive,
			}
		}
		if score != nil && *score < float64(offering.MinProgressForCompletion) {
			return &domain.ProgressBelowMinimumError{Score: *score, MinProgress: offering.MinProgressForCompletion}
		}

		completedAt := s.now().UTC()
		enrollment.Status = domain.EnrollmentCompleted
		enrollment.Score = score
		enrollment.CompletedAt = &completedAt
		if err := ledger.UpdateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("completing enrollment: %w", err)
		}
		completed = enrollment

		promoted, err = promoteWaiting(ctx, ledger, offering)
		return err
	})
	if err != nil {
		return domain.Enrollment{}, err
	}

	s.publish(ctx, domain.EventEnrollmentCompleted, completed)
	for _, p := range promoted {
		s.publish(ctx, domain.EventEnrollmentPromoted, p)
	}
	return completed, nil
}

// Review approves or rejects a pending-approval enrollment. Approval re-checks
// capacity: seats may have been consumed since the request was created, in
// which case the learner lands on the waiting list instead, or the review
// fails (and the row stays pending) when that is also full.
func (s *EnrollmentService) Review(ctx context.Context, tenantID, offeringID, userID string, approve bool) (domain.Enrollment, error) {
	var reviewed domain.Enrollment

	err := s.ledger.WithLedger(ctx, tenantID, offeringID, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}
		enrollment, err := ledger.EnrollmentByUser(ctx, userID)
		if err != nil {
			return err
		}
		if enrollment.Status != domain.EnrollmentPendingApproval {
			return &domain.EnrollmentStateError{
				Operation: "review",
				Current:   enrollment.Status,
				Required:  domain.EnrollmentPendingApproval,
			}
		}

		if !approve {
			enrollment.Status = domain.EnrollmentDropped
		} else {
			status, err := s.allocate(ctx, ledger, offering, domain.EnrollmentActive)
			if err != nil {
				return err
			}
			enrollment.Status = status
		}

		if err := ledger.UpdateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("reviewing enrollment: %w", err)
		}
		reviewed = enrollment
		return nil
	})
	if err != nil {
		return domain.Enrollment{}, err
	}

	switch reviewed.Status {
	case domain.EnrollmentDropped:
		s.publish(ctx, domain.EventEnrollmentRejected, reviewed)
	case domain.EnrollmentWaiting:
		s.publish(ctx, domain.EventEnrollmentWaitlisted, reviewed)
	default:
		s.publish(ctx, domain.EventEnrollmentApproved, reviewed)
	}
	return reviewed, nil
}

// ListByOffering returns all enrollments of an offering.
func (s *EnrollmentService) ListByOffering(ctx context.Context, tenantID, offeringID string) ([]domain.Enrollment, error) {
	if _, err := s.offerings.GetByID(ctx, tenantID, offeringID); err != nil {
		return nil, err
	}
	return s.enrollments.ListByOffering(ctx, tenantID, offeringID)
}

func (s *EnrollmentService) checkInvite(ctx context.Context, tenantID, offeringID, userID, token string) error {
	if token == "" || s.invites == nil {
		return &domain.InviteOnlyError{OfferingID: offeringID}
	}
	ok, err := s.invites.Check(ctx, tenantID, offeringID, userID, token)
	if err != nil {
		return fmt.Errorf("checking invite token: %w", err)
	}
	if !ok {
		return &domain.InviteOnlyError{OfferingID: offeringID}
	}
	return nil
}

// publish emits a domain event best-effort, after the critical section.
func (s *EnrollmentService) publish(ctx context.Context, event domain.DomainEvent, enrollment domain.Enrollment) {
	if err := s.publisher.PublishEnrollment(ctx, event, enrollment); err != nil {
		slog.WarnContext(ctx, "publishing enrollment event",
			"event", event, "enrollment_id", enrollment.ID, "error", err)
	}
}
