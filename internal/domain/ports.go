package domain

import (
	"context"
	"time"
)

// OfferingRepository defines the read-side persistence contract for offerings.
// All mutations go through the per-offering ledger (LedgerStore) so that every
// read-then-write on an offering shares the same critical section.
type OfferingRepository interface {
	Create(ctx context.Context, offering Offering) error
	GetByID(ctx context.Context, tenantID, id string) (Offering, error)
	List(ctx context.Context, tenantID string, filter OfferingFilter) ([]Offering, error)
	// DueForStart returns refs of recruiting offerings whose class start date
	// is on or before the given day, across all tenants.
	DueForStart(ctx context.Context, today time.Time) ([]OfferingRef, error)
	// DueForClose returns refs of ongoing, non-unlimited offerings whose
	// effective end date is strictly before the given day, across all tenants.
	DueForClose(ctx context.Context, today time.Time) ([]OfferingRef, error)
}

// OfferingFilter holds optional criteria for listing offerings.
type OfferingFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// OfferingRef identifies one offering for batch processing. The lifecycle
// sweep re-reads the full row inside the critical section before acting.
type OfferingRef struct {
	TenantID string
	ID       string
}

// EnrollmentRepository defines lock-free enrollment reads.
type EnrollmentRepository interface {
	ListByOffering(ctx context.Context, tenantID, offeringID string) ([]Enrollment, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]Enrollment, error)
}

// Ledger is the view of one offering and its enrollments inside the
// per-offering critical section. All writes are committed atomically when the
// WithLedger callback returns nil and discarded when it returns an error.
type Ledger interface {
	// Offering returns the authoritative row as of lock acquisition.
	Offering(ctx context.Context) (Offering, error)
	CountByStatus(ctx context.Context, status EnrollmentStatus) (int, error)
	// EnrollmentByUser returns the learner's non-dropped enrollment, or
	// ErrEnrollmentNotFound.
	EnrollmentByUser(ctx context.Context, userID string) (Enrollment, error)
	// EarliestWaiting returns the longest-waiting enrollment: earliest
	// EnrolledAt, ties broken by id ascending. ErrEnrollmentNotFound when the
	// waiting list is empty.
	EarliestWaiting(ctx context.Context) (Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment Enrollment) error
	UpdateEnrollment(ctx context.Context, enrollment Enrollment) error
	UpdateOffering(ctx context.Context, offering Offering) error
}

// LedgerStore runs fn inside the exclusive per-offering critical section.
// Concurrent calls for the same (tenant, offering) serialize; calls for
// different offerings are independent. fn must not invoke collaborators that
// may block indefinitely; publish events after WithLedger returns.
type LedgerStore interface {
	WithLedger(ctx context.Context, tenantID, offeringID string, fn func(ctx context.Context, ledger Ledger) error) error
}

// TransitionValidator checks lifecycle events against the transition table.
type TransitionValidator interface {
	// Apply returns the destination status when the event is valid from the
	// current status, or a *TransitionError.
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}

// DomainEvent names an occurrence published to the async event queue.
type DomainEvent string

const (
	EventEnrollmentCreated    DomainEvent = "enrollment.created"
	EventEnrollmentWaitlisted DomainEvent = "enrollment.waitlisted"
	EventEnrollmentPromoted   DomainEvent = "enrollment.promoted"
	EventEnrollmentCancelled  DomainEvent = "enrollment.cancelled"
	EventEnrollmentCompleted  DomainEvent = "enrollment.completed"
	EventEnrollmentApproved   DomainEvent = "enrollment.approved"
	EventEnrollmentRejected   DomainEvent = "enrollment.rejected"
	EventOfferingTransitioned DomainEvent = "offering.transitioned"
)

// EventPublisher defines the contract for emitting domain events. Publication
// is best-effort and happens outside the per-offering critical section.
type EventPublisher interface {
	PublishEnrollment(ctx context.Context, event DomainEvent, enrollment Enrollment) error
	PublishOffering(ctx context.Context, event DomainEvent, offering Offering) error
}

// InviteChecker validates invite tokens for invite-only offerings. Invitation
// issuance and storage live outside this core.
type InviteChecker interface {
	Check(ctx context.Context, tenantID, offeringID, userID, token string) (bool, error)
}
