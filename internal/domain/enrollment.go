package domain

import "time"

// EnrollmentStatus represents the lifecycle state of a learner's enrollment.
type EnrollmentStatus string

const (
	EnrollmentWaiting         EnrollmentStatus = "waiting"
	EnrollmentPendingApproval EnrollmentStatus = "pending_approval"
	EnrollmentActive          EnrollmentStatus = "active"
	EnrollmentCompleted       EnrollmentStatus = "completed"
	EnrollmentDropped         EnrollmentStatus = "dropped"
)

// Enrollment ties a learner to an offering. At most one non-dropped row exists
// per (tenant, offering, user); dropped rows stay behind as history so a
// learner can re-enroll after cancelling.
type Enrollment struct {
	ID          string
	TenantID    string
	OfferingID  string
	UserID      string
	Status      EnrollmentStatus
	EnrolledAt  time.Time
	Score       *float64
	CompletedAt *time.Time
}

// NewEnrollment creates an enrollment in the given initial status. The initial
// status is decided by the seat ledger: active or pending_approval when a seat
// is free, waiting when the offering is full but the waiting list is not.
func NewEnrollment(id, tenantID, offeringID, userID string, status EnrollmentStatus) Enrollment {
	return Enrollment{
		ID:         id,
		TenantID:   tenantID,
		OfferingID: offeringID,
		UserID:     userID,
		Status:     status,
		EnrolledAt: time.Now().UTC(),
	}
}
