package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrOfferingNotFound   = errors.New("offering not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)

// TransitionError is returned when a lifecycle event is not allowed from the
// offering's current status.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from status %q", e.Event, e.Current)
}

// RuleViolationError is returned when a configuration carries at least one
// blocking rule violation. It carries the full violation list so a caller can
// render field-level messages.
type RuleViolationError struct {
	Violations []Violation
}

func (e *RuleViolationError) Error() string {
	blocking := Blocking(e.Violations)
	if len(blocking) == 1 {
		return fmt.Sprintf("configuration rejected: %s: %s", blocking[0].RuleCode, blocking[0].Message)
	}
	return fmt.Sprintf("configuration rejected: %d blocking rule violations", len(blocking))
}

// FieldImmutableError is returned when an update touches a field frozen in
// the offering's current status.
type FieldImmutableError struct {
	Field  Field
	Status Status
}

func (e *FieldImmutableError) Error() string {
	return fmt.Sprintf("field %q cannot change while the offering is %q", e.Field, e.Status)
}

// CapacityExceededError is returned when an offering is full and no waiting
// list slot is available. WaitingListFull distinguishes "the waiting list is
// also full" from "no waiting list exists".
type CapacityExceededError struct {
	OfferingID      string
	Capacity        int
	WaitingListFull bool
}

func (e *CapacityExceededError) Error() string {
	if e.WaitingListFull {
		return fmt.Sprintf("offering %s is full (%d seats) and its waiting list is full", e.OfferingID, e.Capacity)
	}
	return fmt.Sprintf("offering %s is full (%d seats) and has no waiting list", e.OfferingID, e.Capacity)
}

// CapacityBelowActiveError is returned when an update would lower capacity
// below the number of seats already taken.
type CapacityBelowActiveError struct {
	Capacity int
	Active   int
}

func (e *CapacityBelowActiveError) Error() string {
	return fmt.Sprintf("capacity %d is below the %d currently active enrollments", e.Capacity, e.Active)
}

// AlreadyEnrolledError is returned when the learner already holds a
// non-dropped enrollment for the offering. Current reports that enrollment's
// status so a stale client can resynchronize.
type AlreadyEnrolledError struct {
	UserID  string
	Current EnrollmentStatus
}

func (e *AlreadyEnrolledError) Error() string {
	return fmt.Sprintf("user %s is already enrolled (status %q)", e.UserID, e.Current)
}

// EnrollmentPeriodClosedError is returned when enrollment is attempted outside
// the offering's enrollment window or lifecycle state.
type EnrollmentPeriodClosedError struct {
	OfferingID string
	Status     Status
}

func (e *EnrollmentPeriodClosedError) Error() string {
	return fmt.Sprintf("enrollment for offering %s is closed (status %q)", e.OfferingID, e.Status)
}

// InviteOnlyError is returned when an invite-only offering is enrolled without
// a valid invite token.
type InviteOnlyError struct {
	OfferingID string
}

func (e *InviteOnlyError) Error() string {
	return fmt.Sprintf("offering %s requires an invitation to enroll", e.OfferingID)
}

// CannotCancelCompletedError is returned when a cancel targets a completed
// enrollment.
type CannotCancelCompletedError struct {
	UserID string
}

func (e *CannotCancelCompletedError) Error() string {
	return fmt.Sprintf("enrollment of user %s is completed and cannot be cancelled", e.UserID)
}

// EnrollmentStateError is returned when an enrollment operation requires a
// status the enrollment is not in (complete from non-active, review from
// non-pending). It reports the authoritative current status.
type EnrollmentStateError struct {
	Operation string
	Current   EnrollmentStatus
	Required  EnrollmentStatus
}

func (e *EnrollmentStateError) Error() string {
	return fmt.Sprintf("%s requires enrollment status %q, current status is %q", e.Operation, e.Required, e.Current)
}

// ProgressBelowMinimumError is returned when a completion score does not meet
// the offering's minimum progress gate.
type ProgressBelowMinimumError struct {
	Score       float64
	MinProgress int
}

func (e *ProgressBelowMinimumError) Error() string {
	return fmt.Sprintf("score %.1f is below the minimum progress %d required for completion", e.Score, e.MinProgress)
}
