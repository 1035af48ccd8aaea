package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// PhaseReport counts the outcomes of one sweep phase.
type PhaseReport struct {
	Scanned      int
	Transitioned int
	Skipped      int
	Failed       int
}

// SweepReport summarizes one lifecycle sweep run.
type SweepReport struct {
	Started PhaseReport
	Closed  PhaseReport
}

// LifecycleService advances offerings through time-triggered transitions:
// recruiting offerings start when their class start date arrives, and ongoing
// non-unlimited offerings close once their end date has passed. A sweep is
// idempotent: re-running it finds nothing left to transition.
type LifecycleService struct {
	offerings domain.OfferingRepository
	ledger    domain.LedgerStore
	validator domain.TransitionValidator
	publisher domain.EventPublisher
	now       func() time.Time
}

// NewLifecycleService creates a service with the given adapters.
func NewLifecycleService(offerings domain.OfferingRepository, ledger domain.LedgerStore, validator domain.TransitionValidator, publisher domain.EventPublisher, opts ...Option) *LifecycleService {
	s := newSettings(opts)
	return &LifecycleService{
		offerings: offerings,
		ledger:    ledger,
		validator: validator,
		publisher: publisher,
		now:       s.now,
	}
}

// Run executes one sweep. Each offering is processed independently inside its
// own critical section; a failure is logged, counted, and does not abort the
// batch. Run only returns an error when a phase's candidate query fails.
func (s *LifecycleService) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	today := s.now().UTC()

	startRefs, err := s.offerings.DueForStart(ctx, today)
	if err != nil {
		return report, fmt.Errorf("selecting offerings due for start: %w", err)
	}
	report.Started = s.sweepPhase(ctx, startRefs, domain.EventStart, domain.StatusRecruiting)

	closeRefs, err := s.offerings.DueForClose(ctx, today)
	if err != nil {
		return report, fmt.Errorf("selecting offerings due for close: %w", err)
	}
	report.Closed = s.sweepPhase(ctx, closeRefs, domain.EventClose, domain.StatusOngoing)

	slog.InfoContext(ctx, "lifecycle sweep finished",
		"started", report.Started.Transitioned,
		"closed", report.Closed.Transitioned,
		"skipped", report.Started.Skipped+report.Closed.Skipped,
		"failed", report.Started.Failed+report.Closed.Failed,
	)
	return report, nil
}

func (s *LifecycleService) sweepPhase(ctx context.Context, refs []domain.OfferingRef, event domain.Event, expected domain.Status) PhaseReport {
	var report PhaseReport
	report.Scanned = len(refs)

	for _, ref := range refs {
		transitioned, err := s.transitionOne(ctx, ref, event, expected)
		switch {
		case err != nil:
			report.Failed++
			slog.ErrorContext(ctx, "lifecycle transition failed",
				"tenant_id", ref.TenantID, "offering_id", ref.ID, "event", event, "error", err)
		case transitioned:
			report.Transitioned++
		default:
			// Already advanced past the expected status, e.g. by an operator
			// or a concurrent sweep. Not an error.
			report.Skipped++
		}
	}
	return report
}

// transitionOne applies one time-triggered transition under the per-offering
// lock. The status is re-read inside the lock; an offering that already left
// the expected source state is skipped as a no-op.
func (s *LifecycleService) transitionOne(ctx context.Context, ref domain.OfferingRef, event domain.Event, expected domain.Status) (bool, error) {
	var updated domain.Offering
	transitioned := false

	err := s.ledger.WithLedger(ctx, ref.TenantID, ref.ID, func(ctx context.Context, ledger domain.Ledger) error {
		offering, err := ledger.Offering(ctx)
		if err != nil {
			return err
		}
		if offering.Status != expected {
			return nil
		}

		newStatus, err := s.validator.Apply(ctx, offering.Status, event)
		if err != nil {
			return err
		}

		offering.Status = newStatus
		offering.UpdatedAt = s.now().UTC()
		if err := ledger.UpdateOffering(ctx, offering); err != nil {
			return fmt.Errorf("updating offering status: %w", err)
		}

		updated = offering
		transitioned = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if transitioned {
		if err := s.publisher.PublishOffering(ctx, domain.EventOfferingTransitioned, updated); err != nil {
			slog.WarnContext(ctx, "publishing lifecycle transition event",
				"offering_id", updated.ID, "event", event, "error", err)
		}
	}
	return transitioned, nil
}
