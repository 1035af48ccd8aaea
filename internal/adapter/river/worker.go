package river

import (
	"context"
	"errors"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/enrolliq/internal/app"
)

// EventWorker processes domain event jobs from the River queue. For now it
// logs the event; future versions will dispatch to notification delivery.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "processing domain event",
		"event", job.Args.Event,
		"tenant_id", job.Args.TenantID,
		"offering_id", job.Args.OfferingID,
		"enrollment_id", job.Args.EnrollmentID,
		"user_id", job.Args.UserID,
		"status", job.Args.Status,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}

// Sweeper runs one lifecycle sweep. Implemented by app.LifecycleService.
type Sweeper interface {
	Run(ctx context.Context) (app.SweepReport, error)
}

// SweepWorker runs the periodic lifecycle sweep: time-triggered start and
// close transitions across all offerings. The sweeper is bound after client
// construction because the lifecycle service needs the client's publisher.
type SweepWorker struct {
	river.WorkerDefaults[SweepJobArgs]

	sweeper Sweeper
}

// Bind attaches the sweeper. Must be called before the client starts.
func (w *SweepWorker) Bind(sweeper Sweeper) {
	w.sweeper = sweeper
}

// Work runs one sweep. Per-offering failures are already isolated and counted
// inside the sweep; the job only fails (and retries) when a candidate query
// fails outright.
func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepJobArgs]) error {
	if w.sweeper == nil {
		return errors.New("sweep worker has no sweeper bound")
	}
	report, err := w.sweeper.Run(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "lifecycle sweep job finished",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"start_scanned", report.Started.Scanned,
		"start_transitioned", report.Started.Transitioned,
		"start_failed", report.Started.Failed,
		"close_scanned", report.Closed.Scanned,
		"close_transitioned", report.Closed.Transitioned,
		"close_failed", report.Closed.Failed,
	)
	return nil
}
