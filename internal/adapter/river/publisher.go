package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries the data needed to process a domain event
// asynchronously. River serializes this as JSON into its job queue table. It
// includes a snapshot of the subject at publication time, so the worker never
// needs to query the database.
type EventJobArgs struct {
	Event        string `json:"event"`
	TenantID     string `json:"tenant_id"`
	OfferingID   string `json:"offering_id"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Status       string `json:"status"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "event.published" }

// SweepJobArgs triggers one lifecycle sweep run. Parameterless: the sweep
// derives everything from the current clock.
type SweepJobArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (SweepJobArgs) Kind() string { return "lifecycle.sweep" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEnrollment enqueues an enrollment domain event as an async job.
func (p *Publisher) PublishEnrollment(ctx context.Context, event domain.DomainEvent, e domain.Enrollment) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:        string(event),
		TenantID:     e.TenantID,
		OfferingID:   e.OfferingID,
		EnrollmentID: e.ID,
		UserID:       e.UserID,
		Status:       string(e.Status),
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing enrollment event job: %w", err)
	}
	return nil
}

// PublishOffering enqueues an offering domain event as an async job.
func (p *Publisher) PublishOffering(ctx context.Context, event domain.DomainEvent, o domain.Offering) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:      string(event),
		TenantID:   o.TenantID,
		OfferingID: o.ID,
		Status:     string(o.Status),
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing offering event job: %w", err)
	}
	return nil
}
