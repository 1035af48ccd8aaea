package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/enrolliq/internal/app"
	"github.com/neomorfeo/enrolliq/internal/domain"
)

func validConfig() domain.Config {
	end := day(2026, time.June, 30)
	return domain.Config{
		CourseID:                 "course-1",
		Name:                     "Go Fundamentals",
		DeliveryType:             domain.DeliveryOnline,
		CourseDeliveryType:       domain.DeliveryOnline,
		DurationType:             domain.DurationFixed,
		EnrollStartDate:          day(2026, time.January, 1),
		EnrollEndDate:            day(2026, time.March, 31),
		ClassStartDate:           day(2026, time.April, 1),
		ClassEndDate:             &end,
		Capacity:                 intPtr(30),
		MaxWaitingCount:          intPtr(5),
		EnrollmentMethod:         domain.MethodFirstCome,
		MinProgressForCompletion: 80,
	}
}

func newOfferingService(store *memStore, pub *mockPublisher) *app.OfferingService {
	return app.NewOfferingService(store, store, pub, tableValidator{}, app.WithClock(testClock()))
}

func TestCreateOffering(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})

	created, warnings, err := svc.Create(context.Background(), testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != domain.StatusDraft {
		t.Errorf("status = %q, want draft", created.Status)
	}
	if created.ID == "" {
		t.Error("id not generated")
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	got, err := svc.GetByID(context.Background(), testTenant, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Go Fundamentals" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestCreateOffering_BlockingViolation(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})

	cfg := validConfig()
	cfg.DeliveryType = domain.DeliveryOffline
	cfg.CourseDeliveryType = domain.DeliveryOffline
	cfg.LocationInfo = "" // offline requires a location

	_, _, err := svc.Create(context.Background(), testTenant, cfg)
	var ruleErr *domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("Create error = %v, want RuleViolationError", err)
	}
	if len(ruleErr.Violations) == 0 {
		t.Fatal("no violations carried on error")
	}
}

func TestCreateOffering_Warnings(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})

	cfg := validConfig()
	cfg.Capacity = nil // online + unlimited capacity is a warning, not a block
	cfg.MaxWaitingCount = nil

	created, warnings, err := svc.Create(context.Background(), testTenant, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("offering not created despite warnings")
	}
	if len(warnings) == 0 {
		t.Fatal("expected at least one warning")
	}
	for _, w := range warnings {
		if w.Severity != domain.SeverityWarning {
			t.Errorf("violation %s severity = %q, want warning", w.RuleCode, w.Severity)
		}
	}
}

func TestApplyUpdate(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})
	ctx := context.Background()

	created, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	name := "Advanced Go"
	updated, warnings, err := svc.Apply(ctx, testTenant, created.ID, app.Update{
		Name:     &name,
		Capacity: intPtr(50),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if updated.Name != "Advanced Go" {
		t.Errorf("name = %q", updated.Name)
	}
	if updated.Capacity == nil || *updated.Capacity != 50 {
		t.Errorf("capacity = %v, want 50", updated.Capacity)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) && !updated.UpdatedAt.Equal(testClock()()) {
		t.Errorf("UpdatedAt = %v not refreshed", updated.UpdatedAt)
	}
}

func TestApplyUpdate_FieldImmutable(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})
	ctx := context.Background()

	created, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Transition(ctx, testTenant, created.ID, domain.EventPublish); err != nil {
		t.Fatalf("Transition(publish): %v", err)
	}

	// Delivery type is frozen once recruiting.
	delivery := domain.DeliveryLive
	_, _, err = svc.Apply(ctx, testTenant, created.ID, app.Update{DeliveryType: &delivery})
	var immutableErr *domain.FieldImmutableError
	if !errors.As(err, &immutableErr) {
		t.Fatalf("Apply error = %v, want FieldImmutableError", err)
	}
	if immutableErr.Field != domain.FieldDeliveryType {
		t.Errorf("Field = %q, want delivery_type", immutableErr.Field)
	}

	// Capacity, by contrast, stays adjustable.
	if _, _, err := svc.Apply(ctx, testTenant, created.ID, app.Update{Capacity: intPtr(40)}); err != nil {
		t.Fatalf("Apply(capacity) while recruiting: %v", err)
	}
}

func TestApplyUpdate_RuleRecheck(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})
	ctx := context.Background()

	created, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Clearing the end date of a fixed-duration offering violates the catalog.
	_, _, err = svc.Apply(ctx, testTenant, created.ID, app.Update{ClearClassEnd: true})
	var ruleErr *domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("Apply error = %v, want RuleViolationError", err)
	}

	// The failed update must not have been persisted.
	got, err := svc.GetByID(ctx, testTenant, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ClassEndDate == nil {
		t.Error("class end date was cleared despite rejected update")
	}
}

func TestApplyUpdate_CapacityBelowActive(t *testing.T) {
	store := newMemStore()
	pub := &mockPublisher{}
	offeringSvc := newOfferingService(store, pub)
	enrollmentSvc := newEnrollmentService(store, pub)
	ctx := context.Background()

	created, _, err := offeringSvc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := offeringSvc.Transition(ctx, testTenant, created.ID, domain.EventPublish); err != nil {
		t.Fatalf("Transition(publish): %v", err)
	}
	for _, user := range []string{"user-a", "user-b", "user-c"} {
		if _, err := enrollmentSvc.Enroll(ctx, testTenant, created.ID, user, ""); err != nil {
			t.Fatalf("Enroll(%s): %v", user, err)
		}
	}

	_, _, err = offeringSvc.Apply(ctx, testTenant, created.ID, app.Update{Capacity: intPtr(2)})
	var capErr *domain.CapacityBelowActiveError
	if !errors.As(err, &capErr) {
		t.Fatalf("Apply error = %v, want CapacityBelowActiveError", err)
	}
	if capErr.Active != 3 || capErr.Capacity != 2 {
		t.Errorf("error = %+v, want active 3 capacity 2", capErr)
	}

	// Shrinking to exactly the active count is allowed.
	if _, _, err := offeringSvc.Apply(ctx, testTenant, created.ID, app.Update{Capacity: intPtr(3)}); err != nil {
		t.Fatalf("Apply(capacity=active): %v", err)
	}
}

func TestApplyUpdate_CapacityRaisePromotesWaiting(t *testing.T) {
	store := newMemStore()
	pub := &mockPublisher{}
	offeringSvc := newOfferingService(store, pub)
	enrollmentSvc := newEnrollmentService(store, pub)
	ctx := context.Background()

	cfg := validConfig()
	cfg.Capacity = intPtr(1)
	cfg.MaxWaitingCount = intPtr(2)
	created, _, err := offeringSvc.Create(ctx, testTenant, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := offeringSvc.Transition(ctx, testTenant, created.ID, domain.EventPublish); err != nil {
		t.Fatalf("Transition(publish): %v", err)
	}

	if _, err := enrollmentSvc.Enroll(ctx, testTenant, created.ID, "seated", ""); err != nil {
		t.Fatalf("Enroll(seated): %v", err)
	}
	waiter, err := enrollmentSvc.Enroll(ctx, testTenant, created.ID, "waiter", "")
	if err != nil {
		t.Fatalf("Enroll(waiter): %v", err)
	}
	if waiter.Status != domain.EnrollmentWaiting {
		t.Fatalf("waiter status = %q, want waiting", waiter.Status)
	}

	// Raising the capacity opens one seat; it belongs to the waiter.
	if _, _, err := offeringSvc.Apply(ctx, testTenant, created.ID, app.Update{Capacity: intPtr(2)}); err != nil {
		t.Fatalf("Apply(capacity=2): %v", err)
	}

	promoted := pub.byEvent(domain.EventEnrollmentPromoted)
	if len(promoted) != 1 {
		t.Fatalf("promoted events = %d, want 1", len(promoted))
	}
	if promoted[0].subject != waiter.ID {
		t.Errorf("promoted %s, want %s", promoted[0].subject, waiter.ID)
	}

	// A later enrollee queues behind the promoted waiter, it does not take
	// the new seat.
	late, err := enrollmentSvc.Enroll(ctx, testTenant, created.ID, "latecomer", "")
	if err != nil {
		t.Fatalf("Enroll(latecomer): %v", err)
	}
	if late.Status != domain.EnrollmentWaiting {
		t.Errorf("latecomer status = %q, want waiting", late.Status)
	}

	list, err := enrollmentSvc.ListByOffering(ctx, testTenant, created.ID)
	if err != nil {
		t.Fatalf("ListByOffering: %v", err)
	}
	counts := map[domain.EnrollmentStatus]int{}
	for _, e := range list {
		counts[e.Status]++
	}
	if counts[domain.EnrollmentActive] != 2 || counts[domain.EnrollmentWaiting] != 1 {
		t.Errorf("status counts = %v, want 2 active, 1 waiting", counts)
	}
}

func TestApplyUpdate_ClearCapacityPromotesAll(t *testing.T) {
	store := newMemStore()
	pub := &mockPublisher{}
	offeringSvc := newOfferingService(store, pub)
	enrollmentSvc := newEnrollmentService(store, pub)
	ctx := context.Background()

	cfg := validConfig()
	cfg.Capacity = intPtr(1)
	cfg.MaxWaitingCount = intPtr(2)
	created, _, err := offeringSvc.Create(ctx, testTenant, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := offeringSvc.Transition(ctx, testTenant, created.ID, domain.EventPublish); err != nil {
		t.Fatalf("Transition(publish): %v", err)
	}

	for _, user := range []string{"seated", "waiter-1", "waiter-2"} {
		if _, err := enrollmentSvc.Enroll(ctx, testTenant, created.ID, user, ""); err != nil {
			t.Fatalf("Enroll(%s): %v", user, err)
		}
	}

	// Removing the limit drains the whole waiting list.
	_, _, err = offeringSvc.Apply(ctx, testTenant, created.ID, app.Update{ClearCapacity: true, ClearMaxWaiting: true})
	if err != nil {
		t.Fatalf("Apply(clear capacity): %v", err)
	}

	if got := pub.byEvent(domain.EventEnrollmentPromoted); len(got) != 2 {
		t.Fatalf("promoted events = %d, want 2", len(got))
	}

	list, err := enrollmentSvc.ListByOffering(ctx, testTenant, created.ID)
	if err != nil {
		t.Fatalf("ListByOffering: %v", err)
	}
	for _, e := range list {
		if e.Status != domain.EnrollmentActive {
			t.Errorf("user %s status = %q, want active", e.UserID, e.Status)
		}
	}
}

func TestTransition(t *testing.T) {
	store := newMemStore()
	pub := &mockPublisher{}
	svc := newOfferingService(store, pub)
	ctx := context.Background()

	created, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps := []struct {
		event domain.Event
		want  domain.Status
	}{
		{domain.EventPublish, domain.StatusRecruiting},
		{domain.EventStart, domain.StatusOngoing},
		{domain.EventClose, domain.StatusClosed},
		{domain.EventArchive, domain.StatusArchived},
	}
	for _, step := range steps {
		updated, err := svc.Transition(ctx, testTenant, created.ID, step.event)
		if err != nil {
			t.Fatalf("Transition(%s): %v", step.event, err)
		}
		if updated.Status != step.want {
			t.Fatalf("after %s status = %q, want %q", step.event, updated.Status, step.want)
		}
	}

	if got := pub.byEvent(domain.EventOfferingTransitioned); len(got) != len(steps) {
		t.Errorf("transition events = %d, want %d", len(got), len(steps))
	}
}

func TestTransition_Invalid(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})
	ctx := context.Background()

	created, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A draft cannot start or close.
	for _, event := range []domain.Event{domain.EventStart, domain.EventClose} {
		_, err := svc.Transition(ctx, testTenant, created.ID, event)
		var trErr *domain.TransitionError
		if !errors.As(err, &trErr) {
			t.Fatalf("Transition(%s) error = %v, want TransitionError", event, err)
		}
		if trErr.Current != domain.StatusDraft {
			t.Errorf("Current = %q, want draft", trErr.Current)
		}
	}
}

func TestTransition_PublishGuard(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})
	ctx := context.Background()

	// Seed a draft whose configuration has since gone invalid; the guard
	// re-evaluates at publish time.
	seedOffering(t, store, "off-1", func(o *domain.Offering) {
		o.Status = domain.StatusDraft
		o.DeliveryType = domain.DeliveryOffline
		o.CourseDeliveryType = domain.DeliveryOffline
		o.LocationInfo = ""
	})

	_, err := svc.Transition(ctx, testTenant, "off-1", domain.EventPublish)
	var ruleErr *domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("Transition(publish) error = %v, want RuleViolationError", err)
	}

	got, err := svc.GetByID(ctx, testTenant, "off-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusDraft {
		t.Errorf("status = %q, want draft after rejected publish", got.Status)
	}
}

func TestTransition_NotFound(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})

	_, err := svc.Transition(context.Background(), testTenant, "missing", domain.EventPublish)
	if !errors.Is(err, domain.ErrOfferingNotFound) {
		t.Fatalf("Transition error = %v, want ErrOfferingNotFound", err)
	}
}

func TestList_StatusFilter(t *testing.T) {
	store := newMemStore()
	svc := newOfferingService(store, &mockPublisher{})
	ctx := context.Background()

	draft, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	published, _, err := svc.Create(ctx, testTenant, validConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Transition(ctx, testTenant, published.ID, domain.EventPublish); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	recruiting := domain.StatusRecruiting
	got, err := svc.List(ctx, testTenant, domain.OfferingFilter{Status: &recruiting})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != published.ID {
		t.Errorf("filtered list = %+v, want only %s", got, published.ID)
	}
	_ = draft
}
