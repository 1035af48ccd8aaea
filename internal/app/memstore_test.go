package app_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// memStore is an in-memory implementation of OfferingRepository,
// EnrollmentRepository and LedgerStore for service tests. Its WithLedger uses
// a real per-offering mutex and snapshot rollback, so the concurrency tests
// exercise the same discipline the SQLite store provides.
type memStore struct {
	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	offerings   map[string]domain.Offering
	enrollments map[string]domain.Enrollment
}

func newMemStore() *memStore {
	return &memStore{
		locks:       make(map[string]*sync.Mutex),
		offerings:   make(map[string]domain.Offering),
		enrollments: make(map[string]domain.Enrollment),
	}
}

func key(tenantID, id string) string { return tenantID + "/" + id }

// --- domain.OfferingRepository ---

func (m *memStore) Create(_ context.Context, o domain.Offering) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerings[key(o.TenantID, o.ID)] = o
	return nil
}

func (m *memStore) GetByID(_ context.Context, tenantID, id string) (domain.Offering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offerings[key(tenantID, id)]
	if !ok {
		return domain.Offering{}, domain.ErrOfferingNotFound
	}
	return o, nil
}

func (m *memStore) List(_ context.Context, tenantID string, filter domain.OfferingFilter) ([]domain.Offering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Offering
	for _, o := range m.offerings {
		if o.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) DueForStart(_ context.Context, today time.Time) ([]domain.OfferingRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []domain.OfferingRef
	for _, o := range m.offerings {
		if o.Status == domain.StatusRecruiting && !o.ClassStartDate.After(today) {
			refs = append(refs, domain.OfferingRef{TenantID: o.TenantID, ID: o.ID})
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (m *memStore) DueForClose(_ context.Context, today time.Time) ([]domain.OfferingRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []domain.OfferingRef
	for _, o := range m.offerings {
		if o.Status != domain.StatusOngoing {
			continue
		}
		end, ok := o.EndDate()
		if ok && end.Before(today) {
			refs = append(refs, domain.OfferingRef{TenantID: o.TenantID, ID: o.ID})
		}
	}
	sortRefs(refs)
	return refs, nil
}

func sortRefs(refs []domain.OfferingRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].TenantID != refs[j].TenantID {
			return refs[i].TenantID < refs[j].TenantID
		}
		return refs[i].ID < refs[j].ID
	})
}

// --- domain.EnrollmentRepository ---

func (m *memStore) ListByOffering(_ context.Context, tenantID, offeringID string) ([]domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Enrollment
	for _, e := range m.enrollments {
		if e.TenantID == tenantID && e.OfferingID == offeringID {
			out = append(out, e)
		}
	}
	sortEnrollments(out)
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, tenantID, userID string) ([]domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Enrollment
	for _, e := range m.enrollments {
		if e.TenantID == tenantID && e.UserID == userID {
			out = append(out, e)
		}
	}
	sortEnrollments(out)
	return out, nil
}

func sortEnrollments(out []domain.Enrollment) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
}

// --- domain.LedgerStore ---

func (m *memStore) offeringLock(tenantID, offeringID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, offeringID)
	lock, ok := m.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[k] = lock
	}
	return lock
}

func (m *memStore) WithLedger(ctx context.Context, tenantID, offeringID string, fn func(ctx context.Context, ledger domain.Ledger) error) error {
	lock := m.offeringLock(tenantID, offeringID)
	lock.Lock()
	defer lock.Unlock()

	// Snapshot for rollback, mimicking the transactional store.
	m.mu.Lock()
	offeringsBackup := make(map[string]domain.Offering, len(m.offerings))
	for k, v := range m.offerings {
		offeringsBackup[k] = v
	}
	enrollmentsBackup := make(map[string]domain.Enrollment, len(m.enrollments))
	for k, v := range m.enrollments {
		enrollmentsBackup[k] = v
	}
	m.mu.Unlock()

	err := fn(ctx, &memLedger{store: m, tenantID: tenantID, offeringID: offeringID})
	if err != nil {
		m.mu.Lock()
		m.offerings = offeringsBackup
		m.enrollments = enrollmentsBackup
		m.mu.Unlock()
	}
	return err
}

type memLedger struct {
	store      *memStore
	tenantID   string
	offeringID string
}

func (l *memLedger) Offering(ctx context.Context) (domain.Offering, error) {
	return l.store.GetByID(ctx, l.tenantID, l.offeringID)
}

func (l *memLedger) CountByStatus(_ context.Context, status domain.EnrollmentStatus) (int, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	count := 0
	for _, e := range l.store.enrollments {
		if e.TenantID == l.tenantID && e.OfferingID == l.offeringID && e.Status == status {
			count++
		}
	}
	return count, nil
}

func (l *memLedger) EnrollmentByUser(_ context.Context, userID string) (domain.Enrollment, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	for _, e := range l.store.enrollments {
		if e.TenantID == l.tenantID && e.OfferingID == l.offeringID &&
			e.UserID == userID && e.Status != domain.EnrollmentDropped {
			return e, nil
		}
	}
	return domain.Enrollment{}, domain.ErrEnrollmentNotFound
}

func (l *memLedger) EarliestWaiting(_ context.Context) (domain.Enrollment, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	var waiting []domain.Enrollment
	for _, e := range l.store.enrollments {
		if e.TenantID == l.tenantID && e.OfferingID == l.offeringID && e.Status == domain.EnrollmentWaiting {
			waiting = append(waiting, e)
		}
	}
	if len(waiting) == 0 {
		return domain.Enrollment{}, domain.ErrEnrollmentNotFound
	}
	sortEnrollments(waiting)
	return waiting[0], nil
}

func (l *memLedger) InsertEnrollment(_ context.Context, e domain.Enrollment) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.enrollments[key(e.TenantID, e.ID)] = e
	return nil
}

func (l *memLedger) UpdateEnrollment(_ context.Context, e domain.Enrollment) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, ok := l.store.enrollments[key(e.TenantID, e.ID)]; !ok {
		return domain.ErrEnrollmentNotFound
	}
	l.store.enrollments[key(e.TenantID, e.ID)] = e
	return nil
}

func (l *memLedger) UpdateOffering(_ context.Context, o domain.Offering) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, ok := l.store.offerings[key(o.TenantID, o.ID)]; !ok {
		return domain.ErrOfferingNotFound
	}
	l.store.offerings[key(o.TenantID, o.ID)] = o
	return nil
}

// --- Mock publisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	event   domain.DomainEvent
	subject string // enrollment or offering id
}

func (m *mockPublisher) PublishEnrollment(_ context.Context, event domain.DomainEvent, e domain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{event: event, subject: e.ID})
	return nil
}

func (m *mockPublisher) PublishOffering(_ context.Context, event domain.DomainEvent, o domain.Offering) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{event: event, subject: o.ID})
	return nil
}

func (m *mockPublisher) byEvent(event domain.DomainEvent) []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedEvent
	for _, e := range m.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// --- Mock transition validator ---

// tableValidator walks domain.Transitions directly, standing in for the FSM
// adapter.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	for _, tr := range domain.Transitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}
