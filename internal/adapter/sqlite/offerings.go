package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

const offeringColumns = `id, tenant_id, course_id, name, delivery_type, course_delivery_type,
	duration_type, enroll_start_date, enroll_end_date, class_start_date, class_end_date,
	duration_days, capacity, max_waiting_count, enrollment_method, location_info,
	min_progress, allow_late_enrollment, status, created_at, updated_at`

func (s *Store) Create(ctx context.Context, o domain.Offering) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offerings (`+offeringColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offeringArgs(o)...,
	)
	if err != nil {
		return fmt.Errorf("inserting offering: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, tenantID, id string) (domain.Offering, error) {
	return scanOffering(s.db.QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	))
}

func (s *Store) List(ctx context.Context, tenantID string, filter domain.OfferingFilter) ([]domain.Offering, error) {
	query := `SELECT ` + offeringColumns + ` FROM offerings WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing offerings: %w", err)
	}
	defer rows.Close()

	var offerings []domain.Offering
	for rows.Next() {
		o, err := scanOfferingRows(rows)
		if err != nil {
			return nil, err
		}
		offerings = append(offerings, o)
	}

	return offerings, rows.Err()
}

func (s *Store) DueForStart(ctx context.Context, today time.Time) ([]domain.OfferingRef, error) {
	return s.queryRefs(ctx,
		`SELECT tenant_id, id FROM offerings
		 WHERE status = ? AND datetime(class_start_date) <= datetime(?)
		 ORDER BY tenant_id, id`,
		string(domain.StatusRecruiting), today.UTC().Format(timeFormat),
	)
}

func (s *Store) DueForClose(ctx context.Context, today time.Time) ([]domain.OfferingRef, error) {
	// The effective end date is class_end_date for fixed offerings and
	// class_start_date + duration_days for relative ones. Unlimited
	// offerings never close by time.
	return s.queryRefs(ctx,
		`SELECT tenant_id, id FROM offerings
		 WHERE status = ?
		   AND ((duration_type = 'fixed' AND datetime(class_end_date) < datetime(?))
		     OR (duration_type = 'relative'
		         AND datetime(class_start_date, '+' || duration_days || ' days') < datetime(?)))
		 ORDER BY tenant_id, id`,
		string(domain.StatusOngoing), today.UTC().Format(timeFormat), today.UTC().Format(timeFormat),
	)
}

func (s *Store) queryRefs(ctx context.Context, query string, args ...any) ([]domain.OfferingRef, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting offering refs: %w", err)
	}
	defer rows.Close()

	var refs []domain.OfferingRef
	for rows.Next() {
		var ref domain.OfferingRef
		if err := rows.Scan(&ref.TenantID, &ref.ID); err != nil {
			return nil, fmt.Errorf("scanning offering ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// offeringArgs flattens an offering into the column order of offeringColumns.
func offeringArgs(o domain.Offering) []any {
	var classEnd any
	if o.ClassEndDate != nil {
		classEnd = o.ClassEndDate.UTC().Format(timeFormat)
	}
	var durationDays any
	if o.DurationDays != nil {
		durationDays = *o.DurationDays
	}
	var capacity any
	if o.Capacity != nil {
		capacity = *o.Capacity
	}
	var maxWaiting any
	if o.MaxWaitingCount != nil {
		maxWaiting = *o.MaxWaitingCount
	}
	lateEnrollment := 0
	if o.AllowLateEnrollment {
		lateEnrollment = 1
	}
	return []any{
		o.ID, o.TenantID, o.CourseID, o.Name,
		string(o.DeliveryType), string(o.CourseDeliveryType), string(o.DurationType),
		o.EnrollStartDate.UTC().Format(timeFormat),
		o.EnrollEndDate.UTC().Format(timeFormat),
		o.ClassStartDate.UTC().Format(timeFormat),
		classEnd, durationDays, capacity, maxWaiting,
		string(o.EnrollmentMethod), o.LocationInfo,
		o.MinProgressForCompletion, lateEnrollment,
		string(o.Status),
		o.CreatedAt.UTC().Format(timeFormat),
		o.UpdatedAt.UTC().Format(timeFormat),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOfferingFrom(row rowScanner) (domain.Offering, error) {
	var o domain.Offering
	var deliveryType, courseDeliveryType, durationType, method, status string
	var enrollStart, enrollEnd, classStart, createdAt, updatedAt string
	var classEnd sql.NullString
	var durationDays, capacity, maxWaiting sql.NullInt64
	var lateEnrollment int

	err := row.Scan(&o.ID, &o.TenantID, &o.CourseID, &o.Name,
		&deliveryType, &courseDeliveryType, &durationType,
		&enrollStart, &enrollEnd, &classStart, &classEnd,
		&durationDays, &capacity, &maxWaiting,
		&method, &o.LocationInfo,
		&o.MinProgressForCompletion, &lateEnrollment,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Offering{}, err
	}

	o.DeliveryType = domain.DeliveryType(deliveryType)
	o.CourseDeliveryType = domain.DeliveryType(courseDeliveryType)
	o.DurationType = domain.DurationType(durationType)
	o.EnrollmentMethod = domain.EnrollmentMethod(method)
	o.Status = domain.Status(status)
	o.AllowLateEnrollment = lateEnrollment != 0

	o.EnrollStartDate, _ = time.Parse(timeFormat, enrollStart)
	o.EnrollEndDate, _ = time.Parse(timeFormat, enrollEnd)
	o.ClassStartDate, _ = time.Parse(timeFormat, classStart)
	o.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	o.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	if classEnd.Valid {
		t, _ := time.Parse(timeFormat, classEnd.String)
		o.ClassEndDate = &t
	}
	if durationDays.Valid {
		d := int(durationDays.Int64)
		o.DurationDays = &d
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		o.Capacity = &c
	}
	if maxWaiting.Valid {
		m := int(maxWaiting.Int64)
		o.MaxWaitingCount = &m
	}

	return o, nil
}

// scanOffering scans a single row from QueryRow into a domain.Offering.
func scanOffering(row *sql.Row) (domain.Offering, error) {
	o, err := scanOfferingFrom(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Offering{}, domain.ErrOfferingNotFound
		}
		return domain.Offering{}, fmt.Errorf("scanning offering: %w", err)
	}
	return o, nil
}

// scanOfferingRows scans a single row from Rows (used in List).
func scanOfferingRows(rows *sql.Rows) (domain.Offering, error) {
	o, err := scanOfferingFrom(rows)
	if err != nil {
		return domain.Offering{}, fmt.Errorf("scanning offering row: %w", err)
	}
	return o, nil
}
