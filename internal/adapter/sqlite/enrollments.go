package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

const enrollmentColumns = `id, tenant_id, offering_id, user_id, status, enrolled_at, score, completed_at`

func (s *Store) ListByOffering(ctx context.Context, tenantID, offeringID string) ([]domain.Enrollment, error) {
	return s.queryEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE tenant_id = ? AND offering_id = ?
		 ORDER BY enrolled_at, id`,
		tenantID, offeringID,
	)
}

func (s *Store) ListByUser(ctx context.Context, tenantID, userID string) ([]domain.Enrollment, error) {
	return s.queryEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE tenant_id = ? AND user_id = ?
		 ORDER BY enrolled_at, id`,
		tenantID, userID,
	)
}

func (s *Store) queryEnrollments(ctx context.Context, query string, args ...any) ([]domain.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollmentFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning enrollment row: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func enrollmentArgs(e domain.Enrollment) []any {
	var score any
	if e.Score != nil {
		score = *e.Score
	}
	var completedAt any
	if e.CompletedAt != nil {
		completedAt = e.CompletedAt.UTC().Format(timeFormat)
	}
	return []any{
		e.ID, e.TenantID, e.OfferingID, e.UserID, string(e.Status),
		e.EnrolledAt.UTC().Format(timeFormat), score, completedAt,
	}
}

func scanEnrollmentFrom(row rowScanner) (domain.Enrollment, error) {
	var e domain.Enrollment
	var status, enrolledAt string
	var score sql.NullFloat64
	var completedAt sql.NullString

	err := row.Scan(&e.ID, &e.TenantID, &e.OfferingID, &e.UserID,
		&status, &enrolledAt, &score, &completedAt)
	if err != nil {
		return domain.Enrollment{}, err
	}

	e.Status = domain.EnrollmentStatus(status)
	e.EnrolledAt, _ = time.Parse(timeFormat, enrolledAt)
	if score.Valid {
		v := score.Float64
		e.Score = &v
	}
	if completedAt.Valid {
		t, _ := time.Parse(timeFormat, completedAt.String)
		e.CompletedAt = &t
	}
	return e, nil
}
