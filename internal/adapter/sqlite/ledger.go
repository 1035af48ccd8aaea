package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

// txLedger implements domain.Ledger on a single transaction. All its queries
// are scoped to one (tenant, offering) pair.
type txLedger struct {
	tx         *sql.Tx
	tenantID   string
	offeringID string
}

var _ domain.Ledger = (*txLedger)(nil)

func (l *txLedger) Offering(ctx context.Context) (domain.Offering, error) {
	return scanOffering(l.tx.QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE tenant_id = ? AND id = ?`,
		l.tenantID, l.offeringID,
	))
}

func (l *txLedger) CountByStatus(ctx context.Context, status domain.EnrollmentStatus) (int, error) {
	var count int
	err := l.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments
		 WHERE tenant_id = ? AND offering_id = ? AND status = ?`,
		l.tenantID, l.offeringID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting enrollments: %w", err)
	}
	return count, nil
}

func (l *txLedger) EnrollmentByUser(ctx context.Context, userID string) (domain.Enrollment, error) {
	e, err := scanEnrollmentFrom(l.tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE tenant_id = ? AND offering_id = ? AND user_id = ? AND status != ?`,
		l.tenantID, l.offeringID, userID, string(domain.EnrollmentDropped),
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Enrollment{}, domain.ErrEnrollmentNotFound
		}
		return domain.Enrollment{}, fmt.Errorf("scanning enrollment: %w", err)
	}
	return e, nil
}

func (l *txLedger) EarliestWaiting(ctx context.Context) (domain.Enrollment, error) {
	// FIFO promotion order: earliest enrolled first, ties by id ascending.
	e, err := scanEnrollmentFrom(l.tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE tenant_id = ? AND offering_id = ? AND status = ?
		 ORDER BY enrolled_at, id LIMIT 1`,
		l.tenantID, l.offeringID, string(domain.EnrollmentWaiting),
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Enrollment{}, domain.ErrEnrollmentNotFound
		}
		return domain.Enrollment{}, fmt.Errorf("scanning waiting enrollment: %w", err)
	}
	return e, nil
}

func (l *txLedger) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	_, err := l.tx.ExecContext(ctx,
		`INSERT INTO enrollments (`+enrollmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		enrollmentArgs(e)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AlreadyEnrolledError{UserID: e.UserID, Current: e.Status}
		}
		return fmt.Errorf("inserting enrollment: %w", err)
	}
	return nil
}

func (l *txLedger) UpdateEnrollment(ctx context.Context, e domain.Enrollment) error {
	var score any
	if e.Score != nil {
		score = *e.Score
	}
	var completedAt any
	if e.CompletedAt != nil {
		completedAt = e.CompletedAt.UTC().Format(timeFormat)
	}

	result, err := l.tx.ExecContext(ctx,
		`UPDATE enrollments SET status = ?, score = ?, completed_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		string(e.Status), score, completedAt, l.tenantID, e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating enrollment: %w", err)
	}
	return checkAffected(result, domain.ErrEnrollmentNotFound)
}

func (l *txLedger) UpdateOffering(ctx context.Context, o domain.Offering) error {
	args := offeringArgs(o)
	// Drop the leading id/tenant_id pair; they form the WHERE clause.
	args = append(args[2:], l.tenantID, l.offeringID)

	result, err := l.tx.ExecContext(ctx,
		`UPDATE offerings SET course_id = ?, name = ?, delivery_type = ?,
		   course_delivery_type = ?, duration_type = ?, enroll_start_date = ?,
		   enroll_end_date = ?, class_start_date = ?, class_end_date = ?,
		   duration_days = ?, capacity = ?, max_waiting_count = ?,
		   enrollment_method = ?, location_info = ?, min_progress = ?,
		   allow_late_enrollment = ?, status = ?, created_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating offering: %w", err)
	}
	return checkAffected(result, domain.ErrOfferingNotFound)
}

func checkAffected(result sql.Result, missing error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return missing
	}
	return nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
