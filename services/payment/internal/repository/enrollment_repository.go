package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

// EnrollmentRepository stores course access grants
type EnrollmentRepository interface {
	UpsertTx(ctx context.Context, tx DBTX, enrollment *domain.Enrollment) error
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
}

type enrollmentRepository struct {
	db *sql.DB
}

// NewEnrollmentRepository creates an enrollment repository
func NewEnrollmentRepository(db *sql.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// UpsertTx writes the enrollment once per (student, course); a repeat only reactivates it
func (r *enrollmentRepository) UpsertTx(ctx context.Context, tx DBTX, enrollment *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (student_id, course_id, status, enrolled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, course_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query,
		enrollment.StudentID,
		enrollment.CourseID,
		enrollment.Status,
		enrollment.EnrolledAt,
	).Scan(&enrollment.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert enrollment: %w", err)
	}

	return nil
}

// Exists reports whether the student has an active enrollment
func (r *enrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, studentID, courseID, domain.EnrollmentStatusActive).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return exists, nil
}
