package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

// CourseRepository reads courses
type CourseRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Course, error)
}

// ProfileRepository reads caller profiles
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
}

type courseRepository struct {
	db *sql.DB
}

// NewCourseRepository creates a course repository
func NewCourseRepository(db *sql.DB) CourseRepository {
	return &courseRepository{db: db}
}

// FindByID looks a course up
func (r *courseRepository) FindByID(ctx context.Context, id string) (*domain.Course, error) {
	query := `SELECT id, title, price FROM courses WHERE id = $1`

	course := &domain.Course{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&course.ID, &course.Title, &course.Price)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return course, nil
}

type profileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a profile repository
func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// FindByID looks a profile up
func (r *profileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT id, full_name, email, phone FROM profiles WHERE id = $1`

	profile := &domain.Profile{}
	var fullName, email, phone sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&profile.ID, &fullName, &email, &phone)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	profile.FullName = fullName.String
	profile.Email = email.String
	profile.Phone = phone.String
	return profile, nil
}
