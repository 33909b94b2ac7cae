package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus of a student's access to a course
type EnrollmentStatus string

const EnrollmentStatusActive EnrollmentStatus = "active"

// Enrollment grants a student access to a course. There is at most one per (student, course).
type Enrollment struct {
	ID         int64
	StudentID  string
	CourseID   string
	Status     EnrollmentStatus
	EnrolledAt time.Time
}

// NewActiveEnrollment grants access for a completed payment
func NewActiveEnrollment(p *Payment, at time.Time) *Enrollment {
	return &Enrollment{
		StudentID:  p.UserID,
		CourseID:   p.CourseID,
		Status:     EnrollmentStatusActive,
		EnrolledAt: at,
	}
}

// Course is the purchasable item
type Course struct {
	ID    string
	Title string
	Price decimal.Decimal
}

// Profile is the caller's customer record
type Profile struct {
	ID       string
	FullName string
	Email    string
	Phone    string
}
