package subscription

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Subscription is a student's purchased lesson package for a course.
// Counters are mutated by the approval workflow and the session lifecycle only.
type Subscription struct {
	ID                string      `json:"id" db:"id"`
	StudentID         string      `json:"student_id" db:"student_id"`
	TeacherID         null.String `json:"teacher_id" db:"teacher_id"` // null until assigned
	CourseID          string      `json:"course_id" db:"course_id"`
	PackageID         string      `json:"package_id" db:"package_id"`
	SessionsTotal     int         `json:"sessions_total" db:"sessions_total"`
	SessionsRemaining int         `json:"sessions_remaining" db:"sessions_remaining"`
	PostponeTotal     int         `json:"postpone_total" db:"postpone_total"`
	PostponeRemaining int         `json:"postpone_remaining" db:"postpone_remaining"`
	Status            Status      `json:"status" db:"status"`
	Version           int         `json:"-" db:"version"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (s *Subscription) IsPending() bool   { return s.Status == StatusPending }
func (s *Subscription) IsActive() bool    { return s.Status == StatusActive }
func (s *Subscription) IsCompleted() bool { return s.Status == StatusCompleted }
func (s *Subscription) IsCancelled() bool { return s.Status == StatusCancelled }

// IsOpen reports whether the subscription can still schedule sessions.
func (s *Subscription) IsOpen() bool { return s.IsPending() || s.IsActive() }

func (s *Subscription) HasTeacher() bool { return s.TeacherID.Valid && s.TeacherID.String != "" }

// NewSubscription contains information needed to create a new Subscription.
type NewSubscription struct {
	StudentID     string `json:"student_id" validate:"required"`
	TeacherID     string `json:"teacher_id" validate:"omitempty"`
	CourseID      string `json:"course_id" validate:"required"`
	PackageID     string `json:"package_id" validate:"required"`
	SessionsTotal int    `json:"sessions_total" validate:"required,min=1"`
	PostponeTotal int    `json:"postpone_total" validate:"min=0"`
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.TeacherID = core.CleanString(ns.TeacherID)
	ns.CourseID = core.CleanString(ns.CourseID)
	ns.PackageID = core.CleanString(ns.PackageID)
	return validate.Struct(ns)
}

type QueryFilter struct {
	StudentID   string    `query:"student_id"`
	TeacherID   string    `query:"teacher_id"`
	Statuses    []Status  `query:"status"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.TeacherID == "" && qf.Statuses == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.TeacherID = core.CleanString(qf.TeacherID)
}
