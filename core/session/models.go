package session

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type Status string

const (
	StatusScheduled                Status = "scheduled"
	StatusInProgress               Status = "in_progress"
	StatusStudentRequestedPostpone Status = "student_requested_postpone"
	StatusPostponeApproved         Status = "postpone_approved"
	StatusCompleted                Status = "completed"
	StatusCancelled                Status = "cancelled"
)

// Session is one concrete lesson occurrence, derived from an approved week slot.
type Session struct {
	ID             string `json:"id" db:"id"`
	SubscriptionID string `json:"subscription_id" db:"subscription_id"`
	WeekID         string `json:"week_id" db:"week_id"`
	SlotID         string `json:"slot_id" db:"slot_id"` // unique; idempotency key for approval retries

	StartAt time.Time `json:"start_at" db:"start_at"` // UTC
	EndAt   time.Time `json:"end_at" db:"end_at"`     // UTC
	Status  Status    `json:"status" db:"status"`

	ZoomMeetingID null.String `json:"zoom_meeting_id" db:"zoom_meeting_id"`
	ZoomJoinURL   null.String `json:"zoom_join_url" db:"zoom_join_url"`
	ZoomStartURL  null.String `json:"zoom_start_url" db:"zoom_start_url"`

	CompletedAt         null.Time `json:"completed_at" db:"completed_at"`
	PostponeRequestedAt null.Time `json:"postpone_requested_at" db:"postpone_requested_at"`
	PostponeApprovedAt  null.Time `json:"postpone_approved_at" db:"postpone_approved_at"`

	Version   int       `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (s *Session) IsScheduled() bool  { return s.Status == StatusScheduled }
func (s *Session) IsInProgress() bool { return s.Status == StatusInProgress }
func (s *Session) IsCompleted() bool  { return s.Status == StatusCompleted }
func (s *Session) IsCancelled() bool  { return s.Status == StatusCancelled }

// IsCompletable reports whether the session may still be marked completed.
func (s *Session) IsCompletable() bool { return s.IsScheduled() || s.IsInProgress() }

func (s *Session) HasMeeting() bool { return s.ZoomMeetingID.Valid && s.ZoomMeetingID.String != "" }

// NewSession contains information needed to materialize a session from an
// approved week slot. Meeting fields are empty when provisioning failed.
type NewSession struct {
	SubscriptionID string
	WeekID         string
	SlotID         string
	StartAt        time.Time
	EndAt          time.Time

	ZoomMeetingID string
	ZoomJoinURL   string
	ZoomStartURL  string
}

type QueryFilter struct {
	SubscriptionID string    `query:"subscription_id"`
	WeekID         string    `query:"week_id"`
	Statuses       []Status  `query:"status"`
	EndedBefore    time.Time `query:"ended_before"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.SubscriptionID == "" && qf.WeekID == "" && qf.Statuses == nil && qf.EndedBefore.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.SubscriptionID = core.CleanString(qf.SubscriptionID)
	qf.WeekID = core.CleanString(qf.WeekID)
}
