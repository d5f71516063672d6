package schedule

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type WeekStatus string

const (
	WeekStatusDraft     WeekStatus = "draft"
	WeekStatusSubmitted WeekStatus = "submitted"
	WeekStatusApproved  WeekStatus = "approved"
	WeekStatusRejected  WeekStatus = "rejected"
)

// SubscriptionWeek is a student's proposed lesson plan for one week of a
// subscription. Approval and rejection are terminal; after a rejection the
// student proposes a new week instead of reworking the old one.
type SubscriptionWeek struct {
	ID             string     `json:"id" db:"id"`
	SubscriptionID string     `json:"subscription_id" db:"subscription_id"`
	WeekIndex      int        `json:"week_index" db:"week_index"` // 1-based, unique per subscription
	Status         WeekStatus `json:"status" db:"status"`

	SubmittedAt null.Time   `json:"submitted_at" db:"submitted_at"`
	ReviewedAt  null.Time   `json:"reviewed_at" db:"reviewed_at"`
	ReviewNote  null.String `json:"review_note" db:"review_note"` // set on rejection

	Version   int       `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (w *SubscriptionWeek) IsDraft() bool     { return w.Status == WeekStatusDraft }
func (w *SubscriptionWeek) IsSubmitted() bool { return w.Status == WeekStatusSubmitted }
func (w *SubscriptionWeek) IsApproved() bool  { return w.Status == WeekStatusApproved }
func (w *SubscriptionWeek) IsRejected() bool  { return w.Status == WeekStatusRejected }

// IsOpen reports whether the week still awaits a review outcome.
func (w *SubscriptionWeek) IsOpen() bool { return w.IsDraft() || w.IsSubmitted() }

// WeekSlot is one proposed lesson time within a week. Slots are frozen once
// the week is submitted.
type WeekSlot struct {
	ID        string      `json:"id" db:"id"`
	WeekID    string      `json:"week_id" db:"week_id"`
	StartAt   time.Time   `json:"start_at" db:"start_at"` // UTC
	EndAt     time.Time   `json:"end_at" db:"end_at"`     // UTC
	Note      null.String `json:"note" db:"note"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

func (s *WeekSlot) Duration() time.Duration { return s.EndAt.Sub(s.StartAt) }

// NewSlot contains information needed to add a slot to a draft week.
type NewSlot struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	Note    string    `json:"note" validate:"omitempty,max=255"`
}

func (ns *NewSlot) Validate(validate *validator.Validate) error {
	ns.Note = core.CleanString(ns.Note)
	return validate.Struct(ns)
}

type QueryFilter struct {
	SubscriptionID string       `query:"subscription_id"`
	Statuses       []WeekStatus `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.SubscriptionID == "" && qf.Statuses == nil
}

func (qf *QueryFilter) Clean() {
	qf.SubscriptionID = core.CleanString(qf.SubscriptionID)
}
