package schedule

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
)

// NowFunc returns the current time. It can be mocked in tests.
var NowFunc func() time.Time = time.Now

var (
	// errors
	ErrWeekNotFound   = stderrors.New("week not found")
	ErrConflict       = stderrors.New("week was modified concurrently")
	ErrNotSubmitted   = stderrors.New("week must be in submitted status")
	ErrNotDraft       = stderrors.New("week is not in draft status")
	ErrNoSlots        = stderrors.New("week has no slots")
	ErrSlotsLocked    = stderrors.New("slots are locked once the week is submitted")
	ErrOpenWeekExists = stderrors.New("an open week already exists for this subscription")
)

type (
	Repository interface {
		CreateWeek(ctx context.Context, wk SubscriptionWeek) (SubscriptionWeek, error)
		GetWeekByID(ctx context.Context, id string) (SubscriptionWeek, error)
		// FilterWeeks applies AND operation on available QueryFilter fields.
		FilterWeeks(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]SubscriptionWeek, error)
		// NextWeekIndex returns 1 + the highest week index of the
		// subscription, starting at 1.
		NextWeekIndex(ctx context.Context, subscriptionID string) (int, error)
		// HasOpenWeek reports whether the subscription has a draft or
		// submitted week.
		HasOpenWeek(ctx context.Context, subscriptionID string) (bool, error)
		// UpdateWeekStatus is a compare-and-swap on (id, version) writing the
		// status, its timestamps and the review note.
		UpdateWeekStatus(ctx context.Context, wk SubscriptionWeek, version int) (SubscriptionWeek, error)
		CreateSlot(ctx context.Context, slot WeekSlot) (WeekSlot, error)
		// GetWeekSlots returns the week's slots ordered by start time.
		GetWeekSlots(ctx context.Context, weekID string) ([]WeekSlot, error)
	}

	Service interface {
		// StartWeek opens the next draft week for a subscription. Only one
		// week may be open (draft or submitted) at a time.
		StartWeek(ctx context.Context, subscriptionID string) (SubscriptionWeek, error)
		AddSlot(ctx context.Context, weekID string, ns NewSlot) (WeekSlot, error)
		// SubmitWeek hands a draft with at least one slot over for review.
		SubmitWeek(ctx context.Context, weekID string) (SubscriptionWeek, error)
		GetWeek(ctx context.Context, id string) (SubscriptionWeek, []WeekSlot, error)
		Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]SubscriptionWeek, error)
		// ApproveWeek materializes one session per slot, marks the week
		// approved and activates the subscription. Meeting provisioning is
		// best effort; a session is created even when its meeting fails.
		ApproveWeek(ctx context.Context, subscriptionID, weekID string) (SubscriptionWeek, []session.Session, error)
		// DeclineWeek rejects a submitted week for good, keeping the
		// reviewer's reason. The student proposes a new week from scratch.
		DeclineWeek(ctx context.Context, subscriptionID, weekID, reason string) (SubscriptionWeek, error)
	}

	service struct {
		repo    Repository
		sessSvc session.Service
		subSvc  subscription.Service
		usrSvc  user.Service
		meetSvc core.MeetingService
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	sessSvc session.Service,
	subSvc subscription.Service,
	usrSvc user.Service,
	meetSvc core.MeetingService,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		repo:    repo,
		sessSvc: sessSvc,
		subSvc:  subSvc,
		usrSvc:  usrSvc,
		meetSvc: meetSvc,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

func (svc *service) StartWeek(ctx context.Context, subscriptionID string) (SubscriptionWeek, error) {
	sub, err := svc.subSvc.GetByID(ctx, subscriptionID)
	if err != nil {
		return SubscriptionWeek{}, err
	}
	if !sub.IsOpen() {
		return SubscriptionWeek{}, subscription.ErrNotOpen
	}
	open, err := svc.repo.HasOpenWeek(ctx, sub.ID)
	if err != nil {
		return SubscriptionWeek{}, errors.Wrap(err, "checking open weeks")
	}
	if open {
		return SubscriptionWeek{}, ErrOpenWeekExists
	}
	idx, err := svc.repo.NextWeekIndex(ctx, sub.ID)
	if err != nil {
		return SubscriptionWeek{}, errors.Wrap(err, "getting next week index")
	}

	now := NowFunc().UTC()
	wk := SubscriptionWeek{
		SubscriptionID: sub.ID,
		WeekIndex:      idx,
		Status:         WeekStatusDraft,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateWeek(ctx, wk)
}

func (svc *service) AddSlot(ctx context.Context, weekID string, ns NewSlot) (WeekSlot, error) {
	wk, err := svc.repo.GetWeekByID(ctx, weekID)
	if err != nil {
		return WeekSlot{}, err
	}
	if !wk.IsDraft() {
		return WeekSlot{}, ErrSlotsLocked
	}

	slot := WeekSlot{
		WeekID:    wk.ID,
		StartAt:   ns.StartAt.UTC(),
		EndAt:     ns.EndAt.UTC(),
		CreatedAt: NowFunc().UTC(),
	}
	if ns.Note != "" {
		slot.Note = null.StringFrom(ns.Note)
	}
	return svc.repo.CreateSlot(ctx, slot)
}

func (svc *service) SubmitWeek(ctx context.Context, weekID string) (SubscriptionWeek, error) {
	wk, err := svc.repo.GetWeekByID(ctx, weekID)
	if err != nil {
		return SubscriptionWeek{}, err
	}
	if !wk.IsDraft() {
		return SubscriptionWeek{}, ErrNotDraft
	}
	slots, err := svc.repo.GetWeekSlots(ctx, wk.ID)
	if err != nil {
		return SubscriptionWeek{}, errors.Wrap(err, "getting week slots")
	}
	if len(slots) == 0 {
		return SubscriptionWeek{}, ErrNoSlots
	}

	wk.Status = WeekStatusSubmitted
	wk.SubmittedAt = null.TimeFrom(NowFunc().UTC())
	return svc.repo.UpdateWeekStatus(ctx, wk, wk.Version)
}

func (svc *service) GetWeek(ctx context.Context, id string) (SubscriptionWeek, []WeekSlot, error) {
	wk, err := svc.repo.GetWeekByID(ctx, id)
	if err != nil {
		return SubscriptionWeek{}, nil, err
	}
	slots, err := svc.repo.GetWeekSlots(ctx, wk.ID)
	if err != nil {
		return SubscriptionWeek{}, nil, errors.Wrap(err, "getting week slots")
	}
	return wk, slots, nil
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]SubscriptionWeek, error) {
	return svc.repo.FilterWeeks(ctx, filter, ordering...)
}

func (svc *service) ApproveWeek(ctx context.Context, subscriptionID, weekID string) (SubscriptionWeek, []session.Session, error) {
	sub, wk, err := svc.getWeekForReview(ctx, subscriptionID, weekID)
	if err != nil {
		return SubscriptionWeek{}, nil, err
	}
	slots, err := svc.repo.GetWeekSlots(ctx, wk.ID)
	if err != nil {
		return SubscriptionWeek{}, nil, errors.Wrap(err, "getting week slots")
	}
	if len(slots) == 0 {
		return SubscriptionWeek{}, nil, ErrNoSlots
	}

	// sessions are keyed by their slot, so a retried approval picks up the
	// ones already created instead of duplicating them
	sessions := make([]session.Session, 0, len(slots))
	for _, slot := range slots {
		ns := session.NewSession{
			SubscriptionID: sub.ID,
			WeekID:         wk.ID,
			SlotID:         slot.ID,
			StartAt:        slot.StartAt,
			EndAt:          slot.EndAt,
		}

		// meeting provisioning is best effort; a failed slot still gets its
		// session, just without meeting links
		meeting, merr := svc.meetSvc.CreateMeeting(ctx, core.NewMeeting{
			Topic:           fmt.Sprintf("Lesson on %s", slot.StartAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST")),
			Agenda:          fmt.Sprintf("Week %d lesson", wk.WeekIndex),
			StartAt:         slot.StartAt,
			DurationMinutes: int(slot.Duration().Minutes()),
		})
		if merr != nil {
			svc.logger.Warn(fmt.Sprintf("provisioning meeting for slot %s: %v", slot.ID, merr), merr)
		} else {
			ns.ZoomMeetingID = meeting.ID
			ns.ZoomJoinURL = meeting.JoinURL
			ns.ZoomStartURL = meeting.StartURL
		}

		sess, _, err := svc.sessSvc.CreateForSlot(ctx, ns)
		if err != nil {
			return SubscriptionWeek{}, nil, errors.Wrapf(err, "creating session for slot %s", slot.ID)
		}
		sessions = append(sessions, sess)
	}

	wk.Status = WeekStatusApproved
	wk.ReviewedAt = null.TimeFrom(NowFunc().UTC())
	updated, err := svc.repo.UpdateWeekStatus(ctx, wk, wk.Version)
	if err != nil {
		return SubscriptionWeek{}, nil, err
	}

	if _, err := svc.subSvc.Activate(ctx, sub.ID); err != nil {
		return SubscriptionWeek{}, nil, errors.Wrap(err, "activating subscription")
	}

	svc.notifyWeekApproved(ctx, sub, updated, len(sessions))
	return updated, sessions, nil
}

func (svc *service) DeclineWeek(ctx context.Context, subscriptionID, weekID, reason string) (SubscriptionWeek, error) {
	sub, wk, err := svc.getWeekForReview(ctx, subscriptionID, weekID)
	if err != nil {
		return SubscriptionWeek{}, err
	}

	wk.Status = WeekStatusRejected
	wk.ReviewedAt = null.TimeFrom(NowFunc().UTC())
	if reason = core.CleanString(reason); reason != "" {
		wk.ReviewNote = null.StringFrom(reason)
	}
	updated, err := svc.repo.UpdateWeekStatus(ctx, wk, wk.Version)
	if err != nil {
		return SubscriptionWeek{}, err
	}

	svc.notifyWeekDeclined(ctx, sub, updated)
	return updated, nil
}

// getWeekForReview loads and checks the review preconditions shared by
// ApproveWeek and DeclineWeek.
func (svc *service) getWeekForReview(ctx context.Context, subscriptionID, weekID string) (subscription.Subscription, SubscriptionWeek, error) {
	sub, err := svc.subSvc.GetByID(ctx, subscriptionID)
	if err != nil {
		return subscription.Subscription{}, SubscriptionWeek{}, err
	}
	wk, err := svc.repo.GetWeekByID(ctx, weekID)
	if err != nil {
		return subscription.Subscription{}, SubscriptionWeek{}, err
	}
	if wk.SubscriptionID != sub.ID {
		// a week of another subscription does not exist as far as this one
		// is concerned
		return subscription.Subscription{}, SubscriptionWeek{}, ErrWeekNotFound
	}
	if !sub.IsOpen() {
		return subscription.Subscription{}, SubscriptionWeek{}, subscription.ErrNotOpen
	}
	if !wk.IsSubmitted() {
		return subscription.Subscription{}, SubscriptionWeek{}, ErrNotSubmitted
	}
	return sub, wk, nil
}

func (svc *service) notifyWeekApproved(ctx context.Context, sub subscription.Subscription, wk SubscriptionWeek, count int) {
	student, err := svc.usrSvc.GetByID(ctx, sub.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding student %s: %v", sub.StudentID, err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject: fmt.Sprintf("Week %d approved", wk.WeekIndex),
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYour plan for week %d has been approved and %d session(s) are scheduled. See you in class!",
			student.Name, wk.WeekIndex, count,
		),
	})
}

func (svc *service) notifyWeekDeclined(ctx context.Context, sub subscription.Subscription, wk SubscriptionWeek) {
	student, err := svc.usrSvc.GetByID(ctx, sub.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding student %s: %v", sub.StudentID, err), err)
		return
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour plan for week %d was not approved. Please propose a new week.",
		student.Name, wk.WeekIndex,
	)
	if wk.ReviewNote.Valid {
		body += fmt.Sprintf("\n\nReviewer note: %s", wk.ReviewNote.String)
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject: fmt.Sprintf("Week %d needs changes", wk.WeekIndex),
		BodyStr: body,
	})
}
