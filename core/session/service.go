package session

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
)

// NowFunc returns the current time. It can be mocked in tests.
var NowFunc func() time.Time = time.Now

var (
	// errors
	ErrNotFound             = stderrors.New("session not found")
	ErrConflict             = stderrors.New("session was modified concurrently")
	ErrAlreadyCompleted     = stderrors.New("already completed")
	ErrNotCompletable       = stderrors.New("cannot be completed in current status")
	ErrNotPostponeRequested = stderrors.New("postponement has not been requested for this session")
	ErrNotPostponable       = stderrors.New("postponement can only be requested for a scheduled session")
	ErrNotStartable         = stderrors.New("cannot be started in current status")
	ErrNotCancellable       = stderrors.New("cannot be cancelled in current status")
)

type (
	Repository interface {
		// CreateSessionForSlot inserts a session keyed by its slot. When a
		// session already exists for the slot it is returned as-is and
		// created is false.
		CreateSessionForSlot(ctx context.Context, sess Session) (created Session, isNew bool, err error)
		GetSessionByID(ctx context.Context, id string) (Session, error)
		// FilterSessions applies AND operation on available QueryFilter fields.
		FilterSessions(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Session, error)
		// UpdateSessionStatus is a compare-and-swap on (id, version) writing
		// the status and its timestamps.
		UpdateSessionStatus(ctx context.Context, sess Session, version int) (Session, error)
		// ListExpiredSessions returns sessions still scheduled or in progress
		// whose end time has passed.
		ListExpiredSessions(ctx context.Context, asOf time.Time) ([]Session, error)
	}

	Service interface {
		CreateForSlot(ctx context.Context, ns NewSession) (Session, bool, error)
		GetByID(ctx context.Context, id string) (Session, error)
		Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Session, error)
		// Complete marks the session completed now and burns one remaining
		// session on the parent subscription.
		Complete(ctx context.Context, id string) (Session, subscription.Subscription, error)
		// ApprovePostpone burns one postpone credit and marks the session
		// postpone-approved. Rebooking happens through a future week proposal.
		ApprovePostpone(ctx context.Context, id string) (Session, subscription.Subscription, error)
		RequestPostpone(ctx context.Context, id string) (Session, error)
		Start(ctx context.Context, id string) (Session, error)
		Cancel(ctx context.Context, id string) (Session, error)
		// ReconcileExpired completes every session whose scheduled end has
		// passed, stamping completed_at with that scheduled end.
		ReconcileExpired(ctx context.Context) (int, error)
	}

	service struct {
		repo    Repository
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
	subSvc subscription.Service,
	usrSvc user.Service,
	meetSvc core.MeetingService,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		repo:    repo,
		subSvc:  subSvc,
		usrSvc:  usrSvc,
		meetSvc: meetSvc,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

func (svc *service) CreateForSlot(ctx context.Context, ns NewSession) (Session, bool, error) {
	now := NowFunc().UTC()
	sess := Session{
		SubscriptionID: ns.SubscriptionID,
		WeekID:         ns.WeekID,
		SlotID:         ns.SlotID,
		StartAt:        ns.StartAt.UTC(),
		EndAt:          ns.EndAt.UTC(),
		Status:         StatusScheduled,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ns.ZoomMeetingID != "" {
		sess.ZoomMeetingID = null.StringFrom(ns.ZoomMeetingID)
	}
	if ns.ZoomJoinURL != "" {
		sess.ZoomJoinURL = null.StringFrom(ns.ZoomJoinURL)
	}
	if ns.ZoomStartURL != "" {
		sess.ZoomStartURL = null.StringFrom(ns.ZoomStartURL)
	}
	return svc.repo.CreateSessionForSlot(ctx, sess)
}

func (svc *service) GetByID(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Session, error) {
	return svc.repo.FilterSessions(ctx, filter, ordering...)
}

func (svc *service) Complete(ctx context.Context, id string) (Session, subscription.Subscription, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, subscription.Subscription{}, err
	}
	return svc.complete(ctx, sess, NowFunc().UTC())
}

// complete is the single completion path shared by manual completion and the
// expired-session sweep; only the completed_at stamp differs between the two.
func (svc *service) complete(ctx context.Context, sess Session, completedAt time.Time) (Session, subscription.Subscription, error) {
	if sess.IsCompleted() {
		return Session{}, subscription.Subscription{}, ErrAlreadyCompleted
	}
	if !sess.IsCompletable() {
		return Session{}, subscription.Subscription{}, ErrNotCompletable
	}

	sess.Status = StatusCompleted
	sess.CompletedAt = null.TimeFrom(completedAt.UTC())
	updated, err := svc.repo.UpdateSessionStatus(ctx, sess, sess.Version)
	if err != nil {
		return Session{}, subscription.Subscription{}, err
	}

	sub, err := svc.subSvc.ConsumeSession(ctx, updated.SubscriptionID)
	if err != nil {
		return Session{}, subscription.Subscription{}, errors.Wrap(err, "decrementing sessions remaining")
	}

	if sub.IsCompleted() && sub.SessionsRemaining == 0 {
		svc.notifySubscriptionCompleted(ctx, sub)
	}
	return updated, sub, nil
}

func (svc *service) ApprovePostpone(ctx context.Context, id string) (Session, subscription.Subscription, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, subscription.Subscription{}, err
	}
	if sess.Status != StatusStudentRequestedPostpone {
		return Session{}, subscription.Subscription{}, ErrNotPostponeRequested
	}

	// consume the credit first so an exhausted subscription aborts with
	// zero session mutation
	sub, err := svc.subSvc.ConsumePostponeCredit(ctx, sess.SubscriptionID)
	if err != nil {
		return Session{}, subscription.Subscription{}, err
	}

	sess.Status = StatusPostponeApproved
	sess.PostponeApprovedAt = null.TimeFrom(NowFunc().UTC())
	updated, err := svc.repo.UpdateSessionStatus(ctx, sess, sess.Version)
	if err != nil {
		// return the credit when another caller beat us to the session
		if _, rerr := svc.subSvc.ReturnPostponeCredit(ctx, sess.SubscriptionID); rerr != nil {
			svc.logger.Error(fmt.Sprintf("returning postpone credit: %v", rerr), rerr)
		}
		return Session{}, subscription.Subscription{}, err
	}
	return updated, sub, nil
}

func (svc *service) RequestPostpone(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsScheduled() {
		return Session{}, ErrNotPostponable
	}
	sess.Status = StatusStudentRequestedPostpone
	sess.PostponeRequestedAt = null.TimeFrom(NowFunc().UTC())
	return svc.repo.UpdateSessionStatus(ctx, sess, sess.Version)
}

func (svc *service) Start(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsScheduled() {
		return Session{}, ErrNotStartable
	}
	sess.Status = StatusInProgress
	return svc.repo.UpdateSessionStatus(ctx, sess, sess.Version)
}

func (svc *service) Cancel(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsScheduled() {
		return Session{}, ErrNotCancellable
	}
	sess.Status = StatusCancelled
	updated, err := svc.repo.UpdateSessionStatus(ctx, sess, sess.Version)
	if err != nil {
		return Session{}, err
	}

	// best effort; the meeting just stays around on failure
	if updated.HasMeeting() {
		if err := svc.meetSvc.DeleteMeeting(ctx, updated.ZoomMeetingID.String); err != nil {
			svc.logger.Warn(fmt.Sprintf("deleting meeting %s: %v", updated.ZoomMeetingID.String, err), err)
		}
	}
	return updated, nil
}

func (svc *service) ReconcileExpired(ctx context.Context) (int, error) {
	expired, err := svc.repo.ListExpiredSessions(ctx, NowFunc().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "listing expired sessions")
	}

	var count int
	for _, sess := range expired {
		// a session that elapsed without explicit completion did happen;
		// completed_at is the scheduled end, not the sweep time
		if _, _, err := svc.complete(ctx, sess, sess.EndAt); err != nil {
			svc.logger.Error(fmt.Sprintf("reconciling session %s: %v", sess.ID, err), err)
			continue
		}
		count++
	}
	return count, nil
}

func (svc *service) notifySubscriptionCompleted(ctx context.Context, sub subscription.Subscription) {
	student, err := svc.usrSvc.GetByID(ctx, sub.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding student %s: %v", sub.StudentID, err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject: "Subscription completed",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYou have used all %d sessions of your subscription. Renew your package to keep learning!",
			student.Name, sub.SessionsTotal,
		),
	})
}
