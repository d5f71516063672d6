package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound          = errors.New("subscription not found")
	ErrConflict          = errors.New("subscription was modified concurrently")
	ErrNoPostponeCredits = errors.New("no postpone credits remaining")
	ErrNotOpen           = errors.New("subscription is not active")
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		GetSubscriptionByID(ctx context.Context, id string) (Subscription, error)
		// FilterSubscriptions applies AND operation on available QueryFilter fields.
		FilterSubscriptions(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Subscription, error)
		// UpdateSubscriptionStatus is a compare-and-swap on (id, version).
		UpdateSubscriptionStatus(ctx context.Context, id string, status Status, version int) (Subscription, error)
		// ActivateSubscription flips pending to active in a single
		// conditional statement; any other status is left untouched.
		ActivateSubscription(ctx context.Context, id string) (Subscription, error)
		SetSubscriptionTeacher(ctx context.Context, id, teacherID string, version int) (Subscription, error)
		// DecrementSessionsRemaining decrements by 1 floored at 0 in a single
		// atomic statement, flipping status to completed when it reaches 0.
		DecrementSessionsRemaining(ctx context.Context, id string) (Subscription, error)
		// ConsumePostponeCredit decrements postpone_remaining by 1 only while
		// it is > 0; reports whether a credit was consumed.
		ConsumePostponeCredit(ctx context.Context, id string) (Subscription, bool, error)
		ReturnPostponeCredit(ctx context.Context, id string) (Subscription, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSubscription) (Subscription, error)
		GetByID(ctx context.Context, id string) (Subscription, error)
		Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Subscription, error)
		AssignTeacher(ctx context.Context, id, teacherID string) (Subscription, error)
		// Activate moves a pending subscription to active; any other status
		// is left as is.
		Activate(ctx context.Context, id string) (Subscription, error)
		// Cancel closes an open subscription for good.
		Cancel(ctx context.Context, id string) (Subscription, error)
		// ConsumeSession burns one remaining session, flooring at 0 and
		// completing the subscription when the counter reaches 0.
		ConsumeSession(ctx context.Context, id string) (Subscription, error)
		ConsumePostponeCredit(ctx context.Context, id string) (Subscription, error)
		ReturnPostponeCredit(ctx context.Context, id string) (Subscription, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ns NewSubscription) (Subscription, error) {
	now := time.Now().UTC()
	sub := Subscription{
		StudentID:         ns.StudentID,
		CourseID:          ns.CourseID,
		PackageID:         ns.PackageID,
		SessionsTotal:     ns.SessionsTotal,
		SessionsRemaining: ns.SessionsTotal,
		PostponeTotal:     ns.PostponeTotal,
		PostponeRemaining: ns.PostponeTotal,
		Status:            StatusPending,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if ns.TeacherID != "" {
		sub.TeacherID = null.StringFrom(ns.TeacherID)
	}
	return svc.repo.CreateSubscription(ctx, sub)
}

func (svc *service) GetByID(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscriptionByID(ctx, id)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Subscription, error) {
	return svc.repo.FilterSubscriptions(ctx, filter, ordering...)
}

func (svc *service) AssignTeacher(ctx context.Context, id, teacherID string) (Subscription, error) {
	sub, err := svc.repo.GetSubscriptionByID(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	return svc.repo.SetSubscriptionTeacher(ctx, sub.ID, teacherID, sub.Version)
}

func (svc *service) Activate(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.ActivateSubscription(ctx, id)
}

func (svc *service) Cancel(ctx context.Context, id string) (Subscription, error) {
	sub, err := svc.repo.GetSubscriptionByID(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if !sub.IsOpen() {
		return Subscription{}, ErrNotOpen
	}
	return svc.repo.UpdateSubscriptionStatus(ctx, sub.ID, StatusCancelled, sub.Version)
}

func (svc *service) ConsumeSession(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.DecrementSessionsRemaining(ctx, id)
}

func (svc *service) ConsumePostponeCredit(ctx context.Context, id string) (Subscription, error) {
	sub, consumed, err := svc.repo.ConsumePostponeCredit(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if !consumed {
		return Subscription{}, ErrNoPostponeCredits
	}
	return sub, nil
}

func (svc *service) ReturnPostponeCredit(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.ReturnPostponeCredit(ctx, id)
}
