package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/subscription"
)

type subscriptionRepository struct {
	db *subscriptionTable
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) *subscriptionRepository {
	return &subscriptionRepository{db: db.subscription}
}

func (repo *subscriptionRepository) query() []subscription.Subscription {
	subs := make([]subscription.Subscription, 0, len(repo.db.table))
	for _, sub := range repo.db.table {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = uuid.New().String()
	repo.db.table[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) GetSubscriptionByID(ctx context.Context, id string) (subscription.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.table[id]; ok {
		return *sub, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) FilterSubscriptions(ctx context.Context, filter subscription.QueryFilter, ordering ...core.DBOrdering) ([]subscription.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := repo.query()

	if filter.StudentID != "" {
		var filtered []subscription.Subscription
		for _, sub := range subs {
			if sub.StudentID == filter.StudentID {
				filtered = append(filtered, sub)
			}
		}
		subs = filtered
	}
	if subs != nil && filter.TeacherID != "" {
		var filtered []subscription.Subscription
		for _, sub := range subs {
			if sub.TeacherID.String == filter.TeacherID {
				filtered = append(filtered, sub)
			}
		}
		subs = filtered
	}
	if subs != nil && len(filter.Statuses) > 0 {
		var filtered []subscription.Subscription
		for _, sub := range subs {
			for _, status := range filter.Statuses {
				if sub.Status == status {
					filtered = append(filtered, sub)
					break
				}
			}
		}
		subs = filtered
	}
	if subs != nil && !filter.CreatedFrom.IsZero() {
		var filtered []subscription.Subscription
		timeUTC := filter.CreatedFrom.UTC()
		for _, sub := range subs {
			if sub.CreatedAt.Equal(timeUTC) || sub.CreatedAt.After(timeUTC) {
				filtered = append(filtered, sub)
			}
		}
		subs = filtered
	}
	if subs != nil && !filter.CreatedTo.IsZero() {
		var filtered []subscription.Subscription
		timeUTC := filter.CreatedTo.UTC()
		for _, sub := range subs {
			if sub.CreatedAt.Before(timeUTC) || sub.CreatedAt.Equal(timeUTC) {
				filtered = append(filtered, sub)
			}
		}
		subs = filtered
	}

	return subs, nil
}

func (repo *subscriptionRepository) UpdateSubscriptionStatus(ctx context.Context, id string, status subscription.Status, version int) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if sub.Version != version {
		return subscription.Subscription{}, subscription.ErrConflict
	}
	sub.Status = status
	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return *sub, nil
}

func (repo *subscriptionRepository) ActivateSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if sub.Status == subscription.StatusPending {
		sub.Status = subscription.StatusActive
		sub.Version++
		sub.UpdatedAt = time.Now().UTC()
	}
	return *sub, nil
}

func (repo *subscriptionRepository) SetSubscriptionTeacher(ctx context.Context, id, teacherID string, version int) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if sub.Version != version {
		return subscription.Subscription{}, subscription.ErrConflict
	}
	sub.TeacherID = null.StringFrom(teacherID)
	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return *sub, nil
}

func (repo *subscriptionRepository) DecrementSessionsRemaining(ctx context.Context, id string) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if sub.SessionsRemaining > 0 {
		sub.SessionsRemaining--
	}
	if sub.SessionsRemaining == 0 && sub.IsOpen() {
		sub.Status = subscription.StatusCompleted
	}
	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return *sub, nil
}

func (repo *subscriptionRepository) ConsumePostponeCredit(ctx context.Context, id string) (subscription.Subscription, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return subscription.Subscription{}, false, subscription.ErrNotFound
	}
	if sub.PostponeRemaining <= 0 {
		return *sub, false, nil
	}
	sub.PostponeRemaining--
	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return *sub, true, nil
}

func (repo *subscriptionRepository) ReturnPostponeCredit(ctx context.Context, id string) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.table[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if sub.PostponeRemaining < sub.PostponeTotal {
		sub.PostponeRemaining++
	}
	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return *sub, nil
}
