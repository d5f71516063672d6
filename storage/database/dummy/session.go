package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) query() []session.Session {
	sessions := make([]session.Session, 0, len(repo.db.table))
	for _, sess := range repo.db.table {
		sessions = append(sessions, *sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartAt.Equal(sessions[j].StartAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartAt.Before(sessions[j].StartAt)
	})
	return sessions
}

func (repo *sessionRepository) CreateSessionForSlot(ctx context.Context, sess session.Session) (session.Session, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// the slot already has its session; hand that one back
	for _, existing := range repo.db.table {
		if existing.SlotID == sess.SlotID {
			return *existing, false, nil
		}
	}

	sess.ID = uuid.New().String()
	repo.db.table[sess.ID] = &sess
	return sess, true, nil
}

func (repo *sessionRepository) GetSessionByID(ctx context.Context, id string) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return *sess, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) FilterSessions(ctx context.Context, filter session.QueryFilter, ordering ...core.DBOrdering) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := repo.query()

	if filter.SubscriptionID != "" {
		var filtered []session.Session
		for _, sess := range sessions {
			if sess.SubscriptionID == filter.SubscriptionID {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}
	if sessions != nil && filter.WeekID != "" {
		var filtered []session.Session
		for _, sess := range sessions {
			if sess.WeekID == filter.WeekID {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}
	if sessions != nil && len(filter.Statuses) > 0 {
		var filtered []session.Session
		for _, sess := range sessions {
			for _, status := range filter.Statuses {
				if sess.Status == status {
					filtered = append(filtered, sess)
					break
				}
			}
		}
		sessions = filtered
	}
	if sessions != nil && !filter.EndedBefore.IsZero() {
		var filtered []session.Session
		timeUTC := filter.EndedBefore.UTC()
		for _, sess := range sessions {
			if sess.EndAt.Before(timeUTC) {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	return sessions, nil
}

func (repo *sessionRepository) UpdateSessionStatus(ctx context.Context, sess session.Session, version int) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[sess.ID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	if orig.Version != version {
		return session.Session{}, session.ErrConflict
	}
	orig.Status = sess.Status
	orig.CompletedAt = sess.CompletedAt
	orig.PostponeRequestedAt = sess.PostponeRequestedAt
	orig.PostponeApprovedAt = sess.PostponeApprovedAt
	orig.Version++
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *sessionRepository) ListExpiredSessions(ctx context.Context, asOf time.Time) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var expired []session.Session
	for _, sess := range repo.query() {
		if sess.EndAt.Before(asOf) && sess.IsCompletable() {
			expired = append(expired, sess)
		}
	}
	return expired, nil
}
