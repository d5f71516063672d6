package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/schedule"
)

type scheduleRepository struct {
	db *weekTable
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) *scheduleRepository {
	return &scheduleRepository{db: db.week}
}

func (repo *scheduleRepository) queryWeeks() []schedule.SubscriptionWeek {
	weeks := make([]schedule.SubscriptionWeek, 0, len(repo.db.table))
	for _, wk := range repo.db.table {
		weeks = append(weeks, *wk)
	}
	sort.Slice(weeks, func(i, j int) bool {
		if weeks[i].SubscriptionID == weeks[j].SubscriptionID {
			return weeks[i].WeekIndex < weeks[j].WeekIndex
		}
		return weeks[i].SubscriptionID < weeks[j].SubscriptionID
	})
	return weeks
}

func (repo *scheduleRepository) CreateWeek(ctx context.Context, wk schedule.SubscriptionWeek) (schedule.SubscriptionWeek, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// another caller grabbed this week index first
	for _, existing := range repo.db.table {
		if existing.SubscriptionID == wk.SubscriptionID && existing.WeekIndex == wk.WeekIndex {
			return schedule.SubscriptionWeek{}, schedule.ErrConflict
		}
	}

	wk.ID = uuid.New().String()
	repo.db.table[wk.ID] = &wk
	return wk, nil
}

func (repo *scheduleRepository) GetWeekByID(ctx context.Context, id string) (schedule.SubscriptionWeek, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if wk, ok := repo.db.table[id]; ok {
		return *wk, nil
	}
	return schedule.SubscriptionWeek{}, schedule.ErrWeekNotFound
}

func (repo *scheduleRepository) FilterWeeks(ctx context.Context, filter schedule.QueryFilter, ordering ...core.DBOrdering) ([]schedule.SubscriptionWeek, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	weeks := repo.queryWeeks()

	if filter.SubscriptionID != "" {
		var filtered []schedule.SubscriptionWeek
		for _, wk := range weeks {
			if wk.SubscriptionID == filter.SubscriptionID {
				filtered = append(filtered, wk)
			}
		}
		weeks = filtered
	}
	if weeks != nil && len(filter.Statuses) > 0 {
		var filtered []schedule.SubscriptionWeek
		for _, wk := range weeks {
			for _, status := range filter.Statuses {
				if wk.Status == status {
					filtered = append(filtered, wk)
					break
				}
			}
		}
		weeks = filtered
	}

	return weeks, nil
}

func (repo *scheduleRepository) NextWeekIndex(ctx context.Context, subscriptionID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var max int
	for _, wk := range repo.db.table {
		if wk.SubscriptionID == subscriptionID && wk.WeekIndex > max {
			max = wk.WeekIndex
		}
	}
	return max + 1, nil
}

func (repo *scheduleRepository) HasOpenWeek(ctx context.Context, subscriptionID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, wk := range repo.db.table {
		if wk.SubscriptionID == subscriptionID && wk.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (repo *scheduleRepository) UpdateWeekStatus(ctx context.Context, wk schedule.SubscriptionWeek, version int) (schedule.SubscriptionWeek, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[wk.ID]
	if !ok {
		return schedule.SubscriptionWeek{}, schedule.ErrWeekNotFound
	}
	if orig.Version != version {
		return schedule.SubscriptionWeek{}, schedule.ErrConflict
	}
	orig.Status = wk.Status
	orig.SubmittedAt = wk.SubmittedAt
	orig.ReviewedAt = wk.ReviewedAt
	orig.ReviewNote = wk.ReviewNote
	orig.Version++
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *scheduleRepository) CreateSlot(ctx context.Context, slot schedule.WeekSlot) (schedule.WeekSlot, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[slot.WeekID]; !ok {
		return schedule.WeekSlot{}, schedule.ErrWeekNotFound
	}

	slot.ID = uuid.New().String()
	repo.db.slots[slot.ID] = &slot
	return slot, nil
}

func (repo *scheduleRepository) GetWeekSlots(ctx context.Context, weekID string) ([]schedule.WeekSlot, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var slots []schedule.WeekSlot
	for _, slot := range repo.db.slots {
		if slot.WeekID == weekID {
			slots = append(slots, *slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartAt.Before(slots[j].StartAt) })
	return slots, nil
}
