// Package dummydb provides in-memory repositories for tests and local runs
// without a database.
package dummydb

import (
	"sync"

	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
)

type (
	DB struct {
		user         *userTable
		subscription *subscriptionTable
		week         *weekTable
		session      *sessionTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	subscriptionTable struct {
		sync.RWMutex
		table map[string]*subscription.Subscription
	}

	// weekTable holds weeks and their slots under one lock since they are
	// always touched together.
	weekTable struct {
		sync.RWMutex
		table map[string]*schedule.SubscriptionWeek
		slots map[string]*schedule.WeekSlot
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*session.Session
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		subscription: &subscriptionTable{table: make(map[string]*subscription.Subscription)},
		week: &weekTable{
			table: make(map[string]*schedule.SubscriptionWeek),
			slots: make(map[string]*schedule.WeekSlot),
		},
		session: &sessionTable{table: make(map[string]*session.Session)},
	}
	return db, nil
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()

	db.subscription.Lock()
	db.subscription.table = make(map[string]*subscription.Subscription)
	db.subscription.Unlock()

	db.week.Lock()
	db.week.table = make(map[string]*schedule.SubscriptionWeek)
	db.week.slots = make(map[string]*schedule.WeekSlot)
	db.week.Unlock()

	db.session.Lock()
	db.session.table = make(map[string]*session.Session)
	db.session.Unlock()
}
