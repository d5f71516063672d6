package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database/dummy"
)

func ResetDB(t *testing.T, db *dummydb.DB) {
	db.Reset()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateSubscription(
	t *testing.T,
	repo subscription.Repository,
	studentID, teacherID string,
	sessionsTotal, postponeTotal int,
	status ...subscription.Status,
) subscription.Subscription {
	now := time.Now().UTC()
	sub := subscription.Subscription{
		StudentID:         studentID,
		CourseID:          "crs-english-b2",
		PackageID:         "pkg-weekly",
		SessionsTotal:     sessionsTotal,
		SessionsRemaining: sessionsTotal,
		PostponeTotal:     postponeTotal,
		PostponeRemaining: postponeTotal,
		Status:            subscription.StatusPending,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if teacherID != "" {
		sub.TeacherID = null.StringFrom(teacherID)
	}
	if len(status) > 0 {
		sub.Status = status[0]
	}
	sub, err := repo.CreateSubscription(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubscription(): %v", err)
	}
	return sub
}

func CreateWeek(
	t *testing.T,
	repo schedule.Repository,
	subscriptionID string,
	weekIndex int,
	status schedule.WeekStatus,
) schedule.SubscriptionWeek {
	now := time.Now().UTC()
	wk := schedule.SubscriptionWeek{
		SubscriptionID: subscriptionID,
		WeekIndex:      weekIndex,
		Status:         status,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status != schedule.WeekStatusDraft {
		wk.SubmittedAt = null.TimeFrom(now)
	}
	wk, err := repo.CreateWeek(context.Background(), wk)
	if err != nil {
		t.Fatalf("CreateWeek(): %v", err)
	}
	return wk
}

func CreateSlot(
	t *testing.T,
	repo schedule.Repository,
	weekID string,
	startAt time.Time,
	duration time.Duration,
) schedule.WeekSlot {
	slot := schedule.WeekSlot{
		WeekID:    weekID,
		StartAt:   startAt.UTC(),
		EndAt:     startAt.Add(duration).UTC(),
		CreatedAt: time.Now().UTC(),
	}
	slot, err := repo.CreateSlot(context.Background(), slot)
	if err != nil {
		t.Fatalf("CreateSlot(): %v", err)
	}
	return slot
}

func CreateSession(
	t *testing.T,
	repo session.Repository,
	subscriptionID, weekID, slotID string,
	startAt, endAt time.Time,
	status session.Status,
) session.Session {
	now := time.Now().UTC()
	sess := session.Session{
		SubscriptionID: subscriptionID,
		WeekID:         weekID,
		SlotID:         slotID,
		StartAt:        startAt.UTC(),
		EndAt:          endAt.UTC(),
		Status:         status,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sess, created, err := repo.CreateSessionForSlot(context.Background(), sess)
	if err != nil {
		t.Fatalf("CreateSession(): %v", err)
	}
	if !created {
		t.Fatalf("CreateSession(): slot %s already has a session", slotID)
	}
	return sess
}
