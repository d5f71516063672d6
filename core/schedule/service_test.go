package schedule_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/meeting/dummy"
	"github.com/trezcool/darasa/storage/database/dummy"
	"github.com/trezcool/darasa/tests"
)

var (
	usrRepo  user.Repository
	subRepo  subscription.Repository
	wkRepo   schedule.Repository
	sessRepo session.Repository

	sessSvc session.Service
)

func TestMain(m *testing.M) {
	core.NewConfig()
	os.Exit(m.Run())
}

func setup(t *testing.T) (schedule.Service, *dummymeet.Service) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open(): %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)
	subRepo = dummydb.NewSubscriptionRepository(db)
	wkRepo = dummydb.NewScheduleRepository(db)
	sessRepo = dummydb.NewSessionRepository(db)

	testLogger := logsvc.NewNopLogger()
	mailSvc := emailsvc.NewConsoleServiceMock()
	meetSvc := dummymeet.NewService()
	usrSvc := user.NewService(usrRepo)
	subSvc := subscription.NewService(subRepo)
	sessSvc = session.NewService(sessRepo, subSvc, usrSvc, meetSvc, mailSvc, testLogger)
	return schedule.NewService(wkRepo, sessSvc, subSvc, usrSvc, meetSvc, mailSvc, testLogger), meetSvc
}

// submittedWeek sets up a student, their open subscription and a submitted
// week with slotCount one-hour slots on consecutive days.
func submittedWeek(t *testing.T, slotCount int) (subscription.Subscription, schedule.SubscriptionWeek, []schedule.WeekSlot) {
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, "tch-1", 4, 1)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusSubmitted)

	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	slots := make([]schedule.WeekSlot, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		slots = append(slots, testutil.CreateSlot(t, wkRepo, wk.ID, start.Add(time.Duration(i)*24*time.Hour), time.Hour))
	}
	return sub, wk, slots
}

func TestService_StartWeek(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1)

	wk, err := svc.StartWeek(ctx, sub.ID)
	if err != nil {
		t.Fatalf("svc.StartWeek(): %v", err)
	}
	if !wk.IsDraft() {
		t.Errorf("Status = %s; want %s", wk.Status, schedule.WeekStatusDraft)
	}
	if wk.WeekIndex != 1 {
		t.Errorf("WeekIndex = %d; want 1", wk.WeekIndex)
	}

	// the draft above is still open
	if _, err = svc.StartWeek(ctx, sub.ID); err != schedule.ErrOpenWeekExists {
		t.Errorf("svc.StartWeek() error = %v, wantErr %v", err, schedule.ErrOpenWeekExists)
	}

	// a reviewed week frees the subscription for the next one
	wk.Status = schedule.WeekStatusRejected
	if _, err = wkRepo.UpdateWeekStatus(ctx, wk, wk.Version); err != nil {
		t.Fatalf("UpdateWeekStatus(): %v", err)
	}
	wk, err = svc.StartWeek(ctx, sub.ID)
	if err != nil {
		t.Fatalf("svc.StartWeek(): %v", err)
	}
	if wk.WeekIndex != 2 {
		t.Errorf("WeekIndex = %d; want 2", wk.WeekIndex)
	}

	cancelled := testutil.CreateSubscription(t, subRepo, "std-2", "", 4, 1, subscription.StatusCancelled)
	if _, err = svc.StartWeek(ctx, cancelled.ID); err != subscription.ErrNotOpen {
		t.Errorf("svc.StartWeek() error = %v, wantErr %v", err, subscription.ErrNotOpen)
	}

	if _, err = svc.StartWeek(ctx, "nope"); err != subscription.ErrNotFound {
		t.Errorf("svc.StartWeek() error = %v, wantErr %v", err, subscription.ErrNotFound)
	}
}

func TestService_AddSlot(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1)
	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	ns := schedule.NewSlot{StartAt: start, EndAt: start.Add(time.Hour), Note: "grammar revision"}

	tests := []struct {
		name    string
		status  schedule.WeekStatus
		wantErr error
	}{
		{name: "draft week takes slots", status: schedule.WeekStatusDraft},
		{name: "submitted week is frozen", status: schedule.WeekStatusSubmitted, wantErr: schedule.ErrSlotsLocked},
		{name: "approved week is frozen", status: schedule.WeekStatusApproved, wantErr: schedule.ErrSlotsLocked},
		{name: "rejected week is frozen", status: schedule.WeekStatusRejected, wantErr: schedule.ErrSlotsLocked},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wk := testutil.CreateWeek(t, wkRepo, sub.ID, i+1, tt.status)

			slot, err := svc.AddSlot(ctx, wk.ID, ns)
			if err != tt.wantErr {
				t.Fatalf("svc.AddSlot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if !slot.StartAt.Equal(ns.StartAt) || !slot.EndAt.Equal(ns.EndAt) {
					t.Errorf("slot times = %v - %v; want %v - %v", slot.StartAt, slot.EndAt, ns.StartAt, ns.EndAt)
				}
				if slot.Note.String != ns.Note {
					t.Errorf("Note = %q; want %q", slot.Note.String, ns.Note)
				}
			}
		})
	}

	if _, err := svc.AddSlot(ctx, "nope", ns); err != schedule.ErrWeekNotFound {
		t.Errorf("svc.AddSlot() error = %v, wantErr %v", err, schedule.ErrWeekNotFound)
	}
}

func TestService_SubmitWeek(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1)

	empty := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusDraft)
	if _, err := svc.SubmitWeek(ctx, empty.ID); err != schedule.ErrNoSlots {
		t.Errorf("svc.SubmitWeek() error = %v, wantErr %v", err, schedule.ErrNoSlots)
	}

	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 2, schedule.WeekStatusDraft)
	testutil.CreateSlot(t, wkRepo, wk.ID, time.Now().UTC().Add(24*time.Hour), time.Hour)

	wk, err := svc.SubmitWeek(ctx, wk.ID)
	if err != nil {
		t.Fatalf("svc.SubmitWeek(): %v", err)
	}
	if !wk.IsSubmitted() {
		t.Errorf("Status = %s; want %s", wk.Status, schedule.WeekStatusSubmitted)
	}
	if !wk.SubmittedAt.Valid {
		t.Error("SubmittedAt not set")
	}

	// only drafts can be handed over
	if _, err = svc.SubmitWeek(ctx, wk.ID); err != schedule.ErrNotDraft {
		t.Errorf("svc.SubmitWeek() error = %v, wantErr %v", err, schedule.ErrNotDraft)
	}
}

func TestService_ApproveWeek(t *testing.T) {
	ctx := context.Background()

	t.Run("creates one session per slot", func(t *testing.T) {
		svc, _ := setup(t)
		emailsvc.SentMessages = nil // reset

		sub, wk, slots := submittedWeek(t, 3)

		wk, sessions, err := svc.ApproveWeek(ctx, sub.ID, wk.ID)
		if err != nil {
			t.Fatalf("svc.ApproveWeek(): %v", err)
		}
		if !wk.IsApproved() {
			t.Errorf("Status = %s; want %s", wk.Status, schedule.WeekStatusApproved)
		}
		if !wk.ReviewedAt.Valid {
			t.Error("ReviewedAt not set")
		}
		if len(sessions) != len(slots) {
			t.Fatalf("len(sessions) = %d; want %d", len(sessions), len(slots))
		}
		for i, sess := range sessions {
			if sess.SlotID != slots[i].ID {
				t.Errorf("sessions[%d].SlotID = %s; want %s", i, sess.SlotID, slots[i].ID)
			}
			if !sess.StartAt.Equal(slots[i].StartAt) || !sess.EndAt.Equal(slots[i].EndAt) {
				t.Errorf("sessions[%d] times = %v - %v; want the slot's %v - %v",
					i, sess.StartAt, sess.EndAt, slots[i].StartAt, slots[i].EndAt)
			}
			if !sess.IsScheduled() {
				t.Errorf("sessions[%d].Status = %s; want %s", i, sess.Status, session.StatusScheduled)
			}
			if !sess.ZoomJoinURL.Valid || !sess.ZoomStartURL.Valid {
				t.Errorf("sessions[%d] has no meeting links", i)
			}
		}

		// approval opens the subscription for business
		sub, err = subRepo.GetSubscriptionByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("GetSubscriptionByID(): %v", err)
		}
		if !sub.IsActive() {
			t.Errorf("subscription status = %s; want %s", sub.Status, subscription.StatusActive)
		}

		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
		}
		msg := emailsvc.SentMessages[0]
		if msg.Subject != "Week 1 approved" {
			t.Errorf("Subject = %q; want %q", msg.Subject, "Week 1 approved")
		}
		if !strings.Contains(msg.TextContent, "3 session(s)") {
			t.Errorf("text content %q does not mention the session count", msg.TextContent)
		}
	})

	t.Run("approving twice fails", func(t *testing.T) {
		svc, _ := setup(t)

		sub, wk, _ := submittedWeek(t, 2)

		if _, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID); err != nil {
			t.Fatalf("svc.ApproveWeek(): %v", err)
		}
		if _, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID); err != schedule.ErrNotSubmitted {
			t.Errorf("svc.ApproveWeek() error = %v, wantErr %v", err, schedule.ErrNotSubmitted)
		}
	})

	t.Run("draft week cannot be approved", func(t *testing.T) {
		svc, _ := setup(t)

		sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1)
		wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusDraft)

		if _, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID); err != schedule.ErrNotSubmitted {
			t.Errorf("svc.ApproveWeek() error = %v, wantErr %v", err, schedule.ErrNotSubmitted)
		}
	})

	t.Run("week without slots cannot be approved", func(t *testing.T) {
		svc, _ := setup(t)

		sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1)
		wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusSubmitted)

		if _, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID); err != schedule.ErrNoSlots {
			t.Errorf("svc.ApproveWeek() error = %v, wantErr %v", err, schedule.ErrNoSlots)
		}
	})

	t.Run("meeting failures do not block approval", func(t *testing.T) {
		svc, meetSvc := setup(t)
		meetSvc.Err = errors.New("zoom is down")

		sub, wk, slots := submittedWeek(t, 2)

		wk, sessions, err := svc.ApproveWeek(ctx, sub.ID, wk.ID)
		if err != nil {
			t.Fatalf("svc.ApproveWeek(): %v", err)
		}
		if !wk.IsApproved() {
			t.Errorf("Status = %s; want %s", wk.Status, schedule.WeekStatusApproved)
		}
		if len(sessions) != len(slots) {
			t.Fatalf("len(sessions) = %d; want %d", len(sessions), len(slots))
		}
		for i, sess := range sessions {
			if sess.ZoomMeetingID.Valid || sess.ZoomJoinURL.Valid || sess.ZoomStartURL.Valid {
				t.Errorf("sessions[%d] has meeting fields set; want them empty", i)
			}
		}
	})

	t.Run("retried approval does not duplicate sessions", func(t *testing.T) {
		svc, _ := setup(t)

		sub, wk, slots := submittedWeek(t, 2)

		// half of the work done by a run that died before flipping the week
		testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slots[0].ID, slots[0].StartAt, slots[0].EndAt, session.StatusScheduled)

		_, sessions, err := svc.ApproveWeek(ctx, sub.ID, wk.ID)
		if err != nil {
			t.Fatalf("svc.ApproveWeek(): %v", err)
		}
		if len(sessions) != 2 {
			t.Errorf("len(sessions) = %d; want 2", len(sessions))
		}
		all, err := sessRepo.FilterSessions(ctx, session.QueryFilter{WeekID: wk.ID})
		if err != nil {
			t.Fatalf("FilterSessions(): %v", err)
		}
		if len(all) != 2 {
			t.Errorf("len(sessions in store) = %d; want 2", len(all))
		}
	})

	t.Run("concurrent decisions pick one winner", func(t *testing.T) {
		svc, _ := setup(t)

		sub, wk, slots := submittedWeek(t, 2)

		errc := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				_, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID)
				errc <- err
			}()
		}
		var losers []error
		for i := 0; i < 2; i++ {
			if err := <-errc; err != nil {
				losers = append(losers, err)
			}
		}
		if len(losers) != 1 {
			t.Fatalf("losing errors = %v; want exactly one", losers)
		}
		// the loser saw the winner's write either at its own CAS or already
		// at the precondition check
		if err := losers[0]; err != schedule.ErrConflict && err != schedule.ErrNotSubmitted {
			t.Errorf("loser error = %v; want %v or %v", err, schedule.ErrConflict, schedule.ErrNotSubmitted)
		}

		refreshed, err := wkRepo.GetWeekByID(ctx, wk.ID)
		if err != nil {
			t.Fatalf("GetWeekByID(): %v", err)
		}
		if !refreshed.IsApproved() {
			t.Errorf("Status = %s; want %s", refreshed.Status, schedule.WeekStatusApproved)
		}
		sessions, err := sessRepo.FilterSessions(ctx, session.QueryFilter{WeekID: wk.ID})
		if err != nil {
			t.Fatalf("FilterSessions(): %v", err)
		}
		if len(sessions) != len(slots) {
			t.Errorf("len(sessions) = %d; want %d", len(sessions), len(slots))
		}
	})

	t.Run("week of another subscription is not found", func(t *testing.T) {
		svc, _ := setup(t)

		_, wk, _ := submittedWeek(t, 1)
		other := testutil.CreateSubscription(t, subRepo, "std-2", "", 4, 1)

		if _, _, err := svc.ApproveWeek(ctx, other.ID, wk.ID); err != schedule.ErrWeekNotFound {
			t.Errorf("svc.ApproveWeek() error = %v, wantErr %v", err, schedule.ErrWeekNotFound)
		}
		// and the week is left untouched
		refreshed, err := wkRepo.GetWeekByID(ctx, wk.ID)
		if err != nil {
			t.Fatalf("GetWeekByID(): %v", err)
		}
		if !refreshed.IsSubmitted() {
			t.Errorf("Status = %s; want %s", refreshed.Status, schedule.WeekStatusSubmitted)
		}
	})

	t.Run("closed subscription cannot approve", func(t *testing.T) {
		svc, _ := setup(t)

		sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1, subscription.StatusCancelled)
		wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusSubmitted)
		testutil.CreateSlot(t, wkRepo, wk.ID, time.Now().UTC().Add(24*time.Hour), time.Hour)

		if _, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID); err != subscription.ErrNotOpen {
			t.Errorf("svc.ApproveWeek() error = %v, wantErr %v", err, subscription.ErrNotOpen)
		}
	})
}

func TestService_DeclineWeek(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects with the reviewer's reason", func(t *testing.T) {
		svc, _ := setup(t)
		emailsvc.SentMessages = nil // reset

		sub, wk, _ := submittedWeek(t, 2)

		wk, err := svc.DeclineWeek(ctx, sub.ID, wk.ID, "mornings only please")
		if err != nil {
			t.Fatalf("svc.DeclineWeek(): %v", err)
		}
		if !wk.IsRejected() {
			t.Errorf("Status = %s; want %s", wk.Status, schedule.WeekStatusRejected)
		}
		if !wk.ReviewedAt.Valid {
			t.Error("ReviewedAt not set")
		}
		if wk.ReviewNote.String != "mornings only please" {
			t.Errorf("ReviewNote = %q; want %q", wk.ReviewNote.String, "mornings only please")
		}

		// no sessions are ever created on a decline
		sessions, err := sessRepo.FilterSessions(ctx, session.QueryFilter{WeekID: wk.ID})
		if err != nil {
			t.Fatalf("FilterSessions(): %v", err)
		}
		if len(sessions) != 0 {
			t.Errorf("len(sessions) = %d; want 0", len(sessions))
		}

		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
		}
		msg := emailsvc.SentMessages[0]
		if msg.Subject != "Week 1 needs changes" {
			t.Errorf("Subject = %q; want %q", msg.Subject, "Week 1 needs changes")
		}
		if !strings.Contains(msg.TextContent, "mornings only please") {
			t.Errorf("text content %q does not carry the reviewer note", msg.TextContent)
		}
	})

	t.Run("reason is optional", func(t *testing.T) {
		svc, _ := setup(t)

		sub, wk, _ := submittedWeek(t, 1)

		wk, err := svc.DeclineWeek(ctx, sub.ID, wk.ID, "  ")
		if err != nil {
			t.Fatalf("svc.DeclineWeek(): %v", err)
		}
		if wk.ReviewNote.Valid {
			t.Errorf("ReviewNote = %q; want unset", wk.ReviewNote.String)
		}
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		svc, _ := setup(t)

		sub, wk, _ := submittedWeek(t, 1)

		if _, err := svc.DeclineWeek(ctx, sub.ID, wk.ID, ""); err != nil {
			t.Fatalf("svc.DeclineWeek(): %v", err)
		}
		if _, err := svc.DeclineWeek(ctx, sub.ID, wk.ID, ""); err != schedule.ErrNotSubmitted {
			t.Errorf("svc.DeclineWeek() error = %v, wantErr %v", err, schedule.ErrNotSubmitted)
		}
		if _, _, err := svc.ApproveWeek(ctx, sub.ID, wk.ID); err != schedule.ErrNotSubmitted {
			t.Errorf("svc.ApproveWeek() error = %v, wantErr %v", err, schedule.ErrNotSubmitted)
		}
	})
}

func TestService_Filter(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	sub := testutil.CreateSubscription(t, subRepo, "std-1", "", 4, 1)
	other := testutil.CreateSubscription(t, subRepo, "std-2", "", 4, 1)
	testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusRejected)
	testutil.CreateWeek(t, wkRepo, sub.ID, 2, schedule.WeekStatusApproved)
	testutil.CreateWeek(t, wkRepo, sub.ID, 3, schedule.WeekStatusDraft)
	testutil.CreateWeek(t, wkRepo, other.ID, 1, schedule.WeekStatusDraft)

	weeks, err := svc.Filter(ctx, schedule.QueryFilter{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("svc.Filter(): %v", err)
	}
	if len(weeks) != 3 {
		t.Errorf("len(weeks) = %d; want 3", len(weeks))
	}

	weeks, err = svc.Filter(ctx, schedule.QueryFilter{
		SubscriptionID: sub.ID,
		Statuses:       []schedule.WeekStatus{schedule.WeekStatusApproved, schedule.WeekStatusRejected},
	})
	if err != nil {
		t.Fatalf("svc.Filter(): %v", err)
	}
	if len(weeks) != 2 {
		t.Errorf("len(weeks) = %d; want 2", len(weeks))
	}
}
