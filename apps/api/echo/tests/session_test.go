package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/tests"
)

func Test_sessionApi_sessionQuery(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	rival := testutil.CreateUser(t, usrRepo, "Rival", "rival1", "rival@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 4, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot1 := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	slot2 := testutil.CreateSlot(t, wkRepo, wk.ID, base.Add(24*time.Hour), time.Hour)
	sess1 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot1.ID, slot1.StartAt, slot1.EndAt, session.StatusScheduled)
	sess2 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot2.ID, slot2.StartAt, slot2.EndAt, session.StatusCancelled)

	otherSub := testutil.CreateSubscription(t, subRepo, rival.ID, "", 4, 1, subscription.StatusActive)
	otherWk := testutil.CreateWeek(t, wkRepo, otherSub.ID, 1, schedule.WeekStatusApproved)
	otherSlot := testutil.CreateSlot(t, wkRepo, otherWk.ID, base.Add(48*time.Hour), time.Hour)
	sess3 := testutil.CreateSession(t, sessRepo, otherSub.ID, otherWk.ID, otherSlot.ID, otherSlot.StartAt, otherSlot.EndAt, session.StatusScheduled)

	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)
	subSessions := marchallList(t, sess1, sess2)

	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Non-admins must scope to a subscription", path: "/api/sessions", token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"subscription_id": "subscription_id is required"}),
		},
		{name: "Student sees own", path: "/api/sessions?subscription_id=" + sub.ID, token: studentToken, wantData: subSessions},
		{
			name: "Student cannot spy", path: "/api/sessions?subscription_id=" + otherSub.ID, token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Unknown subscription", path: "/api/sessions?subscription_id=nope", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "subscription not found"}),
		},
		{name: "Assigned teacher", path: "/api/sessions?subscription_id=" + sub.ID, token: getToken(t, teacher), wantData: subSessions},
		{name: "Admin sees all", path: "/api/sessions", token: adminToken, wantData: marchallList(t, sess1, sess2, sess3)},
		{name: "status filter", path: "/api/sessions?status=cancelled", token: adminToken, wantData: marchallList(t, sess2)},
		{name: "week filter", path: "/api/sessions?week_id=" + wk.ID, token: adminToken, wantData: subSessions},
		{name: "no match", path: "/api/sessions?week_id=nope", token: adminToken, wantData: marchallList(t, []interface{}{}...)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sessionApi_sessionRetrieve(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	rival := testutil.CreateUser(t, usrRepo, "Rival", "rival1", "rival@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 4, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	sess := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot.ID, slot.StartAt, slot.EndAt, session.StatusScheduled)

	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions/" + sess.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Student owner", path: "/api/sessions/" + sess.ID, token: getToken(t, student), wantCode: http.StatusOK, wantData: marchallObj(t, sess)},
		{name: "Assigned teacher", path: "/api/sessions/" + sess.ID, token: getToken(t, teacher), wantCode: http.StatusOK, wantData: marchallObj(t, sess)},
		{
			name: "Other student is blind", path: "/api/sessions/" + sess.ID, token: getToken(t, rival),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Unknown session", path: "/api/sessions/nope", token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "session not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sessionApi_sessionComplete(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	otherTeacher := testutil.CreateUser(t, usrRepo, "Other", "teach2", "other@test.cd", "", []string{user.RoleTeacher}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 2, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot1 := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	slot2 := testutil.CreateSlot(t, wkRepo, wk.ID, base.Add(24*time.Hour), time.Hour)
	slot3 := testutil.CreateSlot(t, wkRepo, wk.ID, base.Add(48*time.Hour), time.Hour)
	sess1 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot1.ID, slot1.StartAt, slot1.EndAt, session.StatusScheduled)
	sess2 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot2.ID, slot2.StartAt, slot2.EndAt, session.StatusScheduled)
	cancelled := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot3.ID, slot3.StartAt, slot3.EndAt, session.StatusCancelled)

	teacherToken := getToken(t, teacher)

	type emailCheck struct {
		count   int
		subject string
	}
	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions/" + sess1.ID + "/complete", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teachers only", path: "/api/sessions/" + sess1.ID + "/complete", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Someone else's teacher is blind", path: "/api/sessions/" + sess1.ID + "/complete", token: getToken(t, otherTeacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Completed", path: "/api/sessions/" + sess1.ID + "/complete", token: teacherToken,
			wantCode: http.StatusOK, extra: emailCheck{count: 0},
			wantData: marchallObj(t, echoapi.CompleteSessionResponse{Success: true, SessionsRemaining: 1, SubscriptionStatus: subscription.StatusActive}),
		},
		{
			name: "Completing twice fails", path: "/api/sessions/" + sess1.ID + "/complete", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "already completed"}),
		},
		{
			name: "Cancelled sessions cannot complete", path: "/api/sessions/" + cancelled.ID + "/complete", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "cannot be completed in current status"}),
		},
		{
			name: "Last completion closes the subscription", path: "/api/sessions/" + sess2.ID + "/complete", token: teacherToken,
			wantCode: http.StatusOK, extra: emailCheck{count: 1, subject: "Subscription completed"},
			wantData: marchallObj(t, echoapi.CompleteSessionResponse{Success: true, SessionsRemaining: 0, SubscriptionStatus: subscription.StatusCompleted}),
		},
		{
			name: "Unknown session", path: "/api/sessions/nope/complete", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "session not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.SentMessages = nil // reset

			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if check, ok := tt.extra.(emailCheck); ok {
				if len(emailsvc.SentMessages) != check.count {
					t.Fatalf("failed! len(SentMessages) = %d; want %d", len(emailsvc.SentMessages), check.count)
				}
				if check.count > 0 && emailsvc.SentMessages[0].Subject != check.subject {
					t.Errorf("failed! Subject = %q; want %q", emailsvc.SentMessages[0].Subject, check.subject)
				}
			}
		})
	}

	refetched, err := sessRepo.GetSessionByID(context.Background(), sess1.ID)
	if err != nil {
		t.Fatalf("GetSessionByID(): %v", err)
	}
	if !refetched.IsCompleted() {
		t.Errorf("Status = %v, want %v", refetched.Status, session.StatusCompleted)
	}
	if !refetched.CompletedAt.Valid {
		t.Error("CompletedAt not set")
	}
}

func Test_sessionApi_requestPostpone(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	rival := testutil.CreateUser(t, usrRepo, "Rival", "rival1", "rival@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 4, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	sess := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot.ID, slot.StartAt, slot.EndAt, session.StatusScheduled)

	studentToken := getToken(t, student)

	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions/" + sess.ID + "/request-postpone", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students only", path: "/api/sessions/" + sess.ID + "/request-postpone", token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Someone else's session is hidden", path: "/api/sessions/" + sess.ID + "/request-postpone", token: getToken(t, rival),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "Requested", path: "/api/sessions/" + sess.ID + "/request-postpone", token: studentToken, wantCode: http.StatusOK, extra: true},
		{
			name: "Only scheduled sessions", path: "/api/sessions/" + sess.ID + "/request-postpone", token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "postponement can only be requested for a scheduled session"}),
		},
		{
			name: "Unknown session", path: "/api/sessions/nope/request-postpone", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "session not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if requested, ok := tt.extra.(bool); ok && requested {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %v", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData session.Session
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Status != session.StatusStudentRequestedPostpone {
					t.Errorf("failed! Status = %v; want %v", respData.Status, session.StatusStudentRequestedPostpone)
				}
				if !respData.PostponeRequestedAt.Valid {
					t.Error("failed! PostponeRequestedAt not set")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sessionApi_approvePostpone(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 4, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot1 := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	slot2 := testutil.CreateSlot(t, wkRepo, wk.ID, base.Add(24*time.Hour), time.Hour)
	slot3 := testutil.CreateSlot(t, wkRepo, wk.ID, base.Add(48*time.Hour), time.Hour)
	requested1 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot1.ID, slot1.StartAt, slot1.EndAt, session.StatusStudentRequestedPostpone)
	requested2 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot2.ID, slot2.StartAt, slot2.EndAt, session.StatusStudentRequestedPostpone)
	scheduled := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot3.ID, slot3.StartAt, slot3.EndAt, session.StatusScheduled)

	teacherToken := getToken(t, teacher)

	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions/" + requested1.ID + "/approve-postpone", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teachers only", path: "/api/sessions/" + requested1.ID + "/approve-postpone", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Postponement must be requested first", path: "/api/sessions/" + scheduled.ID + "/approve-postpone", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "postponement has not been requested for this session"}),
		},
		{
			name: "Approved", path: "/api/sessions/" + requested1.ID + "/approve-postpone", token: teacherToken,
			wantCode: http.StatusOK, extra: true,
			wantData: marchallObj(t, echoapi.ApprovePostponeResponse{Success: true, PostponeRemaining: 0}),
		},
		{
			name: "Credits exhausted", path: "/api/sessions/" + requested2.ID + "/approve-postpone", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "no postpone credits remaining"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if approved, ok := tt.extra.(bool); ok && approved {
				refetched, err := sessRepo.GetSessionByID(context.Background(), requested1.ID)
				if err != nil {
					t.Fatalf("GetSessionByID(): %v", err)
				}
				if refetched.Status != session.StatusPostponeApproved {
					t.Errorf("failed! Status = %v; want %v", refetched.Status, session.StatusPostponeApproved)
				}
				if !refetched.PostponeApprovedAt.Valid {
					t.Error("failed! PostponeApprovedAt not set")
				}
			}
		})
	}

	// the credit burn must survive the failed second approval
	refetched, err := subRepo.GetSubscriptionByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("GetSubscriptionByID(): %v", err)
	}
	if refetched.PostponeRemaining != 0 {
		t.Errorf("PostponeRemaining = %v, want 0", refetched.PostponeRemaining)
	}
	if stillRequested, err := sessRepo.GetSessionByID(context.Background(), requested2.ID); err != nil || stillRequested.Status != session.StatusStudentRequestedPostpone {
		t.Errorf("Status = %v (err %v), want %v", stillRequested.Status, err, session.StatusStudentRequestedPostpone)
	}
}

func Test_sessionApi_sessionStart(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 4, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	sess := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot.ID, slot.StartAt, slot.EndAt, session.StatusScheduled)

	teacherToken := getToken(t, teacher)

	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions/" + sess.ID + "/start", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teachers only", path: "/api/sessions/" + sess.ID + "/start", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Started", path: "/api/sessions/" + sess.ID + "/start", token: teacherToken, wantCode: http.StatusOK, extra: true},
		{
			name: "Starting twice fails", path: "/api/sessions/" + sess.ID + "/start", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "cannot be started in current status"}),
		},
		{
			name: "Unknown session", path: "/api/sessions/nope/start", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "session not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if started, ok := tt.extra.(bool); ok && started {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %v", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData session.Session
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if !respData.IsInProgress() {
					t.Errorf("failed! Status = %v; want %v", respData.Status, session.StatusInProgress)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sessionApi_sessionCancel(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	sub := testutil.CreateSubscription(t, subRepo, student.ID, teacher.ID, 4, 1, subscription.StatusActive)
	wk := testutil.CreateWeek(t, wkRepo, sub.ID, 1, schedule.WeekStatusApproved)
	slot1 := testutil.CreateSlot(t, wkRepo, wk.ID, base, time.Hour)
	slot2 := testutil.CreateSlot(t, wkRepo, wk.ID, base.Add(24*time.Hour), time.Hour)
	sess1 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot1.ID, slot1.StartAt, slot1.EndAt, session.StatusScheduled)
	sess2 := testutil.CreateSession(t, sessRepo, sub.ID, wk.ID, slot2.ID, slot2.StartAt, slot2.EndAt, session.StatusScheduled)

	teacherToken := getToken(t, teacher)

	tests := []httpTest{
		{name: "Auth required", path: "/api/sessions/" + sess1.ID + "/cancel", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teachers only", path: "/api/sessions/" + sess1.ID + "/cancel", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Cancelled", path: "/api/sessions/" + sess1.ID + "/cancel", token: teacherToken, wantCode: http.StatusOK, extra: true},
		{
			name: "Cancelling twice fails", path: "/api/sessions/" + sess1.ID + "/cancel", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "cannot be cancelled in current status"}),
		},
		{name: "Admin can cancel", path: "/api/sessions/" + sess2.ID + "/cancel", token: getToken(t, admin), wantCode: http.StatusOK, extra: true},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if cancelled, ok := tt.extra.(bool); ok && cancelled {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %v", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData session.Session
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if !respData.IsCancelled() {
					t.Errorf("failed! Status = %v; want %v", respData.Status, session.StatusCancelled)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
