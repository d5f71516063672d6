package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/subscription"
)

var errSubscriptionIDRequired = "subscription_id is required"

type sessionApi struct {
	svc    session.Service
	subSvc subscription.Service
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc session.Service, subSvc subscription.Service) {
	api := sessionApi{
		svc:    svc,
		subSvc: subSvc,
	}

	sg := g.Group("/sessions", jwt)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/complete", api.complete, teacherMiddleware())
	sg.POST("/:id/approve-postpone", api.approvePostpone, teacherMiddleware())
	sg.POST("/:id/request-postpone", api.requestPostpone, studentMiddleware())
	sg.POST("/:id/start", api.start, teacherMiddleware())
	sg.POST("/:id/cancel", api.cancel, teacherMiddleware())
}

// Handlers

func (api *sessionApi) query(ctx echo.Context) error {
	filter := new(session.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []session.Session{})
	}
	filter.Clean()

	// non-admins must scope to a subscription of theirs
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		if filter.SubscriptionID == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "subscription_id", Error: errSubscriptionIDRequired})
		}
		if _, err = getGuardedSubscription(ctx, api.subSvc, filter.SubscriptionID, canViewSubscription); err != nil {
			return err
		}
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	sessions, err := api.svc.Filter(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	sess, err := api.getGuardedSession(ctx, canViewSubscription)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) complete(ctx echo.Context) error {
	sess, err := api.getGuardedSession(ctx, canTeachSubscription)
	if err != nil {
		return err
	}

	_, sub, err := api.svc.Complete(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "completing session")
	}
	return ctx.JSON(http.StatusOK, CompleteSessionResponse{
		Success:            true,
		SessionsRemaining:  sub.SessionsRemaining,
		SubscriptionStatus: sub.Status,
	})
}

func (api *sessionApi) approvePostpone(ctx echo.Context) error {
	sess, err := api.getGuardedSession(ctx, canTeachSubscription)
	if err != nil {
		return err
	}

	_, sub, err := api.svc.ApprovePostpone(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "approving postpone")
	}
	return ctx.JSON(http.StatusOK, ApprovePostponeResponse{
		Success:           true,
		PostponeRemaining: sub.PostponeRemaining,
	})
}

func (api *sessionApi) requestPostpone(ctx echo.Context) error {
	sess, err := api.getGuardedSession(ctx, ownsSubscription)
	if err != nil {
		return err
	}

	sess, err = api.svc.RequestPostpone(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "requesting postpone")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) start(ctx echo.Context) error {
	sess, err := api.getGuardedSession(ctx, canTeachSubscription)
	if err != nil {
		return err
	}

	sess, err = api.svc.Start(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) cancel(ctx echo.Context) error {
	sess, err := api.getGuardedSession(ctx, canTeachSubscription)
	if err != nil {
		return err
	}

	sess, err = api.svc.Cancel(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "cancelling session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// getGuardedSession loads the session then applies the access rule against
// its parent subscription.
func (api *sessionApi) getGuardedSession(
	ctx echo.Context,
	allowed func(Claims, subscription.Subscription) bool,
) (session.Session, error) {
	sess, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "finding session by ID")
	}
	if _, err = getGuardedSubscription(ctx, api.subSvc, sess.SubscriptionID, allowed); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

type (
	CompleteSessionResponse struct {
		Success            bool                `json:"success"`
		SessionsRemaining  int                 `json:"sessions_remaining"`
		SubscriptionStatus subscription.Status `json:"subscription_status"`
	}

	ApprovePostponeResponse struct {
		Success           bool `json:"success"`
		PostponeRemaining int  `json:"postpone_remaining"`
	}
)
