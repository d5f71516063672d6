package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/subscription"
)

type scheduleApi struct {
	svc      schedule.Service
	subSvc   subscription.Service
	validate *validator.Validate
}

func registerScheduleAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc schedule.Service,
	subSvc subscription.Service,
	validate *validator.Validate,
) {
	api := scheduleApi{
		svc:      svc,
		subSvc:   subSvc,
		validate: validate,
	}

	sg := g.Group("/subscriptions", jwt)
	sg.GET("/:id/weeks", api.queryWeeks)
	sg.POST("/:id/weeks", api.startWeek, studentMiddleware())
	sg.POST("/:id/approve-week", api.approveWeek, teacherMiddleware())
	sg.POST("/:id/decline-week", api.declineWeek, teacherMiddleware())

	wg := g.Group("/weeks", jwt)
	wg.GET("/:id", api.retrieveWeek)
	wg.POST("/:id/slots", api.addSlot, studentMiddleware())
	wg.POST("/:id/submit", api.submitWeek, studentMiddleware())
}

// Handlers

func (api *scheduleApi) queryWeeks(ctx echo.Context) error {
	sub, err := getGuardedSubscription(ctx, api.subSvc, ctx.Param("id"), canViewSubscription)
	if err != nil {
		return err
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	weeks, err := api.svc.Filter(ctx.Request().Context(), schedule.QueryFilter{SubscriptionID: sub.ID}, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying weeks")
	}
	if weeks == nil {
		weeks = []schedule.SubscriptionWeek{}
	}
	return ctx.JSON(http.StatusOK, weeks)
}

func (api *scheduleApi) startWeek(ctx echo.Context) error {
	sub, err := getGuardedSubscription(ctx, api.subSvc, ctx.Param("id"), ownsSubscription)
	if err != nil {
		return err
	}

	wk, err := api.svc.StartWeek(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "starting week")
	}
	return ctx.JSON(http.StatusCreated, wk)
}

func (api *scheduleApi) approveWeek(ctx echo.Context) error {
	var data ApproveWeekRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApproveWeekRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := getGuardedSubscription(ctx, api.subSvc, ctx.Param("id"), canTeachSubscription)
	if err != nil {
		return err
	}

	wk, sessions, err := api.svc.ApproveWeek(ctx.Request().Context(), sub.ID, data.WeekID)
	if err != nil {
		return errors.Wrap(err, "approving week")
	}

	approved := make([]ApprovedSession, 0, len(sessions))
	for _, sess := range sessions {
		approved = append(approved, ApprovedSession{
			ID:          sess.ID,
			StartAt:     sess.StartAt,
			ZoomJoinURL: sess.ZoomJoinURL,
		})
	}
	return ctx.JSON(http.StatusOK, ApproveWeekResponse{
		Success:         true,
		Status:          wk.Status,
		SessionsCreated: len(sessions),
		Sessions:        approved,
	})
}

func (api *scheduleApi) declineWeek(ctx echo.Context) error {
	var data DeclineWeekRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeclineWeekRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := getGuardedSubscription(ctx, api.subSvc, ctx.Param("id"), canTeachSubscription)
	if err != nil {
		return err
	}

	wk, err := api.svc.DeclineWeek(ctx.Request().Context(), sub.ID, data.WeekID, data.Reason)
	if err != nil {
		return errors.Wrap(err, "declining week")
	}
	return ctx.JSON(http.StatusOK, DeclineWeekResponse{
		Success: true,
		Status:  wk.Status,
		WeekID:  wk.ID,
	})
}

func (api *scheduleApi) retrieveWeek(ctx echo.Context) error {
	wk, slots, err := api.svc.GetWeek(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding week by ID")
	}
	if _, err = getGuardedSubscription(ctx, api.subSvc, wk.SubscriptionID, canViewSubscription); err != nil {
		return err
	}

	if slots == nil {
		slots = []schedule.WeekSlot{}
	}
	return ctx.JSON(http.StatusOK, WeekDetailResponse{SubscriptionWeek: wk, Slots: slots})
}

func (api *scheduleApi) addSlot(ctx echo.Context) error {
	var data schedule.NewSlot
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSlot")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	wk, _, err := api.svc.GetWeek(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding week by ID")
	}
	if _, err = getGuardedSubscription(ctx, api.subSvc, wk.SubscriptionID, ownsSubscription); err != nil {
		return err
	}

	slot, err := api.svc.AddSlot(ctx.Request().Context(), wk.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding slot")
	}
	return ctx.JSON(http.StatusCreated, slot)
}

func (api *scheduleApi) submitWeek(ctx echo.Context) error {
	wk, _, err := api.svc.GetWeek(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding week by ID")
	}
	if _, err = getGuardedSubscription(ctx, api.subSvc, wk.SubscriptionID, ownsSubscription); err != nil {
		return err
	}

	wk, err = api.svc.SubmitWeek(ctx.Request().Context(), wk.ID)
	if err != nil {
		return errors.Wrap(err, "submitting week")
	}
	return ctx.JSON(http.StatusOK, wk)
}

type (
	ApproveWeekRequest struct {
		WeekID string `json:"week_id" validate:"required"`
	}

	DeclineWeekRequest struct {
		WeekID string `json:"week_id" validate:"required"`
		Reason string `json:"reason"`
	}

	ApprovedSession struct {
		ID          string      `json:"id"`
		StartAt     time.Time   `json:"start_at"`
		ZoomJoinURL null.String `json:"zoom_join_url"`
	}

	ApproveWeekResponse struct {
		Success         bool                `json:"success"`
		Status          schedule.WeekStatus `json:"status"`
		SessionsCreated int                 `json:"sessions_created"`
		Sessions        []ApprovedSession   `json:"sessions"`
	}

	DeclineWeekResponse struct {
		Success bool                `json:"success"`
		Status  schedule.WeekStatus `json:"status"`
		WeekID  string              `json:"week_id"`
	}

	WeekDetailResponse struct {
		schedule.SubscriptionWeek
		Slots []schedule.WeekSlot `json:"slots"`
	}
)

func (ar *ApproveWeekRequest) Validate(validate *validator.Validate) error {
	ar.WeekID = core.CleanString(ar.WeekID)
	return validate.Struct(ar)
}

func (dr *DeclineWeekRequest) Validate(validate *validator.Validate) error {
	dr.WeekID = core.CleanString(dr.WeekID)
	dr.Reason = core.CleanString(dr.Reason)
	return validate.Struct(dr)
}
