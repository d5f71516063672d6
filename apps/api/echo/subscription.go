package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/subscription"
	"github.com/trezcool/darasa/core/user"
)

var errNotATeacher = "this user is not a teacher"

type subscriptionApi struct {
	svc      subscription.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerSubscriptionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc subscription.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := subscriptionApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	sg := g.Group("/subscriptions", jwt)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/assign-teacher", api.assignTeacher, adminMiddleware())
	sg.POST("/:id/cancel", api.cancel, adminMiddleware())
}

// Handlers

func (api *subscriptionApi) create(ctx echo.Context) error {
	var data subscription.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.TeacherID != "" {
		if err := api.checkTeacher(ctx, data.TeacherID); err != nil {
			return err
		}
	}

	sub, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subscription")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *subscriptionApi) query(ctx echo.Context) error {
	filter := new(subscription.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []subscription.Subscription{})
	}
	filter.Clean()

	// non-admins only ever see their own subscriptions
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		if claims.IsTeacher {
			filter.TeacherID = claims.Subject
		} else {
			filter.StudentID = claims.Subject
		}
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	subs, err := api.svc.Filter(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *subscriptionApi) retrieve(ctx echo.Context) error {
	sub, err := getGuardedSubscription(ctx, api.svc, ctx.Param("id"), canViewSubscription)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) assignTeacher(ctx echo.Context) error {
	var data AssignTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacherRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.checkTeacher(ctx, data.TeacherID); err != nil {
		return err
	}

	sub, err := api.svc.AssignTeacher(ctx.Request().Context(), ctx.Param("id"), data.TeacherID)
	if err != nil {
		return errors.Wrap(err, "assigning teacher")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) cancel(ctx echo.Context) error {
	sub, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// checkTeacher rejects user IDs that do not belong to an active teacher.
func (api *subscriptionApi) checkTeacher(ctx echo.Context, teacherID string) error {
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errNotATeacher})
		}
		return errors.Wrap(err, "finding teacher by ID")
	}
	if !(usr.IsTeacher() && usr.IsActive) {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errNotATeacher})
	}
	return nil
}

// Guards

// canViewSubscription admits the subscription's student, its teacher and admins.
func canViewSubscription(claims Claims, sub subscription.Subscription) bool {
	if claims.IsAdmin {
		return true
	}
	if claims.IsStudent && sub.StudentID == claims.Subject {
		return true
	}
	return claims.IsTeacher && sub.TeacherID.Valid && sub.TeacherID.String == claims.Subject
}

// canTeachSubscription admits the subscription's own teacher and admins.
func canTeachSubscription(claims Claims, sub subscription.Subscription) bool {
	if claims.IsAdmin {
		return true
	}
	return claims.IsTeacher && sub.TeacherID.Valid && sub.TeacherID.String == claims.Subject
}

// ownsSubscription admits the subscribed student only.
func ownsSubscription(claims Claims, sub subscription.Subscription) bool {
	return claims.IsStudent && sub.StudentID == claims.Subject
}

// getGuardedSubscription loads a subscription and applies the given access
// rule. Callers failing the rule get a plain not found; whether the
// subscription exists is none of their business.
func getGuardedSubscription(
	ctx echo.Context,
	svc subscription.Service,
	id string,
	allowed func(Claims, subscription.Subscription) bool,
) (subscription.Subscription, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "getting context claims")
	}

	sub, err := svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "finding subscription by ID")
	}
	if !allowed(claims, sub) {
		return subscription.Subscription{}, errHttpNotFound
	}
	return sub, nil
}

type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

func (ar *AssignTeacherRequest) Validate(validate *validator.Validate) error {
	ar.TeacherID = core.CleanString(ar.TeacherID)
	return validate.Struct(ar)
}
