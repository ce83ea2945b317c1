package echoapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/ledger"
)

type ledgerApi struct {
	svc      *ledger.Service
	validate *validator.Validate
}

func registerLedgerAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *ledger.Service) {
	api := ledgerApi{
		svc:      svc,
		validate: core.Validate,
	}

	// all endpoints require an authed student session
	cg := g.Group("/courses/:id", jwt)
	cg.POST("/enroll", api.enroll)
	cg.DELETE("/enroll", api.unenroll)
	cg.POST("/lessons/:lessonID/complete", api.completeLesson)
	cg.POST("/lessons/:lessonID/parts/:part/complete", api.completePart)
	cg.POST("/exams/:examID/result", api.recordExamResult)
	cg.GET("/progress", api.progress)
	cg.GET("/events", api.events)
	cg.POST("/rating", api.rate)
	cg.GET("/rating", api.courseRating)

	g.GET("/achievements", api.achievements, jwt)

	ag := g.Group("/analytics", jwt)
	ag.GET("/weekly", api.weekly)
	ag.GET("/monthly", api.monthly)
	ag.GET("/streak", api.streak)

	g.POST("/repair", api.repair, jwt, adminMiddleware())
}

// Handlers

func (api *ledgerApi) enroll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enr, err := api.svc.Enroll(api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *ledgerApi) unenroll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err = api.svc.Unenroll(api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *ledgerApi) completeLesson(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enr, err := api.svc.RecordLessonCompletion(
		api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"), ctx.Param("lessonID"))
	if err != nil {
		if errors.Cause(err) == ledger.ErrInvalidReference {
			return core.NewValidationError(nil, core.FieldError{Field: "lessonID", Error: err.Error()})
		}
		return errors.Wrap(err, "recording lesson completion")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *ledgerApi) completePart(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	part, err := strconv.Atoi(ctx.Param("part"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "part", Error: "must be an integer"})
	}

	enr, err := api.svc.RecordPartCompletion(
		api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"), ctx.Param("lessonID"), part)
	if err != nil {
		if errors.Cause(err) == ledger.ErrInvalidReference {
			return core.NewValidationError(nil, core.FieldError{Field: "part", Error: err.Error()})
		}
		return errors.Wrap(err, "recording part completion")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *ledgerApi) recordExamResult(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ExamResultRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ExamResultRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ev, err := api.svc.RecordExamResult(
		api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"), ctx.Param("examID"), data.Score)
	if err != nil {
		if errors.Cause(err) == ledger.ErrInvalidReference {
			return core.NewValidationError(nil, core.FieldError{Field: "examID", Error: err.Error()})
		}
		return errors.Wrap(err, "recording exam result")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *ledgerApi) progress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enr, err := api.svc.GetProgress(api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *ledgerApi) events(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	events, err := api.svc.ListEvents(api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing events")
	}
	if events == nil {
		events = []ledger.CompletionEvent{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *ledgerApi) rate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data RatingRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RatingRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rating, err := api.svc.RateCourse(
		api.serviceContext(ctx, claims), claims.Subject, ctx.Param("id"), data.Stars, data.Comment)
	if err != nil {
		return errors.Wrap(err, "rating course")
	}
	return ctx.JSON(http.StatusCreated, rating)
}

func (api *ledgerApi) courseRating(ctx echo.Context) error {
	summary, err := api.svc.CourseRating(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course rating")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *ledgerApi) achievements(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	certs, err := api.svc.GetAchievements(api.serviceContext(ctx, claims), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing achievements")
	}
	if certs == nil {
		certs = []ledger.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *ledgerApi) weekly(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	buckets, err := api.svc.WeeklyProgress(api.serviceContext(ctx, claims), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "computing weekly progress")
	}
	return ctx.JSON(http.StatusOK, buckets)
}

func (api *ledgerApi) monthly(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	buckets, err := api.svc.MonthlyProgress(api.serviceContext(ctx, claims), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "computing monthly progress")
	}
	return ctx.JSON(http.StatusOK, buckets)
}

func (api *ledgerApi) streak(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	days, err := api.svc.Streak(api.serviceContext(ctx, claims), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "computing streak")
	}
	return ctx.JSON(http.StatusOK, StreakResponse{Days: days})
}

func (api *ledgerApi) repair(ctx echo.Context) error {
	var data RepairRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RepairRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Repair(ctx.Request().Context(), data.StudentID, data.CourseID)
	if err != nil {
		return errors.Wrap(err, "repairing ledger")
	}
	return ctx.JSON(http.StatusOK, res)
}

// serviceContext carries the session email down to the service so certificate
// congratulations know their recipient.
func (api *ledgerApi) serviceContext(ctx echo.Context, claims Claims) context.Context {
	return ledger.WithStudentEmail(ctx.Request().Context(), claims.Email)
}

type (
	// a zero score is a legal result so Score carries no required tag
	ExamResultRequest struct {
		Score ledger.Score `json:"score"`
	}

	RatingRequest struct {
		Stars   int    `json:"stars" validate:"required,min=1,max=5"`
		Comment string `json:"comment"`
	}

	RepairRequest struct {
		StudentID string `json:"student_id" validate:"required"`
		CourseID  string `json:"course_id" validate:"required"`
	}

	StreakResponse struct {
		Days int `json:"days"`
	}
)

func (er *ExamResultRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(er)
}

func (rr *RatingRequest) Validate(validate *validator.Validate) error {
	rr.Comment = core.CleanString(rr.Comment)
	return validate.Struct(rr)
}

func (rr *RepairRequest) Validate(validate *validator.Validate) error {
	rr.StudentID = core.CleanString(rr.StudentID)
	rr.CourseID = core.CleanString(rr.CourseID)
	return validate.Struct(rr)
}
