package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/identity"
	"cravebiz/internal/jobs/background"
	"cravebiz/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// JobRunner is satisfied by *background.JobScheduler.
type JobRunner interface {
	GetJobStatus() background.SchedulerStatus
	RunRecurrence(ctx context.Context, asOf time.Time) (*services.RecurrenceRun, error)
}

type JobHandlers struct {
	runner JobRunner
	log    zerolog.Logger
	now    func() time.Time
}

func NewJobHandlers(runner JobRunner, log zerolog.Logger) *JobHandlers {
	return &JobHandlers{runner: runner, log: log, now: time.Now}
}

func (h *JobHandlers) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.runner.GetJobStatus())
}

type runResponse struct {
	Run   *services.RecurrenceRun `json:"run,omitempty"`
	Error string                  `json:"error,omitempty"`
}

// RunRecurrence fires due templates now. An optional date query parameter
// (YYYY-MM-DD) sets the as-of day.
func (h *JobHandlers) RunRecurrence(c echo.Context) error {
	asOf := h.now()
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		asOf = d
	}

	principal, _ := identity.PrincipalFromContext(c.Request().Context())
	h.log.Info().
		Str("user_id", principal.UserID.String()).
		Str("as_of", asOf.Format(time.DateOnly)).
		Msg("manual recurrence run requested")

	run, err := h.runner.RunRecurrence(c.Request().Context(), asOf)
	switch {
	case errors.Is(err, background.ErrRunInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil && run == nil:
		return c.JSON(apperror.StatusCode(err), runResponse{Error: apperror.UserMessage(err)})
	case err != nil:
		// some templates fired; report them with the failures
		return c.JSON(http.StatusMultiStatus, runResponse{Run: run, Error: apperror.UserMessage(err)})
	}
	return c.JSON(http.StatusOK, runResponse{Run: run})
}

// RegisterRoutes mounts the ops surface. Job endpoints require a bearer token.
func RegisterRoutes(e *echo.Echo, health *HealthHandlers, jobs *JobHandlers, verifier identity.TokenVerifier) {
	e.GET("/health", health.HealthCheck)
	e.GET("/health/live", health.LivenessCheck)

	protected := e.Group("/jobs", identity.JWTMiddleware(verifier))
	protected.GET("", jobs.ListJobs)
	protected.POST("/recurrence/run", jobs.RunRecurrence)
}
