package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/billing"
	"cravebiz/internal/caching"
	"cravebiz/internal/models"
	"cravebiz/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	recurrenceLockName = "recurrence:run"
	recurrenceLockTTL  = 10 * time.Minute

	DefaultMaxCatchUp = 24
)

// RecurrenceEngine fires due recurring templates.
type RecurrenceEngine interface {
	// RunDue materializes every firing date on or before asOf. One template
	// failing does not stop the others; failures are reported in the run and
	// as a RecurrenceGeneration error.
	RunDue(ctx context.Context, asOf time.Time) (*RecurrenceRun, error)
}

type RecurrenceRun struct {
	AsOf      time.Time           `json:"as_of"`
	Templates int                 `json:"templates"`
	Created   int                 `json:"created"`
	Skipped   int                 `json:"skipped"`
	LockHeld  bool                `json:"lock_held"`
	Failures  []RecurrenceFailure `json:"failures,omitempty"`
}

type RecurrenceFailure struct {
	TemplateID uuid.UUID `json:"template_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	FiringDate time.Time `json:"firing_date"`
	Error      string    `json:"error"`
}

// RecurrenceOptions tune the engine; zero fields take defaults.
type RecurrenceOptions struct {
	MaxCatchUp int
	LockTTL    time.Duration
}

type recurrenceService struct {
	invoices   repositories.InvoiceRepository
	cache      caching.CacheService
	maxCatchUp int
	lockTTL    time.Duration
	log        zerolog.Logger
}

// NewRecurrenceService returns the engine. cache guards concurrent workers
// and may be nil for single-process runs.
func NewRecurrenceService(invoices repositories.InvoiceRepository, cache caching.CacheService, opts RecurrenceOptions, log zerolog.Logger) RecurrenceEngine {
	if opts.MaxCatchUp <= 0 {
		opts.MaxCatchUp = DefaultMaxCatchUp
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = recurrenceLockTTL
	}
	return &recurrenceService{invoices: invoices, cache: cache, maxCatchUp: opts.MaxCatchUp, lockTTL: opts.LockTTL, log: log}
}

func (s *recurrenceService) RunDue(ctx context.Context, asOf time.Time) (*RecurrenceRun, error) {
	const op = "recurrence.run_due"
	run := &RecurrenceRun{AsOf: billing.DateOnly(asOf)}

	if s.cache != nil {
		token, ok, err := s.cache.AcquireLock(ctx, recurrenceLockName, s.lockTTL)
		if err != nil {
			return nil, apperror.RecurrenceGeneration(op, fmt.Errorf("acquire lock: %w", err))
		}
		if !ok {
			s.log.Info().Msg("recurrence run already in progress elsewhere")
			run.LockHeld = true
			return run, nil
		}
		defer func() {
			if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), recurrenceLockName, token); err != nil {
				s.log.Warn().Err(err).Msg("release recurrence lock")
			}
		}()
	}

	templates, err := s.invoices.ListDueTemplates(ctx, run.AsOf)
	if err != nil {
		return nil, err
	}
	run.Templates = len(templates)

	var errs []error
	for _, tmpl := range templates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.fire(ctx, tmpl, run); err != nil {
			errs = append(errs, err)
		}
	}

	s.log.Info().
		Time("as_of", run.AsOf).
		Int("templates", run.Templates).
		Int("created", run.Created).
		Int("skipped", run.Skipped).
		Int("failed", len(run.Failures)).
		Msg("recurrence run finished")

	if len(errs) > 0 {
		return run, apperror.RecurrenceGeneration(op, errors.Join(errs...))
	}
	return run, nil
}

// fire materializes tmpl's due dates in order and stops at the first
// failure, leaving the template's next date on the failed occurrence.
func (s *recurrenceService) fire(ctx context.Context, tmpl *models.Invoice, run *RecurrenceRun) error {
	dates := billing.DueDates(tmpl, run.AsOf, s.maxCatchUp)
	if len(dates) == s.maxCatchUp {
		s.log.Warn().Str("template_id", tmpl.ID.String()).Int("limit", s.maxCatchUp).Msg("catch-up limit reached")
	}

	for _, date := range dates {
		next, _ := billing.NextRecurrenceDate(date, tmpl.Frequency)
		created, err := s.materialize(ctx, tmpl, date, next)
		if err != nil {
			s.log.Error().Err(err).
				Str("tenant_id", tmpl.CompanyID.String()).
				Str("template_id", tmpl.ID.String()).
				Time("firing_date", date).
				Msg("recurring instance not generated")
			run.Failures = append(run.Failures, RecurrenceFailure{
				TemplateID: tmpl.ID,
				TenantID:   tmpl.CompanyID,
				FiringDate: date,
				Error:      apperror.UserMessage(err),
			})
			return fmt.Errorf("template %s on %s: %w", tmpl.ID, date.Format(time.DateOnly), err)
		}
		if created {
			run.Created++
		} else {
			run.Skipped++
		}
	}
	return nil
}

func (s *recurrenceService) materialize(ctx context.Context, tmpl *models.Invoice, date, next time.Time) (bool, error) {
	inst, err := billing.BuildInstance(tmpl, date)
	if err != nil {
		return false, err
	}
	return s.invoices.CreateInstanceAndAdvance(ctx, inst, next)
}
