package background

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cravebiz/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

const RecurrenceJobName = "recurrence-run"

// JobScheduler runs the periodic recurrence job and records its outcome.
type JobScheduler struct {
	scheduler  gocron.Scheduler
	recurrence services.RecurrenceEngine
	log        zerolog.Logger
	now        func() time.Time
	timeout    time.Duration

	mu      sync.RWMutex
	jobs    map[string]gocron.Job
	lastRun *RunRecord
	running bool
}

// RunRecord is the outcome of the latest recurrence run.
type RunRecord struct {
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Result     *services.RecurrenceRun `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

type JobStatus struct {
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

type SchedulerStatus struct {
	TotalJobs  int         `json:"total_jobs"`
	Jobs       []JobStatus `json:"jobs"`
	Running    bool        `json:"running"`
	Recurrence *RunRecord  `json:"recurrence,omitempty"`
}

// NewJobScheduler registers the recurrence job every interval. Each run is
// bounded by timeout.
func NewJobScheduler(recurrence services.RecurrenceEngine, interval, timeout time.Duration, log zerolog.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = interval
	}

	js := &JobScheduler{
		scheduler:  scheduler,
		recurrence: recurrence,
		log:        log,
		now:        time.Now,
		timeout:    timeout,
		jobs:       make(map[string]gocron.Job),
	}
	if err := js.registerJobs(interval); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) Start() {
	js.log.Info().Int("jobs", len(js.jobs)).Msg("starting background job scheduler")
	js.scheduler.Start()
}

func (js *JobScheduler) Stop() error {
	js.log.Info().Msg("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs(interval time.Duration) error {
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(js.runScheduled),
		gocron.WithName(RecurrenceJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	js.jobs[RecurrenceJobName] = job
	return nil
}

func (js *JobScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), js.timeout)
	defer cancel()
	if _, err := js.RunRecurrence(ctx, js.now()); err != nil && !errors.Is(err, ErrRunInProgress) {
		js.log.Error().Err(err).Msg("scheduled recurrence run failed")
	}
}

var ErrRunInProgress = errors.New("recurrence run already in progress")

// RunRecurrence fires due templates as of asOf and records the outcome.
// Overlapping calls in this process are rejected with ErrRunInProgress.
func (js *JobScheduler) RunRecurrence(ctx context.Context, asOf time.Time) (*services.RecurrenceRun, error) {
	js.mu.Lock()
	if js.running {
		js.mu.Unlock()
		return nil, ErrRunInProgress
	}
	js.running = true
	js.mu.Unlock()

	record := &RunRecord{StartedAt: js.now()}
	run, err := js.recurrence.RunDue(ctx, asOf)
	record.FinishedAt = js.now()
	record.Result = run
	if err != nil {
		record.Error = err.Error()
	}

	js.mu.Lock()
	js.running = false
	js.lastRun = record
	js.mu.Unlock()
	return run, err
}

// GetJobStatus reports the registered jobs and the latest recurrence run.
func (js *JobScheduler) GetJobStatus() SchedulerStatus {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := SchedulerStatus{
		TotalJobs:  len(js.jobs),
		Jobs:       make([]JobStatus, 0, len(js.jobs)),
		Running:    js.running,
		Recurrence: js.lastRun,
	}
	for name, job := range js.jobs {
		s := JobStatus{Name: name}
		if next, err := job.NextRun(); err == nil && !next.IsZero() {
			s.NextRun = &next
		}
		if last, err := job.LastRun(); err == nil && !last.IsZero() {
			s.LastRun = &last
		}
		status.Jobs = append(status.Jobs, s)
	}
	sort.Slice(status.Jobs, func(i, j int) bool { return status.Jobs[i].Name < status.Jobs[j].Name })
	return status
}
