package background

import (
	"context"
	"errors"
	"testing"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/services"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRecurrenceEngine struct {
	mock.Mock
}

func (m *MockRecurrenceEngine) RunDue(ctx context.Context, asOf time.Time) (*services.RecurrenceRun, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RecurrenceRun), args.Error(1)
}

func newTestScheduler(t *testing.T, engine services.RecurrenceEngine) *JobScheduler {
	t.Helper()
	js, err := NewJobScheduler(engine, time.Hour, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Stop() })
	return js
}

func TestNewJobScheduler_RegistersRecurrence(t *testing.T) {
	js := newTestScheduler(t, &MockRecurrenceEngine{})

	status := js.GetJobStatus()

	assert.Equal(t, 1, status.TotalJobs)
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, RecurrenceJobName, status.Jobs[0].Name)
	assert.Nil(t, status.Recurrence)
	assert.False(t, status.Running)
}

func TestRunRecurrence_RecordsResult(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	engine := &MockRecurrenceEngine{}
	engine.On("RunDue", ctx, asOf).Return(&services.RecurrenceRun{AsOf: asOf, Templates: 2, Created: 2}, nil)
	js := newTestScheduler(t, engine)

	run, err := js.RunRecurrence(ctx, asOf)

	require.NoError(t, err)
	assert.Equal(t, 2, run.Created)
	last := js.GetJobStatus().Recurrence
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Result.Created)
	assert.Empty(t, last.Error)
	engine.AssertExpectations(t)
}

func TestRunRecurrence_RecordsFailure(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	engine := &MockRecurrenceEngine{}
	runErr := apperror.RecurrenceGeneration("recurrence.run_due", errors.New("template x"))
	engine.On("RunDue", ctx, asOf).Return(&services.RecurrenceRun{AsOf: asOf, Templates: 1}, runErr)
	js := newTestScheduler(t, engine)

	_, err := js.RunRecurrence(ctx, asOf)

	assert.ErrorIs(t, err, apperror.ErrRecurrenceGeneration)
	last := js.GetJobStatus().Recurrence
	require.NotNil(t, last)
	assert.Contains(t, last.Error, "template x")
}

func TestRunRecurrence_RejectsOverlap(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	release := make(chan struct{})
	started := make(chan struct{})
	engine := &MockRecurrenceEngine{}
	engine.On("RunDue", ctx, asOf).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(&services.RecurrenceRun{AsOf: asOf}, nil).Once()
	js := newTestScheduler(t, engine)

	done := make(chan error, 1)
	go func() {
		_, err := js.RunRecurrence(ctx, asOf)
		done <- err
	}()
	<-started

	_, err := js.RunRecurrence(ctx, asOf)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.True(t, js.GetJobStatus().Running)

	close(release)
	assert.NoError(t, <-done)
	assert.False(t, js.GetJobStatus().Running)
}
