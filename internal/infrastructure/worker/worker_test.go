package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

type fakeWorker struct {
	name     string
	startErr error
	stopErr  error

	mu     sync.Mutex
	events *[]string
}

func (w *fakeWorker) Start(context.Context) error {
	w.record("start " + w.name)
	return w.startErr
}

func (w *fakeWorker) Stop() error {
	w.record("stop " + w.name)
	return w.stopErr
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) record(e string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	*w.events = append(*w.events, e)
}

func TestWorkerManagerLifecycle(t *testing.T) {
	var events []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", events: &events})
	m.Register(&fakeWorker{name: "b", events: &events})
	assert.Equal(t, 2, m.GetWorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)

	// Stopping twice is harmless
	assert.NoError(t, m.StopAll())
}

func TestWorkerManagerReportsFailures(t *testing.T) {
	var events []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&fakeWorker{name: "bad", startErr: errors.New("no"), stopErr: errors.New("stuck"), events: &events})
	m.Register(&fakeWorker{name: "good", events: &events})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, events, "start good")

	err = m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

type fakeProcessor struct {
	calls    atomic.Int32
	err      error
	tasks    []*entity.Task
	deadline atomic.Bool
}

func (p *fakeProcessor) ProcessAutomatic(ctx context.Context, projectID *int64) ([]*entity.Task, error) {
	p.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		p.deadline.Store(true)
	}
	return p.tasks, p.err
}

func TestAutomaticWorkerRunOnce(t *testing.T) {
	p := &fakeProcessor{tasks: []*entity.Task{{ID: 1}, {ID: 2}}}
	w := NewAutomaticTransitionWorker(AutomaticWorkerConfig{PassTimeout: time.Minute}, p, zap.NewNop())

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, p.deadline.Load())

	p.err = errors.New("db down")
	p.tasks = nil
	_, err = w.RunOnce(context.Background())
	assert.Error(t, err)

	stats := w.Stats()
	assert.Equal(t, 2, stats.Passes)
	assert.Equal(t, 2, stats.ProcessedTasks)
	assert.Equal(t, 1, stats.FailedPasses)
	assert.Equal(t, "db down", stats.LastError)
}

func TestAutomaticWorkerRejectsBadSchedule(t *testing.T) {
	w := NewAutomaticTransitionWorker(AutomaticWorkerConfig{Schedule: "every now and then"}, &fakeProcessor{}, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}

func TestAutomaticWorkerRunsOnSchedule(t *testing.T) {
	p := &fakeProcessor{}
	w := NewAutomaticTransitionWorker(AutomaticWorkerConfig{Schedule: "@every 1s"}, p, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return p.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, w.Stop())

	calls := p.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, p.calls.Load())
}
