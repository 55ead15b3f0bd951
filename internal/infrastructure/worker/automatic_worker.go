package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

// AutomaticProcessor runs one automatic transition pass
type AutomaticProcessor interface {
	ProcessAutomatic(ctx context.Context, projectID *int64) ([]*entity.Task, error)
}

// AutomaticWorkerConfig holds configuration for the automatic transition worker
type AutomaticWorkerConfig struct {
	// Schedule is a standard five-field cron expression or a descriptor such as "@every 5m"
	Schedule string

	// PassTimeout bounds a single pass; zero means no limit
	PassTimeout time.Duration
}

// DefaultAutomaticWorkerConfig returns default configuration
func DefaultAutomaticWorkerConfig() AutomaticWorkerConfig {
	return AutomaticWorkerConfig{
		Schedule:    "@every 5m",
		PassTimeout: 2 * time.Minute,
	}
}

// AutomaticWorkerStats summarises the passes run so far
type AutomaticWorkerStats struct {
	Passes         int
	ProcessedTasks int
	FailedPasses   int
	LastRun        time.Time
	LastError      string
}

// AutomaticTransitionWorker periodically runs the automatic transition
// processor across all projects. Overlapping runs are skipped.
type AutomaticTransitionWorker struct {
	config    AutomaticWorkerConfig
	processor AutomaticProcessor
	logger    *zap.Logger

	mu        sync.RWMutex
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	stats     AutomaticWorkerStats
}

// NewAutomaticTransitionWorker creates a new automatic transition worker
func NewAutomaticTransitionWorker(config AutomaticWorkerConfig, processor AutomaticProcessor, logger *zap.Logger) *AutomaticTransitionWorker {
	if config.Schedule == "" {
		config.Schedule = DefaultAutomaticWorkerConfig().Schedule
	}
	return &AutomaticTransitionWorker{
		config:    config,
		processor: processor,
		logger:    logger,
	}
}

// ValidateSchedule checks a standard cron expression or @every descriptor
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid automatic transition schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules the periodic pass
func (w *AutomaticTransitionWorker) Start(ctx context.Context) error {
	if err := ValidateSchedule(w.config.Schedule); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("automatic transition worker already running")
	}

	cronLog := cronLogger{logger: w.logger}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLog),
		cron.Recover(cronLog),
	))
	if _, err := c.AddFunc(w.config.Schedule, w.run); err != nil {
		return fmt.Errorf("failed to schedule automatic transitions: %w", err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.cron = c
	w.isRunning = true
	c.Start()

	w.logger.Info("AutomaticTransitionWorker started",
		zap.String("schedule", w.config.Schedule),
		zap.Duration("pass_timeout", w.config.PassTimeout))

	return nil
}

// Stop halts scheduling and waits for a running pass to finish
func (w *AutomaticTransitionWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	c, cancel := w.cron, w.cancel
	w.mu.Unlock()

	cancel()
	<-c.Stop().Done()

	stats := w.Stats()
	w.logger.Info("AutomaticTransitionWorker stopped",
		zap.Int("passes", stats.Passes),
		zap.Int("processed_tasks", stats.ProcessedTasks))

	return nil
}

// Name returns the worker name for identification
func (w *AutomaticTransitionWorker) Name() string {
	return "AutomaticTransitionWorker"
}

// Stats returns a snapshot of the worker's counters
func (w *AutomaticTransitionWorker) Stats() AutomaticWorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *AutomaticTransitionWorker) run() {
	w.mu.RLock()
	ctx := w.ctx
	w.mu.RUnlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, _ = w.RunOnce(ctx)
}

// RunOnce executes a single pass immediately, bounded by PassTimeout
func (w *AutomaticTransitionWorker) RunOnce(ctx context.Context) (int, error) {
	if w.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.PassTimeout)
		defer cancel()
	}

	start := time.Now()
	tasks, err := w.processor.ProcessAutomatic(ctx, nil)

	w.mu.Lock()
	w.stats.Passes++
	w.stats.ProcessedTasks += len(tasks)
	w.stats.LastRun = start
	if err != nil {
		w.stats.FailedPasses++
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Automatic transition pass failed",
			zap.Int("processed", len(tasks)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return len(tasks), err
	}

	if len(tasks) > 0 {
		w.logger.Info("Automatic transition pass completed",
			zap.Int("processed", len(tasks)),
			zap.Duration("duration", time.Since(start)))
	} else {
		w.logger.Debug("Automatic transition pass found nothing to do")
	}
	return len(tasks), nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
