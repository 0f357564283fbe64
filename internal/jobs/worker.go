package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/plantops/valve-ledger-api/internal/metrics"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker manages background jobs and scheduled tasks
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup // schedulers
	drain         sync.WaitGroup // queue consumers and async jobs
	queue         chan Job
	asyncSem      chan struct{}
	maxConcurrent int
	stats         WorkerStats
	schedules     map[string]*ScheduleStats
	statsMu       sync.RWMutex
	closeOnce     sync.Once
}

// WorkerStats holds statistics about the worker.
// CompletedJobs counts every finished job; FailedJobs is the failing subset.
type WorkerStats struct {
	ActiveJobs    int             `json:"active_jobs"`
	CompletedJobs int64           `json:"completed_jobs"`
	FailedJobs    int64           `json:"failed_jobs"`
	QueueLength   int             `json:"queue_length"`
	MaxConcurrent int             `json:"max_concurrent"`
	Schedules     []ScheduleStats `json:"schedules"`
}

// ScheduleStats describes one recurring job
type ScheduleStats struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	Runs      int64      `json:"runs"`
	LastRunAt *time.Time `json:"last_run_at"`
	LastError string     `json:"last_error,omitempty"`
}

// NewWorker creates a worker with N concurrent processors
func NewWorker(numWorkers int) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	// Allow 2x workers for async jobs
	asyncLimit := numWorkers * 2
	if asyncLimit < 10 {
		asyncLimit = 10
	}

	w := &Worker{
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan Job, 100),
		asyncSem:      make(chan struct{}, asyncLimit),
		maxConcurrent: asyncLimit,
		schedules:     make(map[string]*ScheduleStats),
	}

	for i := 0; i < numWorkers; i++ {
		w.drain.Add(1)
		go w.process(i)
	}

	return w
}

// Enqueue adds a job to be processed by the worker pool
func (w *Worker) Enqueue(job Job) {
	select {
	case w.queue <- job:
	default:
		logger.Warn("worker queue full, running job synchronously")
		if err := job(w.ctx); err != nil {
			logger.Error("worker job failed", "error", err)
		}
	}
}

// EnqueueAsync runs a job in a new goroutine (fire-and-forget), bounded by semaphore
func (w *Worker) EnqueueAsync(job Job) {
	w.drain.Add(1)
	go func() {
		defer w.drain.Done()

		w.asyncSem <- struct{}{}
		defer func() { <-w.asyncSem }()

		w.trackJobStart()
		defer w.trackJobEnd()

		defer func() {
			if r := recover(); r != nil {
				logger.Error("async job panic", "panic", r)
				w.trackJobFailure()
			}
		}()

		if err := job(w.ctx); err != nil {
			logger.Error("async job failed", "error", err)
			w.trackJobFailure()
		}
	}()
}

// process handles jobs from the queue until it is closed
func (w *Worker) process(workerID int) {
	defer w.drain.Done()
	for job := range w.queue {
		w.trackJobStart()
		start := time.Now()
		if err := job(w.ctx); err != nil {
			logger.Error("queued job failed", "worker", workerID, "error", err)
			w.trackJobFailure()
		} else {
			logger.Debug("queued job completed", "worker", workerID, "elapsed", time.Since(start))
		}
		w.trackJobEnd()
	}
}

// ScheduleEvery runs a named job at fixed intervals. The first run happens after the interval.
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, false, job)
}

// ScheduleEveryImmediate runs a named job once at startup, then at fixed intervals.
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, true, job)
}

func (w *Worker) schedule(name string, interval time.Duration, immediate bool, job Job) {
	w.statsMu.Lock()
	w.schedules[name] = &ScheduleStats{Name: name, Interval: interval.String()}
	w.statsMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.runScheduledJob(name, job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.runScheduledJob(name, job)
			}
		}
	}()
}

func (w *Worker) runScheduledJob(name string, job Job) {
	w.trackJobStart()
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled job panic", "job", name, "panic", r)
			w.trackJobFailure()
			w.trackRun(name, start, "panic")
		}
		w.trackJobEnd()
	}()

	err = job(w.ctx)
	if err != nil {
		logger.Error("scheduled job failed", "job", name, "error", err)
		w.trackJobFailure()
		w.trackRun(name, start, err.Error())
		return
	}
	logger.Info("scheduled job completed", "job", name, "elapsed", time.Since(start))
	w.trackRun(name, start, "")
}

// Shutdown finishes queued and in-flight jobs, then stops the schedulers
func (w *Worker) Shutdown() {
	w.closeOnce.Do(func() {
		close(w.queue)
		w.drain.Wait()
		w.cancel()
		w.wg.Wait()
	})
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.QueueLength = len(w.queue)
	stats.MaxConcurrent = w.maxConcurrent
	stats.Schedules = make([]ScheduleStats, 0, len(w.schedules))
	for _, s := range w.schedules {
		stats.Schedules = append(stats.Schedules, *s)
	}
	return stats
}

func (w *Worker) trackJobStart() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
}

func (w *Worker) trackJobEnd() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

func (w *Worker) trackJobFailure() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.FailedJobs++
}

func (w *Worker) trackRun(name string, at time.Time, errMsg string) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	s, ok := w.schedules[name]
	if !ok {
		return
	}
	s.Runs++
	s.LastRunAt = &at
	s.LastError = errMsg

	result := "ok"
	if errMsg != "" {
		result = "error"
	}
	metrics.ScheduledJobRunsTotal.WithLabelValues(name, result).Inc()
	metrics.ScheduledJobDuration.WithLabelValues(name).Observe(time.Since(at).Seconds())
}
