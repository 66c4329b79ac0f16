// Package scheduler runs deployment jobs through a bounded, single-flight
// FIFO queue. The concurrency limit is re-read on every dispatch pass.
// This is part of the Imperative Shell - it calls the pure dispatch rules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	corescheduler "github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/scheduler"
)

// =============================================================================
// Collaborators
// =============================================================================

// Runner executes one deployment.
type Runner interface {
	Deploy(ctx context.Context, appID string, force bool) error
}

// LimitFunc returns the current concurrency limit.
type LimitFunc func(ctx context.Context) int

// StaticLimit returns a LimitFunc that always yields n.
func StaticLimit(n int) LimitFunc {
	return func(context.Context) int { return n }
}

// =============================================================================
// Tickets
// =============================================================================

// Ticket is returned by Enqueue. Done receives exactly one Result.
type Ticket struct {
	Job      domain.Job
	Accepted bool
	Done     <-chan domain.Result
}

// Wait blocks until the ticket resolves or ctx is done.
func (t *Ticket) Wait(ctx context.Context) domain.Result {
	select {
	case res := <-t.Done:
		return res
	case <-ctx.Done():
		return domain.Result{Success: false, Message: ctx.Err().Error()}
	}
}

func resolved(job domain.Job, res domain.Result) *Ticket {
	ch := make(chan domain.Result, 1)
	ch <- res
	return &Ticket{Job: job, Done: ch}
}

// =============================================================================
// Queue Views
// =============================================================================

// QueuedJob is a waiting job with its queue position.
type QueuedJob struct {
	domain.Job
	Position    int     `json:"position"`
	WaitSeconds float64 `json:"wait_seconds"`
}

// QueueStatus is a snapshot of the scheduler.
type QueueStatus struct {
	Limit   int          `json:"limit"`
	Running int          `json:"running"`
	Active  []domain.Job `json:"active"`
	Queued  []QueuedJob  `json:"queued"`
}

// =============================================================================
// Scheduler
// =============================================================================

const (
	messageDuplicate = "already queued or running"
	messageCancelled = "cancelled"
	messageStopped   = "scheduler stopped"
)

type entry struct {
	job  domain.Job
	done chan domain.Result
}

// Scheduler admits at most one job per application across queued and
// running, and runs up to the current limit concurrently.
type Scheduler struct {
	runner  Runner
	limit   LimitFunc
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	queue   []*entry
	running map[string]*entry
	history []domain.Job
	stopped bool
}

// New creates a Scheduler. metrics and logger may be nil.
func New(runner Runner, limit LimitFunc, metrics *Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if limit == nil {
		limit = StaticLimit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		limit:   limit,
		metrics: metrics,
		logger:  logger.With("component", "scheduler"),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*entry),
	}
}

// Enqueue admits a job without waiting for it. A duplicate or a stopped
// scheduler yields a ticket that is already resolved with Accepted false.
func (s *Scheduler) Enqueue(appID string, force bool) *Ticket {
	now := s.now()
	job := domain.NewJob(appID, force, now)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return resolved(job, domain.Result{Success: false, Message: messageStopped})
	}
	if s.activeLocked(appID) {
		s.mu.Unlock()
		s.logger.Info("duplicate deployment rejected", "app_id", appID)
		return resolved(job, domain.Result{Success: false, Message: fmt.Sprintf("%s is %s", appID, messageDuplicate)})
	}
	e := &entry{job: job, done: make(chan domain.Result, 1)}
	s.queue = append(s.queue, e)
	s.metrics.setDepth(len(s.queue), len(s.running))
	s.mu.Unlock()

	s.logger.Info("deployment queued", "app_id", appID, "job_id", job.ID, "force", force)
	s.dispatch()
	return &Ticket{Job: job, Accepted: true, Done: e.done}
}

// Submit enqueues and waits for the result. If ctx ends first the job keeps
// running and the returned result reports the context error.
func (s *Scheduler) Submit(ctx context.Context, appID string, force bool) domain.Result {
	return s.Enqueue(appID, force).Wait(ctx)
}

// dispatch starts as many queued jobs as the current limit allows.
func (s *Scheduler) dispatch() {
	limit := s.limit(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	slots := corescheduler.Slots(corescheduler.DispatchRequest{
		Limit:   limit,
		Running: len(s.running),
		Waiting: len(s.queue),
	})
	now := s.now()
	for range slots {
		e := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		e.job.Start(now)
		s.running[e.job.AppID] = e
		s.metrics.observeStart(e.job.WaitTime(now))

		s.wg.Add(1)
		go s.execute(e)
	}
	s.metrics.setDepth(len(s.queue), len(s.running))
}

// execute runs one job. Errors and panics both resolve the caller with a
// failure and release the slot exactly once.
func (s *Scheduler) execute(e *entry) {
	defer s.wg.Done()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("deployment panicked: %v", r)
				s.logger.Error("deployment panicked",
					"app_id", e.job.AppID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		s.logger.Info("deployment started", "app_id", e.job.AppID, "job_id", e.job.ID)
		err = s.runner.Deploy(s.ctx, e.job.AppID, e.job.Force)
	}()

	s.finish(e, err)
	s.dispatch()
}

func (s *Scheduler) finish(e *entry, err error) {
	now := s.now()

	s.mu.Lock()
	delete(s.running, e.job.AppID)
	e.job.Finish(now, err)
	s.history = corescheduler.AppendHistory(s.history, e.job, corescheduler.HistoryLimit)
	s.metrics.setDepth(len(s.queue), len(s.running))
	s.mu.Unlock()

	res := domain.Result{Success: true, Message: fmt.Sprintf("%s deployed", e.job.AppID)}
	outcome := string(domain.JobCompleted)
	if err != nil {
		res = domain.Result{Success: false, Message: err.Error()}
		outcome = string(domain.JobFailed)
		s.logger.Warn("deployment failed", "app_id", e.job.AppID, "job_id", e.job.ID, "error", err)
	} else {
		s.logger.Info("deployment completed", "app_id", e.job.AppID, "job_id", e.job.ID, "duration", e.job.Duration())
	}
	s.metrics.observeFinish(outcome, e.job.Duration())
	e.done <- res
}

// =============================================================================
// Queries
// =============================================================================

// QueueStatus returns the limit, running jobs and waiting jobs in order.
func (s *Scheduler) QueueStatus(ctx context.Context) QueueStatus {
	limit := corescheduler.EffectiveLimit(s.limit(ctx))
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := QueueStatus{
		Limit:   limit,
		Running: len(s.running),
		Active:  make([]domain.Job, 0, len(s.running)),
		Queued:  make([]QueuedJob, 0, len(s.queue)),
	}
	for _, e := range s.running {
		status.Active = append(status.Active, e.job)
	}
	sortJobsByStart(status.Active)
	for i, e := range s.queue {
		status.Queued = append(status.Queued, QueuedJob{
			Job:         e.job,
			Position:    i + 1,
			WaitSeconds: e.job.WaitTime(now).Seconds(),
		})
	}
	return status
}

// RecentJobs returns finished jobs, newest first. A limit of zero or less
// returns the whole history.
func (s *Scheduler) RecentJobs(limit int) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return corescheduler.Recent(s.history, limit)
}

// IsBuilding reports whether a job for appID is running.
func (s *Scheduler) IsBuilding(appID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[appID]
	return ok
}

// IsQueued reports whether a job for appID is waiting.
func (s *Scheduler) IsQueued(appID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedIndexLocked(appID) >= 0
}

func (s *Scheduler) activeLocked(appID string) bool {
	if _, ok := s.running[appID]; ok {
		return true
	}
	return s.queuedIndexLocked(appID) >= 0
}

func (s *Scheduler) queuedIndexLocked(appID string) int {
	for i, e := range s.queue {
		if e.job.AppID == appID {
			return i
		}
	}
	return -1
}

// =============================================================================
// Cancellation
// =============================================================================

// CancelQueued removes the first waiting job for appID and resolves it as
// cancelled. Running jobs are not affected; it then returns false.
func (s *Scheduler) CancelQueued(appID string) bool {
	s.mu.Lock()
	i := s.queuedIndexLocked(appID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	e := s.queue[i]
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	e.job.Finish(s.now(), errors.New(messageCancelled))
	s.history = corescheduler.AppendHistory(s.history, e.job, corescheduler.HistoryLimit)
	s.metrics.setDepth(len(s.queue), len(s.running))
	s.mu.Unlock()

	s.logger.Info("queued deployment cancelled", "app_id", appID, "job_id", e.job.ID)
	s.metrics.observeFinish(messageCancelled, 0)
	e.done <- domain.Result{Success: false, Message: messageCancelled}
	return true
}

// Stop rejects new work, resolves every waiting caller, cancels running
// jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	waiting := s.queue
	s.queue = nil
	s.metrics.setDepth(0, len(s.running))
	s.mu.Unlock()

	for _, e := range waiting {
		e.done <- domain.Result{Success: false, Message: messageStopped}
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", "abandoned", len(waiting))
}

func sortJobsByStart(jobs []domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.StartedAt == nil || b.StartedAt == nil || a.StartedAt.Equal(*b.StartedAt) {
			return a.AppID < b.AppID
		}
		return a.StartedAt.Before(*b.StartedAt)
	})
}
