package schedule

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ruapotato/codeloom/internal/logger"
	"github.com/ruapotato/codeloom/internal/metrics"
)

// DeliverFunc hands a due schedule's prompt to the conversation loop.
type DeliverFunc func(sched *Schedule)

// Runner wakes every minute, finds due schedules and delivers their
// prompts. Delivery is rate limited so a backlog of due schedules
// cannot flood the engine; limited schedules stay due and are retried
// on the next tick.
type Runner struct {
	store   *Store
	deliver DeliverFunc
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner delivering at most sendsPerMinute prompts
// per minute with the given burst.
func NewRunner(store *Store, deliver DeliverFunc, sendsPerMinute, burst int) *Runner {
	if sendsPerMinute <= 0 {
		sendsPerMinute = 2
	}
	if burst <= 0 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   store,
		deliver: deliver,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(sendsPerMinute)), burst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the scheduler loop
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
	logger.Info("schedule runner started")
}

// Stop gracefully stops the runner
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	logger.Info("schedule runner stopped")
}

// loop runs every minute to check for due schedules
func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// Run immediately on start
	r.checkDue()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkDue()
		}
	}
}

// checkDue finds and delivers due schedules
func (r *Runner) checkDue() {
	now := time.Now()
	due, err := r.store.ListDue(now)
	if err != nil {
		metrics.ScheduleRuns.WithLabelValues("error").Inc()
		logger.Error("failed to list due schedules: %v", err)
		return
	}

	for _, sched := range due {
		if !r.limiter.Allow() {
			metrics.ScheduleRuns.WithLabelValues("limited").Inc()
			logger.Info("schedule %s (%s) deferred by rate limit", sched.ID, sched.Name)
			continue
		}

		r.deliver(sched)
		if err := r.store.MarkRan(sched.ID, now); err != nil {
			metrics.ScheduleRuns.WithLabelValues("error").Inc()
			logger.Error("failed to record run of schedule %s: %v", sched.ID, err)
			continue
		}
		metrics.ScheduleRuns.WithLabelValues("ok").Inc()
		logger.Info("schedule %s (%s) delivered", sched.ID, sched.Name)
	}
}
