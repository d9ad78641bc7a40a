package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/metrics"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// ErrRunInProgress marks a run that was dropped because another run held
// the trigger.
var ErrRunInProgress = errors.New("review run already in progress")

// DefaultReviewInterval is how often the trigger scans when unconfigured.
const DefaultReviewInterval = 24 * time.Hour

type TriggerState string

const (
	StateIdle    TriggerState = "idle"
	StateRunning TriggerState = "running"
)

// RunLock extends the at-most-one-run rule beyond this process.  ok=false
// means another holder has the lock.
type RunLock interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// RunReport describes one invocation of the trigger.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Skipped   bool
	Due       int
	Dispatch  DispatchReport
	Err       error
}

// TriggerConfig holds the parameters for NewReviewTrigger.
type TriggerConfig struct {
	// Interval between scans.  Defaults to 24h.
	Interval time.Duration

	// RunOnStart runs one scan as soon as Start is called instead of
	// waiting for the first interval.
	RunOnStart bool

	// Lock is optional.
	Lock RunLock
}

// dueSource is satisfied by *DueReviewSelector.
type dueSource interface {
	Due(ctx context.Context) ([]types.Entitlement, error)
}

// ReviewTrigger periodically selects due entitlements and dispatches
// reviewer notifications.  It is Idle or Running; a tick or RunNow call that
// arrives while Running is dropped, not queued.  Waiting for the next tick
// holds no lock.
type ReviewTrigger struct {
	selector   dueSource
	dispatcher *NotificationDispatcher
	interval   time.Duration
	runOnStart bool
	lock       RunLock
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        Clock

	running atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReviewTrigger(sel dueSource, disp *NotificationDispatcher, cfg TriggerConfig, clock Clock, logger *zap.Logger, m *metrics.Metrics) *ReviewTrigger {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultReviewInterval
	}
	return &ReviewTrigger{
		selector:   sel,
		dispatcher: disp,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
		lock:       cfg.Lock,
		logger:     logger.Named("review_trigger"),
		metrics:    m,
		now:        orSystemClock(clock),
		done:       make(chan struct{}),
	}
}

func (t *ReviewTrigger) State() TriggerState {
	if t.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// Start begins the background loop.  It returns immediately; the loop exits
// when ctx is cancelled or Stop is called.  Only the first call has effect.
func (t *ReviewTrigger) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.started = true
	t.mu.Unlock()

	go t.loop(ctx)

	t.logger.Info("review trigger started",
		zap.Duration("interval", t.interval),
		zap.Bool("run_on_start", t.runOnStart),
	)
}

// Stop signals the loop to exit and waits for any in-flight run to finish.
// Safe to call more than once, and before Start.
func (t *ReviewTrigger) Stop() {
	t.mu.Lock()
	started, cancel := t.started, t.cancel
	t.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-t.done
}

// Wait blocks until the loop has exited.
func (t *ReviewTrigger) Wait() {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if started {
		<-t.done
	}
}

func (t *ReviewTrigger) loop(ctx context.Context) {
	defer close(t.done)

	if t.runOnStart {
		t.RunNow(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RunNow(ctx)
		}
	}
}

// RunNow performs one scan-and-notify pass unless a pass is already
// running, in which case the returned report has Skipped set.  A run lock
// that cannot be consulted fails the run; it is not a skip.  The trigger
// is always back to Idle when RunNow returns.
func (t *ReviewTrigger) RunNow(ctx context.Context) RunReport {
	report := RunReport{RunID: uuid.NewString(), StartedAt: t.now()}
	logger := t.logger.With(zap.String("run_id", report.RunID))

	if !t.running.CompareAndSwap(false, true) {
		return t.skip(logger, report, ErrRunInProgress)
	}
	defer t.running.Store(false)

	if t.lock != nil {
		release, ok, err := t.lock.Acquire(ctx)
		if err != nil {
			report.Err = fmt.Errorf("acquire run lock: %w", err)
			logger.Error("review run failed", zap.Error(report.Err))
			t.metrics.ObserveRun(metrics.RunFailed, 0, 0)
			return report
		}
		if !ok {
			return t.skip(logger, report, ErrRunInProgress)
		}
		defer release()
	}

	began := time.Now()
	logger.Info("running scheduled access review check")

	due, err := t.selector.Due(ctx)
	if err != nil {
		report.Err = err
		logger.Error("select due reviews", zap.Error(err))
		t.metrics.ObserveRun(metrics.RunFailed, time.Since(began), 0)
		return report
	}
	report.Due = len(due)

	if len(due) == 0 {
		logger.Info("no reviews due at this time")
		t.metrics.ObserveRun(metrics.RunCompleted, time.Since(began), 0)
		return report
	}

	logger.Info("found reviews due for certification", zap.Int("due", len(due)))
	report.Dispatch, err = t.dispatcher.Dispatch(ctx, due)
	if err != nil {
		report.Err = err
		logger.Error("dispatch notifications", zap.Error(err))
		t.metrics.ObserveRun(metrics.RunFailed, time.Since(began), len(due))
		return report
	}

	logger.Info("review run finished",
		zap.Int("notified", report.Dispatch.Delivered),
		zap.Int("failed", len(report.Dispatch.Failures)),
	)
	t.metrics.ObserveRun(metrics.RunCompleted, time.Since(began), len(due))
	return report
}

func (t *ReviewTrigger) skip(logger *zap.Logger, report RunReport, reason error) RunReport {
	report.Skipped = true
	report.Err = reason
	logger.Warn("review run dropped", zap.Error(reason))
	t.metrics.ObserveRun(metrics.RunSkipped, 0, 0)
	return report
}
