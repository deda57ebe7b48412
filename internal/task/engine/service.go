package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"reportd/internal/eventbus"
	rtsup "reportd/internal/runtime/supervisor"
	logx "reportd/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service runs tasks on a fixed pool of workers fed by a bounded queue.
//
// Runs execute on a context that survives Stop, so in-flight work drains
// during a graceful shutdown; queued work that has not started is dropped.
// If Stop's context expires first, in-flight runs are canceled.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q        chan queuedTask
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc

	stateMu sync.Mutex
	states  map[string]*RunState

	inFlight  int32
	completed uint64
	failed    uint64
	dropped   uint64

	lastQueueFullWarnAt int64
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
	timeout    time.Duration
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "taskengine")),
		bus:    bus,
		states: make(map[string]*RunState),
	}
}

// Start launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.q = make(chan queuedTask, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// worker failures should not hard-kill the app.
		rtsup.WithCancelOnError(false),
	)
	stopCh, queue, sup, runCtx := s.stopCh, s.q, s.sup, s.runCtx
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		// Auto-restart workers if they panic or exit unexpectedly.
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, runCtx, stopCh, queue)
			select {
			case <-stopCh:
				return nil
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}

	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

// Stop stops accepting work, drops queued tasks and waits for in-flight runs.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	// If already stopping, wait.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup, queue, runCancel := s.sup, s.q, s.runCancel
	s.mu.Unlock()

	go func() {
		_ = sup.Wait(context.Background())
		s.drainQueue(queue)
		runCancel()
		s.mu.Lock()
		s.q = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("task engine stopped")
	case <-ctx.Done():
		runCancel()
		s.log.Warn("task engine stop timed out; canceling in-flight runs", logx.Err(ctx.Err()))
		sup.Cancel()
	}
}

func (s *Service) drainQueue(queue chan queuedTask) {
	for {
		select {
		case qt := <-queue:
			qt.task.State.release()
			atomic.AddUint64(&s.dropped, 1)
			s.log.Debug("queued task dropped on stop", logx.String("task", qt.task.Name), logx.String("id", qt.task.ID))
		default:
			return
		}
	}
}

// Enqueue tries to enqueue a task without blocking. If the queue is full, the task is dropped.
//
// Use Submit() when you want backpressure instead of dropping.
func (s *Service) Enqueue(t Task) error {
	return s.enqueue(context.Background(), t, false)
}

// Submit enqueues a task and blocks until it is accepted, ctx is canceled, or the engine stops.
func (s *Service) Submit(ctx context.Context, t Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.enqueue(ctx, t, true)
}

func (s *Service) enqueue(ctx context.Context, t Task, block bool) error {
	if t.Run == nil {
		return fmt.Errorf("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = t.ID
	}

	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	stopCh := s.stopCh
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if q == nil || stopCh == nil {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}

	timeout := t.Timeout
	if timeout <= 0 && cfg.DefaultTimeout > 0 {
		timeout = cfg.DefaultTimeout
	}

	if !t.State.tryAcquire() {
		eventbus.Emit(s.bus, eventbus.TypeRunSkipped, eventbus.RunSkipped{TaskID: t.ID, Reason: "overlap"})
		s.log.Debug("task skipped due to overlap", logx.String("task", t.Name), logx.String("id", t.ID))
		return ErrOverlapSkip
	}

	qt := queuedTask{task: t, enqueuedAt: time.Now(), timeout: timeout}

	if !block {
		select {
		case q <- qt:
			return nil
		default:
			t.State.release()
			s.onQueueFullDropped(t, q)
			return ErrQueueFull
		}
	}

	select {
	case q <- qt:
		return nil
	case <-ctx.Done():
		t.State.release()
		return ctx.Err()
	case <-stopCh:
		t.State.release()
		return ErrStopping
	}
}

// StateFor returns the shared RunState for key, creating it on first use.
func (s *Service) StateFor(key string) *RunState {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "default"
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := s.states[key]
	if st == nil {
		st = &RunState{}
		s.states[key] = st
	}
	return st
}

// ForgetState drops the RunState for key. A run still holding it finishes normally.
func (s *Service) ForgetState(key string) {
	s.stateMu.Lock()
	delete(s.states, strings.TrimSpace(key))
	s.stateMu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	snap := Snapshot{
		Running:   running,
		Workers:   cfg.Workers,
		InFlight:  int(atomic.LoadInt32(&s.inFlight)),
		Completed: atomic.LoadUint64(&s.completed),
		Failed:    atomic.LoadUint64(&s.failed),
		Dropped:   atomic.LoadUint64(&s.dropped),
	}
	if q != nil {
		snap.QueueLen = len(q)
		snap.QueueCap = cap(q)
	}
	return snap
}


func (s *Service) shouldWarn(last *int64, now time.Time) bool {
	prev := atomic.LoadInt64(last)
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return atomic.CompareAndSwapInt64(last, prev, n)
}

func (s *Service) onQueueFullDropped(t Task, q chan queuedTask) {
	atomic.AddUint64(&s.dropped, 1)
	eventbus.Emit(s.bus, eventbus.TypeRunSkipped, eventbus.RunSkipped{TaskID: t.ID, Reason: "queue_full"})
	if s.shouldWarn(&s.lastQueueFullWarnAt, time.Now()) {
		s.log.Warn(
			"task dropped: queue full",
			logx.String("task", t.Name),
			logx.String("id", t.ID),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)),
			logx.Uint64("dropped", atomic.LoadUint64(&s.dropped)),
		)
	}
}
