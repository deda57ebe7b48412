package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reportd/internal/eventbus"
	rtsup "reportd/internal/runtime/supervisor"
	logx "reportd/pkg/logx"
)

const historyMax = 100

// Service turns run events into notifications.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	bus     eventbus.Bus
	senders []Sender

	cfg     Config
	limiter *rate.Limiter

	queue  chan string
	sup    *rtsup.Supervisor
	unsub  func()
	stopCh chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, senders ...Sender) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s := &Service{
		log:     log.With(logx.String("comp", "notify")),
		bus:     bus,
		senders: senders,
		cfg:     cfg,
	}
	if cfg.RatePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return s
}

// Start subscribes to the bus and starts delivery. It is idempotent and a
// no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled || s.bus == nil || len(s.senders) == 0 {
		s.mu.Unlock()
		return
	}
	events, unsub := s.bus.Subscribe(s.cfg.QueueSize, eventbus.TypeRunFinished, eventbus.TypeRunSkipped)
	s.unsub = unsub
	s.queue = make(chan string, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// notification failures should not take down the daemon.
		rtsup.WithCancelOnError(false),
	)
	sup, q, stopCh := s.sup, s.queue, s.stopCh
	s.mu.Unlock()

	sup.GoRestart("events", func(c context.Context) error {
		s.eventLoop(c, events, stopCh)
		return clean(c, stopCh, "notify event loop exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))
	sup.GoRestart("sender", func(c context.Context) error {
		s.sendLoop(c, q, stopCh)
		return clean(c, stopCh, "notify sender exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))

	names := make([]string, 0, len(s.senders))
	for _, snd := range s.senders {
		names = append(names, snd.Name())
	}
	s.log.Info("notifications enabled", logx.Any("senders", names), logx.Bool("only_failures", s.cfg.OnlyFailures))
}

func clean(c context.Context, stopCh <-chan struct{}, msg string) error {
	select {
	case <-stopCh:
		return nil
	default:
	}
	if c.Err() != nil {
		return c.Err()
	}
	return errors.New(msg)
}

// Stop unsubscribes and delivers what is already queued until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	sup, unsub, stopCh := s.sup, s.unsub, s.stopCh
	s.queue = nil
	s.sup = nil
	s.unsub = nil
	s.stopCh = nil
	s.mu.Unlock()

	unsub()
	close(stopCh)

	done := make(chan struct{})
	go func() {
		_ = sup.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		s.log.Warn("notify stop timed out; pending notifications dropped")
	}
}

// Notify queues text for every sender.
func (s *Service) Notify(text string) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return ErrStopped
	}
	select {
	case q <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) eventLoop(ctx context.Context, events <-chan eventbus.Event, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			text, ok := s.render(ev)
			if !ok {
				continue
			}
			if err := s.Notify(text); err != nil {
				s.log.Warn("notification dropped", logx.String("event", ev.Type), logx.Err(err))
			}
		}
	}
}

func (s *Service) render(ev eventbus.Event) (string, bool) {
	switch ev.Type {
	case eventbus.TypeRunFinished:
		fin, ok := ev.Data.(eventbus.RunFinished)
		if !ok {
			return "", false
		}
		if s.cfg.OnlyFailures && fin.Err == "" {
			return "", false
		}
		return FormatRunFinished(fin), true
	case eventbus.TypeRunSkipped:
		sk, ok := ev.Data.(eventbus.RunSkipped)
		if !ok || sk.Reason != "queue_full" {
			return "", false
		}
		return FormatRunSkipped(sk), true
	}
	return "", false
}

// sendLoop drains the queue; after stopCh closes it sends what is left and exits.
func (s *Service) sendLoop(ctx context.Context, q <-chan string, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-q:
			s.deliver(ctx, text)
		case <-stopCh:
			for {
				select {
				case text := <-q:
					s.deliver(ctx, text)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, text string) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
	for _, snd := range s.senders {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := snd.Send(callCtx, text)
		cancel()
		item := HistoryItem{At: time.Now(), Sender: snd.Name(), Text: text}
		if err != nil {
			item.Err = err.Error()
			s.log.Warn("notification send failed", logx.String("sender", snd.Name()), logx.Err(err))
		} else {
			s.log.Debug("notification sent", logx.String("sender", snd.Name()))
		}
		s.appendHistory(item)
	}
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}
