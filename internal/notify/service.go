package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickwork/internal/eventbus"
	rtsup "tickwork/internal/runtime/supervisor"
	"tickwork/internal/runner"
	"tickwork/internal/storage"
	logx "tickwork/pkg/logx"
)

// Service is safe for concurrent use.
type Service struct {
	log    logx.Logger
	sender Sender
	bus    eventbus.Bus
	store  storage.Store
	now    func() time.Time

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	queue     chan Alert
	accepting bool
	sup       *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[string]time.Time
}

// New builds a stopped service. bus and store may be nil.
func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log,
		sender: sender,
		bus:    bus,
		store:  store,
		now:    time.Now,
		dedup:  map[string]time.Time{},
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the config. Queue size changes take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin)
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Start launches the delivery worker. It is a no-op when disabled or
// already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled || s.sender == nil {
		return
	}
	q := make(chan Alert, s.cfg.QueueSize)
	s.queue = q
	s.accepting = true
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "notify"))))
	s.sup.GoRestart("notify.worker", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return c.Err()
			case a, ok := <-q:
				if !ok {
					return nil
				}
				s.deliver(c, a)
			}
		}
	})
}

// Stop stops intake and drains queued alerts until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.sup = nil
	close(q)
	s.mu.Unlock()

	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
	}
}

// Notify queues a. Duplicates inside the dedup window are dropped silently.
func (s *Service) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Key == "" {
		a.Key = alertKey(a.Job, a.Text)
	}

	s.mu.Lock()
	window := s.cfg.DedupWindow
	enabled := s.cfg.Enabled && s.sender != nil
	s.mu.Unlock()
	if !enabled {
		return ErrDisabled
	}

	if window > 0 && !s.dedupAllow(ctx, a.Key, window) {
		s.publish(EventDeduped, a, nil)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return ErrStopped
	}
	select {
	case s.queue <- a:
		s.publish(EventQueued, a, nil)
		return nil
	default:
		s.publish(EventDropped, a, ErrQueueFull)
		return ErrQueueFull
	}
}

// ReportRun turns a finished run into an alert. Successful runs are only
// reported with OnSuccess.
func (s *Service) ReportRun(ctx context.Context, res runner.Result) error {
	s.mu.Lock()
	onSuccess := s.cfg.OnSuccess
	s.mu.Unlock()
	if res.OK() && !onSuccess {
		return nil
	}
	a := Alert{Job: res.JobName, Text: FormatResult(res)}
	if !res.OK() {
		// Same job failing the same way shares one key whatever the output.
		a.Key = alertKey(res.JobName, fmt.Sprintf("exit=%d timeout=%t err=%v", res.ExitCode, res.TimedOut, res.Err))
	}
	return s.Notify(ctx, a)
}

func (s *Service) deliver(ctx context.Context, a Alert) {
	s.mu.Lock()
	lim, retries, base := s.limiter, s.cfg.RetryMax, s.cfg.RetryBase
	s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.Send(cctx, a.Text)
		cancel()
		if err == nil {
			s.publish(EventSent, a, nil)
			return
		}
		lastErr = err
		s.log.Debug("alert send failed", logx.String("job", a.Job), logx.Int("attempt", attempt+1), logx.Err(err))
		if attempt == retries {
			break
		}
		t := time.NewTimer(base << attempt)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	s.log.Warn("alert dropped", logx.String("job", a.Job), logx.Err(lastErr))
	s.publish(EventFailed, a, lastErr)
}

func (s *Service) publish(typ string, a Alert, err error) {
	if s.bus == nil {
		return
	}
	ev := AlertEvent{Job: a.Job, Key: a.Key}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}

// dedupAllow reports whether key may be sent now and, if so, opens its
// suppression window. The store is consulted so windows survive restarts.
func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration) bool {
	now := s.now()

	s.dmu.Lock()
	until, ok := s.dedup[key]
	s.dmu.Unlock()
	if ok && now.Before(until) {
		return false
	}

	if s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			s.log.Debug("dedup lookup failed", logx.Err(err))
		}
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until = now.Add(window)
	s.dmu.Lock()
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = until
	s.dmu.Unlock()

	if s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		if err := s.store.PutDedup(cctx, key, until); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
		cancel()
	}
	return true
}

func alertKey(job, body string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(job))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(body))
	return fmt.Sprintf("%x", h.Sum64())
}

// maxAlertLen keeps alerts under Telegram's 4096 character message limit.
const maxAlertLen = 3500

// FormatResult renders a run as alert text with the tail of its output.
func FormatResult(res runner.Result) string {
	var b strings.Builder
	if res.OK() {
		fmt.Fprintf(&b, "job %s ok in %s", res.JobName, res.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(&b, "job %s failed after %s: %v", res.JobName, res.Duration.Round(time.Millisecond), res.Err)
	}
	if res.Trigger != "" && res.Trigger != "schedule" {
		fmt.Fprintf(&b, " (%s)", res.Trigger)
	}
	out := strings.TrimSpace(res.Output)
	if out == "" {
		return b.String()
	}
	room := maxAlertLen - b.Len() - 2
	if room <= 0 {
		return b.String()
	}
	if r := []rune(out); len(r) > room {
		out = "..." + string(r[len(r)-room+3:])
	}
	b.WriteString("\n\n")
	b.WriteString(out)
	return b.String()
}
