// Package daemon wires config, scheduler, runner, storage and alerts into
// the long-running tickwork service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/jonboulle/clockwork"

	"tickwork/internal/config"
	"tickwork/internal/eventbus"
	"tickwork/internal/notify"
	rtsup "tickwork/internal/runtime/supervisor"
	"tickwork/internal/runner"
	"tickwork/internal/storage"
	"tickwork/internal/timer"
	logx "tickwork/pkg/logx"
	"tickwork/pkg/schedule"
)

type Daemon struct {
	cfgm     *config.Manager
	logs     *logx.Service
	log      logx.Logger
	clock    clockwork.Clock
	bus      *eventbus.MemBus
	store    storage.Store
	notif    *notify.Service
	sched    *schedule.Scheduler
	runner   *runner.Runner
	settings config.SchedulerSettings

	notifySd  sdNotifyFunc
	watchdog  func(logx.Logger) time.Duration
	runCtx    context.Context
	runCancel context.CancelFunc
	runs      sync.WaitGroup

	mu      sync.Mutex
	applied *config.Config
	workers map[string]*jobRunner
}

type Option func(*options)

type options struct {
	clock    clockwork.Clock
	sender   notify.Sender
	notifySd sdNotifyFunc
	watchdog func(logx.Logger) time.Duration
}

// WithClock drives the scheduler from c instead of the wall clock.
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithSender replaces the configured alert transport.
func WithSender(s notify.Sender) Option { return func(o *options) { o.sender = s } }

// WithSdNotify replaces the systemd notify call and disables the watchdog.
func WithSdNotify(fn func(unsetEnvironment bool, state string) (bool, error)) Option {
	return func(o *options) {
		o.notifySd = fn
		o.watchdog = func(logx.Logger) time.Duration { return 0 }
	}
}

// New loads the config at path and builds a daemon with every enabled job
// scheduled. Nothing runs until Run.
func New(ctx context.Context, path string, opts ...Option) (*Daemon, error) {
	o := options{clock: clockwork.NewRealClock(), notifySd: sd.SdNotify, watchdog: watchdogInterval}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(path)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Scheduler.Settings()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.Logging.Logx())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	var store storage.Store
	if sc, enabled, err := StorageConfig(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	} else if enabled {
		if store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	sender := o.sender
	if sender == nil {
		if sender, err = telegramSender(cfg); err != nil {
			if store != nil {
				_ = store.Close()
			}
			_ = logs.Close()
			return nil, err
		}
	}

	bus := eventbus.New(eventbus.WithNow(o.clock.Now))
	d := &Daemon{
		cfgm:     cfgm,
		logs:     logs,
		log:      log.With(logx.String("comp", "daemon")),
		clock:    o.clock,
		bus:      bus,
		store:    store,
		notif:    notify.New(mapNotifyConfig(cfg), sender, log.With(logx.String("comp", "notify")), bus, store),
		runner:   runner.New(log.With(logx.String("comp", "runner"))),
		settings: settings,
		notifySd: o.notifySd,
		watchdog: o.watchdog,
		workers:  map[string]*jobRunner{},
	}
	d.sched = schedule.New(
		schedule.WithClock(o.clock),
		schedule.WithTimer(timer.New(o.clock, settings.MaxTimerChunk)),
		schedule.WithLogger(log.With(logx.String("comp", "scheduler"))),
	)
	d.runCtx, d.runCancel = context.WithCancel(context.Background())

	d.apply(cfg)
	return d, nil
}

func (d *Daemon) Scheduler() *schedule.Scheduler { return d.sched }

// Store returns the run history store, or nil when storage is disabled.
func (d *Daemon) Store() storage.Store { return d.store }

// Events carries notify events for logging and tests.
func (d *Daemon) Events() eventbus.Bus { return d.bus }

// Run serves until ctx is done or a supervised loop fails, then shuts
// down. Config file changes are applied while running.
func (d *Daemon) Run(ctx context.Context) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(d.log), rtsup.WithCancelOnError(true))
	d.notif.Start(sup.Context())

	sup.GoRestart("config.watch", func(c context.Context) error { return d.cfgm.Watch(c) })

	sub := d.cfgm.Subscribe(4)
	sup.Go("config.apply", func(c context.Context) error {
		defer d.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return c.Err()
			case cfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Only the newest config matters.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						cfg = newer
					default:
						drained = true
					}
				}
				d.sdNotify(sd.SdNotifyReloading)
				d.apply(cfg)
				d.sdNotify(sd.SdNotifyReady)
			}
		}
	})

	events, unsub := d.bus.Subscribe(64)
	sup.Go("events.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return c.Err()
			case e, ok := <-events:
				if !ok {
					return nil
				}
				d.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	if iv := d.watchdog(d.log); iv > 0 {
		sup.Go("systemd.watchdog", func(c context.Context) error { return d.watchdogLoop(c, iv) })
	}

	d.log.Info("tickwork started", logx.Int("jobs", len(d.sched.Jobs())), logx.String("config", d.cfgm.Path()))
	d.sdNotify(sd.SdNotifyReady)

	<-sup.Context().Done()
	d.sdNotify(sd.SdNotifyStopping)
	errRun := sup.Err()

	sctx, cancel := context.WithTimeout(context.Background(), d.settings.ShutdownTimeout)
	defer cancel()
	d.shutdown(sctx)
	if err := sup.Stop(sctx); err != nil && !errors.Is(err, errRun) {
		d.log.Warn("supervisor stop", logx.Err(err))
	}
	d.log.Info("tickwork stopped")
	_ = d.logs.Close()
	return errRun
}

// shutdown stops scheduling, waits for active runs until ctx is done and
// then kills what is left.
func (d *Daemon) shutdown(ctx context.Context) {
	_ = d.sched.Close()

	done := make(chan struct{})
	go func() {
		d.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("shutdown timeout; killing active runs")
		d.runCancel()
		<-done
	}
	d.runCancel()

	d.notif.Stop(ctx)
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("storage close failed", logx.Err(err))
		}
	}
}

// Close releases everything without serving. Use it when Run is never
// called.
func (d *Daemon) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), d.settings.ShutdownTimeout)
	defer cancel()
	d.shutdown(ctx)
	_ = d.logs.Close()
}

// apply reconciles logging, alerts and jobs with cfg.
func (d *Daemon) apply(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.applied
	sections, attrs := config.SummarizeConfigChange(old, cfg)
	if old != nil {
		if len(sections) == 0 {
			d.log.Debug("config reload had no effective changes")
		} else {
			d.log.Info("config changed", append([]logx.Field{logx.String("sections", strings.Join(sections, ","))}, attrs...)...)
		}
		for _, s := range sections {
			switch s {
			case "storage":
				d.log.Warn("storage config changed; restart required")
			case "scheduler":
				d.log.Warn("scheduler config changed; max_timer_chunk and shutdown_timeout need a restart")
			}
		}
		d.logs.Apply(cfg.Logging.Logx())
		d.notif.Apply(mapNotifyConfig(cfg))
	}
	if s, err := cfg.Scheduler.Settings(); err == nil {
		d.settings.Location = s.Location
		d.settings.DefaultTimeout = s.DefaultTimeout
	}

	d.reconcileLocked(old, cfg)
	d.applied = cfg
}
