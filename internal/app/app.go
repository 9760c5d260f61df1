package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bumpbot/internal/commands"
	"bumpbot/internal/config"
	"bumpbot/internal/eventbus"
	"bumpbot/internal/notify"
	"bumpbot/internal/reminder"
	"bumpbot/internal/runtime/supervisor"
	"bumpbot/internal/storage"
	"bumpbot/internal/transport"
	"bumpbot/internal/transport/discord"
	"bumpbot/internal/trigger"
	logx "bumpbot/pkg/logx"
	"bumpbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter transport.Adapter

	sched *reminder.Service
	notif *notify.Service
	trig  *trigger.Adapter
	cmds  *commands.Handler
	sd    *systemd.Notifier

	updates chan transport.Update
}

type Option func(*options)

type options struct {
	adapter transport.Adapter
	clock   reminder.Clock
}

// WithAdapter replaces the Discord adapter. Tests use an in-memory one.
func WithAdapter(a transport.Adapter) Option { return func(o *options) { o.adapter = a } }

func WithClock(c reminder.Clock) Option { return func(o *options) { o.clock = c } }

// New loads config and builds every component. The token is checked before
// any connection or store is opened.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	token, err := cfg.RequireToken()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	rs, err := cfg.ReminderSettings()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.StorageSettings()
	if err != nil {
		return nil, err
	}

	// The Discord log sink gets its sender once the adapter exists.
	logSvc, root := logx.New(cfg.LogConfig(), nil)
	log := root.With(logx.String("comp", "app"))

	ad := o.adapter
	if ad == nil {
		dad, err := discord.New(discord.Config{Token: token, AppID: cfg.Discord.ClientID}, root.With(logx.String("comp", "discord")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		ad = dad
	}
	logSvc.SetSender(ad)

	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", driverName(sc.Driver)))

	bus := eventbus.New()
	notif := notify.New(ad, notify.SettingsFrom(cfg), root.With(logx.String("comp", "notify")))

	var ropts []reminder.Option
	if o.clock != nil {
		ropts = append(ropts, reminder.WithClock(o.clock))
	}
	sched := reminder.New(reminderConfig(cfg, rs), store, notif, root.With(logx.String("comp", "reminder")), bus, ropts...)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		notif:   notif,
		trig:    trigger.New(sched, trigger.SettingsFrom(cfg, rs.Delay), root.With(logx.String("comp", "trigger"))),
		cmds:    commands.New(sched, ad, commands.SettingsFrom(cfg, rs.TestDelay), root.With(logx.String("comp", "commands"))),
		sd:      systemd.New(root.With(logx.String("comp", "systemd"))),
		updates: make(chan transport.Update, 256),
	}, nil
}

func reminderConfig(cfg *config.Config, rs config.ReminderSettings) reminder.Config {
	return reminder.Config{
		RecoverPolicy: rs.RecoverPolicy,
		DefaultLang:   config.ResolveLang(cfg.Language, ""),
		ReconcileSpec: rs.ReconcileSpec,
	}
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}

// Scheduler exposes the reminder service.
func (a *App) Scheduler() *reminder.Service { return a.sched }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := cfg.RequireToken()
		return err
	})

	// Re-arm before the gateway delivers new bumps so a recovered reminder
	// is not doubled by a fresh one.
	if err := a.sched.Recover(runCtx); err != nil {
		return fmt.Errorf("recover reminder: %w", err)
	}
	if err := a.sched.Start(runCtx); err != nil {
		return err
	}

	a.sup.Go("dispatch", func(c context.Context) error {
		return a.dispatchLoop(c, a.updates)
	})
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
				a.sd.Status(statusLine(e))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.GoRestart("systemd.watchdog", a.sd.Watchdog, supervisor.WithMaxRestarts(3))

	a.sd.Ready()
	a.log.Info("app started")
	return nil
}

func statusLine(e eventbus.Event) string {
	switch e.Type {
	case reminder.EventArmed, reminder.EventRecovered:
		if at, ok := e.Data["at"].(time.Time); ok {
			return "reminder pending until " + at.Format(time.RFC3339)
		}
		return "reminder pending"
	default:
		return "idle (last: " + strings.TrimPrefix(e.Type, "reminder.") + ")"
	}
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes hot-reloadable settings into the running components.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range restart {
		a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
	}

	rs, err := newCfg.ReminderSettings()
	if err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
		return
	}

	a.logs.Apply(newCfg.LogConfig())
	a.notif.Apply(notify.SettingsFrom(newCfg))
	a.trig.Apply(trigger.SettingsFrom(newCfg, rs.Delay))
	a.cmds.Apply(commands.SettingsFrom(newCfg, rs.TestDelay))
	a.sched.Apply(reminderConfig(newCfg, rs))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Unwind background loops first so no new bump is dispatched.
	a.sup.Cancel()

	step("reconcile", 2*time.Second, a.sched.Stop)
	// A signal stop cancels the pending reminder and clears its row. Any other
	// stop keeps the row so the next start recovers it. Both wait for an
	// in-flight send.
	if reason == StopSignal {
		step("reminder", 5*time.Second, a.sched.Shutdown)
	} else {
		step("reminder", 5*time.Second, a.sched.Release)
	}
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}
