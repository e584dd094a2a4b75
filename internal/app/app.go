// Package app assembles the daemon: config manager, logging, storage,
// the task service, the notification pipeline, the reminder scheduler
// and the digest. It owns startup order, config hot-reload fan-out and
// graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"taskd/internal/config"
	"taskd/internal/eventbus"
	"taskd/internal/notify"
	"taskd/internal/reminder"
	"taskd/internal/runtime/supervisor"
	"taskd/internal/storage"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	repo  task.Repository
	bus   eventbus.Bus
	tasks *task.Service

	notif  *notify.Service
	rem    *reminder.Service
	digest *reminder.Digest
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)

	cfg, err := cfgm.Load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// No config file: run on defaults. The watcher still monitors the
		// path, so creating the file later hot-loads it.
		cfg = config.Default()
		cfgm.Commit(cfg)
		logx.NewConsole("INFO").Warn("config file not found, using defaults",
			logx.String("path", cfgPath))
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	storCfg, err := storageConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	repo, err := storage.Open(storCfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	tasks := task.NewService(repo, bus, logSvc.Logger().With(logx.String("comp", "task")))

	sink, err := buildSink(cfg, logSvc.Logger().With(logx.String("comp", "notify")))
	if err != nil {
		_ = repo.Close()
		logSvc.Close()
		return nil, err
	}
	notifCfg, err := notifyConfig(cfg)
	if err != nil {
		_ = repo.Close()
		logSvc.Close()
		return nil, err
	}
	notifSvc := notify.New(notifCfg, sink, logSvc.Logger().With(logx.String("comp", "notify")))

	pollInterval, err := config.ParseDurationOrDefault("reminder.poll_interval", cfg.Reminder.PollInterval, 60*time.Second)
	if err != nil {
		_ = repo.Close()
		logSvc.Close()
		return nil, err
	}
	// The scheduler claims the fired flag through the task service so the
	// claim is serialized with foreground updates.
	remSvc := reminder.New(reminder.Config{PollInterval: pollInterval},
		tasks, notifSvc, bus, logSvc.Logger().With(logx.String("comp", "reminder")))

	digest := reminder.NewDigest(reminder.DigestConfig{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.Digest.Schedule,
		Timezone: cfg.Digest.Timezone,
	}, repo, notifSvc, bus, logSvc.Logger().With(logx.String("comp", "digest")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		repo:    repo,
		bus:     bus,
		tasks:   tasks,
		notif:   notifSvc,
		rem:     remSvc,
		digest:  digest,
	}, nil
}

// Tasks exposes the task service to callers embedding the daemon.
func (a *App) Tasks() *task.Service { return a.tasks }

// Bus exposes the event bus for subscribers (tests, embedders).
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return a.validateConfig(cfg)
	})

	a.notif.Start(a.sup.Context())

	if err := a.digest.Start(); err != nil {
		return err
	}

	// The poller restarts with backoff if it ever returns an error
	// (a repository failure surfaced as a loop exit).
	a.sup.GoRestart("reminder.poll", a.rem.Run)

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated reload into the live services. Storage
// driver and notify channel are fixed at startup; everything else applies
// without a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})

	if notifCfg, err := notifyConfig(cfg); err == nil {
		a.notif.Apply(notifCfg)
	}

	if d, err := config.ParseDurationOrDefault("reminder.poll_interval", cfg.Reminder.PollInterval, 60*time.Second); err == nil {
		a.rem.Apply(reminder.Config{PollInterval: d})
	}

	if err := a.digest.Apply(reminder.DigestConfig{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.Digest.Schedule,
		Timezone: cfg.Digest.Timezone,
	}); err != nil {
		a.log.Warn("digest config apply failed", logx.Err(err))
	}

	a.log.Info("config reloaded")
}

func (a *App) validateConfig(cfg *config.Config) error {
	if _, err := config.ParseDurationOrDefault("reminder.poll_interval", cfg.Reminder.PollInterval, 60*time.Second); err != nil {
		return err
	}
	if _, err := storageConfig(cfg); err != nil {
		return err
	}
	if _, err := notifyConfig(cfg); err != nil {
		return err
	}
	if cfg.Digest.Enabled {
		if err := a.digest.ValidateSchedule(cfg.Digest.Schedule); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
		if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	if err := validateChannel(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	step("notify", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.repo.Close() })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// ---- config mapping ----

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func notifyConfig(cfg *config.Config) (notify.Config, error) {
	base, err := config.ParseDurationOrDefault("notify.retry_base", cfg.Notify.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notify.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notify.retry_max_delay", cfg.Notify.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	if cfg.Notify.Workers < 0 {
		return notify.Config{}, errors.New("notify.workers must be >= 0")
	}
	if cfg.Notify.RetryMax < 0 {
		return notify.Config{}, errors.New("notify.retry_max must be >= 0")
	}
	return notify.Config{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		RatePerSec:    cfg.Notify.RatePerSec,
		RetryMax:      cfg.Notify.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func validateChannel(cfg *config.Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Notify.Channel)) {
	case "", "log":
		return nil
	case "telegram":
		if strings.TrimSpace(cfg.Notify.Telegram.Token) == "" {
			return errors.New("notify.telegram.token is required for the telegram channel")
		}
		if cfg.Notify.Telegram.ChatID == 0 {
			return errors.New("notify.telegram.chat_id is required for the telegram channel")
		}
		return nil
	default:
		return fmt.Errorf("notify.channel: unknown %q", cfg.Notify.Channel)
	}
}

// buildSink selects the delivery backend for the notification pipeline.
func buildSink(cfg *config.Config, log logx.Logger) (notify.Sink, error) {
	if err := validateChannel(cfg); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Notify.Channel)) {
	case "telegram":
		return notify.NewTelegramSink(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		})
	default:
		return notify.NewLogSink(log), nil
	}
}
