package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"unbanbot/internal/checker"
	"unbanbot/internal/config"
	"unbanbot/internal/monitor"
	"unbanbot/internal/notifier"
	"unbanbot/internal/registry"
	"unbanbot/internal/scheduler"
	"unbanbot/internal/storage"
	kit "unbanbot/internal/transport"
	"unbanbot/internal/transport/telegram"
	"unbanbot/internal/tracker"
	logx "unbanbot/pkg/logx"
)

const (
	defaultDataFile      = "./monitor_list.json"
	defaultCheckInterval = 300 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	defaultDigestTime    = "08:00" // UTC
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store

	reg    *registry.Registry
	check  *checker.Client
	notif  *notifier.Service
	sched  *scheduler.Service
	scan   *monitor.Scanner
	digest *monitor.Digest
	trk    *tracker.Service

	cmdm *CommandManager

	updates chan kit.Update

	checkInterval time.Duration
	digestAt      string // "HH:MM" in UTC
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Adapter first: the log service can sink into Telegram.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap logging with the Telegram sink disabled, set the target, then
	// apply the final config. Avoids a false "no target" warning on startup.
	baseLogCfg := mapLoggingConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	applyTelegramLogTarget(logSvc, cfg)
	finalLogCfg := mapLoggingConfig(cfg)
	logSvc.Apply(finalLogCfg)

	// Monitor constants (validated here, fixed for the process lifetime).
	checkInterval, err := config.ParseDurationOrDefault("monitor.check_interval", cfg.Monitor.CheckInterval, defaultCheckInterval)
	if err != nil {
		return nil, err
	}
	checkTimeout, err := config.ParseDurationOrDefault("monitor.check_timeout", cfg.Monitor.CheckTimeout, defaultCheckTimeout)
	if err != nil {
		return nil, err
	}
	digestHour, digestMin, err := config.ParseClockField("monitor.digest_time", cfg.Monitor.DigestTime, defaultDigestTime)
	if err != nil {
		return nil, err
	}
	digestAt := fmt.Sprintf("%02d:%02d", digestHour, digestMin)

	// Optional audit storage.
	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		if store != nil {
			log.Info("audit storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	// Registry: a corrupt snapshot is fatal. Starting empty over an unreadable
	// file would silently drop every tracked username.
	dataFile := strings.TrimSpace(cfg.Monitor.DataFile)
	if dataFile == "" {
		dataFile = defaultDataFile
	}
	reg := registry.New(dataFile, log.With(logx.String("comp", "registry")))
	if err := reg.Load(); err != nil {
		return nil, err
	}

	chk := checker.New(checker.Config{
		BaseURL: cfg.Monitor.ProfileBaseURL,
		Timeout: checkTimeout,
	}, log.With(logx.String("comp", "checker")))

	notif := notifier.New(ad, 0, log.With(logx.String("comp", "notifier")))

	sched := scheduler.New(scheduler.Config{
		Workers:     2,
		HistorySize: 100,
		Timezone:    "UTC",
	}, log.With(logx.String("comp", "scheduler")))

	scan := monitor.NewScanner(reg, chk, notif, store, log.With(logx.String("comp", "scanner")))
	digest := monitor.NewDigest(reg, notif, log.With(logx.String("comp", "digest")))
	trk := tracker.New(reg, chk, store, log.With(logx.String("comp", "tracker")))

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")), ad)

	a := &App{
		cfgPath:       cfgPath,
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		adapter:       ad,
		store:         store,
		reg:           reg,
		check:         chk,
		notif:         notif,
		sched:         sched,
		scan:          scan,
		digest:        digest,
		trk:           trk,
		cmdm:          cmdm,
		updates:       make(chan kit.Update, 256),
		checkInterval: checkInterval,
		digestAt:      digestAt,
	}
	a.registerCommands()
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("monitor.check_interval", cfg.Monitor.CheckInterval); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("monitor.check_timeout", cfg.Monitor.CheckTimeout); err != nil {
			return err
		}
		if _, _, err := config.ParseClockField("monitor.digest_time", cfg.Monitor.DigestTime, defaultDigestTime); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sched.Start(a.sup.Context())

	// The two independent loops: fixed-interval scan and the daily digest.
	// The scan timeout keeps a hung cycle from ever overlapping itself twice.
	if err := a.sched.AddInterval("unban.scan", a.checkInterval, a.checkInterval, a.scan.RunCycle); err != nil {
		return err
	}
	if err := a.sched.AddDaily("daily.digest", a.digestAt, 5*time.Minute, a.digest.Run); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out (logging only; monitor settings are fixed)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Push the command menu best-effort; never blocks startup.
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		cmds := a.cmdm.BotCommands()
		a.sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 15*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, cmds); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	a.log.Info("app started",
		logx.Duration("check_interval", a.checkInterval),
		logx.String("digest_time_utc", a.digestAt),
		logx.Int("tracked_items", a.reg.Len()))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
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
			a.logs.Apply(mapLoggingConfig(newCfg))
			applyTelegramLogTarget(a.logs, newCfg)

			if lastApplied != nil && lastApplied.Monitor != newCfg.Monitor {
				a.log.Info("monitor settings changed in config; restart required to apply")
			}
			lastApplied = newCfg

			a.log.Info("config reloaded")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		start := time.Now()
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	if a.store != nil {
		step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func applyTelegramLogTarget(logs *logx.Service, cfg *config.Config) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		logs.SetTelegramTarget(0, 0)
		return
	}
	if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
		logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
}
