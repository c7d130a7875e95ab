package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/config"
	"github.com/wealthvault/backend/internal/db"
	"github.com/wealthvault/backend/internal/deadman"
	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/jobs"
	"github.com/wealthvault/backend/internal/messages"
	"github.com/wealthvault/backend/internal/metrics"
	"github.com/wealthvault/backend/internal/networth"
	"github.com/wealthvault/backend/internal/notify"
	"github.com/wealthvault/backend/internal/portfolio"
	"github.com/wealthvault/backend/internal/ratelimit"
	internalsettings "github.com/wealthvault/backend/internal/settings"
	"github.com/wealthvault/backend/internal/store"
	"github.com/wealthvault/backend/internal/valuation"
	"gorm.io/gorm"
)

// Background task ids.
const (
	TaskDMSCheck        = "dms-check"
	TaskMessageDispatch = "message-dispatch"
	TaskRetrySweep      = "retry-sweep"
)

// Runtime owns the process-wide collaborators: database, rate source, services and the task runner.
type Runtime struct {
	DB         *gorm.DB
	Store      *store.Store
	Metrics    *metrics.Metrics
	Rates      *fxrates.CachedSource
	Converter  *valuation.Converter
	Aggregator *networth.Aggregator
	NetWorth   *networth.Service
	Portfolio  *portfolio.Service
	Sender     notify.Sender
	Evaluator  *deadman.Evaluator
	Dispatcher *messages.Dispatcher
	Runner     *jobs.Runner
	Limiter    *ratelimit.Manager

	cfg config.ServiceConfig
}

// RuntimeOptions overrides collaborators, mostly for tests.
type RuntimeOptions struct {
	Sender     notify.Sender
	RateSource fxrates.Source
	Now        func() time.Time
}

// NewRuntime opens and migrates the database and builds every service. Background tasks are
// registered on Runner but not started.
func NewRuntime(ctx context.Context, dsn string, cfg config.ServiceConfig, opts RuntimeOptions) (*Runtime, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, config.ErrMissingDatabaseDSN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	loc, errLoc := time.LoadLocation(cfg.Scheduler.Timezone)
	if errLoc != nil {
		return nil, fmt.Errorf("app: scheduler timezone: %w", errLoc)
	}

	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		_ = db.Close(conn)
		return nil, errMigrate
	}

	rt := &Runtime{DB: conn, Store: store.New(conn), Metrics: metrics.New(), cfg: cfg}

	upstream := opts.RateSource
	if upstream == nil {
		upstream = fxrates.NewHTTPProvider(cfg.Currency.RatesURL, cfg.Currency.RequestTimeout)
	}
	rt.Rates = fxrates.NewCachedSource(upstream, fxrates.Options{
		TTL:           cfg.Currency.CacheTTL,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   cfg.Redis.Prefix,
		Now:           opts.Now,
		Metrics:       rt.Metrics,
	})
	rt.Converter = valuation.NewConverter(rt.Rates, rt.Metrics)
	rt.Aggregator = networth.NewAggregator(rt.Converter, cfg.NetWorth.AnomalyThreshold, rt.Metrics)
	rt.NetWorth = networth.NewService(rt.Store, rt.Aggregator, rt.Converter, cfg.Currency.Default)
	rt.Portfolio = portfolio.NewService(conn)

	rt.Sender = opts.Sender
	if rt.Sender == nil {
		sender, errSender := notify.New(cfg.Mail)
		if errSender != nil {
			_ = rt.Close()
			return nil, errSender
		}
		rt.Sender = sender
	}

	rt.Evaluator = deadman.NewEvaluator(rt.Store, rt.Sender, deadman.Options{
		Mode:     deadman.ReminderMode(cfg.DeadManSwitch.ReminderMode),
		LeadDays: cfg.DeadManSwitch.ReminderLeadDays,
		Now:      opts.Now,
		Metrics:  rt.Metrics,
	})
	rt.Dispatcher = messages.NewDispatcher(rt.Store, rt.Sender, messages.Options{
		Now:     opts.Now,
		Metrics: rt.Metrics,
	})

	if cfg.RateLimit.IsEnabled() {
		rt.Limiter = ratelimit.NewManager(ratelimit.Options{
			Window:        cfg.RateLimit.Window,
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			RedisPrefix:   internalsettings.DefaultRateLimitRedisPrefix,
			Now:           opts.Now,
		})
	}

	rt.Runner = jobs.NewRunner(loc, rt.Metrics)
	if errRegister := rt.registerTasks(); errRegister != nil {
		_ = rt.Close()
		return nil, errRegister
	}

	log.WithFields(log.Fields{
		"dialect":       db.DialectName(conn),
		"currency":      cfg.Currency.Default,
		"mail_provider": cfg.Mail.Provider,
		"reminder_mode": cfg.DeadManSwitch.ReminderMode,
	}).Info("runtime initialized")
	return rt, nil
}

func (rt *Runtime) registerTasks() error {
	tasks := []jobs.Task{
		{ID: TaskDMSCheck, Spec: rt.cfg.Scheduler.DMSCheck, Run: rt.runDMSCheck},
		{ID: TaskMessageDispatch, Spec: rt.cfg.Scheduler.MessageDispatch, Run: rt.runMessageDispatch},
		{ID: TaskRetrySweep, Spec: rt.cfg.Scheduler.RetrySweep, Run: rt.runRetrySweep},
	}
	for _, task := range tasks {
		if errRegister := rt.Runner.Register(task); errRegister != nil {
			return errRegister
		}
	}
	return nil
}

func (rt *Runtime) runDMSCheck(ctx context.Context) error {
	result, errRun := rt.Evaluator.RunCheck(ctx)
	log.WithFields(log.Fields{
		"checked":   result.Checked,
		"reminders": result.Reminders,
		"triggered": result.Triggered,
		"errors":    result.Errors,
	}).Info("dead man switch check finished")
	return errRun
}

func (rt *Runtime) runMessageDispatch(ctx context.Context) error {
	result, errRun := rt.Dispatcher.RunDispatch(ctx)
	log.WithFields(log.Fields{
		"due":     result.Due,
		"sent":    result.Sent,
		"retried": result.Retried,
		"failed":  result.Failed,
		"errors":  result.Errors,
	}).Info("message dispatch finished")
	return errRun
}

func (rt *Runtime) runRetrySweep(ctx context.Context) error {
	result, errRun := rt.Dispatcher.RunRetrySweep(ctx)
	log.WithFields(log.Fields{
		"requeued": result.Requeued,
		"errors":   result.Errors,
	}).Info("retry sweep finished")
	return errRun
}

// Start launches the task runner unless scheduling is disabled.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt == nil {
		return fmt.Errorf("app: nil runtime")
	}
	if !rt.cfg.Scheduler.IsEnabled() {
		log.Info("scheduler disabled, background tasks run only on demand")
		return nil
	}
	return rt.Runner.Start(ctx)
}

// Close stops the runner and releases the limiter, rate cache and database connections.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	if rt.Runner != nil {
		rt.Runner.Stop()
	}
	var errs []error
	if rt.Limiter != nil {
		if errClose := rt.Limiter.Close(); errClose != nil {
			errs = append(errs, fmt.Errorf("app: close rate limiter: %w", errClose))
		}
	}
	if rt.Rates != nil {
		if errClose := rt.Rates.Close(); errClose != nil {
			errs = append(errs, fmt.Errorf("app: close rate cache: %w", errClose))
		}
	}
	if rt.DB != nil {
		if errClose := db.Close(rt.DB); errClose != nil {
			errs = append(errs, fmt.Errorf("app: close database: %w", errClose))
		}
	}
	return errors.Join(errs...)
}
