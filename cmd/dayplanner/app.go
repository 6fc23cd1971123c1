package main

import (
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dayplanner/internal/billing"
	"dayplanner/internal/completion"
	"dayplanner/internal/config"
	"dayplanner/internal/notify"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
	"dayplanner/internal/web"
)

// app holds the wired planner for one process.
type app struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	db     *gorm.DB
	clk    clock.Clock

	email *notify.EmailSender
	sms   *notify.SMSSender

	tasks       *service.TaskService
	prefs       *service.PreferencesService
	rollover    *service.RolloverService
	reminders   *service.ReminderService
	suggestions *service.SuggestionService
	analytics   *service.AnalyticsService
	billing     *billing.Service
}

func newLogger(cfg config.Config) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Development() {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return l.Sugar(), nil
}

// setup loads config, opens the database and wires every service.
func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	a := &app{cfg: cfg, logger: logger, db: db, clk: clk}

	userRepo := repository.NewUserRepository(db)
	prefsRepo := repository.NewPreferencesRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	a.email = notify.NewEmailSender(cfg.SMTP, logger.Named("email"))
	a.sms = notify.NewSMSSender(cfg.Twilio, logger.Named("sms"))
	push := notify.NewPushSender(cfg.WebPush, cfg.AppURL, logger.Named("push"))

	var completer completion.Completer
	if c := completion.NewOpenAIClient(cfg.OpenAI); c != nil {
		completer = c
	} else {
		logger.Infow("OPENAI_API_KEY not set, suggestions use defaults")
	}

	a.tasks = service.NewTaskService(taskRepo, prefsRepo, clk)
	a.prefs = service.NewPreferencesService(userRepo, prefsRepo)
	a.rollover = service.NewRolloverService(prefsRepo, repository.NewRolloverRepository(db), clk, logger.Named("rollover"))
	a.reminders = service.NewReminderService(taskRepo, prefsRepo, repository.NewNotificationRepository(db),
		[]notify.Sender{a.email, a.sms, push}, clk, logger.Named("reminders"))
	a.suggestions = service.NewSuggestionService(repository.NewSuggestionRepository(db), historyRepo, prefsRepo,
		a.tasks, completer, clk, logger.Named("suggestions"))
	a.analytics = service.NewAnalyticsService(historyRepo, prefsRepo, a.email, clk, logger.Named("analytics"))
	a.billing = billing.NewService(cfg.Stripe, cfg.AppURL, userRepo, clk, logger.Named("billing"))
	return a, nil
}

func (a *app) server() *web.Server {
	return web.NewServer(web.Deps{
		Tasks:       a.tasks,
		Prefs:       a.prefs,
		Suggestions: a.suggestions,
		Analytics:   a.analytics,
		Rollover:    a.rollover,
		Reminders:   a.reminders,
		Billing:     a.billing,
		Mailer:      a.email,
		SMS:         a.sms,
	}, a.cfg.CronSecret, a.clk, a.logger.Named("http"))
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.logger.Sync()
}
