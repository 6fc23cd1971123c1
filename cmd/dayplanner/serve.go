package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dayplanner/internal/bot"
	"dayplanner/internal/service"
)

const jobTimeout = 50 * time.Second

func serveCmd() *cobra.Command {
	var (
		addr   string
		noCron bool
		noBot  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the in-process scheduler and the Telegram bot",
		Long: `Run the planner server.

The scheduler fires the rollover check, the reminder dispatcher and the weekly
report on their configured cron specs. Disable it with --no-cron when an
external scheduler calls the /api/jobs endpoints instead.

Examples:
  dayplanner serve
  dayplanner serve --addr :9090 --no-bot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			if !a.cfg.Development() {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !noCron {
				sched, err := schedule(a)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.server().Run(ctx, addr) })

			if !noBot && a.cfg.TelegramToken != "" {
				tg, err := bot.New(a.cfg.TelegramToken, a.prefs, a.tasks, a.suggestions, a.logger.Named("bot"))
				if err != nil {
					return err
				}
				g.Go(func() error { return tg.Start(ctx) })
			}

			a.logger.Infow("daily planner started", "addr", addr, "cron", !noCron)
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Infow("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "do not run the in-process scheduler")
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "do not start the Telegram bot")
	return cmd
}

func schedule(a *app) (*service.SchedulerService, error) {
	sched := service.NewSchedulerService(time.UTC, a.logger.Named("cron"))
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"rollover", a.cfg.RolloverSchedule, func(ctx context.Context) error {
			_, err := a.rollover.Run(ctx)
			return err
		}},
		{"reminders", a.cfg.ReminderSchedule, func(ctx context.Context) error {
			_, err := a.reminders.DispatchDue(ctx)
			return err
		}},
		{"weekly-report", a.cfg.WeeklyReportSchedule, func(ctx context.Context) error {
			_, err := a.analytics.SendWeekly(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if j.spec == "" || j.spec == "off" {
			continue
		}
		if _, err := sched.Schedule(j.name, j.spec, jobTimeout, j.run); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
