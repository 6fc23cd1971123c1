// Package web exposes the planner over a JSON HTTP API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dayplanner/internal/billing"
	"dayplanner/internal/service"
)

const shutdownTimeout = 10 * time.Second

// TextSender sends a one-off SMS; notify.SMSSender satisfies it.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Deps are the services behind the API.
type Deps struct {
	Tasks       *service.TaskService
	Prefs       *service.PreferencesService
	Suggestions *service.SuggestionService
	Analytics   *service.AnalyticsService
	Rollover    *service.RolloverService
	Reminders   *service.ReminderService
	Billing     *billing.Service
	Mailer      service.Mailer
	SMS         TextSender
}

// Server is the planner HTTP server.
type Server struct {
	deps       Deps
	router     *gin.Engine
	cronSecret []byte
	clk        clock.Clock
	logger     *zap.SugaredLogger
}

// NewServer builds the router. cronSecret signs the bearer tokens that guard
// the job and report endpoints.
func NewServer(deps Deps, cronSecret string, clk clock.Clock, logger *zap.SugaredLogger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		deps:       deps,
		router:     router,
		cronSecret: []byte(cronSecret),
		clk:        clk,
		logger:     logger,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/users", s.handleSignUp)
		api.GET("/preferences/:userId", s.handleGetPreferences)
		api.PUT("/preferences/:userId", s.handleUpdatePreferences)

		tasks := api.Group("/users/:userId/tasks")
		tasks.GET("", s.handleListTasks)
		tasks.POST("", s.handleCreateTask)
		tasks.GET("/:taskId", s.handleGetTask)
		tasks.PATCH("/:taskId", s.handleUpdateTask)
		tasks.DELETE("/:taskId", s.handleDeleteTask)
		tasks.POST("/:taskId/priority", s.handleTogglePriority)
		tasks.POST("/:taskId/complete", s.handleSetCompleted)

		api.POST("/suggestions", s.handleGenerateSuggestions)
		api.POST("/suggestions/:id/accept", s.handleAcceptSuggestion)
		api.POST("/suggestions/:id/reject", s.handleRejectSuggestion)

		api.GET("/analytics/:userId", s.handleAnalytics)

		api.POST("/checkout", s.handleCheckout)
		api.POST("/billing/webhook", s.handleWebhook)

		api.POST("/notifications/email", s.handleSendEmail)
		api.POST("/notifications/sms", s.handleSendSMS)
		api.POST("/push/subscribe", s.handlePushSubscribe)
		api.POST("/push/unsubscribe", s.handlePushUnsubscribe)

		jobs := api.Group("", requireCronToken(s.cronSecret, clk))
		jobs.POST("/jobs/reminders", s.handleRunReminders)
		jobs.POST("/jobs/rollover", s.handleRunRollover)
		jobs.POST("/analytics/weekly-email", s.handleWeeklyEmail)
	}

	return s
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	s.logger.Infow("http server stopped")
	return nil
}

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
