package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"dayplanner/internal/billing"
	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/service"
	"dayplanner/internal/timebucket"
)

const maxWebhookBody = 1 << 16 // 64KB

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Users and preferences

type signUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Timezone string `json:"timezone"`
}

func (s *Server) handleSignUp(c *gin.Context) {
	var req signUpRequest
	if !s.bind(c, &req) {
		return
	}
	user, prefs, err := s.deps.Prefs.SignUp(c.Request.Context(), req.Email, req.Timezone)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "preferences": prefs})
}

func (s *Server) handleGetPreferences(c *gin.Context) {
	prefs, err := s.deps.Prefs.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) handleUpdatePreferences(c *gin.Context) {
	var upd service.PreferencesUpdate
	if !s.bind(c, &upd) {
		return
	}
	prefs, err := s.deps.Prefs.Update(c.Request.Context(), c.Param("userId"), upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Tasks

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, date, err := s.deps.Tasks.ListTasks(c.Request.Context(), c.Param("userId"), c.DefaultQuery("day", timebucket.Today))
	if err != nil {
		s.fail(c, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "tasks": tasks})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var in service.TaskInput
	if !s.bind(c, &in) {
		return
	}
	task, err := s.deps.Tasks.CreateTask(c.Request.Context(), c.Param("userId"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.deps.Tasks.GetTask(c.Request.Context(), c.Param("userId"), c.Param("taskId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var upd service.TaskUpdate
	if !s.bind(c, &upd) {
		return
	}
	task, err := s.deps.Tasks.UpdateTask(c.Request.Context(), c.Param("userId"), c.Param("taskId"), upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.deps.Tasks.DeleteTask(c.Request.Context(), c.Param("userId"), c.Param("taskId")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTogglePriority(c *gin.Context) {
	task, err := s.deps.Tasks.TogglePriority(c.Request.Context(), c.Param("userId"), c.Param("taskId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type completeRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

func (s *Server) handleSetCompleted(c *gin.Context) {
	var req completeRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.deps.Tasks.SetCompleted(c.Request.Context(), c.Param("userId"), c.Param("taskId"), *req.Completed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Suggestions

func (s *Server) handleGenerateSuggestions(c *gin.Context) {
	var req service.SuggestionRequest
	if !s.bind(c, &req) {
		return
	}
	list, err := s.deps.Suggestions.Generate(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": list})
}

type suggestionActionRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (s *Server) handleAcceptSuggestion(c *gin.Context) {
	var req suggestionActionRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.deps.Suggestions.Accept(c.Request.Context(), req.UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleRejectSuggestion(c *gin.Context) {
	var req suggestionActionRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.Suggestions.Reject(c.Request.Context(), req.UserID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Analytics

func (s *Server) handleAnalytics(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}
	a, err := s.deps.Analytics.Compute(c.Request.Context(), c.Param("userId"), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleWeeklyEmail(c *gin.Context) {
	results, err := s.deps.Analytics.SendWeekly(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if results == nil {
		results = []service.WeeklyResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Billing

func (s *Server) handleCheckout(c *gin.Context) {
	var req billing.CheckoutRequest
	if !s.bind(c, &req) {
		return
	}
	sess, err := s.deps.Billing.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleWebhook(c *gin.Context) {
	payload, err := readBody(c, maxWebhookBody)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eventType, err := s.deps.Billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "type": eventType})
}

// Direct notifications

type sendEmailRequest struct {
	To      string `json:"to" binding:"required"`
	Subject string `json:"subject" binding:"required"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

func (s *Server) handleSendEmail(c *gin.Context) {
	var req sendEmailRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Text == "" && req.HTML == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "text or html is required"})
		return
	}
	if err := s.deps.Mailer.SendMail(c.Request.Context(), req.To, req.Subject, req.Text, req.HTML); err != nil {
		s.logger.Warnw("send email failed", "to", req.To, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type sendSMSRequest struct {
	To      string `json:"to" binding:"required"`
	Message string `json:"message" binding:"required"`
	UserID  string `json:"userId" binding:"required"`
}

// handleSendSMS is limited to premium users.
func (s *Server) handleSendSMS(c *gin.Context) {
	var req sendSMSRequest
	if !s.bind(c, &req) {
		return
	}
	user, err := s.deps.Prefs.User(c.Request.Context(), req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !user.IsPremium {
		s.fail(c, errors.Wrap(service.ErrForbidden, "sms requires a premium plan"))
		return
	}
	if !notify.ValidPhone(req.To) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "phone number must be in E.164 format"})
		return
	}
	sid, err := s.deps.SMS.SendText(c.Request.Context(), req.To, req.Message)
	if err != nil {
		s.logger.Warnw("send sms failed", "user", req.UserID, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sid": sid})
}

type pushSubscribeRequest struct {
	UserID       string                 `json:"userId" binding:"required"`
	Subscription model.PushSubscription `json:"subscription"`
}

func (s *Server) handlePushSubscribe(c *gin.Context) {
	var req pushSubscribeRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.Prefs.Subscribe(c.Request.Context(), req.UserID, req.Subscription); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type pushUnsubscribeRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (s *Server) handlePushUnsubscribe(c *gin.Context) {
	var req pushUnsubscribeRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.Prefs.Unsubscribe(c.Request.Context(), req.UserID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Jobs

func (s *Server) handleRunReminders(c *gin.Context) {
	report, err := s.deps.Reminders.DispatchDue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRunRollover(c *gin.Context) {
	report, err := s.deps.Rollover.Run(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Helpers

func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// fail maps service error classes to status codes. Unclassified errors are
// logged and reported as 500 without detail.
func (s *Server) fail(c *gin.Context, err error) {
	var status int
	msg := err.Error()
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		status, msg = http.StatusBadRequest, billing.ErrInvalidSignature.Error()
	case errors.Is(err, service.ErrValidation):
		status, msg = http.StatusBadRequest, strings.TrimSuffix(msg, ": "+service.ErrValidation.Error())
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, strings.TrimSuffix(msg, ": "+service.ErrForbidden.Error())
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	default:
		s.logger.Errorw("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		status, msg = http.StatusInternalServerError, "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func readBody(c *gin.Context, limit int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	body, err := c.GetRawData()
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}
