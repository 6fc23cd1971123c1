package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dayplanner/internal/billing"
	"dayplanner/internal/config"
	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
	"dayplanner/internal/testutil"
)

const testCronSecret = "cron-secret"

type recordingSender struct {
	mu    sync.Mutex
	sends int
}

func (s *recordingSender) Channel() model.Channel {
	return model.ChannelEmail
}

func (s *recordingSender) Enabled(p model.UserPreferences) bool {
	return p.EmailReminders
}

func (s *recordingSender) Send(ctx context.Context, t model.Task, p model.UserPreferences) notify.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return notify.Result{Success: true, Type: model.ChannelEmail, Recipient: p.Email}
}

type fakeMailer struct{ to []string }

func (m *fakeMailer) SendMail(ctx context.Context, to, subject, text, htmlBody string) error {
	m.to = append(m.to, to)
	return nil
}

type fakeSMS struct{ to []string }

func (f *fakeSMS) SendText(ctx context.Context, to, body string) (string, error) {
	f.to = append(f.to, to)
	return "SM123", nil
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	clk    clock.FakeClock
	sender *recordingSender
	mailer *fakeMailer
	sms    *fakeSMS
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	clk := clock.NewFake()
	clk.Set(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC))
	logger := zap.NewNop().Sugar()

	taskRepo := repository.NewTaskRepository(db)
	prefsRepo := repository.NewPreferencesRepository(db)
	userRepo := repository.NewUserRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	ts := &testServer{db: db, clk: clk, sender: &recordingSender{}, mailer: &fakeMailer{}, sms: &fakeSMS{}}
	tasks := service.NewTaskService(taskRepo, prefsRepo, clk)
	deps := Deps{
		Tasks:       tasks,
		Prefs:       service.NewPreferencesService(userRepo, prefsRepo),
		Suggestions: service.NewSuggestionService(repository.NewSuggestionRepository(db), historyRepo, prefsRepo, tasks, nil, clk, logger),
		Analytics:   service.NewAnalyticsService(historyRepo, prefsRepo, ts.mailer, clk, logger),
		Rollover:    service.NewRolloverService(prefsRepo, repository.NewRolloverRepository(db), clk, logger),
		Reminders:   service.NewReminderService(taskRepo, prefsRepo, repository.NewNotificationRepository(db), []notify.Sender{ts.sender}, clk, logger),
		Billing:     billing.NewServiceWithSessions(nil, config.StripeConfig{WebhookSecret: "whsec_test"}, "https://planner.test", userRepo, clk, logger),
		Mailer:      ts.mailer,
		SMS:         ts.sms,
	}
	ts.router = NewServer(deps, testCronSecret, clk, logger).router
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/users", gin.H{"email": email, "timezone": "UTC"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		User model.User `json:"user"`
	}
	decode(t, w, &resp)
	return resp.User.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")
	base := "/api/users/" + userID + "/tasks"

	w := ts.do(t, http.MethodPost, base, gin.H{"day": "today", "startTime": 10, "duration": 1.5, "activity": "Write"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var task model.Task
	decode(t, w, &task)
	if task.Date != "2024-06-10" || task.DayOfWeek != "Monday" {
		t.Errorf("unexpected task: %+v", task)
	}

	w = ts.do(t, http.MethodPost, base, gin.H{"day": "today", "startTime": 11, "duration": 1, "activity": "Clash"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("overlap should be 400, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, base+"/"+task.ID+"/complete", gin.H{"completed": true}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, base+"?day=today", nil, nil)
	var list struct {
		Date  string       `json:"date"`
		Tasks []model.Task `json:"tasks"`
	}
	decode(t, w, &list)
	if list.Date != "2024-06-10" || len(list.Tasks) != 1 || !list.Tasks[0].Completed {
		t.Errorf("list: %+v", list)
	}

	w = ts.do(t, http.MethodGet, base+"?day=yesterday", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad day should be 400, got %d", w.Code)
	}

	w = ts.do(t, http.MethodDelete, base+"/"+task.ID, nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, base+"/"+task.ID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted task should be 404, got %d", w.Code)
	}
}

func TestPreferencesValidation(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")

	w := ts.do(t, http.MethodPut, "/api/preferences/"+userID, gin.H{"phoneNumber": "12345"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad phone should be 400, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPut, "/api/preferences/"+userID, gin.H{"reminderTime": 30, "timezone": "Asia/Tokyo"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	var prefs model.UserPreferences
	decode(t, w, &prefs)
	if prefs.ReminderTime != 30 || prefs.Timezone != "Asia/Tokyo" {
		t.Errorf("prefs: %+v", prefs)
	}

	w = ts.do(t, http.MethodGet, "/api/preferences/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing user should be 404, got %d", w.Code)
	}
}

func TestJobEndpointsRequireToken(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")
	w := ts.do(t, http.MethodPost, "/api/users/"+userID+"/tasks", gin.H{"day": "today", "startTime": 9, "duration": 1, "activity": "Standup"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	ts.clk.Set(time.Date(2024, 6, 10, 8, 50, 0, 0, time.UTC))

	valid, err := NewCronToken(testCronSecret, ts.clk.Now(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	wrongSecret, _ := NewCronToken("other", ts.clk.Now(), time.Minute)
	expired, _ := NewCronToken(testCronSecret, ts.clk.Now().Add(-time.Hour), time.Minute)

	for name, h := range map[string]http.Header{
		"missing":      nil,
		"not bearer":   {"Authorization": []string{testCronSecret}},
		"garbage":      bearer("abc.def.ghi"),
		"wrong secret": bearer(wrongSecret),
		"expired":      bearer(expired),
	} {
		for _, path := range []string{"/api/jobs/reminders", "/api/jobs/rollover", "/api/analytics/weekly-email"} {
			w := ts.do(t, http.MethodPost, path, nil, h)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s: status %d", name, path, w.Code)
			}
		}
	}
	if ts.sender.sends != 0 || len(ts.mailer.to) != 0 {
		t.Fatal("rejected requests must not have side effects")
	}

	w = ts.do(t, http.MethodPost, "/api/jobs/reminders", nil, bearer(valid))
	if w.Code != http.StatusOK {
		t.Fatalf("reminders: %d %s", w.Code, w.Body.String())
	}
	var report service.DispatchReport
	decode(t, w, &report)
	if report.Due != 1 || ts.sender.sends != 1 {
		t.Errorf("report %+v, sends %d", report, ts.sender.sends)
	}

	w = ts.do(t, http.MethodPost, "/api/analytics/weekly-email", nil, bearer(valid))
	if w.Code != http.StatusOK || len(ts.mailer.to) != 1 {
		t.Errorf("weekly: %d %s", w.Code, w.Body.String())
	}
}

func TestSendSMSRequiresPremium(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")
	body := gin.H{"to": "+15551234567", "message": "hi", "userId": userID}

	w := ts.do(t, http.MethodPost, "/api/notifications/sms", body, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-premium should be 403, got %d", w.Code)
	}
	if len(ts.sms.to) != 0 {
		t.Fatal("no sms should be sent")
	}

	if err := ts.db.Model(&model.User{}).Where("id = ?", userID).Update("is_premium", true).Error; err != nil {
		t.Fatal(err)
	}
	w = ts.do(t, http.MethodPost, "/api/notifications/sms", body, nil)
	if w.Code != http.StatusOK || len(ts.sms.to) != 1 {
		t.Errorf("premium sms: %d %s", w.Code, w.Body.String())
	}

	body["to"] = "555"
	w = ts.do(t, http.MethodPost, "/api/notifications/sms", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad number should be 400, got %d", w.Code)
	}
}

func TestSendEmail(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/notifications/email", gin.H{"to": "bob@example.com", "subject": "Hi", "text": "hello"}, nil)
	if w.Code != http.StatusOK || len(ts.mailer.to) != 1 {
		t.Fatalf("send email: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPost, "/api/notifications/email", gin.H{"to": "bob@example.com", "subject": "Hi"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body should be 400, got %d", w.Code)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewBufferString(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
}

func TestPushSubscribeFlow(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")

	sub := gin.H{"endpoint": "https://push.example.com/1", "p256dh": "key", "auth": "secret"}
	w := ts.do(t, http.MethodPost, "/api/push/subscribe", gin.H{"userId": userID, "subscription": sub}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("subscribe: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, "/api/preferences/"+userID, nil, nil)
	var prefs model.UserPreferences
	decode(t, w, &prefs)
	if !prefs.PushReminders || prefs.PushSubscription == nil {
		t.Fatalf("push not enabled: %+v", prefs)
	}

	w = ts.do(t, http.MethodPost, "/api/push/unsubscribe", gin.H{"userId": userID}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unsubscribe: %d", w.Code)
	}
}

func TestSuggestionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")

	w := ts.do(t, http.MethodPost, "/api/suggestions", gin.H{"userId": userID, "day": "Tuesday", "todayOrTomorrow": "tomorrow"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Suggestions []model.Suggestion `json:"suggestions"`
	}
	decode(t, w, &resp)
	if len(resp.Suggestions) == 0 {
		t.Fatal("expected starter suggestions")
	}

	w = ts.do(t, http.MethodPost, "/api/suggestions/"+resp.Suggestions[0].ID+"/accept", gin.H{"userId": userID}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPost, "/api/suggestions/"+resp.Suggestions[0].ID+"/reject", gin.H{"userId": userID}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("handled suggestion should be 400, got %d", w.Code)
	}
}

func TestAnalyticsDaysParam(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signUp(t, "ann@example.com")
	if w := ts.do(t, http.MethodGet, "/api/analytics/"+userID+"?days=abc", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad days should be 400, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/analytics/"+userID, nil, nil); w.Code != http.StatusOK {
		t.Errorf("analytics: %d %s", w.Code, w.Body.String())
	}
}
