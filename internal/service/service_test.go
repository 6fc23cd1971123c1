package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dayplanner/internal/completion"
	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/repository"
	"dayplanner/internal/testutil"
)

// fixture wires every service over one test database and a fake clock.
type fixture struct {
	db          *gorm.DB
	clk         clock.FakeClock
	tasks       *TaskService
	prefs       *PreferencesService
	rollover    *RolloverService
	reminders   *ReminderService
	suggestions *SuggestionService
	analytics   *AnalyticsService

	taskRepo    *repository.TaskRepository
	prefsRepo   *repository.PreferencesRepository
	historyRepo *repository.HistoryRepository
	notifRepo   *repository.NotificationRepository
	suggestRepo *repository.SuggestionRepository
}

type fixtureOpts struct {
	senders   []notify.Sender
	completer *fakeCompleter
	mailer    Mailer
}

func newFixture(t *testing.T, now time.Time, opts fixtureOpts) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.NewFake()
	clk.Set(now)
	logger := zap.NewNop().Sugar()

	f := &fixture{
		db:          db,
		clk:         clk,
		taskRepo:    repository.NewTaskRepository(db),
		prefsRepo:   repository.NewPreferencesRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		notifRepo:   repository.NewNotificationRepository(db),
		suggestRepo: repository.NewSuggestionRepository(db),
	}
	f.tasks = NewTaskService(f.taskRepo, f.prefsRepo, clk)
	f.prefs = NewPreferencesService(repository.NewUserRepository(db), f.prefsRepo)
	f.rollover = NewRolloverService(f.prefsRepo, repository.NewRolloverRepository(db), clk, logger)
	f.reminders = NewReminderService(f.taskRepo, f.prefsRepo, f.notifRepo, opts.senders, clk, logger)
	var completer completion.Completer
	if opts.completer != nil {
		completer = opts.completer
	}
	f.suggestions = NewSuggestionService(f.suggestRepo, f.historyRepo, f.prefsRepo, f.tasks, completer, clk, logger)
	f.analytics = NewAnalyticsService(f.historyRepo, f.prefsRepo, opts.mailer, clk, logger)
	return f
}

func (f *fixture) user(t *testing.T, email, tz string, mutate func(*model.UserPreferences)) model.User {
	t.Helper()
	return testutil.CreateUser(t, f.db, email, tz, mutate)
}

func (f *fixture) mustCreate(t *testing.T, userID string, in TaskInput) *model.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("CreateTask(%+v): %v", in, err)
	}
	return task
}

// fakeSender records sends and returns a canned result.
type fakeSender struct {
	channel model.Channel
	result  notify.Result
	mu      sync.Mutex
	sent    []string
}

func (s *fakeSender) Channel() model.Channel { return s.channel }

func (s *fakeSender) Enabled(p model.UserPreferences) bool {
	switch s.channel {
	case model.ChannelEmail:
		return p.EmailReminders
	case model.ChannelSMS:
		return p.SMSReminders
	default:
		return p.PushReminders && p.PushSubscription != nil
	}
}

func (s *fakeSender) Send(ctx context.Context, task model.Task, p model.UserPreferences) notify.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, task.ID)
	r := s.result
	r.Type = s.channel
	return r
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (c *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.calls++
	return c.reply, c.err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) SendMail(ctx context.Context, to, subject, text, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}
