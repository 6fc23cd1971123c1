package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/repository"
	"dayplanner/internal/timebucket"
)

// DispatchReport summarizes one reminder dispatch pass.
type DispatchReport struct {
	Candidates  int `json:"candidates"`
	Due         int `json:"due"`
	Attempts    int `json:"attempts"`
	Failures    int `json:"failures"`
	PushCleared int `json:"pushCleared"`
}

type dispatch struct {
	task    model.Task
	prefs   model.UserPreferences
	results []notify.Result
}

// ReminderService sends task reminders when their target minute arrives.
type ReminderService struct {
	taskRepo  *repository.TaskRepository
	prefsRepo *repository.PreferencesRepository
	notifRepo *repository.NotificationRepository
	senders   []notify.Sender
	clk       clock.Clock
	logger    *zap.SugaredLogger
}

func NewReminderService(taskRepo *repository.TaskRepository, prefsRepo *repository.PreferencesRepository, notifRepo *repository.NotificationRepository, senders []notify.Sender, clk clock.Clock, logger *zap.SugaredLogger) *ReminderService {
	return &ReminderService{
		taskRepo:  taskRepo,
		prefsRepo: prefsRepo,
		notifRepo: notifRepo,
		senders:   senders,
		clk:       clk,
		logger:    logger,
	}
}

// DispatchDue sends every reminder whose target minute, in the owner's
// timezone, is the current minute. A minute that is never dispatched is never
// caught up.
func (s *ReminderService) DispatchDue(ctx context.Context) (DispatchReport, error) {
	now := s.clk.Now()

	// Local dates across all zones fall within one day of UTC.
	utc := now.UTC()
	dates := []string{
		timebucket.DateKey(utc.AddDate(0, 0, -1)),
		timebucket.DateKey(utc),
		timebucket.DateKey(utc.AddDate(0, 0, 1)),
	}
	tasks, err := s.taskRepo.ListUnsentReminders(ctx, dates)
	if err != nil {
		return DispatchReport{}, err
	}
	report := DispatchReport{Candidates: len(tasks)}
	if len(tasks) == 0 {
		return report, nil
	}

	prefsByUser, err := s.prefsRepo.GetMany(ctx, userIDs(tasks))
	if err != nil {
		return report, err
	}

	var due []*dispatch
	for _, t := range tasks {
		prefs, ok := prefsByUser[t.UserID]
		if !ok {
			continue
		}
		if timebucket.ShouldRemind(now, prefs.Timezone, t.Date, t.StartTime, prefs.LeadMinutes()) {
			due = append(due, &dispatch{task: t, prefs: prefs})
		}
	}
	report.Due = len(due)

	var wg sync.WaitGroup
	for _, d := range due {
		wg.Add(1)
		go func(d *dispatch) {
			defer wg.Done()
			d.results = s.fanOut(ctx, d.task, d.prefs)
		}(d)
	}
	wg.Wait()

	cleared := make(map[string]bool)
	for _, d := range due {
		report.Attempts += len(d.results)
		for _, r := range d.results {
			if !r.Success {
				report.Failures++
			}
		}
		if err := s.settle(ctx, d, now, cleared); err != nil {
			s.logger.Errorw("settle reminder failed", "task", d.task.ID, "user", d.task.UserID, "err", err)
		}
	}
	report.PushCleared = len(cleared)

	s.logger.Infow("reminder dispatch finished", "candidates", report.Candidates, "due", report.Due,
		"attempts", report.Attempts, "failures", report.Failures)
	return report, nil
}

// fanOut sends over every enabled channel concurrently and waits for all of them.
func (s *ReminderService) fanOut(ctx context.Context, task model.Task, prefs model.UserPreferences) []notify.Result {
	var enabled []notify.Sender
	for _, sender := range s.senders {
		if sender.Enabled(prefs) {
			enabled = append(enabled, sender)
		}
	}

	results := make([]notify.Result, len(enabled))
	var wg sync.WaitGroup
	for i, sender := range enabled {
		wg.Add(1)
		go func(i int, sender notify.Sender) {
			defer wg.Done()
			results[i] = sender.Send(ctx, task, prefs)
		}(i, sender)
	}
	wg.Wait()
	return results
}

// settle records the attempts, marks the reminder sent whatever the outcome and
// drops a push subscription the provider reported as gone.
func (s *ReminderService) settle(ctx context.Context, d *dispatch, now time.Time, cleared map[string]bool) error {
	attempts := make([]model.NotificationAttempt, 0, len(d.results))
	permanentPush := false
	for _, r := range d.results {
		status := model.AttemptSuccess
		if !r.Success {
			status = model.AttemptFailed
		}
		attempts = append(attempts, model.NotificationAttempt{
			TaskID:    d.task.ID,
			UserID:    d.task.UserID,
			Type:      r.Type,
			Status:    status,
			Timestamp: now.UnixMilli(),
			Error:     r.Error,
		})
		if r.Type == model.ChannelPush && r.Permanent {
			permanentPush = true
		}
	}

	if err := s.notifRepo.Record(ctx, attempts); err != nil {
		s.logger.Errorw("record attempts failed", "task", d.task.ID, "err", err)
	}
	if err := s.taskRepo.MarkReminderSent(ctx, d.task.ID); err != nil {
		return err
	}
	if permanentPush && !cleared[d.task.UserID] {
		if err := s.prefsRepo.SetPush(ctx, d.task.UserID, false, nil); err != nil {
			return err
		}
		cleared[d.task.UserID] = true
		s.logger.Infow("push subscription removed", "user", d.task.UserID)
	}
	return nil
}

func userIDs(tasks []model.Task) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range tasks {
		if !seen[t.UserID] {
			seen[t.UserID] = true
			ids = append(ids, t.UserID)
		}
	}
	return ids
}
