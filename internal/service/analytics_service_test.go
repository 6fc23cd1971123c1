package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dayplanner/internal/model"
)

func archived(userID, date, weekday, activity string, start, dur float64, priority, done bool) model.HistoricalTask {
	return model.Archive(model.Task{
		ID: activity + date, UserID: userID, Date: date, DayOfWeek: weekday,
		StartTime: start, Duration: dur, Activity: activity, IsPriority: priority, Completed: done,
	}, "h-"+activity+date, date, 0)
}

func TestComputeAnalytics(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC), fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)

	rows := []model.HistoricalTask{
		archived(user.ID, "2024-06-10", "Monday", "Run", 7, 1, true, true),
		archived(user.ID, "2024-06-10", "Monday", "Write", 9, 2, false, false),
		archived(user.ID, "2024-06-11", "Tuesday", "run", 7, 1, true, false),
		archived(user.ID, "2024-06-11", "Tuesday", "Read", 20, 0.5, false, true),
		// Outside a 7 day window.
		archived(user.ID, "2024-05-01", "Wednesday", "Old", 7, 1, false, true),
	}
	if err := f.db.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}

	a, err := f.analytics.Compute(context.Background(), user.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.From != "2024-06-05" || a.To != "2024-06-11" {
		t.Errorf("window = %s..%s", a.From, a.To)
	}
	if a.Total != 4 || a.Completed != 2 || a.CompletionRate != 0.5 {
		t.Errorf("totals: %+v", a)
	}
	if a.PriorityTotal != 2 || a.PriorityCompleted != 1 {
		t.Errorf("priority: %d/%d", a.PriorityCompleted, a.PriorityTotal)
	}
	if a.PlannedHours != 4.5 || a.CompletedHours != 1.5 {
		t.Errorf("hours: %v/%v", a.CompletedHours, a.PlannedHours)
	}
	if len(a.ByWeekday) != 2 || a.ByWeekday[0].Weekday != "Monday" || a.ByWeekday[1].Completed != 1 {
		t.Errorf("by weekday: %+v", a.ByWeekday)
	}
	if len(a.TopActivities) != 3 || a.TopActivities[0].Count != 2 || a.TopActivities[0].Completed != 1 {
		t.Errorf("top activities: %+v", a.TopActivities)
	}
}

func TestComputeAnalyticsLimits(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC), fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)

	if _, err := f.analytics.Compute(context.Background(), user.ID, 365); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.analytics.Compute(context.Background(), "nobody", 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	a, err := f.analytics.Compute(context.Background(), user.ID, 7)
	if err != nil || a.Total != 0 || a.CompletionRate != 0 {
		t.Errorf("empty history: %+v %v", a, err)
	}
}

func TestSendWeeklyReportsPerUser(t *testing.T) {
	mailer := &fakeMailer{}
	f := newFixture(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), fixtureOpts{mailer: mailer})
	f.user(t, "ann@example.com", "UTC", nil)
	f.user(t, "bob@example.com", "Europe/Berlin", nil)

	results, err := f.analytics.SendWeekly(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || len(mailer.sent) != 2 {
		t.Fatalf("results %+v, sent %v", results, mailer.sent)
	}
	for _, r := range results {
		if !r.Success || r.Error != "" {
			t.Errorf("unexpected result %+v", r)
		}
	}

	mailer.err = errors.New("smtp down")
	results, err = f.analytics.SendWeekly(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Success || r.Error != "smtp down" {
			t.Errorf("failure should be reported per user: %+v", r)
		}
	}
}

func TestRenderWeekly(t *testing.T) {
	subject, text, body := renderWeekly(Analytics{
		From: "2024-06-03", To: "2024-06-09", Total: 4, Completed: 3, CompletionRate: 0.75,
		TopActivities: []ActivityStat{{Activity: "<Gym>", Count: 2, Completed: 2}},
	})
	if subject != "Your week: 3 of 4 tasks done" {
		t.Errorf("subject = %q", subject)
	}
	if want := "Completed: 3/4 (75%)"; !strings.Contains(text, want) {
		t.Errorf("text missing %q:\n%s", want, text)
	}
	if !strings.Contains(body, "&lt;Gym&gt;") {
		t.Errorf("html must escape activity names:\n%s", body)
	}
}
