package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/timebucket"
)

const (
	defaultAnalyticsDays = 7
	maxAnalyticsDays     = 90
	topActivities        = 5
)

// Mailer sends one email; notify.EmailSender satisfies it.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, text, htmlBody string) error
}

type WeekdayStat struct {
	Weekday   string `json:"weekday"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

type ActivityStat struct {
	Activity  string `json:"activity"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
}

// Analytics aggregates archived tasks over a window of past days.
type Analytics struct {
	UserID            string         `json:"userId"`
	From              string         `json:"from"`
	To                string         `json:"to"`
	Total             int            `json:"total"`
	Completed         int            `json:"completed"`
	CompletionRate    float64        `json:"completionRate"`
	PriorityTotal     int            `json:"priorityTotal"`
	PriorityCompleted int            `json:"priorityCompleted"`
	PlannedHours      float64        `json:"plannedHours"`
	CompletedHours    float64        `json:"completedHours"`
	ByWeekday         []WeekdayStat  `json:"byWeekday"`
	TopActivities     []ActivityStat `json:"topActivities"`
}

// WeeklyResult is the per-user outcome of the weekly email run.
type WeeklyResult struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AnalyticsService computes productivity statistics from task history.
type AnalyticsService struct {
	historyRepo *repository.HistoryRepository
	prefsRepo   *repository.PreferencesRepository
	mailer      Mailer
	clk         clock.Clock
	logger      *zap.SugaredLogger
}

func NewAnalyticsService(historyRepo *repository.HistoryRepository, prefsRepo *repository.PreferencesRepository, mailer Mailer, clk clock.Clock, logger *zap.SugaredLogger) *AnalyticsService {
	return &AnalyticsService{historyRepo: historyRepo, prefsRepo: prefsRepo, mailer: mailer, clk: clk, logger: logger}
}

// Compute aggregates the user's archived tasks of the last days local days, yesterday included.
func (s *AnalyticsService) Compute(ctx context.Context, userID string, days int) (*Analytics, error) {
	if days <= 0 {
		days = defaultAnalyticsDays
	}
	if days > maxAnalyticsDays {
		return nil, invalid("days must be at most %d", maxAnalyticsDays)
	}
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return nil, lookup(err, "preferences")
	}
	return s.compute(ctx, *prefs, days)
}

func (s *AnalyticsService) compute(ctx context.Context, prefs model.UserPreferences, days int) (*Analytics, error) {
	local := timebucket.LocalNow(s.clk.Now(), prefs.Timezone)
	from := timebucket.DateKey(local.AddDate(0, 0, -days))
	to := timebucket.DateKey(local.AddDate(0, 0, -1))

	history, err := s.historyRepo.ListSince(ctx, prefs.UserID, from)
	if err != nil {
		return nil, err
	}
	a := aggregate(history)
	a.UserID = prefs.UserID
	a.From = from
	a.To = to
	return a, nil
}

func aggregate(history []model.HistoricalTask) *Analytics {
	a := &Analytics{}
	weekdays := make(map[string]*WeekdayStat)
	activities := make(map[string]*ActivityStat)

	for _, h := range history {
		a.Total++
		a.PlannedHours += h.Duration
		if h.IsPriority {
			a.PriorityTotal++
		}

		wd := weekdays[h.DayOfWeek]
		if wd == nil {
			wd = &WeekdayStat{Weekday: h.DayOfWeek}
			weekdays[h.DayOfWeek] = wd
		}
		wd.Total++

		key := strings.ToLower(strings.TrimSpace(h.Activity))
		as := activities[key]
		if as == nil {
			as = &ActivityStat{Activity: h.Activity}
			activities[key] = as
		}
		as.Count++

		if h.Completed {
			a.Completed++
			a.CompletedHours += h.Duration
			wd.Completed++
			as.Completed++
			if h.IsPriority {
				a.PriorityCompleted++
			}
		}
	}
	if a.Total > 0 {
		a.CompletionRate = float64(a.Completed) / float64(a.Total)
	}

	for d := time.Monday; ; d = (d + 1) % 7 {
		if wd, ok := weekdays[d.String()]; ok {
			a.ByWeekday = append(a.ByWeekday, *wd)
		}
		if d == time.Sunday {
			break
		}
	}

	for _, as := range activities {
		a.TopActivities = append(a.TopActivities, *as)
	}
	sort.Slice(a.TopActivities, func(i, j int) bool {
		if a.TopActivities[i].Count != a.TopActivities[j].Count {
			return a.TopActivities[i].Count > a.TopActivities[j].Count
		}
		return a.TopActivities[i].Activity < a.TopActivities[j].Activity
	})
	if len(a.TopActivities) > topActivities {
		a.TopActivities = a.TopActivities[:topActivities]
	}
	return a
}

// SendWeekly emails a seven day summary to every user with an email address.
// Failures are reported per user and never stop the run.
func (s *AnalyticsService) SendWeekly(ctx context.Context) ([]WeeklyResult, error) {
	all, err := s.prefsRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var results []WeeklyResult
	for _, p := range all {
		if p.Email == "" {
			continue
		}
		res := WeeklyResult{UserID: p.UserID, Email: p.Email}
		a, err := s.compute(ctx, p, defaultAnalyticsDays)
		if err == nil {
			subject, text, body := renderWeekly(*a)
			err = s.mailer.SendMail(ctx, p.Email, subject, text, body)
		}
		if err != nil {
			res.Error = err.Error()
			s.logger.Warnw("weekly analytics email failed", "user", p.UserID, "err", err)
		} else {
			res.Success = true
		}
		results = append(results, res)
	}

	s.logger.Infow("weekly analytics run finished", "users", len(results))
	return results, nil
}

func renderWeekly(a Analytics) (subject, text, body string) {
	subject = fmt.Sprintf("Your week: %d of %d tasks done", a.Completed, a.Total)

	var t strings.Builder
	fmt.Fprintf(&t, "Weekly summary %s to %s\n\n", a.From, a.To)
	fmt.Fprintf(&t, "Completed: %d/%d (%.0f%%)\n", a.Completed, a.Total, a.CompletionRate*100)
	fmt.Fprintf(&t, "Priorities: %d/%d\n", a.PriorityCompleted, a.PriorityTotal)
	fmt.Fprintf(&t, "Hours: %.1f of %.1f planned\n", a.CompletedHours, a.PlannedHours)
	if len(a.TopActivities) > 0 {
		t.WriteString("\nTop activities:\n")
		for _, act := range a.TopActivities {
			fmt.Fprintf(&t, "- %s: %d/%d\n", act.Activity, act.Completed, act.Count)
		}
	}

	var h strings.Builder
	fmt.Fprintf(&h, "<h2>Weekly summary %s to %s</h2>", a.From, a.To)
	fmt.Fprintf(&h, "<p>Completed <b>%d</b> of %d tasks (%.0f%%).</p>", a.Completed, a.Total, a.CompletionRate*100)
	fmt.Fprintf(&h, "<p>Priorities done: %d/%d. Hours: %.1f of %.1f planned.</p>",
		a.PriorityCompleted, a.PriorityTotal, a.CompletedHours, a.PlannedHours)
	if len(a.TopActivities) > 0 {
		h.WriteString("<ul>")
		for _, act := range a.TopActivities {
			fmt.Fprintf(&h, "<li>%s: %d/%d</li>", html.EscapeString(act.Activity), act.Completed, act.Count)
		}
		h.WriteString("</ul>")
	}
	return subject, t.String(), h.String()
}
