package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dayplanner/internal/completion"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/timebucket"
)

const (
	suggestionCount      = 2
	historyForPrompt     = 40
	maxSuggestionDescLen = 100
	defaultConfidence    = 0.5
)

const suggestionSystemPrompt = `You are a productivity assistant that plans time blocks.
Reply with a JSON object {"suggestions": [...]} holding exactly two items.
Each item has: "activity" (short title), "description" (under 100 characters),
"startTime" (integer hour 0-23), "duration" (hours, 1-4), "category" (one word),
"confidence" (0-1).`

// Shown to users with no history yet.
var starterSuggestions = []model.Suggestion{
	{Activity: "Plan your day", Description: "Review your schedule and pick today's top three priorities.", StartTime: 8, Duration: 1, Category: "planning", Confidence: 0.9},
	{Activity: "Deep work session", Description: "Block distractions and focus on your most important task.", StartTime: 9, Duration: 2, Category: "work", Confidence: 0.85},
	{Activity: "Move your body", Description: "A walk or workout to recharge your energy.", StartTime: 17, Duration: 1, Category: "health", Confidence: 0.8},
}

// Used when the completion API is unavailable or replies with something unusable.
var fallbackSuggestions = []model.Suggestion{
	{Activity: "Review priorities", Description: "Check progress on your key goals and adjust the plan.", StartTime: 9, Duration: 1, Category: "planning", Confidence: 0.6},
	{Activity: "Learning block", Description: "Read or practise a skill you want to grow.", StartTime: 19, Duration: 1, Category: "learning", Confidence: 0.6},
}

// SuggestionRequest asks for suggestions for the user's local today or tomorrow.
type SuggestionRequest struct {
	UserID          string `json:"userId"`
	Day             string `json:"day"`
	TodayOrTomorrow string `json:"todayOrTomorrow"`
}

// SuggestionService drafts candidate tasks from a user's history.
type SuggestionService struct {
	suggestionRepo *repository.SuggestionRepository
	historyRepo    *repository.HistoryRepository
	prefsRepo      *repository.PreferencesRepository
	tasks          *TaskService
	completer      completion.Completer
	clk            clock.Clock
	logger         *zap.SugaredLogger
}

// NewSuggestionService builds the generator; completer may be nil, in which case
// users with history get the fallback set.
func NewSuggestionService(suggestionRepo *repository.SuggestionRepository, historyRepo *repository.HistoryRepository, prefsRepo *repository.PreferencesRepository, tasks *TaskService, completer completion.Completer, clk clock.Clock, logger *zap.SugaredLogger) *SuggestionService {
	return &SuggestionService{
		suggestionRepo: suggestionRepo,
		historyRepo:    historyRepo,
		prefsRepo:      prefsRepo,
		tasks:          tasks,
		completer:      completer,
		clk:            clk,
		logger:         logger,
	}
}

// Generate returns pending suggestions for the day, creating them when there are none.
func (s *SuggestionService) Generate(ctx context.Context, req SuggestionRequest) ([]model.Suggestion, error) {
	if req.UserID == "" {
		return nil, invalid("userId is required")
	}
	prefs, err := s.prefsRepo.Get(ctx, req.UserID)
	if err != nil {
		return nil, lookup(err, "preferences")
	}
	date, err := timebucket.ResolveDay(s.clk.Now(), prefs.Timezone, req.TodayOrTomorrow)
	if err != nil {
		return nil, invalid("%v", err)
	}
	weekday := req.Day
	if weekday == "" {
		weekday, _ = timebucket.DayOfWeekFor(date)
	}

	pending, err := s.suggestionRepo.ListPending(ctx, req.UserID, date)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}

	history, err := s.historyRepo.ListRecent(ctx, req.UserID, historyForPrompt)
	if err != nil {
		return nil, err
	}

	var drafts []model.Suggestion
	switch {
	case len(history) == 0:
		drafts = starterSuggestions
	case s.completer == nil:
		drafts = fallbackSuggestions
	default:
		drafts, err = s.draft(ctx, weekday, history)
		if err != nil {
			s.logger.Warnw("suggestion generation degraded to defaults", "user", req.UserID, "err", err)
			drafts = fallbackSuggestions
		}
	}

	out := make([]model.Suggestion, len(drafts))
	for i, d := range drafts {
		d.UserID = req.UserID
		d.Day = date
		d.Processed = false
		out[i] = d
	}
	if err := s.suggestionRepo.CreateBatch(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Accept turns a pending suggestion into a task on its day.
func (s *SuggestionService) Accept(ctx context.Context, userID, suggestionID string) (*model.Task, error) {
	sug, err := s.pending(ctx, userID, suggestionID)
	if err != nil {
		return nil, err
	}
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return nil, lookup(err, "preferences")
	}

	_, today, tomorrow := timebucket.Days(s.clk.Now(), prefs.Timezone)
	var day string
	switch sug.Day {
	case today:
		day = timebucket.Today
	case tomorrow:
		day = timebucket.Tomorrow
	default:
		return nil, invalid("suggestion for %s has expired", sug.Day)
	}

	task, err := s.tasks.CreateTask(ctx, userID, TaskInput{
		Day:         day,
		StartTime:   sug.StartTime,
		Duration:    sug.Duration,
		Activity:    sug.Activity,
		Description: sug.Description,
	})
	if err != nil {
		return nil, err
	}
	if err := s.suggestionRepo.MarkProcessed(ctx, sug.ID); err != nil {
		return nil, err
	}
	return task, nil
}

// Reject marks a pending suggestion as handled without creating a task.
func (s *SuggestionService) Reject(ctx context.Context, userID, suggestionID string) error {
	sug, err := s.pending(ctx, userID, suggestionID)
	if err != nil {
		return err
	}
	return s.suggestionRepo.MarkProcessed(ctx, sug.ID)
}

func (s *SuggestionService) pending(ctx context.Context, userID, suggestionID string) (*model.Suggestion, error) {
	sug, err := s.suggestionRepo.FindByID(ctx, userID, suggestionID)
	if err != nil {
		return nil, lookup(err, "suggestion")
	}
	if sug.Processed {
		return nil, invalid("suggestion was already handled")
	}
	return sug, nil
}

func (s *SuggestionService) draft(ctx context.Context, weekday string, history []model.HistoricalTask) ([]model.Suggestion, error) {
	reply, err := s.completer.Complete(ctx, suggestionSystemPrompt, buildSuggestionPrompt(weekday, history))
	if err != nil {
		return nil, err
	}
	return parseSuggestions(reply)
}

func buildSuggestionPrompt(weekday string, history []model.HistoricalTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest two tasks for %s based on this recent history:\n", weekday)
	for _, h := range history {
		status := "missed"
		if h.Completed {
			status = "completed"
		}
		fmt.Fprintf(&b, "- %s %s, %.2gh: %s (%s)", h.DayOfWeek, timebucket.FormatClock(h.StartTime), h.Duration, h.Activity, status)
		if h.IsPriority {
			b.WriteString(" [priority]")
		}
		b.WriteByte('\n')
	}
	b.WriteString("Prefer activities the user completes and avoid repeating missed ones at the same hour.")
	return b.String()
}

type suggestionReply struct {
	Suggestions []struct {
		Activity    string   `json:"activity"`
		Description string   `json:"description"`
		StartTime   float64  `json:"startTime"`
		Duration    float64  `json:"duration"`
		Category    string   `json:"category"`
		Confidence  *float64 `json:"confidence"`
	} `json:"suggestions"`
}

// parseSuggestions validates the model reply: exactly two items, integer start
// hour in [0,23], duration in [1,4] ending by midnight, short description.
func parseSuggestions(reply string) ([]model.Suggestion, error) {
	var parsed suggestionReply
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil, errors.Wrap(err, "decode suggestions")
	}
	if len(parsed.Suggestions) != suggestionCount {
		return nil, errors.Errorf("expected %d suggestions, got %d", suggestionCount, len(parsed.Suggestions))
	}

	out := make([]model.Suggestion, 0, suggestionCount)
	for i, item := range parsed.Suggestions {
		activity := strings.TrimSpace(item.Activity)
		desc := strings.TrimSpace(item.Description)
		switch {
		case activity == "":
			return nil, errors.Errorf("suggestion %d has no activity", i)
		case item.StartTime != math.Trunc(item.StartTime) || item.StartTime < 0 || item.StartTime > 23:
			return nil, errors.Errorf("suggestion %d has invalid startTime %v", i, item.StartTime)
		case item.Duration < 1 || item.Duration > 4 || !quarterHour(item.Duration):
			return nil, errors.Errorf("suggestion %d has invalid duration %v", i, item.Duration)
		case item.StartTime+item.Duration > 24:
			return nil, errors.Errorf("suggestion %d runs past midnight", i)
		case len([]rune(desc)) >= maxSuggestionDescLen:
			return nil, errors.Errorf("suggestion %d description too long", i)
		}

		confidence := defaultConfidence
		if item.Confidence != nil {
			confidence = math.Max(0, math.Min(1, *item.Confidence))
		}
		category := strings.ToLower(strings.TrimSpace(item.Category))
		if category == "" {
			category = "general"
		}
		out = append(out, model.Suggestion{
			Activity:    activity,
			Description: desc,
			StartTime:   item.StartTime,
			Duration:    item.Duration,
			Category:    category,
			Confidence:  confidence,
		})
	}
	return out, nil
}
