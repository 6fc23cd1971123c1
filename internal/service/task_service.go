package service

import (
	"context"
	"math"
	"strings"

	"github.com/jmhodges/clock"

	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/timebucket"
)

const (
	MaxPriorityTasks = 3
	maxActivityLen   = 120
	maxDescLen       = 500
	lastStartTime    = 23.75
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Day         string  `json:"day"`
	StartTime   float64 `json:"startTime"`
	Duration    float64 `json:"duration"`
	Activity    string  `json:"activity"`
	Description string  `json:"description"`
	IsPriority  bool    `json:"isPriority"`
}

// TaskUpdate carries the fields a user may edit; nil leaves a field unchanged.
type TaskUpdate struct {
	StartTime   *float64 `json:"startTime"`
	Duration    *float64 `json:"duration"`
	Activity    *string  `json:"activity"`
	Description *string  `json:"description"`
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo  *repository.TaskRepository
	prefsRepo *repository.PreferencesRepository
	clk       clock.Clock
}

func NewTaskService(taskRepo *repository.TaskRepository, prefsRepo *repository.PreferencesRepository, clk clock.Clock) *TaskService {
	return &TaskService{taskRepo: taskRepo, prefsRepo: prefsRepo, clk: clk}
}

// CreateTask validates and stores a task for the user's local today or tomorrow.
func (s *TaskService) CreateTask(ctx context.Context, userID string, input TaskInput) (*model.Task, error) {
	date, err := s.resolveDate(ctx, userID, input.Day)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:      userID,
		Date:        date,
		StartTime:   input.StartTime,
		Duration:    input.Duration,
		Activity:    strings.TrimSpace(input.Activity),
		Description: strings.TrimSpace(input.Description),
		IsPriority:  input.IsPriority,
	}
	if err := validateTask(task); err != nil {
		return nil, err
	}
	task.DayOfWeek, err = timebucket.DayOfWeekFor(date)
	if err != nil {
		return nil, err
	}

	existing, err := s.taskRepo.ListByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if err := checkSchedule(task, existing); err != nil {
		return nil, err
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies edits, keeping the task on its date. A new start time
// re-arms the reminder.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID string, upd TaskUpdate) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if upd.StartTime != nil && *upd.StartTime != task.StartTime {
		task.StartTime = *upd.StartTime
		task.ReminderSent = false
	}
	if upd.Duration != nil {
		task.Duration = *upd.Duration
	}
	if upd.Activity != nil {
		task.Activity = strings.TrimSpace(*upd.Activity)
	}
	if upd.Description != nil {
		task.Description = strings.TrimSpace(*upd.Description)
	}
	if err := validateTask(*task); err != nil {
		return nil, err
	}

	existing, err := s.taskRepo.ListByDate(ctx, userID, task.Date)
	if err != nil {
		return nil, err
	}
	if err := checkSchedule(*task, existing); err != nil {
		return nil, err
	}

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// TogglePriority flips the priority flag; turning on a fourth priority for the day is rejected.
func (s *TaskService) TogglePriority(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsPriority {
		existing, err := s.taskRepo.ListByDate(ctx, userID, task.Date)
		if err != nil {
			return nil, err
		}
		if countPriority(existing, task.ID) >= MaxPriorityTasks {
			return nil, invalid("at most %d priority tasks per day", MaxPriorityTasks)
		}
	}

	task.IsPriority = !task.IsPriority
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) SetCompleted(ctx context.Context, userID, taskID string, completed bool) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	task.Completed = completed
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, lookup(err, "task")
	}
	return task, nil
}

// DeleteTask removes a task completely.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := s.taskRepo.Delete(ctx, userID, taskID); err != nil {
		return lookup(err, "task")
	}
	return nil
}

// ListTasks returns the tasks of the user's local today or tomorrow and the resolved date.
func (s *TaskService) ListTasks(ctx context.Context, userID, day string) ([]model.Task, string, error) {
	date, err := s.resolveDate(ctx, userID, day)
	if err != nil {
		return nil, "", err
	}
	tasks, err := s.taskRepo.ListByDate(ctx, userID, date)
	if err != nil {
		return nil, "", err
	}
	return tasks, date, nil
}

func (s *TaskService) resolveDate(ctx context.Context, userID, day string) (string, error) {
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return "", lookup(err, "preferences")
	}
	date, err := timebucket.ResolveDay(s.clk.Now(), prefs.Timezone, day)
	if err != nil {
		return "", invalid("%v", err)
	}
	return date, nil
}

func validateTask(t model.Task) error {
	switch {
	case t.Activity == "":
		return invalid("activity is required")
	case len(t.Activity) > maxActivityLen:
		return invalid("activity must be at most %d characters", maxActivityLen)
	case len(t.Description) > maxDescLen:
		return invalid("description must be at most %d characters", maxDescLen)
	case t.StartTime < 0 || t.StartTime > lastStartTime || !quarterHour(t.StartTime):
		return invalid("startTime must be between 0 and %.2f in 15 minute steps", lastStartTime)
	case t.Duration <= 0 || !quarterHour(t.Duration):
		return invalid("duration must be positive in 15 minute steps")
	case t.End() > 24:
		return invalid("task must end by midnight")
	}
	return nil
}

// checkSchedule rejects overlaps and a fourth priority among the other tasks of the day.
func checkSchedule(task model.Task, existing []model.Task) error {
	for _, other := range existing {
		if other.ID == task.ID {
			continue
		}
		if task.Overlaps(other) {
			return invalid("overlaps %q at %s", other.Activity, timebucket.FormatClock(other.StartTime))
		}
	}
	if task.IsPriority && countPriority(existing, task.ID) >= MaxPriorityTasks {
		return invalid("at most %d priority tasks per day", MaxPriorityTasks)
	}
	return nil
}

func countPriority(tasks []model.Task, exceptID string) int {
	n := 0
	for _, t := range tasks {
		if t.IsPriority && t.ID != exceptID {
			n++
		}
	}
	return n
}

func quarterHour(v float64) bool {
	q := v * 4
	return math.Abs(q-math.Round(q)) < 1e-9
}
