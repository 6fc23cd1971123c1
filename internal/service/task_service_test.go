package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

var monday9am = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func TestCreateTaskResolvesDayInUserTimezone(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC), fixtureOpts{})
	user := f.user(t, "tokyo@example.com", "Asia/Tokyo", nil)

	task := f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: 9, Duration: 1, Activity: "Standup"})
	if task.Date != "2024-06-11" || task.DayOfWeek != "Tuesday" {
		t.Errorf("date = %s (%s), want 2024-06-11 Tuesday", task.Date, task.DayOfWeek)
	}
	if task.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	tomorrow := f.mustCreate(t, user.ID, TaskInput{Day: "tomorrow", StartTime: 9, Duration: 1, Activity: "Standup"})
	if tomorrow.Date != "2024-06-12" {
		t.Errorf("tomorrow date = %s", tomorrow.Date)
	}
}

func TestCreateTaskRejectsOverlap(t *testing.T) {
	f := newFixture(t, monday9am, fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)
	f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: 10, Duration: 1.5, Activity: "Writing"})

	cases := []struct {
		name    string
		start   float64
		dur     float64
		wantErr bool
	}{
		{"inside", 10.5, 0.5, true},
		{"covering", 9, 3, true},
		{"tail overlap", 11.25, 1, true},
		{"ends at start", 9, 1, false},
		{"starts at end", 11.5, 0.5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tasks.CreateTask(context.Background(), user.ID, TaskInput{
				Day: "today", StartTime: tc.start, Duration: tc.dur, Activity: tc.name,
			})
			if tc.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	// Same slot on another day is fine.
	f.mustCreate(t, user.ID, TaskInput{Day: "tomorrow", StartTime: 10, Duration: 1.5, Activity: "Writing"})
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t, monday9am, fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)

	bad := []TaskInput{
		{Day: "today", StartTime: 9, Duration: 1},
		{Day: "today", StartTime: 9.1, Duration: 1, Activity: "x"},
		{Day: "today", StartTime: 24, Duration: 0.25, Activity: "x"},
		{Day: "today", StartTime: 23.75, Duration: 0.5, Activity: "x"},
		{Day: "today", StartTime: 9, Duration: 0, Activity: "x"},
		{Day: "yesterday", StartTime: 9, Duration: 1, Activity: "x"},
	}
	for _, in := range bad {
		if _, err := f.tasks.CreateTask(context.Background(), user.ID, in); !errors.Is(err, ErrValidation) {
			t.Errorf("CreateTask(%+v) = %v, want validation error", in, err)
		}
	}

	if _, err := f.tasks.CreateTask(context.Background(), "missing", TaskInput{Day: "today", StartTime: 9, Duration: 1, Activity: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: got %v, want ErrNotFound", err)
	}
}

func TestPriorityLimit(t *testing.T) {
	f := newFixture(t, monday9am, fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)
	ctx := context.Background()

	for i := 0; i < MaxPriorityTasks; i++ {
		f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: float64(10 + i), Duration: 1, Activity: "p", IsPriority: true})
	}
	_, err := f.tasks.CreateTask(ctx, user.ID, TaskInput{Day: "today", StartTime: 15, Duration: 1, Activity: "p4", IsPriority: true})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("4th priority create: got %v", err)
	}

	plain := f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: 15, Duration: 1, Activity: "plain"})
	if _, err := f.tasks.TogglePriority(ctx, user.ID, plain.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("4th priority toggle: got %v", err)
	}

	tasks, _, err := f.tasks.ListTasks(ctx, user.ID, "today")
	if err != nil {
		t.Fatal(err)
	}
	priorities := 0
	for _, task := range tasks {
		if task.IsPriority {
			priorities++
		}
	}
	if priorities != MaxPriorityTasks {
		t.Errorf("priority count = %d", priorities)
	}

	// Toggling one off frees a slot.
	if _, err := f.tasks.TogglePriority(ctx, user.ID, tasks[0].ID); err != nil {
		t.Fatal(err)
	}
	if toggled, err := f.tasks.TogglePriority(ctx, user.ID, plain.ID); err != nil || !toggled.IsPriority {
		t.Fatalf("toggle after freeing slot: %v", err)
	}
}

func TestUpdateTaskRearmsReminder(t *testing.T) {
	f := newFixture(t, monday9am, fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)
	ctx := context.Background()

	a := f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: 10, Duration: 1, Activity: "a"})
	f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: 12, Duration: 1, Activity: "b"})
	if err := f.taskRepo.MarkReminderSent(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	start := 11.0
	updated, err := f.tasks.UpdateTask(ctx, user.ID, a.ID, TaskUpdate{StartTime: &start})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ReminderSent {
		t.Error("moving a task should re-arm its reminder")
	}

	dur := 2.0
	if _, err := f.tasks.UpdateTask(ctx, user.ID, a.ID, TaskUpdate{Duration: &dur}); !errors.Is(err, ErrValidation) {
		t.Errorf("extending into the next task should fail, got %v", err)
	}
}

func TestCompleteAndDeleteTask(t *testing.T) {
	f := newFixture(t, monday9am, fixtureOpts{})
	user := f.user(t, "ann@example.com", "UTC", nil)
	ctx := context.Background()
	task := f.mustCreate(t, user.ID, TaskInput{Day: "today", StartTime: 10, Duration: 1, Activity: "a"})

	done, err := f.tasks.SetCompleted(ctx, user.ID, task.ID, true)
	if err != nil || !done.Completed {
		t.Fatalf("SetCompleted: %v", err)
	}
	if err := f.tasks.DeleteTask(ctx, user.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.tasks.DeleteTask(ctx, user.ID, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v", err)
	}
	other := f.user(t, "bob@example.com", "UTC", nil)
	theirs := f.mustCreate(t, other.ID, TaskInput{Day: "today", StartTime: 10, Duration: 1, Activity: "b"})
	if _, err := f.tasks.GetTask(ctx, user.ID, theirs.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user read: got %v", err)
	}
}
