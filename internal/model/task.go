package model

// Task is a single time block planned for one calendar day.
type Task struct {
	ID           string  `gorm:"primaryKey" json:"id"`
	UserID       string  `gorm:"index:idx_task_user_date" json:"userId"`
	Date         string  `gorm:"index:idx_task_user_date" json:"date"`
	DayOfWeek    string  `json:"dayOfWeek"`
	StartTime    float64 `json:"startTime"`
	Duration     float64 `json:"duration"`
	Activity     string  `json:"activity"`
	Description  string  `json:"description,omitempty"`
	IsPriority   bool    `gorm:"default:false" json:"isPriority"`
	Completed    bool    `gorm:"default:false" json:"completed"`
	ReminderSent bool    `gorm:"index;default:false" json:"reminderSent"`
	CreatedAt    int64   `gorm:"autoCreateTime:milli" json:"createdAt"`
}

// End returns the exclusive end of the task's time block in hours.
func (t Task) End() float64 {
	return t.StartTime + t.Duration
}

// Overlaps reports whether two tasks share any part of [start, start+duration).
func (t Task) Overlaps(other Task) bool {
	return t.StartTime < other.End() && other.StartTime < t.End()
}

// HistoricalTask is an archived snapshot of a task whose day has ended.
type HistoricalTask struct {
	ID           string  `gorm:"primaryKey" json:"id"`
	TaskID       string  `gorm:"index" json:"taskId"`
	UserID       string  `gorm:"index:idx_history_user_date" json:"userId"`
	Date         string  `json:"date"`
	DayOfWeek    string  `json:"dayOfWeek"`
	StartTime    float64 `json:"startTime"`
	Duration     float64 `json:"duration"`
	Activity     string  `json:"activity"`
	Description  string  `json:"description,omitempty"`
	IsPriority   bool    `json:"isPriority"`
	Completed    bool    `json:"completed"`
	ReminderSent bool    `json:"reminderSent"`
	CreatedAt    int64   `json:"createdAt"`
	OriginalDate string  `json:"originalDate"`
	ActualDate   string  `gorm:"index:idx_history_user_date" json:"actualDate"`
	ArchivedAt   int64   `json:"archivedAt"`
}

func (HistoricalTask) TableName() string {
	return "task_histories"
}

// Archive snapshots t as a history record for the given day.
func Archive(t Task, id, day string, archivedAt int64) HistoricalTask {
	return HistoricalTask{
		ID:           id,
		TaskID:       t.ID,
		UserID:       t.UserID,
		Date:         t.Date,
		DayOfWeek:    t.DayOfWeek,
		StartTime:    t.StartTime,
		Duration:     t.Duration,
		Activity:     t.Activity,
		Description:  t.Description,
		IsPriority:   t.IsPriority,
		Completed:    t.Completed,
		ReminderSent: t.ReminderSent,
		CreatedAt:    t.CreatedAt,
		OriginalDate: day,
		ActualDate:   day,
		ArchivedAt:   archivedAt,
	}
}

// Task returns the task fields stored in the snapshot.
func (h HistoricalTask) Task() Task {
	return Task{
		ID:           h.TaskID,
		UserID:       h.UserID,
		Date:         h.Date,
		DayOfWeek:    h.DayOfWeek,
		StartTime:    h.StartTime,
		Duration:     h.Duration,
		Activity:     h.Activity,
		Description:  h.Description,
		IsPriority:   h.IsPriority,
		Completed:    h.Completed,
		ReminderSent: h.ReminderSent,
		CreatedAt:    h.CreatedAt,
	}
}
