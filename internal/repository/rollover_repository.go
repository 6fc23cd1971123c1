package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// RolloverBatch describes one user's day-boundary mutation.
type RolloverBatch struct {
	UserID     string
	Yesterday  string
	Today      string
	DayOfWeek  string
	ArchivedAt int64
}

// RolloverResult counts what a batch touched. AlreadyApplied is set when the
// user was already rolled over to batch.Today and nothing was changed.
type RolloverResult struct {
	Archived           int
	Promoted           int
	SuggestionsDeleted int
	AlreadyApplied     bool
}

// RolloverRepository applies day-boundary batches atomically.
type RolloverRepository struct {
	db *gorm.DB
}

func NewRolloverRepository(db *gorm.DB) *RolloverRepository {
	return &RolloverRepository{db: db}
}

// Apply archives the user's tasks dated yesterday, resets tasks dated today
// (written as "tomorrow" the day before) and deletes every suggestion of the
// user, all in one transaction. The user's last_rollover_date is claimed first,
// so a batch for the same day runs at most once.
func (r *RolloverRepository) Apply(ctx context.Context, batch RolloverBatch) (RolloverResult, error) {
	var result RolloverResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&model.UserPreferences{}).
			Where("user_id = ? AND (last_rollover_date IS NULL OR last_rollover_date <> ?)", batch.UserID, batch.Today).
			Update("last_rollover_date", batch.Today)
		if claim.Error != nil {
			return fmt.Errorf("claim rollover: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			result.AlreadyApplied = true
			return nil
		}

		var expired []model.Task
		if err := tx.Where("user_id = ? AND date = ?", batch.UserID, batch.Yesterday).Find(&expired).Error; err != nil {
			return fmt.Errorf("list expired tasks: %w", err)
		}
		if len(expired) > 0 {
			history := make([]model.HistoricalTask, 0, len(expired))
			ids := make([]string, 0, len(expired))
			for _, t := range expired {
				history = append(history, model.Archive(t, newID(), batch.Yesterday, batch.ArchivedAt))
				ids = append(ids, t.ID)
			}
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("archive tasks: %w", err)
			}
			if err := tx.Where("id IN ?", ids).Delete(&model.Task{}).Error; err != nil {
				return fmt.Errorf("delete expired tasks: %w", err)
			}
			result.Archived = len(expired)
		}

		promoted := tx.Model(&model.Task{}).Where("user_id = ? AND date = ?", batch.UserID, batch.Today).
			Updates(map[string]interface{}{
				"completed":   false,
				"day_of_week": batch.DayOfWeek,
			})
		if promoted.Error != nil {
			return fmt.Errorf("promote tasks: %w", promoted.Error)
		}
		result.Promoted = int(promoted.RowsAffected)

		deleted := tx.Where("user_id = ?", batch.UserID).Delete(&model.Suggestion{})
		if deleted.Error != nil {
			return fmt.Errorf("delete suggestions: %w", deleted.Error)
		}
		result.SuggestionsDeleted = int(deleted.RowsAffected)
		return nil
	})
	if err != nil {
		return RolloverResult{}, err
	}
	return result, nil
}
