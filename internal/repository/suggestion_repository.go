package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// SuggestionRepository handles generated task suggestions.
type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// ListPending returns unprocessed suggestions for a user and day.
func (r *SuggestionRepository) ListPending(ctx context.Context, userID, day string) ([]model.Suggestion, error) {
	var list []model.Suggestion
	if err := r.db.WithContext(ctx).Where("user_id = ? AND day = ? AND processed = ?", userID, day, false).
		Order("start_time ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *SuggestionRepository) CreateBatch(ctx context.Context, list []model.Suggestion) error {
	if len(list) == 0 {
		return nil
	}
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = newID()
		}
	}
	if err := r.db.WithContext(ctx).Create(&list).Error; err != nil {
		return fmt.Errorf("create suggestions: %w", err)
	}
	return nil
}

func (r *SuggestionRepository) FindByID(ctx context.Context, userID, id string) (*model.Suggestion, error) {
	var s model.Suggestion
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SuggestionRepository) MarkProcessed(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&model.Suggestion{}).Where("id = ?", id).
		Update("processed", true).Error; err != nil {
		return fmt.Errorf("mark suggestion processed: %w", err)
	}
	return nil
}
