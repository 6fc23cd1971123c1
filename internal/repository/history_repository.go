package repository

import (
	"context"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// HistoryRepository reads archived tasks. Writes happen only inside a rollover batch.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListSince returns a user's archived tasks whose actual date is on or after since.
func (r *HistoryRepository) ListSince(ctx context.Context, userID, since string) ([]model.HistoricalTask, error) {
	var list []model.HistoricalTask
	if err := r.db.WithContext(ctx).Where("user_id = ? AND actual_date >= ?", userID, since).
		Order("actual_date ASC, start_time ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListRecent returns up to limit of a user's most recently archived tasks.
func (r *HistoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]model.HistoricalTask, error) {
	var list []model.HistoricalTask
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("actual_date DESC, start_time ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
