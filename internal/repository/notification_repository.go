package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// NotificationRepository appends reminder send attempts.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Record(ctx context.Context, attempts []model.NotificationAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&attempts).Error; err != nil {
		return fmt.Errorf("record notification attempts: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByTask(ctx context.Context, taskID string) ([]model.NotificationAttempt, error) {
	var list []model.NotificationAttempt
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
