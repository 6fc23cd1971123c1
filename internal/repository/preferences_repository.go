package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// PreferencesRepository stores one preferences record per user.
type PreferencesRepository struct {
	db *gorm.DB
}

func NewPreferencesRepository(db *gorm.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func (r *PreferencesRepository) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	var prefs model.UserPreferences
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error; err != nil {
		return nil, err
	}
	return &prefs, nil
}

// GetMany loads preferences for the given users keyed by user id. Missing users are absent from the map.
func (r *PreferencesRepository) GetMany(ctx context.Context, userIDs []string) (map[string]model.UserPreferences, error) {
	out := make(map[string]model.UserPreferences, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var list []model.UserPreferences
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, p := range list {
		out[p.UserID] = p
	}
	return out, nil
}

// Save writes every column, including zero values and a nil push subscription.
// The rollover marker is owned by RolloverRepository and never written here.
func (r *PreferencesRepository) Save(ctx context.Context, prefs *model.UserPreferences) error {
	if err := r.db.WithContext(ctx).Omit("LastRolloverDate").Save(prefs).Error; err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// SetPush updates only the push toggle and subscription.
func (r *PreferencesRepository) SetPush(ctx context.Context, userID string, enabled bool, sub *model.PushSubscription) error {
	res := r.db.WithContext(ctx).Model(&model.UserPreferences{UserID: userID}).
		Select("PushReminders", "PushSubscription").
		Updates(model.UserPreferences{PushReminders: enabled, PushSubscription: sub})
	if res.Error != nil {
		return fmt.Errorf("update push preferences: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PreferencesRepository) ListAll(ctx context.Context) ([]model.UserPreferences, error) {
	var list []model.UserPreferences
	if err := r.db.WithContext(ctx).Order("user_id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
