package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateWithPreferences stores a new user and its default preferences together.
func (r *UserRepository) CreateWithPreferences(ctx context.Context, user *model.User, prefs *model.UserPreferences) error {
	if user.ID == "" {
		user.ID = newID()
	}
	prefs.UserID = user.ID
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := tx.Create(prefs).Error; err != nil {
			return fmt.Errorf("create preferences: %w", err)
		}
		return nil
	})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByStripeSubscription looks a user up by subscription id, then by customer id.
func (r *UserRepository) FindByStripeSubscription(ctx context.Context, subscriptionID, customerID string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	if subscriptionID != "" {
		err := db.Where("stripe_subscription_id = ?", subscriptionID).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if customerID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if err := db.Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LinkTelegram attaches a Telegram account to the user, detaching it from any other user first.
func (r *UserRepository) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("telegram_id = ? AND id <> ?", telegramID, userID).
			Update("telegram_id", nil).Error; err != nil {
			return fmt.Errorf("unlink telegram: %w", err)
		}
		if err := tx.Model(&model.User{}).Where("id = ?", userID).
			Update("telegram_id", telegramID).Error; err != nil {
			return fmt.Errorf("link telegram: %w", err)
		}
		return nil
	})
}

// SaveBilling writes the premium and billing columns of the user, zero values included.
func (r *UserRepository) SaveBilling(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Model(user).
		Select("IsPremium", "Plan", "StripeCustomerID", "StripeSubscriptionID", "NextBillingDate", "PremiumSince").
		Updates(user).Error; err != nil {
		return fmt.Errorf("save billing: %w", err)
	}
	return nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
