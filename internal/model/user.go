package model

import "time"

// User stores account and billing state.
type User struct {
	ID                   string     `gorm:"primaryKey" json:"id"`
	Email                string     `gorm:"uniqueIndex" json:"email"`
	TelegramID           *int64     `gorm:"uniqueIndex" json:"telegramId,omitempty"`
	IsPremium            bool       `gorm:"default:false" json:"isPremium"`
	Plan                 string     `json:"plan,omitempty"`
	StripeCustomerID     string     `gorm:"index" json:"-"`
	StripeSubscriptionID string     `gorm:"index" json:"-"`
	NextBillingDate      *time.Time `json:"nextBillingDate,omitempty"`
	PremiumSince         *time.Time `json:"premiumSince,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}
