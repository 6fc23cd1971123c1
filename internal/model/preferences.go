package model

import "time"

const (
	DefaultTimezone     = "UTC"
	DefaultReminderTime = 10
	DefaultView         = "today"
)

// PushSubscription is a browser web-push endpoint with its encryption keys.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// UserPreferences holds notification settings and contact endpoints for one user.
type UserPreferences struct {
	UserID           string            `gorm:"primaryKey" json:"userId"`
	Email            string            `json:"email"`
	PhoneNumber      string            `json:"phoneNumber,omitempty"`
	Timezone         string            `gorm:"default:UTC" json:"timezone"`
	EmailReminders   bool              `json:"emailReminders"`
	SMSReminders     bool              `json:"smsReminders"`
	PushReminders    bool              `json:"pushReminders"`
	PushSubscription *PushSubscription `gorm:"serializer:json" json:"pushSubscription,omitempty"`
	ReminderTime     int               `gorm:"default:10" json:"reminderTime"`
	DefaultView      string            `json:"defaultView"`
	HasCompletedTour bool              `json:"hasCompletedTour"`
	LastRolloverDate string            `json:"lastRolloverDate,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// DefaultPreferences returns the record created at signup.
func DefaultPreferences(userID, email, timezone string) UserPreferences {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	return UserPreferences{
		UserID:         userID,
		Email:          email,
		Timezone:       timezone,
		EmailReminders: true,
		ReminderTime:   DefaultReminderTime,
		DefaultView:    DefaultView,
	}
}

// LeadMinutes returns how long before a task the reminder fires.
func (p UserPreferences) LeadMinutes() int {
	if p.ReminderTime < 0 {
		return DefaultReminderTime
	}
	return p.ReminderTime
}
