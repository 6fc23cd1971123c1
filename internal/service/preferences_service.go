package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/repository"
	"dayplanner/internal/timebucket"
)

const maxReminderMinutes = 24 * 60

// PreferencesUpdate carries user-editable settings; nil leaves a field unchanged.
type PreferencesUpdate struct {
	PhoneNumber      *string `json:"phoneNumber"`
	Timezone         *string `json:"timezone"`
	EmailReminders   *bool   `json:"emailReminders"`
	SMSReminders     *bool   `json:"smsReminders"`
	PushReminders    *bool   `json:"pushReminders"`
	ReminderTime     *int    `json:"reminderTime"`
	DefaultView      *string `json:"defaultView"`
	HasCompletedTour *bool   `json:"hasCompletedTour"`
}

// PreferencesService manages signup and per-user notification settings.
type PreferencesService struct {
	userRepo  *repository.UserRepository
	prefsRepo *repository.PreferencesRepository
}

func NewPreferencesService(userRepo *repository.UserRepository, prefsRepo *repository.PreferencesRepository) *PreferencesService {
	return &PreferencesService{userRepo: userRepo, prefsRepo: prefsRepo}
}

// SignUp creates a user with default preferences. Unknown timezones fall back to UTC.
func (s *PreferencesService) SignUp(ctx context.Context, email, timezone string) (*model.User, *model.UserPreferences, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, invalid("invalid email %q", email)
	}
	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, nil, invalid("email %q is already registered", email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errors.Wrap(err, "find user")
	}
	if !timebucket.ValidTimezone(timezone) {
		timezone = model.DefaultTimezone
	}

	user := model.User{Email: email}
	prefs := model.DefaultPreferences("", email, timezone)
	if err := s.userRepo.CreateWithPreferences(ctx, &user, &prefs); err != nil {
		return nil, nil, err
	}
	return &user, &prefs, nil
}

func (s *PreferencesService) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return nil, lookup(err, "preferences")
	}
	return prefs, nil
}

func (s *PreferencesService) Update(ctx context.Context, userID string, upd PreferencesUpdate) (*model.UserPreferences, error) {
	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.PhoneNumber != nil {
		phone := strings.TrimSpace(*upd.PhoneNumber)
		if phone != "" && !notify.ValidPhone(phone) {
			return nil, invalid("phone number must be in E.164 format, e.g. +15551234567")
		}
		prefs.PhoneNumber = phone
	}
	if upd.Timezone != nil {
		if !timebucket.ValidTimezone(*upd.Timezone) {
			return nil, invalid("unknown timezone %q", *upd.Timezone)
		}
		prefs.Timezone = *upd.Timezone
	}
	if upd.ReminderTime != nil {
		if *upd.ReminderTime < 0 || *upd.ReminderTime > maxReminderMinutes {
			return nil, invalid("reminderTime must be between 0 and %d minutes", maxReminderMinutes)
		}
		prefs.ReminderTime = *upd.ReminderTime
	}
	if upd.DefaultView != nil {
		switch *upd.DefaultView {
		case timebucket.Today, timebucket.Tomorrow:
			prefs.DefaultView = *upd.DefaultView
		default:
			return nil, invalid("defaultView must be %q or %q", timebucket.Today, timebucket.Tomorrow)
		}
	}
	if upd.EmailReminders != nil {
		prefs.EmailReminders = *upd.EmailReminders
	}
	if upd.SMSReminders != nil {
		prefs.SMSReminders = *upd.SMSReminders
	}
	if upd.PushReminders != nil {
		prefs.PushReminders = *upd.PushReminders
	}
	if upd.HasCompletedTour != nil {
		prefs.HasCompletedTour = *upd.HasCompletedTour
	}

	if prefs.SMSReminders && prefs.PhoneNumber == "" {
		return nil, invalid("a phone number is required for SMS reminders")
	}
	if prefs.PushReminders && prefs.PushSubscription == nil {
		return nil, invalid("subscribe to push notifications before enabling push reminders")
	}

	if err := s.prefsRepo.Save(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// Subscribe stores a push subscription and enables push reminders.
func (s *PreferencesService) Subscribe(ctx context.Context, userID string, sub model.PushSubscription) error {
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		return invalid("push endpoint must be an https URL")
	}
	if sub.P256dh == "" || sub.Auth == "" {
		return invalid("push subscription keys are required")
	}
	if err := s.prefsRepo.SetPush(ctx, userID, true, &sub); err != nil {
		return lookup(err, "preferences")
	}
	return nil
}

// Unsubscribe disables push reminders and drops the subscription.
func (s *PreferencesService) Unsubscribe(ctx context.Context, userID string) error {
	if err := s.prefsRepo.SetPush(ctx, userID, false, nil); err != nil {
		return lookup(err, "preferences")
	}
	return nil
}

func (s *PreferencesService) User(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, lookup(err, "user")
	}
	return user, nil
}

// LinkTelegram ties a chat account to the user registered with email.
func (s *PreferencesService) LinkTelegram(ctx context.Context, email string, telegramID int64) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, lookup(err, "user")
	}
	if err := s.userRepo.LinkTelegram(ctx, user.ID, telegramID); err != nil {
		return nil, err
	}
	user.TelegramID = &telegramID
	return user, nil
}

func (s *PreferencesService) UserByTelegram(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, lookup(err, "user")
	}
	return user, nil
}
