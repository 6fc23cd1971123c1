package notify

import (
	"context"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"dayplanner/internal/config"
	"dayplanner/internal/model"
)

// MessageCreator is the part of the Twilio REST API the sender needs.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSSender delivers reminders as text messages through Twilio.
type SMSSender struct {
	api    MessageCreator
	from   string
	logger *zap.SugaredLogger
}

// NewSMSSender returns a sender for the configured Twilio account. Without
// credentials every send fails with a configuration error.
func NewSMSSender(cfg config.TwilioConfig, logger *zap.SugaredLogger) *SMSSender {
	var api MessageCreator
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		api = client.Api
	}
	return NewSMSSenderWithAPI(api, cfg.FromNumber, logger)
}

func NewSMSSenderWithAPI(api MessageCreator, from string, logger *zap.SugaredLogger) *SMSSender {
	return &SMSSender{api: api, from: from, logger: logger}
}

func (s *SMSSender) Channel() model.Channel { return model.ChannelSMS }

func (s *SMSSender) Enabled(prefs model.UserPreferences) bool {
	return prefs.SMSReminders && prefs.PhoneNumber != ""
}

func (s *SMSSender) Send(ctx context.Context, task model.Task, prefs model.UserPreferences) Result {
	r := RenderReminder(task, prefs.LeadMinutes())
	if _, err := s.SendText(ctx, prefs.PhoneNumber, r.Text); err != nil {
		s.logger.Warnw("sms reminder failed", "task", task.ID, "err", err)
		return failure(model.ChannelSMS, prefs.PhoneNumber, err)
	}
	return success(model.ChannelSMS, prefs.PhoneNumber)
}

// SendText sends body to an E.164 number and returns the provider message id.
func (s *SMSSender) SendText(ctx context.Context, to, body string) (string, error) {
	if s.api == nil {
		return "", errors.New("sms provider not configured")
	}
	if !ValidPhone(to) {
		return "", errors.Errorf("invalid phone number %q", to)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return "", errors.Wrap(err, "send sms")
	}
	if resp != nil && resp.Sid != nil {
		return *resp.Sid, nil
	}
	return "", nil
}
