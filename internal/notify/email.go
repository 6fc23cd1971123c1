package notify

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"dayplanner/internal/config"
	"dayplanner/internal/model"
)

// Dialer sends composed messages; *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers reminders over SMTP.
type EmailSender struct {
	dialer Dialer
	from   string
	logger *zap.SugaredLogger
}

// NewEmailSender returns a sender for the configured SMTP account. Without a
// host every send fails with a configuration error.
func NewEmailSender(cfg config.SMTPConfig, logger *zap.SugaredLogger) *EmailSender {
	var d Dialer
	if cfg.Host != "" {
		d = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return NewEmailSenderWithDialer(d, cfg.From, logger)
}

func NewEmailSenderWithDialer(d Dialer, from string, logger *zap.SugaredLogger) *EmailSender {
	return &EmailSender{dialer: d, from: from, logger: logger}
}

func (s *EmailSender) Channel() model.Channel { return model.ChannelEmail }

func (s *EmailSender) Enabled(prefs model.UserPreferences) bool {
	return prefs.EmailReminders && prefs.Email != ""
}

func (s *EmailSender) Send(ctx context.Context, task model.Task, prefs model.UserPreferences) Result {
	r := RenderReminder(task, prefs.LeadMinutes())
	if err := s.SendMail(ctx, prefs.Email, r.Subject, r.Text, r.HTML); err != nil {
		s.logger.Warnw("email reminder failed", "task", task.ID, "err", err)
		return failure(model.ChannelEmail, prefs.Email, err)
	}
	return success(model.ChannelEmail, prefs.Email)
}

// SendMail sends a plain text message with an optional HTML alternative.
func (s *EmailSender) SendMail(ctx context.Context, to, subject, text, htmlBody string) error {
	if s.dialer == nil {
		return errors.New("email provider not configured")
	}
	if to == "" {
		return errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return errors.Wrap(err, "send email")
	}
	return nil
}
