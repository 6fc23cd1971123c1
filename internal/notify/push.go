package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dayplanner/internal/config"
	"dayplanner/internal/model"
)

const pushTTL = 60 * 60

// PushFunc delivers one encrypted web-push message.
type PushFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// PushSender delivers reminders as VAPID web-push notifications.
type PushSender struct {
	push   PushFunc
	cfg    config.WebPushConfig
	appURL string
	logger *zap.SugaredLogger
}

func NewPushSender(cfg config.WebPushConfig, appURL string, logger *zap.SugaredLogger) *PushSender {
	return NewPushSenderWithFunc(webpush.SendNotificationWithContext, cfg, appURL, logger)
}

func NewPushSenderWithFunc(fn PushFunc, cfg config.WebPushConfig, appURL string, logger *zap.SugaredLogger) *PushSender {
	return &PushSender{push: fn, cfg: cfg, appURL: appURL, logger: logger}
}

func (s *PushSender) Channel() model.Channel { return model.ChannelPush }

func (s *PushSender) Enabled(prefs model.UserPreferences) bool {
	return prefs.PushReminders && prefs.PushSubscription != nil && prefs.PushSubscription.Endpoint != ""
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Tag   string `json:"tag"`
}

func (s *PushSender) Send(ctx context.Context, task model.Task, prefs model.UserPreferences) Result {
	if prefs.PushSubscription == nil {
		return failure(model.ChannelPush, "", errors.New("no push subscription"))
	}
	endpoint := prefs.PushSubscription.Endpoint
	if s.cfg.PrivateKey == "" || s.cfg.PublicKey == "" {
		return failure(model.ChannelPush, endpoint, errors.New("push provider not configured"))
	}

	r := RenderReminder(task, prefs.LeadMinutes())
	payload, err := json.Marshal(pushPayload{Title: r.Subject, Body: r.Text, URL: s.appURL, Tag: task.ID})
	if err != nil {
		return failure(model.ChannelPush, endpoint, errors.Wrap(err, "encode push payload"))
	}

	sub := &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: prefs.PushSubscription.P256dh,
			Auth:   prefs.PushSubscription.Auth,
		},
	}
	resp, err := s.push(ctx, payload, sub, &webpush.Options{
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             pushTTL,
	})
	if err != nil {
		s.logger.Warnw("push reminder failed", "task", task.ID, "err", err)
		return failure(model.ChannelPush, endpoint, errors.Wrap(err, "send push"))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		res := failure(model.ChannelPush, endpoint, errors.Errorf("push subscription expired (%d)", resp.StatusCode))
		res.Permanent = true
		return res
	case resp.StatusCode >= 400:
		return failure(model.ChannelPush, endpoint, errors.Errorf("push service returned %d", resp.StatusCode))
	}
	return success(model.ChannelPush, endpoint)
}
