// Package billing creates subscription checkouts and applies payment provider
// webhook events to a user's premium state.
package billing

import (
	"context"
	"encoding/json"
	"net/mail"
	"time"

	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dayplanner/internal/config"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
)

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"

	metaUserID      = "userId"
	metaPlan        = "plan"
	metaBillingDate = "nextBillingDate"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// SessionCreator is the part of the Stripe checkout API the service needs.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type CheckoutRequest struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan"`
	Email  string `json:"email"`
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Service keeps users' premium flags in sync with their subscriptions.
type Service struct {
	sessions SessionCreator
	users    *repository.UserRepository
	cfg      config.StripeConfig
	appURL   string
	clk      clock.Clock
	logger   *zap.SugaredLogger
}

func NewService(cfg config.StripeConfig, appURL string, users *repository.UserRepository, clk clock.Clock, logger *zap.SugaredLogger) *Service {
	var sessions SessionCreator
	if cfg.SecretKey != "" {
		sc := &client.API{}
		sc.Init(cfg.SecretKey, nil)
		sessions = sc.CheckoutSessions
	}
	return NewServiceWithSessions(sessions, cfg, appURL, users, clk, logger)
}

func NewServiceWithSessions(sessions SessionCreator, cfg config.StripeConfig, appURL string, users *repository.UserRepository, clk clock.Clock, logger *zap.SugaredLogger) *Service {
	return &Service{sessions: sessions, users: users, cfg: cfg, appURL: appURL, clk: clk, logger: logger}
}

// CreateCheckoutSession starts a subscription checkout tagged with the user id.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if s.sessions == nil {
		return nil, errors.New("payments are not configured")
	}
	if req.UserID == "" {
		return nil, errors.Wrap(service.ErrValidation, "userId is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, errors.Wrapf(service.ErrValidation, "invalid email %q", req.Email)
	}
	price, err := s.priceFor(req.Plan)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(service.ErrNotFound, "user")
		}
		return nil, errors.Wrap(err, "load user")
	}

	meta := map[string]string{metaUserID: req.UserID, metaPlan: req.Plan}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.appURL + "/?checkout=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.appURL + "/?checkout=cancelled"),
		ClientReferenceID: stripe.String(req.UserID),
		CustomerEmail:     stripe.String(req.Email),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	s.logger.Infow("checkout session created", "user", req.UserID, "plan", req.Plan, "session", sess.ID)
	return &CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *Service) priceFor(plan string) (string, error) {
	var price string
	switch plan {
	case PlanMonthly:
		price = s.cfg.PriceMonthly
	case PlanYearly:
		price = s.cfg.PriceYearly
	default:
		return "", errors.Wrapf(service.ErrValidation, "unknown plan %q", plan)
	}
	if price == "" {
		return "", errors.Errorf("no price configured for plan %q", plan)
	}
	return price, nil
}

// HandleWebhook verifies the signature and applies the event. Unknown event
// types are accepted and ignored. Replays re-apply the same terminal state.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (stripe.EventType, error) {
	if s.cfg.WebhookSecret == "" {
		return "", ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if event.Data == nil {
		return event.Type, errors.Wrap(service.ErrValidation, "event has no data")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return event.Type, errors.Wrap(service.ErrValidation, "decode checkout session")
		}
		err = s.checkoutCompleted(ctx, &sess, time.Unix(event.Created, 0).UTC())
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return event.Type, errors.Wrap(service.ErrValidation, "decode subscription")
		}
		err = s.subscriptionDeleted(ctx, &sub)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return event.Type, errors.Wrap(service.ErrValidation, "decode subscription")
		}
		err = s.subscriptionUpdated(ctx, &sub)
	default:
		s.logger.Debugw("webhook event ignored", "type", event.Type, "event", event.ID)
		return event.Type, nil
	}

	if errors.Is(err, service.ErrNotFound) {
		s.logger.Warnw("webhook event for unknown user", "type", event.Type, "event", event.ID)
		return event.Type, nil
	}
	return event.Type, err
}

func (s *Service) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession, created time.Time) error {
	userID := sess.Metadata[metaUserID]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	user, err := s.findUser(ctx, userID, "", "")
	if err != nil {
		return err
	}

	plan := sess.Metadata[metaPlan]
	next := nextBillingDate(plan, created)
	if raw := sess.Metadata[metaBillingDate]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			next = t.UTC()
		}
	}

	user.IsPremium = true
	user.Plan = plan
	user.NextBillingDate = &next
	if user.PremiumSince == nil {
		user.PremiumSince = &created
	}
	if sess.Customer != nil && sess.Customer.ID != "" {
		user.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		user.StripeSubscriptionID = sess.Subscription.ID
	}
	if err := s.users.SaveBilling(ctx, user); err != nil {
		return err
	}
	s.logger.Infow("premium activated", "user", user.ID, "plan", plan)
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.findUser(ctx, sub.Metadata[metaUserID], sub.ID, customerID(sub))
	if err != nil {
		return err
	}
	user.IsPremium = false
	user.Plan = ""
	user.StripeSubscriptionID = ""
	user.NextBillingDate = nil
	user.PremiumSince = nil
	if err := s.users.SaveBilling(ctx, user); err != nil {
		return err
	}
	s.logger.Infow("premium cancelled", "user", user.ID)
	return nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.findUser(ctx, sub.Metadata[metaUserID], sub.ID, customerID(sub))
	if err != nil {
		return err
	}
	user.IsPremium = sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
	if sub.CurrentPeriodEnd > 0 {
		next := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		user.NextBillingDate = &next
	}
	if plan := sub.Metadata[metaPlan]; plan != "" {
		user.Plan = plan
	}
	user.StripeSubscriptionID = sub.ID
	if id := customerID(sub); id != "" {
		user.StripeCustomerID = id
	}
	if err := s.users.SaveBilling(ctx, user); err != nil {
		return err
	}
	s.logger.Infow("subscription synced", "user", user.ID, "status", sub.Status, "premium", user.IsPremium)
	return nil
}

func (s *Service) findUser(ctx context.Context, userID, subscriptionID, customerID string) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if userID != "" {
		user, err = s.users.FindByID(ctx, userID)
	} else {
		user, err = s.users.FindByStripeSubscription(ctx, subscriptionID, customerID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(service.ErrNotFound, "user")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}
	return user, nil
}

func customerID(sub *stripe.Subscription) string {
	if sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}

func nextBillingDate(plan string, from time.Time) time.Time {
	if plan == PlanYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
