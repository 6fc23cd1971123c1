package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"dayplanner/internal/config"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
	"dayplanner/internal/testutil"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = p
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func newTestBilling(t *testing.T, sessions SessionCreator) (*Service, *repository.UserRepository, model.User) {
	t.Helper()
	db := testutil.NewDB(t)
	users := repository.NewUserRepository(db)
	user := testutil.CreateUser(t, db, "ann@example.com", "UTC", nil)
	cfg := config.StripeConfig{WebhookSecret: testSecret, PriceMonthly: "price_m", PriceYearly: "price_y"}
	svc := NewServiceWithSessions(sessions, cfg, "https://planner.test", users, clock.NewFake(), zap.NewNop().Sugar())
	return svc, users, user
}

func checkoutEvent(userID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "created": 1717200000,
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "client_reference_id": %q,
    "customer": "cus_1",
    "subscription": "sub_1",
    "metadata": {"userId": %q, "plan": "monthly"}
  }}
}`, userID, userID))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	svc, users, user := newTestBilling(t, nil)
	payload := checkoutEvent(user.ID)

	_, err := svc.HandleWebhook(context.Background(), payload, sign(payload, "whsec_wrong"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	got, err := users.FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsPremium || got.StripeCustomerID != "" {
		t.Errorf("user mutated after invalid signature: %+v", got)
	}
}

func TestWebhookCheckoutCompletedIsIdempotent(t *testing.T) {
	svc, users, user := newTestBilling(t, nil)
	payload := checkoutEvent(user.ID)

	for i := 0; i < 2; i++ {
		typ, err := svc.HandleWebhook(context.Background(), payload, sign(payload, testSecret))
		if err != nil {
			t.Fatalf("HandleWebhook #%d: %v", i, err)
		}
		if typ != stripe.EventTypeCheckoutSessionCompleted {
			t.Errorf("type = %s", typ)
		}
	}

	got, err := users.FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsPremium || got.Plan != PlanMonthly {
		t.Errorf("expected monthly premium, got %+v", got)
	}
	if got.StripeCustomerID != "cus_1" || got.StripeSubscriptionID != "sub_1" {
		t.Errorf("stripe ids not stored: %+v", got)
	}
	want := time.Unix(1717200000, 0).UTC().AddDate(0, 1, 0)
	if got.NextBillingDate == nil || !got.NextBillingDate.Equal(want) {
		t.Errorf("NextBillingDate = %v, want %v", got.NextBillingDate, want)
	}
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	svc, users, user := newTestBilling(t, nil)
	ctx := context.Background()
	payload := checkoutEvent(user.ID)
	if _, err := svc.HandleWebhook(ctx, payload, sign(payload, testSecret)); err != nil {
		t.Fatal(err)
	}

	updated := []byte(`{"id":"evt_2","object":"event","type":"customer.subscription.updated","created":1717300000,
"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"past_due","current_period_end":1720000000,"metadata":{}}}}`)
	if _, err := svc.HandleWebhook(ctx, updated, sign(updated, testSecret)); err != nil {
		t.Fatal(err)
	}
	got, _ := users.FindByID(ctx, user.ID)
	if got.IsPremium {
		t.Error("past_due subscription should clear premium")
	}
	if got.NextBillingDate == nil || got.NextBillingDate.Unix() != 1720000000 {
		t.Errorf("NextBillingDate = %v", got.NextBillingDate)
	}

	deleted := []byte(`{"id":"evt_3","object":"event","type":"customer.subscription.deleted","created":1717400000,
"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled","metadata":{"userId":"` + user.ID + `"}}}}`)
	if _, err := svc.HandleWebhook(ctx, deleted, sign(deleted, testSecret)); err != nil {
		t.Fatal(err)
	}
	got, _ = users.FindByID(ctx, user.ID)
	if got.IsPremium || got.Plan != "" || got.StripeSubscriptionID != "" || got.NextBillingDate != nil {
		t.Errorf("billing fields not cleared: %+v", got)
	}
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	svc, _, _ := newTestBilling(t, nil)
	payload := []byte(`{"id":"evt_9","object":"event","type":"invoice.paid","created":1717200000,"data":{"object":{"id":"in_1","object":"invoice"}}}`)
	if _, err := svc.HandleWebhook(context.Background(), payload, sign(payload, testSecret)); err != nil {
		t.Errorf("unknown event should be accepted, got %v", err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{}
	svc, _, user := newTestBilling(t, sessions)

	out, err := svc.CreateCheckoutSession(context.Background(), CheckoutRequest{UserID: user.ID, Plan: PlanYearly, Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if out.SessionID != "cs_test_1" {
		t.Errorf("SessionID = %q", out.SessionID)
	}
	p := sessions.params
	if p == nil || *p.LineItems[0].Price != "price_y" || *p.ClientReferenceID != user.ID {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.SubscriptionData.Metadata["userId"] != user.ID {
		t.Errorf("subscription metadata missing user id")
	}

	_, err = svc.CreateCheckoutSession(context.Background(), CheckoutRequest{UserID: user.ID, Plan: "weekly", Email: "ann@example.com"})
	if !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected validation error for unknown plan, got %v", err)
	}
}
