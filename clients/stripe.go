package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventhub/entity"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe charges cards through Stripe Checkout. The checkout session id is the
// provider reference.
type Stripe struct {
	client        *stripe.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	sessionTTL    time.Duration
}

// Checkout accepts session expiries between these bounds.
const (
	minCheckoutTTL = 30 * time.Minute
	maxCheckoutTTL = 24 * time.Hour
)

// NewStripe creates checkout sessions that stop accepting payment about when
// the reservation behind them ends. Payments that still land after the
// reservation was released are refunded.
func NewStripe(client *stripe.Client, webhookSecret, successURL, cancelURL string, sessionTTL time.Duration) Stripe {
	return Stripe{
		client:        client,
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		sessionTTL:    sessionTTL,
	}
}

func checkoutExpiresAt(now time.Time, ttl time.Duration) int64 {
	ttl = min(max(ttl, minCheckoutTTL), maxCheckoutTTL)
	return now.Add(ttl).Unix()
}

func (s Stripe) Initiate(ctx context.Context, charge entity.Charge) (entity.PaymentSession, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL + "?method=stripe&reference=" + charge.Reference),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(charge.Reference),
		ExpiresAt:         stripe.Int64(checkoutExpiresAt(time.Now(), s.sessionTTL)),
		CustomerEmail:     stripe.String(charge.Email),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(charge.Amount.Currency)),
					UnitAmount: stripe.Int64(charge.Amount.MinorUnits()),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(charge.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"reference": charge.Reference,
			"purpose":   string(charge.Purpose.Kind()),
		},
	}
	params.SetIdempotencyKey("checkout-" + charge.Reference)

	session, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return entity.PaymentSession{}, fmt.Errorf("creating checkout session: %w", err)
	}

	return entity.PaymentSession{
		Reference:         charge.Reference,
		ProviderReference: session.ID,
		RedirectURL:       session.URL,
	}, nil
}

func (s Stripe) Verify(ctx context.Context, providerReference string, expected entity.Money) (entity.Verification, error) {
	session, err := s.client.V1CheckoutSessions.Retrieve(ctx, providerReference, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return entity.Verification{}, fmt.Errorf("retrieving checkout session: %w", err)
	}

	return checkoutVerification(session, expected)
}

func checkoutVerification(session *stripe.CheckoutSession, expected entity.Money) (entity.Verification, error) {
	details, err := json.Marshal(map[string]any{
		"session_id":     session.ID,
		"status":         session.Status,
		"payment_status": session.PaymentStatus,
		"amount_total":   session.AmountTotal,
		"currency":       session.Currency,
	})
	if err != nil {
		return entity.Verification{}, fmt.Errorf("marshalling checkout session: %w", err)
	}

	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		paid := session.AmountTotal >= expected.MinorUnits() && strings.EqualFold(string(session.Currency), expected.Currency)
		return entity.Verification{Succeeded: paid, RawDetails: details}, nil
	case session.Status == stripe.CheckoutSessionStatusExpired:
		return entity.Verification{RawDetails: details}, nil
	default:
		return entity.Verification{Pending: true, RawDetails: details}, nil
	}
}

func (s Stripe) Refund(ctx context.Context, providerReference string, amount entity.Money, idempotencyKey string) error {
	session, err := s.client.V1CheckoutSessions.Retrieve(ctx, providerReference, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return fmt.Errorf("retrieving checkout session: %w", err)
	}
	if session.PaymentIntent == nil {
		return fmt.Errorf("checkout session %s has no payment intent", providerReference)
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(session.PaymentIntent.ID),
		Amount:        stripe.Int64(amount.MinorUnits()),
	}
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := s.client.V1Refunds.Create(ctx, params); err != nil {
		return fmt.Errorf("creating refund: %w", err)
	}

	return nil
}

type CheckoutCompleted struct {
	Reference         string
	ProviderReference string
}

var ErrIgnoredWebhook = errors.New("webhook event not handled")

// ParseWebhook checks the Stripe-Signature header and extracts the completed
// checkout session. Other event types return ErrIgnoredWebhook.
func (s Stripe) ParseWebhook(payload []byte, signature string) (CheckoutCompleted, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return CheckoutCompleted{}, fmt.Errorf("verifying webhook signature: %w", err)
	}

	if event.Type != "checkout.session.completed" && event.Type != "checkout.session.async_payment_succeeded" {
		return CheckoutCompleted{}, ErrIgnoredWebhook
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return CheckoutCompleted{}, fmt.Errorf("unmarshalling checkout session: %w", err)
	}

	reference := session.ClientReferenceID
	if reference == "" {
		reference = session.Metadata["reference"]
	}
	if reference == "" {
		return CheckoutCompleted{}, fmt.Errorf("checkout session %s carries no payment reference", session.ID)
	}

	return CheckoutCompleted{
		Reference:         reference,
		ProviderReference: session.ID,
	}, nil
}
