// Package stripeprocessor implements the payment-processor contract from
// spec §2 against github.com/stripe/stripe-go/v79: CreateCheckoutSession,
// RefundPayment, and VerifyWebhook. The two outbound Stripe calls
// (CreateCheckoutSession, RefundPayment) run under the 10-second processor
// timeout spec §5 mandates; VerifyWebhook is a local check with no timeout.
package stripeprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/refund"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/circuitbreaker"
	"github.com/peerpush/chally/internal/services/depositsvc"
)

// processorTimeout is the per-call timeout spec §5 assigns to every
// payment-processor call.
const processorTimeout = 10 * time.Second

// webhookTolerance is the replay-mitigation window spec §4.3 requires:
// events whose signed timestamp is more than 5 minutes skewed from wall
// clock are rejected.
const webhookTolerance = 5 * time.Minute

// Processor adapts stripe-go to depositsvc.Processor and
// withdrawalsvc.Processor.
type Processor struct {
	secretKey string
	breaker   *circuitbreaker.Breaker
}

// New builds a Processor. secretKey is the Stripe API secret key; it is
// set as the package-level stripe.Key once per process since stripe-go's
// client functions read it from there. Every outbound call runs through a
// circuit breaker so a Stripe outage fails fast instead of piling up
// 10-second timeouts under load.
func New(secretKey string, listener circuitbreaker.StateListener) *Processor {
	stripe.Key = secretKey
	return &Processor{secretKey: secretKey, breaker: circuitbreaker.New("stripe", listener)}
}

// CreateCheckoutSession implements spec §2's CreateCheckoutSession.
func (p *Processor) CreateCheckoutSession(ctx context.Context, amountCents money.Cents, reference string, metadata map[string]string, successURL, cancelURL string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, processorTimeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID:  stripe.String(reference),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(int64(amountCents)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Chally tokens"),
					},
				},
			},
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	result, err := p.breaker.Execute(ctx, func() (any, error) {
		return session.New(params)
	})
	if err != nil {
		return "", "", fmt.Errorf("creating checkout session: %w", err)
	}
	sess := result.(*stripe.CheckoutSession)
	return sess.URL, sess.ID, nil
}

// RefundPayment implements spec §2's RefundPayment.
func (p *Processor) RefundPayment(ctx context.Context, paymentRef string, amountCents money.Cents) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, processorTimeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(int64(amountCents)),
	}
	params.Context = ctx

	result, err := p.breaker.Execute(ctx, func() (any, error) {
		return refund.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("refunding payment: %w", err)
	}
	r := result.(*stripe.Refund)
	return r.ID, nil
}

// VerifyWebhook implements spec §2's VerifyWebhook using stripe-go's
// signature-checking helper, which enforces webhookTolerance internally.
func (p *Processor) VerifyWebhook(ctx context.Context, body []byte, signature, secret string) (depositsvc.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(body, signature, secret, webhook.ConstructEventOptions{
		Tolerance:               webhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return depositsvc.WebhookEvent{}, fmt.Errorf("verifying webhook signature: %w", err)
	}

	var object struct {
		PaymentIntent     string `json:"payment_intent"`
		ClientReferenceID string `json:"client_reference_id"`
		AmountTotal       int64  `json:"amount_total"`
		PaymentStatus     string `json:"payment_status"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return depositsvc.WebhookEvent{}, fmt.Errorf("decoding event object: %w", err)
	}

	return depositsvc.WebhookEvent{
		Type:              string(event.Type),
		PaymentIntent:     object.PaymentIntent,
		ClientReferenceID: object.ClientReferenceID,
		AmountTotalCents:  object.AmountTotal,
		PaymentStatus:     object.PaymentStatus,
	}, nil
}
