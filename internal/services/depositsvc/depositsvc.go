// Package depositsvc implements spec §4.3: BeginDeposit (HTTP-triggered
// checkout session creation) and OnPaymentConfirmed (webhook handler). No
// ledger write happens in BeginDeposit; the wallet is only touched once
// the processor confirms payment.
package depositsvc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/platform/mlog"
	"github.com/peerpush/chally/internal/platform/mtrace"
	"github.com/peerpush/chally/internal/services/ledgersvc"
)

// Processor is the external payment-processor contract from spec §2.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, amountCents money.Cents, reference string, metadata map[string]string, successURL, cancelURL string) (sessionURL, sessionID string, err error)
	VerifyWebhook(ctx context.Context, body []byte, signature, secret string) (WebhookEvent, error)
}

// WebhookEvent is the subset of a processor webhook payload the core
// consumes, per spec §6's "Webhook event format".
type WebhookEvent struct {
	Type                string
	PaymentIntent       string
	ClientReferenceID   string
	AmountTotalCents    int64
	PaymentStatus       string
}

// WalletCredit is the subset of walletsvc.Service depositsvc needs.
type WalletCredit interface {
	Credit(ctx context.Context, userID uuid.UUID, amount money.Tokens, kind ledger.Kind, externalID, paymentRef *string) (uuid.UUID, error)
}

// Service implements spec §4.3.
type Service struct {
	ledger          *ledgersvc.Service
	wallet          WalletCredit
	processor       Processor
	webhookSecret   string
	tokenPriceCents int64
	dailyCap        money.Tokens
}

// New builds a Service.
func New(ledger *ledgersvc.Service, wallet WalletCredit, processor Processor, webhookSecret string, tokenPriceCents int64, dailyCap money.Tokens) *Service {
	return &Service{ledger: ledger, wallet: wallet, processor: processor, webhookSecret: webhookSecret, tokenPriceCents: tokenPriceCents, dailyCap: dailyCap}
}

// BeginDeposit creates a checkout session for tokens tokens. No ledger
// write occurs; the wallet is credited only by OnPaymentConfirmed once the
// processor reports payment completion.
func (s *Service) BeginDeposit(ctx context.Context, userID uuid.UUID, tokens money.Tokens, successURL, cancelURL string) (sessionURL, sessionID string, err error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "depositsvc.BeginDeposit")
	defer span.End()

	if !tokens.Positive() {
		return "", "", apperrors.New(apperrors.KindInvalidAmount, "invalid amount", "tokens must be positive", nil)
	}

	midnight := ledgersvc.TodayUTCMidnight()
	depositedToday, err := s.ledger.Sum(ctx, userID, ledger.KindDeposit, &midnight)
	if err != nil {
		return "", "", err
	}
	dailyRemaining := s.dailyCap - depositedToday
	if tokens > dailyRemaining {
		return "", "", apperrors.New(apperrors.KindDailyLimit, "daily deposit cap exceeded", "", nil)
	}

	amountCents := tokens.ToCents(s.tokenPriceCents)
	sessionURL, sessionID, err = s.processor.CreateCheckoutSession(ctx, amountCents, userID.String(), map[string]string{"tokens": tokens.String()}, successURL, cancelURL)
	if err != nil {
		return "", "", apperrors.New(apperrors.KindProcessorError, "checkout session failed", "", err)
	}
	return sessionURL, sessionID, nil
}

// OnPaymentConfirmed handles a verified webhook delivery. It is a no-op
// (success, no write) for event types or payment statuses other than a
// completed/paid checkout; otherwise it credits the wallet, which is
// itself idempotent on (DEPOSIT, payment_ref).
func (s *Service) OnPaymentConfirmed(ctx context.Context, rawBody []byte, signature string) error {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "depositsvc.OnPaymentConfirmed")
	defer span.End()
	logger := mlog.FromContext(ctx)

	event, err := s.processor.VerifyWebhook(ctx, rawBody, signature, s.webhookSecret)
	if err != nil {
		return apperrors.New(apperrors.KindInvalidSignature, "invalid webhook signature", "", err)
	}

	if event.Type != "checkout.session.completed" || event.PaymentStatus != "paid" {
		logger.Infof("webhook ignored: type=%s status=%s", event.Type, event.PaymentStatus)
		return nil
	}

	userID, err := uuid.Parse(event.ClientReferenceID)
	if err != nil {
		return apperrors.New(apperrors.KindInvalidSignature, "invalid client reference", "client_reference_id is not a valid user id", err)
	}

	tokens := money.FromCents(money.Cents(event.AmountTotalCents), s.tokenPriceCents)
	paymentRef := event.PaymentIntent

	_, err = s.wallet.Credit(ctx, userID, tokens, ledger.KindDeposit, &paymentRef, &paymentRef)
	if err != nil {
		if be, ok := apperrors.As(err); ok && be.Kind == apperrors.KindDuplicate {
			logger.Infof("webhook replay for payment_intent=%s: already credited", paymentRef)
			return nil
		}
		return err
	}
	return nil
}

// replayTolerance is the maximum age of a webhook timestamp before it is
// rejected as stale (spec §4.3's 5-minute replay mitigation). Signature
// verification itself (including this check) happens inside Processor
// implementations that carry a raw timestamp in the signed header, e.g.
// stripeprocessor's use of stripe-go's webhook.ConstructEventWithOptions
// Tolerance option.
const replayTolerance = 5 * time.Minute
