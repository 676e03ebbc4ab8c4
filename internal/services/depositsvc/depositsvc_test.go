package depositsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/services/depositsvc"
	"github.com/peerpush/chally/internal/services/ledgersvc"
)

type fakeLedgerRepo struct {
	entries []ledger.Entry
}

func (f *fakeLedgerRepo) Append(ctx context.Context, e ledger.Entry) (uuid.UUID, error) {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, e)
	return e.ID, nil
}

func (f *fakeLedgerRepo) FindByExternalID(ctx context.Context, kind ledger.Kind, externalID string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (f *fakeLedgerRepo) Balance(ctx context.Context, userID uuid.UUID) (money.Tokens, error) {
	return 0, nil
}

func (f *fakeLedgerRepo) Sum(ctx context.Context, userID uuid.UUID, kind ledger.Kind, since *time.Time) (money.Tokens, error) {
	var total money.Tokens
	for _, e := range f.entries {
		if e.UserID == userID && e.Kind == kind && (since == nil || e.CreatedAt.After(*since)) {
			total += e.Amount
		}
	}
	return total, nil
}

func (f *fakeLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Entry, error) {
	return nil, nil
}

type fakeProcessor struct {
	event      depositsvc.WebhookEvent
	verifyErr  error
	checkoutID string
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, amountCents money.Cents, reference string, metadata map[string]string, successURL, cancelURL string) (string, string, error) {
	return "https://checkout.example/" + f.checkoutID, f.checkoutID, nil
}

func (f *fakeProcessor) VerifyWebhook(ctx context.Context, body []byte, signature, secret string) (depositsvc.WebhookEvent, error) {
	return f.event, f.verifyErr
}

type fakeWallet struct {
	credits []struct {
		userID uuid.UUID
		amount money.Tokens
	}
	duplicateOn string
}

func (f *fakeWallet) Credit(ctx context.Context, userID uuid.UUID, amount money.Tokens, kind ledger.Kind, externalID, paymentRef *string) (uuid.UUID, error) {
	if f.duplicateOn != "" && externalID != nil && *externalID == f.duplicateOn {
		return uuid.New(), apperrors.New(apperrors.KindDuplicate, "duplicate", "", nil)
	}
	f.credits = append(f.credits, struct {
		userID uuid.UUID
		amount money.Tokens
	}{userID, amount})
	return uuid.New(), nil
}

func TestBeginDeposit_RejectsNonPositiveTokens(t *testing.T) {
	svc := depositsvc.New(ledgersvc.New(&fakeLedgerRepo{}), &fakeWallet{}, &fakeProcessor{}, "whsec", 1, money.Tokens(1000))
	_, _, err := svc.BeginDeposit(context.Background(), uuid.New(), money.Tokens(0), "ok", "cancel")
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidAmount, be.Kind)
}

func TestBeginDeposit_RejectsOverDailyCap(t *testing.T) {
	userID := uuid.New()
	repo := &fakeLedgerRepo{}
	ledgerSvc := ledgersvc.New(repo)

	// Pre-seed today's deposits at 900 tokens against a 1000 cap.
	_, err := ledgerSvc.Append(context.Background(), userID, ledger.KindDeposit, money.Tokens(900), "USD", nil, "")
	require.NoError(t, err)

	svc := depositsvc.New(ledgerSvc, &fakeWallet{}, &fakeProcessor{}, "whsec", 1, money.Tokens(1000))

	_, _, err = svc.BeginDeposit(context.Background(), userID, money.Tokens(200), "ok", "cancel")
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDailyLimit, be.Kind)

	_, _, err = svc.BeginDeposit(context.Background(), userID, money.Tokens(100), "ok", "cancel")
	assert.NoError(t, err, "exactly the remaining headroom must be allowed")
}

func TestOnPaymentConfirmed_IgnoresNonMatchingEvents(t *testing.T) {
	wallet := &fakeWallet{}
	processor := &fakeProcessor{event: depositsvc.WebhookEvent{Type: "checkout.session.expired", PaymentStatus: "unpaid"}}
	svc := depositsvc.New(ledgersvc.New(&fakeLedgerRepo{}), wallet, processor, "whsec", 1, money.Tokens(1000))

	err := svc.OnPaymentConfirmed(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Empty(t, wallet.credits, "non-matching events must not credit the wallet")
}

func TestOnPaymentConfirmed_CreditsWalletOnCompletedCheckout(t *testing.T) {
	userID := uuid.New()
	wallet := &fakeWallet{}
	processor := &fakeProcessor{event: depositsvc.WebhookEvent{
		Type:              "checkout.session.completed",
		PaymentStatus:     "paid",
		ClientReferenceID: userID.String(),
		PaymentIntent:     "pi_123",
		AmountTotalCents:  500,
	}}
	svc := depositsvc.New(ledgersvc.New(&fakeLedgerRepo{}), wallet, processor, "whsec", 1, money.Tokens(1000))

	err := svc.OnPaymentConfirmed(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	require.Len(t, wallet.credits, 1)
	assert.Equal(t, userID, wallet.credits[0].userID)
	assert.Equal(t, money.Tokens(500), wallet.credits[0].amount)
}

func TestOnPaymentConfirmed_ReplayIsNoop(t *testing.T) {
	userID := uuid.New()
	wallet := &fakeWallet{duplicateOn: "pi_123"}
	processor := &fakeProcessor{event: depositsvc.WebhookEvent{
		Type:              "checkout.session.completed",
		PaymentStatus:     "paid",
		ClientReferenceID: userID.String(),
		PaymentIntent:     "pi_123",
		AmountTotalCents:  500,
	}}
	svc := depositsvc.New(ledgersvc.New(&fakeLedgerRepo{}), wallet, processor, "whsec", 1, money.Tokens(1000))

	err := svc.OnPaymentConfirmed(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err, "replayed webhook must be a silent no-op, not an error")
}

func TestOnPaymentConfirmed_InvalidSignature(t *testing.T) {
	processor := &fakeProcessor{verifyErr: assertErr{}}
	svc := depositsvc.New(ledgersvc.New(&fakeLedgerRepo{}), &fakeWallet{}, processor, "whsec", 1, money.Tokens(1000))

	err := svc.OnPaymentConfirmed(context.Background(), []byte("{}"), "bad-sig")
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidSignature, be.Kind)
}

type assertErr struct{}

func (assertErr) Error() string { return "signature mismatch" }
