// handlers.go implements the HTTP routes of spec §6's External Interfaces
// table. Handlers on user routes extract the authenticated user id via
// jwtauth; each handler decodes its input, calls the service layer (GetWallet
// reads both balance and entries), and translates any service error through
// WithError — no business logic lives here.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/adapters/jwtauth"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/services/depositsvc"
	"github.com/peerpush/chally/internal/services/ledgersvc"
	"github.com/peerpush/chally/internal/services/settlementsvc"
	"github.com/peerpush/chally/internal/services/withdrawalsvc"
)

// Handlers bundles the services the HTTP surface depends on.
type Handlers struct {
	Deposit    *depositsvc.Service
	Withdrawal *withdrawalsvc.Service
	Ledger     *ledgersvc.Service
	Settlement *settlementsvc.Service
}

type beginDepositRequest struct {
	Tokens      int64  `json:"tokens"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

// BeginDeposit handles POST /wallet/deposit/checkout.
func (h *Handlers) BeginDeposit(c *fiber.Ctx) error {
	var req beginDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	userID := jwtauth.UserID(c)
	sessionURL, sessionID, err := h.Deposit.BeginDeposit(c.Context(), userID, money.Tokens(req.Tokens), req.SuccessURL, req.CancelURL)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(fiber.Map{"checkout_url": sessionURL, "session_id": sessionID})
}

type withdrawRequest struct {
	Tokens int64 `json:"tokens"`
}

// Withdraw handles POST /wallet/withdraw.
func (h *Handlers) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	userID := jwtauth.UserID(c)
	result, err := h.Withdrawal.Withdraw(c.Context(), userID, money.Tokens(req.Tokens))
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(fiber.Map{
		"requested":  result.Requested,
		"refunded":   result.Refunded,
		"refund_ids": result.RefundIDs,
		"partial":    result.Partial,
	})
}

// GetWallet handles GET /wallet.
func (h *Handlers) GetWallet(c *fiber.Ctx) error {
	userID := jwtauth.UserID(c)

	balance, err := h.Ledger.Balance(c.Context(), userID)
	if err != nil {
		return WithError(c, err)
	}
	entries, err := h.Ledger.ListByUser(c.Context(), userID)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(fiber.Map{"balance": balance, "entries": entries})
}

// StripeWebhook handles POST /stripe/webhook.
func (h *Handlers) StripeWebhook(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if err := h.Deposit.OnPaymentConfirmed(c.Context(), c.Body(), signature); err != nil {
		return WithError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// JoinChallenge handles POST /challenges/{id}/join.
func (h *Handlers) JoinChallenge(c *fiber.Ctx) error {
	challengeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid challenge id")
	}

	userID := jwtauth.UserID(c)
	result, err := h.Settlement.Join(c.Context(), userID, challengeID)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(fiber.Map{"participant_id": result.ParticipantID, "stake_paid": result.StakePaid})
}

// SettleChallenge handles POST /challenges/{id}/settle (internal/admin).
func (h *Handlers) SettleChallenge(c *fiber.Ctx) error {
	challengeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid challenge id")
	}

	result, err := h.Settlement.Settle(c.Context(), challengeID)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(fiber.Map{
		"total_pool":        result.TotalPool,
		"winners":           result.Winners,
		"per_winner":        result.PerWinner,
		"remainder_winners": result.RemainderWinners,
		"platform_revenue":  result.PlatformRevenue,
	})
}
