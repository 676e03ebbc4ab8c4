// Package httpapi wires the fiber HTTP surface of spec §6, mirroring the
// teacher's bootstrap composition: a New func that takes Handlers and a
// JWT signing key and returns a ready-to-listen *fiber.App.
package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/peerpush/chally/internal/adapters/jwtauth"
)

// BuildVersion is set at build time via -ldflags; "dev" is the fallback
// for local builds.
var BuildVersion = "dev"

// New builds the fiber.App with every route from spec §6 plus the ambient
// health/version endpoints.
func New(h *Handlers, jwtSigningKey string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(responseError{Detail: fe.Message})
			}
			return WithError(c, err)
		},
	})

	app.Get("/health", Ping)
	app.Get("/version", Version(BuildVersion))

	app.Post("/stripe/webhook", h.StripeWebhook)

	auth := jwtauth.Middleware(jwtSigningKey)

	wallet := app.Group("/wallet", auth)
	wallet.Post("/deposit/checkout", h.BeginDeposit)
	wallet.Post("/withdraw", h.Withdraw)
	wallet.Get("/", h.GetWallet)

	challenges := app.Group("/challenges", auth)
	challenges.Post("/:id/join", h.JoinChallenge)
	challenges.Post("/:id/settle", h.SettleChallenge)

	return app
}
