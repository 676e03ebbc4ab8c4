// errors.go is the single place an apperrors.BusinessError is translated
// to an HTTP status code, mirroring the teacher's common/net/http/errors.go
// WithError. Nothing upstream of this file inspects a Kind to pick a
// status; every service returns the typed error and stops there.
package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/peerpush/chally/internal/platform/apperrors"
)

// responseError is the body shape every error response carries (spec §6:
// "body {detail: string} carries the message").
type responseError struct {
	Detail string `json:"detail"`
}

var kindToStatus = map[apperrors.Kind]int{
	apperrors.KindInvalidAmount:     fiber.StatusBadRequest,
	apperrors.KindDailyLimit:        fiber.StatusBadRequest,
	apperrors.KindInsufficient:      fiber.StatusBadRequest,
	apperrors.KindNoRefundableFunds: fiber.StatusBadRequest,
	apperrors.KindInvalidSignature:  fiber.StatusBadRequest,
	apperrors.KindWalletBusy:        fiber.StatusServiceUnavailable,
	apperrors.KindDisabled:          fiber.StatusServiceUnavailable,
	apperrors.KindProcessorError:    fiber.StatusBadGateway,
	apperrors.KindNotFound:          fiber.StatusNotFound,
	apperrors.KindStateConflict:     fiber.StatusConflict,
}

// WithError translates err into a JSON error response. Unrecognized
// errors (anything not a *apperrors.BusinessError) are surfaced as 500
// with a generic message — internal details never reach the caller.
func WithError(c *fiber.Ctx, err error) error {
	var be *apperrors.BusinessError
	if errors.As(err, &be) {
		status, ok := kindToStatus[be.Kind]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(responseError{Detail: be.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(responseError{Detail: "internal error"})
}
