// Package jwtauth implements spec §2's Identity service contract: it
// returns an opaque user ID from a bearer credential. It is a fiber
// middleware so every handler behind it can read the authenticated
// user_id from the request context without re-parsing the token.
package jwtauth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is the fiber.Ctx Locals key the authenticated user id is
// stored under.
const contextKey = "chally_user_id"

// claims is the minimal JWT claim set the core expects: a "sub" claim
// holding the user's UUID.
type claims struct {
	jwt.RegisteredClaims
}

// Middleware validates the Authorization: Bearer <token> header against
// signingKey and stores the parsed user id in the fiber context, or
// responds 401 if the header is missing, malformed, or the token fails
// validation.
func Middleware(signingKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
			return []byte(signingKey), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		parsedClaims, ok := token.Claims.(*claims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token claims")
		}

		userID, err := uuid.Parse(parsedClaims.Subject)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid subject claim")
		}

		c.Locals(contextKey, userID)
		return c.Next()
	}
}

// UserID extracts the authenticated user id stored by Middleware. It
// panics if called on a route not behind Middleware — a programming
// error, not a runtime condition to handle gracefully.
func UserID(c *fiber.Ctx) uuid.UUID {
	return c.Locals(contextKey).(uuid.UUID)
}
