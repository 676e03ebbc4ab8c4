// handler.go carries the ambient health/version endpoints every
// Midaz-style service exposes, mirroring common/net/http/handler.go's
// Ping/Version, even though spec §6's External Interfaces table doesn't
// list them (SPEC_FULL §4's "supplemented behavior").
package httpapi

import "github.com/gofiber/fiber/v2"

// Ping responds 200 with no body, for load-balancer health checks.
func Ping(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

// Version returns a fiber.Handler that reports the running build version.
func Version(version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"version": version})
	}
}
