package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/auth"
)

const (
	principalIDLocal = "principal_id"
	addressLocal     = "address"
)

// JWTAuth validates bearer access tokens and exposes the principal id and
// address to downstream handlers as locals.
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])

		p, err := tokens.Verify(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}

		c.Locals(principalIDLocal, p.ID)
		c.Locals(addressLocal, p.Address)
		c.Locals("token_version", p.TokenVersion)
		return c.Next()
	}
}
