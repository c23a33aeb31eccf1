package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/delegation"
)

// RegisterDelegationRoutes wires the delegation endpoints. Routes keyed by
// :delegate act as the owner; spend is keyed by :owner and acts as the delegate.
func RegisterDelegationRoutes(r fiber.Router, h *delegation.Handler) {
	delegations := r.Group("/delegations")
	delegations.Get("", h.List)
	delegations.Post("", h.Create)
	delegations.Post("/:delegate/funds", h.AddFunds)
	delegations.Post("/:delegate/extend", h.Extend)
	delegations.Post("/:delegate/revoke", h.Revoke)
	delegations.Post("/:delegate/withdraw", h.Withdraw)
	delegations.Post("/:owner/spend", h.Spend)
	delegations.Get("/:owner/:delegate", h.Get)
}
