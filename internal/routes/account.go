package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/funding"
)

// RegisterAccountRoutes wires the caller's external account and card flows.
func RegisterAccountRoutes(r fiber.Router, h *funding.Handler) {
	r.Get("/account", h.Account)
	r.Post("/account/fund/card", h.FundCard)
	r.Post("/account/withdraw/card", h.WithdrawCard)
}
