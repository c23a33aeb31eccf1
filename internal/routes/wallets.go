package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/custody"
	"github.com/congo-pay/custody/internal/multisig"
)

// RegisterWalletRoutes wires the multisig wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *multisig.Handler, overview *custody.Handler) {
	wallets := r.Group("/wallets")
	wallets.Post("", h.Initialize)
	wallets.Get("/:walletId", h.Wallet)
	wallets.Get("/:walletId/overview", overview.Overview)
	wallets.Post("/:walletId/deposits", h.Deposit)
	wallets.Get("/:walletId/transactions", h.Transactions)
	wallets.Post("/:walletId/transactions", h.Propose)
	wallets.Get("/:walletId/transactions/:txId", h.Transaction)
	wallets.Post("/:walletId/transactions/:txId/approve", h.Approve)
	wallets.Post("/:walletId/transactions/:txId/execute", h.Execute)
}
