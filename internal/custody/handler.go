package custody

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/failure"
)

// Handler exposes the composite custody views.
type Handler struct {
	service *Service
}

// NewHandler constructs a custody handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type pendingResponse struct {
	ID         uint64   `json:"id"`
	Kind       string   `json:"kind"`
	Proposer   string   `json:"proposer"`
	Amount     int64    `json:"amount,omitempty"`
	Recipient  string   `json:"recipient,omitempty"`
	Approvals  []string `json:"approvals"`
	ExpiresAt  uint64   `json:"expires_at"`
	Executable bool     `json:"executable"`
}

// Overview returns the caller's view of a wallet.
func (h *Handler) Overview(c *fiber.Ctx) error {
	principal, _ := c.Locals("address").(string)
	ov, err := h.service.Overview(c.UserContext(), c.Params("walletId"), principal)
	if err != nil {
		return fiber.NewError(failure.HTTPStatus(err), err.Error())
	}

	awaiting := make([]pendingResponse, 0, len(ov.AwaitingMe))
	for _, v := range ov.AwaitingMe {
		awaiting = append(awaiting, pendingResponse{
			ID:         v.ID,
			Kind:       string(v.Kind),
			Proposer:   v.Proposer,
			Amount:     v.Amount,
			Recipient:  v.Recipient,
			Approvals:  v.Approvals,
			ExpiresAt:  v.ExpiresAt,
			Executable: v.Executable,
		})
	}
	executable := make([]uint64, 0, len(ov.Executable))
	for _, v := range ov.Executable {
		executable = append(executable, v.ID)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":            ov.Wallet.ID,
		"balance":              ov.Wallet.Balance,
		"threshold":            ov.Wallet.Threshold,
		"owners":               ov.Wallet.ActiveOwners,
		"awaiting_approval":    awaiting,
		"executable":           executable,
		"delegations_granted":  len(ov.Granted),
		"delegations_received": len(ov.Received),
		"external_balance":     ov.ExternalBalance,
		"tick":                 ov.Wallet.Tick,
	})
}

// Tick reports the current tick and day-bucket width.
func (h *Handler) Tick(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tick":          h.service.Tick(),
		"ticks_per_day": h.service.Delegation.TicksPerDay(),
	})
}
