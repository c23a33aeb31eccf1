package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/failure"
	"github.com/congo-pay/custody/internal/ledger"
)

// Handler exposes the caller's external account and card flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type topUpRequest struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     int64  `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

type payoutRequest struct {
	CardNumber string `json:"card_number"`
	Amount     int64  `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

type resultResponse struct {
	TransactionID     string `json:"transaction_id"`
	ClientTxID        string `json:"client_tx_id"`
	Status            string `json:"status"`
	Balance           int64  `json:"balance"`
	AcquirerReference string `json:"acquirer_reference"`
}

// Account returns the caller's external balance.
func (h *Handler) Account(c *fiber.Ctx) error {
	addr := callerAddress(c)
	balance, err := h.service.Balance(c.UserContext(), addr)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"address": addr, "balance": balance})
}

// FundCard tops up the caller's account from a card.
func (h *Handler) FundCard(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.TopUp(c.UserContext(), TopUpInput{
		Address:    callerAddress(c),
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	return respond(c, result, err)
}

// WithdrawCard pays the caller's account out to a card.
func (h *Handler) WithdrawCard(c *fiber.Ctx) error {
	var req payoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.Payout(c.UserContext(), PayoutInput{
		Address:    callerAddress(c),
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
	})
	return respond(c, result, err)
}

func respond(c *fiber.Ctx, result Result, err error) error {
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return c.Status(http.StatusOK).JSON(toResponse(result))
		}
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func callerAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals("address").(string)
	return addr
}

func httpError(err error) error {
	return fiber.NewError(failure.HTTPStatus(err), err.Error())
}

func toResponse(result Result) resultResponse {
	return resultResponse{
		TransactionID:     result.TransactionID,
		ClientTxID:        result.ClientTxID,
		Status:            result.Status,
		Balance:           result.Balance,
		AcquirerReference: result.AcquirerReference,
	}
}
