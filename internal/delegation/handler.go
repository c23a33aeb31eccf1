package delegation

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"

	"github.com/congo-pay/custody/internal/failure"
)

// Handler exposes delegation endpoints. The authenticated principal acts as
// owner on grant management routes and as delegate on spend.
type Handler struct {
	service *Service
}

// NewHandler constructs a delegation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Delegate     string `json:"delegate"`
	Amount       int64  `json:"amount"`
	DailyLimit   int64  `json:"daily_limit"`
	DurationDays uint64 `json:"duration_days"`
	ClientTxID   string `json:"client_tx_id"`
}

type fundsRequest struct {
	Amount int64 `json:"amount"`
}

type extendRequest struct {
	Days uint64 `json:"days"`
}

type spendRequest struct {
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
}

type delegationResponse struct {
	Owner             string `json:"owner"`
	Delegate          string `json:"delegate"`
	Amount            int64  `json:"amount"`
	DailyLimit        int64  `json:"daily_limit"`
	SpentToday        int64  `json:"spent_today"`
	SpentTotal        int64  `json:"spent_total"`
	DailyRemaining    int64  `json:"daily_remaining"`
	StartBlock        uint64 `json:"start_block"`
	EndBlock          uint64 `json:"end_block"`
	BlocksUntilExpiry uint64 `json:"blocks_until_expiry"`
	State             State  `json:"state"`
	IsActive          bool   `json:"is_active"`
	Tick              uint64 `json:"tick"`
}

// Create opens a grant from the caller to a delegate.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	owner := callerAddress(c)
	if _, err := h.service.CreateAndDeposit(c.UserContext(), CreateInput{
		Owner:        owner,
		Delegate:     req.Delegate,
		Amount:       req.Amount,
		DailyLimit:   req.DailyLimit,
		DurationDays: req.DurationDays,
		ClientTxID:   req.ClientTxID,
	}); err != nil {
		return httpError(err)
	}
	return h.respond(c, http.StatusCreated, owner, req.Delegate)
}

// AddFunds tops up the caller's grant to :delegate.
func (h *Handler) AddFunds(c *fiber.Ctx) error {
	var req fundsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	owner, delegate := callerAddress(c), c.Params("delegate")
	if _, err := h.service.AddFunds(c.UserContext(), owner, delegate, req.Amount); err != nil {
		return httpError(err)
	}
	return h.respond(c, http.StatusOK, owner, delegate)
}

// Extend lengthens the caller's grant to :delegate.
func (h *Handler) Extend(c *fiber.Ctx) error {
	var req extendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	owner, delegate := callerAddress(c), c.Params("delegate")
	if _, err := h.service.Extend(c.UserContext(), owner, delegate, req.Days); err != nil {
		return httpError(err)
	}
	return h.respond(c, http.StatusOK, owner, delegate)
}

// Revoke ends the caller's grant to :delegate.
func (h *Handler) Revoke(c *fiber.Ctx) error {
	owner, delegate := callerAddress(c), c.Params("delegate")
	if _, err := h.service.Revoke(c.UserContext(), owner, delegate); err != nil {
		return httpError(err)
	}
	return h.respond(c, http.StatusOK, owner, delegate)
}

// Withdraw returns the undrawn remainder of the caller's grant to :delegate.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	owner, delegate := callerAddress(c), c.Params("delegate")
	amount, err := h.service.WithdrawRemaining(c.UserContext(), owner, delegate)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"owner":     owner,
		"delegate":  delegate,
		"withdrawn": amount,
	})
}

// Spend lets the caller pay out of the grant :owner made to them.
func (h *Handler) Spend(c *fiber.Ctx) error {
	var req spendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	owner, delegate := c.Params("owner"), callerAddress(c)
	if _, err := h.service.Spend(c.UserContext(), SpendInput{
		Delegate:  delegate,
		Owner:     owner,
		Amount:    req.Amount,
		Recipient: req.Recipient,
	}); err != nil {
		return httpError(err)
	}
	return h.respond(c, http.StatusOK, owner, delegate)
}

// Get returns one delegation. Only its owner or delegate may read it.
func (h *Handler) Get(c *fiber.Ctx) error {
	owner, delegate := c.Params("owner"), c.Params("delegate")
	caller := callerAddress(c)
	if caller != owner && caller != delegate {
		return httpError(ErrNotFound)
	}
	return h.respond(c, http.StatusOK, owner, delegate)
}

// List returns the caller's delegations. ?role=delegate lists grants made to
// the caller; ?active=true keeps only grants that can currently be spent.
func (h *Handler) List(c *fiber.Ctx) error {
	onlyActive := false
	if raw := c.Query("active"); raw != "" {
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid active filter")
		}
		onlyActive = v
	}

	var (
		views []View
		err   error
	)
	switch c.Query("role", "owner") {
	case "owner":
		views, err = h.service.ListByOwner(c.UserContext(), callerAddress(c))
	case "delegate":
		views, err = h.service.ListByDelegate(c.UserContext(), callerAddress(c))
	default:
		return fiber.NewError(http.StatusBadRequest, "role must be owner or delegate")
	}
	if err != nil {
		return httpError(err)
	}

	out := make([]delegationResponse, 0, len(views))
	for _, v := range views {
		if onlyActive && !v.IsActive {
			continue
		}
		out = append(out, toResponse(v))
	}
	return c.JSON(fiber.Map{"delegations": out})
}

func (h *Handler) respond(c *fiber.Ctx, status int, owner, delegate string) error {
	v, err := h.service.Status(c.UserContext(), owner, delegate)
	if err != nil {
		return httpError(err)
	}
	return c.Status(status).JSON(toResponse(v))
}

func callerAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals("address").(string)
	return addr
}

func httpError(err error) error {
	return fiber.NewError(failure.HTTPStatus(err), err.Error())
}

func toResponse(v View) delegationResponse {
	return delegationResponse{
		Owner:             v.Owner,
		Delegate:          v.Delegate,
		Amount:            v.Amount,
		DailyLimit:        v.DailyLimit,
		SpentToday:        v.SpentToday,
		SpentTotal:        v.SpentTotal,
		DailyRemaining:    v.DailyRemaining,
		StartBlock:        v.StartBlock,
		EndBlock:          v.EndBlock,
		BlocksUntilExpiry: v.BlocksUntilExpiry,
		State:             v.State,
		IsActive:          v.IsActive,
		Tick:              v.Tick,
	}
}
