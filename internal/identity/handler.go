package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Address  string `json:"address"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type principalResponse struct {
	PrincipalID string `json:"principal_id"`
	Address     string `json:"address"`
	DeviceID    string `json:"device_id"`
}

// Register handles principal onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Register(c.UserContext(), Credentials{Address: req.Address, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(principalResponse{PrincipalID: p.ID, Address: p.Address, DeviceID: p.DeviceID})
}

// Me returns the authenticated principal.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, _ := c.Locals("principal_id").(string)
	p, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "principal not found")
	}
	return c.JSON(fiber.Map{
		"principal_id":  p.ID,
		"address":       p.Address,
		"device_id":     p.DeviceID,
		"token_version": p.TokenVersion,
		"created_at":    p.CreatedAt,
		"last_login":    p.LastLogin,
	})
}
