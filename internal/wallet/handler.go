package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create provisions a wallet for the user in the path and returns its id.
func (h *Handler) Create(c *fiber.Ctx) error {
	w, err := h.service.Create(c.UserContext(), c.Params("userId"))
	if err != nil {
		if IsNotFound(err) {
			return fiber.NewError(http.StatusNotFound, "user does not exist")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(w.ID)
}

// Get returns wallet metadata including the current balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(w)
}

// ListByUser returns the wallets of one user.
func (h *Handler) ListByUser(c *fiber.Ctx) error {
	wallets, err := h.service.ListByUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		if IsNotFound(err) {
			return fiber.NewError(http.StatusNotFound, "user does not exist")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(wallets)
}

// Delete soft-deletes a wallet.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("walletId")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func toHTTPError(err error) error {
	if IsNotFound(err) {
		return fiber.NewError(http.StatusNotFound, "wallet does not exist")
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
