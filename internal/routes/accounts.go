package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/payments-engine/internal/engine"
)

// RegisterAccountRoutes wires read-only account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *engine.Handler) {
	r.Get("/accounts", h.List)
	r.Get("/accounts/:client", h.Get)
	r.Get("/accounts/:client/audit", h.Audit)
}
