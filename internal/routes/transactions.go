package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/payments-engine/internal/engine"
)

// RegisterTransactionRoutes wires transaction submission endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *engine.Handler) {
	r.Post("/transactions", h.Apply)
	r.Post("/transactions/batch", h.Batch)
}
