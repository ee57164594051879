package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/payments-engine/internal/engine"
)

// RegisterExportRoutes wires snapshot export endpoints.
func RegisterExportRoutes(r fiber.Router, h *engine.Handler) {
	r.Post("/exports", h.Export)
	r.Get("/exports/:runId", h.ExportByID)
}
