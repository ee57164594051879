package engine

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/payments-engine/internal/account"
	"github.com/congo-pay/payments-engine/internal/csvio"
	"github.com/congo-pay/payments-engine/internal/ledger"
	"github.com/congo-pay/payments-engine/internal/transaction"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	engine    *Shared
	store     ledger.Store
	rowPolicy csvio.Policy
	scale     int32
	logger    *slog.Logger
}

// NewHandler builds an engine HTTP handler.
func NewHandler(engine *Shared, store ledger.Store, rowPolicy csvio.Policy, scale int32, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, store: store, rowPolicy: rowPolicy, scale: scale, logger: logger}
}

type snapshotResponse struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

type batchResponse struct {
	Rows    int   `json:"rows"`
	Skipped int   `json:"skipped"`
	Stats   Stats `json:"stats"`
}

type exportResponse struct {
	RunID     string             `json:"run_id"`
	CreatedAt time.Time          `json:"created_at"`
	Accounts  []snapshotResponse `json:"accounts"`
}

// Apply routes one JSON transaction to its account.
func (h *Handler) Apply(c *fiber.Ctx) error {
	var tx transaction.Transaction
	if err := c.BodyParser(&tx); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := tx.Validate(); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	snap := h.engine.Apply(c.UserContext(), tx)
	return c.Status(http.StatusAccepted).JSON(h.toResponse(snap))
}

// Batch applies a CSV document with the same header as the batch CLI input.
// The whole document is read first; a rejected document applies nothing.
func (h *Handler) Batch(c *fiber.Ctx) error {
	reader := csvio.NewReader(bytes.NewReader(c.Body()), h.rowPolicy, h.logger)
	txs, err := Collect(c.UserContext(), reader)
	if err != nil {
		var rowErr *csvio.RowError
		switch {
		case errors.As(err, &rowErr), errors.Is(err, csvio.ErrMissingColumn):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	stats := h.engine.ApplyAll(c.UserContext(), txs)
	return c.Status(http.StatusOK).JSON(batchResponse{
		Rows:    reader.Rows(),
		Skipped: reader.Skipped(),
		Stats:   stats,
	})
}

// List returns every account; ?format=csv yields the batch output format.
func (h *Handler) List(c *fiber.Ctx) error {
	snapshots := h.engine.Snapshots()
	if c.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := csvio.NewWriter(&buf, h.scale).Write(snapshots); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Status(http.StatusOK).Send(buf.Bytes())
	}
	return c.Status(http.StatusOK).JSON(h.toResponses(snapshots))
}

// Get returns one account.
func (h *Handler) Get(c *fiber.Ctx) error {
	client, err := clientParam(c)
	if err != nil {
		return err
	}
	snap, ok := h.engine.Snapshot(client)
	if !ok {
		return fiber.NewError(http.StatusNotFound, "account not found")
	}
	return c.Status(http.StatusOK).JSON(h.toResponse(snap))
}

// Audit returns the transaction ids held in each bucket of one account.
func (h *Handler) Audit(c *fiber.Ctx) error {
	client, err := clientParam(c)
	if err != nil {
		return err
	}
	audit, ok := h.engine.Audit(client)
	if !ok {
		return fiber.NewError(http.StatusNotFound, "account not found")
	}
	return c.Status(http.StatusOK).JSON(audit)
}

// Export stores the current snapshots as a new run.
func (h *Handler) Export(c *fiber.Ctx) error {
	run, err := ledger.Export(c.UserContext(), h.store, h.engine.Snapshots())
	if err != nil {
		h.logger.Error("export snapshots", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "export failed")
	}
	return c.Status(http.StatusCreated).JSON(h.toExport(run))
}

// ExportByID returns a stored run.
func (h *Handler) ExportByID(c *fiber.Ctx) error {
	run, err := h.store.Run(c.UserContext(), c.Params("runId"))
	if err != nil {
		if errors.Is(err, ledger.ErrRunNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(h.toExport(run))
}

func clientParam(c *fiber.Ctx) (uint16, error) {
	v, err := strconv.ParseUint(c.Params("client"), 10, 16)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "client must be an unsigned 16-bit integer")
	}
	return uint16(v), nil
}

func (h *Handler) toResponse(s account.Snapshot) snapshotResponse {
	return snapshotResponse{
		Client:    s.Client,
		Available: s.Available.StringFixed(h.scale),
		Held:      s.Held.StringFixed(h.scale),
		Total:     s.Total.StringFixed(h.scale),
		Locked:    s.Locked,
	}
}

func (h *Handler) toResponses(snapshots []account.Snapshot) []snapshotResponse {
	out := make([]snapshotResponse, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, h.toResponse(s))
	}
	return out
}

func (h *Handler) toExport(run ledger.Run) exportResponse {
	return exportResponse{RunID: run.ID, CreatedAt: run.CreatedAt, Accounts: h.toResponses(run.Accounts)}
}
