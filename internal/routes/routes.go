package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/payments-engine/internal/config"
	"github.com/congo-pay/payments-engine/internal/engine"
	"github.com/congo-pay/payments-engine/internal/ledger"
	"github.com/congo-pay/payments-engine/internal/middleware"
	"github.com/congo-pay/payments-engine/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Store  ledger.Store
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	store := d.Store
	if store == nil {
		if d.DB != nil {
			store = ledger.NewPostgresStore(d.DB)
		} else {
			store = ledger.NewInMemory()
		}
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	shared := engine.NewShared(engine.New(d.Cfg.DisputePolicy, notifier, d.Logger))
	handler := engine.NewHandler(shared, store, d.Cfg.RowErrorPolicy, d.Cfg.OutputScale, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.APIKey(d.Cfg.APIKeyHash))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterTransactionRoutes(protected, handler)
	RegisterAccountRoutes(protected, handler)
	RegisterExportRoutes(protected, handler)

	return nil
}
