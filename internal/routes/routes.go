package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/auth"
	"github.com/congo-pay/custody/internal/clock"
	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/custody"
	"github.com/congo-pay/custody/internal/delegation"
	"github.com/congo-pay/custody/internal/funding"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/multisig"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/store"
)

const loginAttemptsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory backends are used.
// Ticks overrides the wall clock tick source.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	Ticks  clock.Source
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	policy, err := delegation.ParseReplacePolicy(d.Cfg.DelegationReplacePolicy)
	if err != nil {
		return err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		led          ledger.Ledger
		st           store.Store
		identityRepo identity.Repository
	)
	if d.DB != nil {
		led = ledger.NewPostgresLedger(d.DB)
		st = store.NewPostgres(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		led = ledger.NewInMemory()
		st = store.NewMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	ticks := d.Ticks
	if ticks == nil {
		ticks = clock.NewWall(d.Cfg.TickGenesis, d.Cfg.TickInterval)
	}

	custodySvc := custody.New(st, led, ticks, custody.Options{
		MaxOwners:   d.Cfg.MaxOwners,
		ExpiryTicks: d.Cfg.TxExpiryTicks,
		TicksPerDay: d.Cfg.TicksPerDay,
		Policy:      policy,
		Notifier:    notification.NewLoggerNotifier(d.Logger),
		Logger:      d.Logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := led.EnsureAccount(ctx, ledger.CustodyAccountCode); err != nil {
		return fmt.Errorf("ensure custody account: %w", err)
	}
	fundingSvc, err := funding.NewService(ctx, led, funding.StaticAcquirer{}, d.Logger.With(slog.String("component", "funding")))
	if err != nil {
		return err
	}

	identitySvc := identity.NewService(identityRepo, led)
	authSvc := auth.NewService(d.Cfg, identityRepo)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("request_id").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	custodyHandler := custody.NewHandler(custodySvc)
	api.Get("/tick", custodyHandler.Tick)

	RegisterIdentityRoutes(api, identity.NewHandler(identitySvc))
	authHandler := auth.NewHandler(identitySvc, authSvc)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, loginAttemptsPerMinute))

	protected := api.Group("", middleware.JWTAuth(authSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/me", identity.NewHandler(identitySvc).Me)
	RegisterAccountRoutes(protected, funding.NewHandler(fundingSvc))
	RegisterWalletRoutes(protected, multisig.NewHandler(custodySvc.Multisig), custodyHandler)
	RegisterDelegationRoutes(protected, delegation.NewHandler(custodySvc.Delegation))

	d.Logger.Info("routes ready",
		slog.Bool("postgres", d.DB != nil),
		slog.Bool("redis", d.Cache != nil),
		slog.String("replace_policy", policy.String()),
	)
	return nil
}
