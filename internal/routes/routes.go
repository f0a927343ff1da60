package routes

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/repslend/repslend/internal/application"
	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/config"
	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/loan"
	"github.com/repslend/repslend/internal/middleware"
	"github.com/repslend/repslend/internal/notification"
	"github.com/repslend/repslend/internal/oracle"
	"github.com/repslend/repslend/internal/portfolio"
	"github.com/repslend/repslend/internal/proof"
	"github.com/repslend/repslend/internal/score"
	"github.com/repslend/repslend/internal/settlement"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.Dev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Identity and credentials
	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	registry := identity.NewRegistry(identityRepo, d.Cfg.AllowMultiIssuer, d.Logger)

	issuers := oracle.NewIssuerKeys()
	if err := registerIssuers(issuers, d.Cfg.OracleIssuerKeys); err != nil {
		return err
	}
	if d.Cfg.Dev() {
		registerDevIssuer(issuers, d.Logger)
	}
	oracleVerifier := oracle.NewVerifier(oracle.DefaultAdapters(), issuers, registry,
		d.Cfg.OracleMaxAttempts, d.Cfg.OracleBackoff, d.Logger)

	engine, err := score.NewEngine(registry, score.DefaultWeightTable())
	if err != nil {
		return err
	}

	// Catalog and applications
	var appRepo application.Repository
	if d.DB != nil {
		appRepo = application.NewPostgresRepository(d.DB)
	} else {
		appRepo = application.NewMemoryRepository()
	}
	var catalogRepo catalog.Repository
	if d.DB != nil {
		catalogRepo = catalog.NewPostgresRepository(d.DB)
	} else {
		catalogRepo = catalog.NewMemoryRepository()
	}
	products := catalog.NewService(catalogRepo, appRepo, catalog.Defaults{
		AutoApproveMax: d.Cfg.AutoApproveMaxAmount,
		ReviewSLA:      d.Cfg.ReviewSLA,
	})

	prover := proof.NewGenerator(engine, registry, d.Cfg.ProofSecret, d.Cfg.ProofTimeout, d.Logger)
	proofVerifier := proof.NewVerifier(d.Cfg.ProofSecret)

	// Settlement and loans
	var ledger settlement.Ledger
	if d.DB != nil {
		pgLedger := settlement.NewPostgresLedger(d.DB)
		if err := pgLedger.EnsureAccount(context.Background(), settlement.DisbursementSuspenseAccount); err != nil {
			return err
		}
		ledger = pgLedger
	} else {
		ledger = settlement.NewInMemory()
		settlement.SeedFunds(ledger, devSuspenseFunds)
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	var loanRepo loan.Repository
	if d.DB != nil {
		loanRepo = loan.NewPostgresRepository(d.DB)
	} else {
		loanRepo = loan.NewMemoryRepository()
	}
	loans := loan.NewService(loanRepo, ledger, notifier, d.Cfg.DefaultAfterMissed, d.Logger)

	applications := application.NewService(appRepo, products, prover, proofVerifier,
		loans, ledger, notifier, d.Cfg.SettlementTimeout, d.Logger)
	aggregator := portfolio.NewAggregator(appRepo, loanRepo, engine, d.Logger)

	identityHandler := identity.NewHandler(registry)
	oracleHandler := oracle.NewHandler(oracleVerifier)
	scoreHandler := score.NewHandler(engine)
	catalogHandler := catalog.NewHandler(products)
	applicationHandler := application.NewHandler(applications)
	portfolioHandler := portfolio.NewHandler(aggregator)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterBorrowerRoutes(api, identityHandler, oracleHandler, scoreHandler, catalogHandler, applicationHandler)
	RegisterLenderRoutes(api, catalogHandler, applicationHandler, portfolioHandler)

	if d.Cfg.Dev() {
		if err := seedDemoCatalog(context.Background(), products, d.Logger); err != nil {
			return err
		}
	}
	return nil
}

// registerIssuers loads trusted source signing keys from configuration.
func registerIssuers(issuers *oracle.IssuerKeys, raw string) error {
	if raw == "" {
		return nil
	}
	for _, entry := range strings.Split(raw, ",") {
		name, hexKey, found := strings.Cut(strings.TrimSpace(entry), "=")
		if !found {
			return fmt.Errorf("malformed issuer key entry %q", entry)
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil || len(key) != ed25519.PublicKeySize {
			return fmt.Errorf("invalid public key for issuer %q", name)
		}
		issuers.Register(name, ed25519.PublicKey(key))
	}
	return nil
}
