package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jhoicas/wsfe-api/internal/application/billing"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/wsfe-api/internal/infrastructure/pdf"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/wsfe-api/internal/interfaces/http"
	catalog "github.com/jhoicas/wsfe-api/pkg/afip"
	"github.com/jhoicas/wsfe-api/pkg/config"
	"github.com/jhoicas/wsfe-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("afip_env", cfg.AFIP.Environment).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, log.Component("postgres")); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	// Métricas: registro propio para no mezclar con el default global
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Cliente AFIP: WSAA (ticket cacheado) + WSFEv1
	afipClient, _, err := afip.NewFromConfig(cfg.AFIP, m, log.Component("afip"))
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar cliente AFIP")
	}
	issuerCUIT, _ := catalog.ParseCUIT(cfg.AFIP.CUIT)

	documentRepo := postgres.NewFiscalDocumentRepository(pool)
	attemptRepo := postgres.NewAuthorizationRepository(pool)

	authService := billing.NewAuthorizationService(
		documentRepo, attemptRepo, afipClient,
		billing.RetryPolicy{MaxAttempts: cfg.Batch.MaxAttempts, Backoff: cfg.Batch.RetryBackoff},
		m, log.Component("billing"),
	)
	batch := billing.NewBatchOrchestrator(authService, documentRepo, cfg.Batch.Interval, m, log.Component("batch"))

	// PDF: representación impresa con CAE y QR de AFIP
	receiptUC := billing.NewReceiptUseCase(documentRepo, infrapdf.NewMarotoReceiptGenerator(cfg.AFIP.IssuerName), issuerCUIT)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Minute * 10, // un lote espera a AFIP dentro del request
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "WSFE API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Documents: documentRepo,
		Authorize: authService,
		Receipts:  receiptUC,
		Batch:     batch,
		AFIP:      afipClient,
		Gatherer:  registry,
		JWTSecret: cfg.JWT.Secret,
		JWTIssuer: cfg.JWT.Issuer,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
