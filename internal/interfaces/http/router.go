package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/wsfe-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Documents DocumentStore
	Authorize DocumentAuthorizer
	Receipts  ReceiptDownloader
	Batch     BatchRunner
	AFIP      AFIPQuerier
	Gatherer  prometheus.Gatherer // nil = sin /metrics
	JWTSecret string
	JWTIssuer string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))
	anyRole := RequireRole(jwt.RoleAdmin, jwt.RoleOperator, jwt.RoleViewer)
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleOperator)

	// Comprobantes
	docs := api.Group("/documents")
	docHandler := NewDocumentHandler(deps.Documents, deps.Authorize, deps.Receipts)
	docs.Post("/", writers, docHandler.Create)
	docs.Get("/:id", anyRole, docHandler.GetByID)
	docs.Post("/:id/authorize", writers, docHandler.Authorize)
	docs.Get("/:id/attempts", anyRole, docHandler.Attempts)
	docs.Get("/:id/receipt", anyRole, docHandler.Receipt)

	// Lotes
	batchHandler := NewBatchHandler(deps.Batch)
	api.Post("/batches", RequireRole(jwt.RoleAdmin), batchHandler.Run)

	// Consultas directas a AFIP
	afipGroup := api.Group("/afip", anyRole)
	afipHandler := NewAFIPHandler(deps.AFIP)
	afipGroup.Get("/status", afipHandler.Status)
	afipGroup.Get("/last/:pos/:type", afipHandler.LastNumber)
	afipGroup.Get("/documents/:pos/:type/:number", afipHandler.Query)
}
