package http

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/wsfe-api/internal/application/billing"
	"github.com/jhoicas/wsfe-api/internal/application/dto"
	"github.com/jhoicas/wsfe-api/internal/domain"
)

const defaultPendingLimit = 100

// BatchRunner lo implementa *billing.BatchOrchestrator.
type BatchRunner interface {
	AuthorizeBatch(ctx context.Context, ids []string) *billing.BatchReport
	AuthorizePending(ctx context.Context, pointOfSale, limit int) (*billing.BatchReport, error)
}

// BatchHandler autorización por lotes (protegido). El lote se procesa dentro del request.
type BatchHandler struct {
	runner   BatchRunner
	validate *validator.Validate
}

// NewBatchHandler construye el handler.
func NewBatchHandler(runner BatchRunner) *BatchHandler {
	return &BatchHandler{runner: runner, validate: validator.New()}
}

// Run autoriza los IDs indicados o, si no hay IDs, los pendientes del punto de venta.
// POST /api/batches
func (h *BatchHandler) Run(c *fiber.Ctx) error {
	var in dto.BatchRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.validate.Struct(&in); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}

	if len(in.IDs) > 0 {
		return c.JSON(h.runner.AuthorizeBatch(c.UserContext(), in.IDs))
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultPendingLimit
	}
	report, err := h.runner.AuthorizePending(c.UserContext(), in.PointOfSale, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(report)
}
