package http

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/wsfe-api/internal/application/dto"
	"github.com/jhoicas/wsfe-api/internal/domain"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

// AFIPQuerier consultas directas a WSFEv1; lo implementa *afip.Client.
type AFIPQuerier interface {
	LastAuthorizedNumber(ctx context.Context, pointOfSale, documentType int) (int64, error)
	QueryDocument(ctx context.Context, pointOfSale, documentType int, number int64) (*afip.DocumentRecord, error)
	Dummy(ctx context.Context) (*afip.DummyResponse, error)
}

// AFIPHandler estado del servicio y consultas de comprobantes emitidos.
type AFIPHandler struct {
	client AFIPQuerier
}

// NewAFIPHandler construye el handler.
func NewAFIPHandler(client AFIPQuerier) *AFIPHandler {
	return &AFIPHandler{client: client}
}

// Status FEDummy: 200 si los tres servidores responden OK, 503 si no.
// GET /api/afip/status
func (h *AFIPHandler) Status(c *fiber.Ctx) error {
	status, err := h.client.Dummy(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	if !status.Healthy() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

// LastNumber último número autorizado.
// GET /api/afip/last/:pos/:type
func (h *AFIPHandler) LastNumber(c *fiber.Ctx) error {
	pos, docType, err := posAndType(c)
	if err != nil {
		return writeError(c, err)
	}
	n, err := h.client.LastAuthorizedNumber(c.UserContext(), pos, docType)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.LastNumberResponse{PointOfSale: pos, DocumentType: docType, Number: n})
}

// Query registro de AFIP de un comprobante emitido.
// GET /api/afip/documents/:pos/:type/:number
func (h *AFIPHandler) Query(c *fiber.Ctx) error {
	pos, docType, err := posAndType(c)
	if err != nil {
		return writeError(c, err)
	}
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || number < 1 {
		return writeError(c, fmt.Errorf("%w: número %q", domain.ErrInvalidInput, c.Params("number")))
	}
	rec, err := h.client.QueryDocument(c.UserContext(), pos, docType, number)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(rec)
}

func posAndType(c *fiber.Ctx) (int, int, error) {
	pos, err := c.ParamsInt("pos")
	if err != nil || pos < 1 || pos > 99998 {
		return 0, 0, fmt.Errorf("%w: punto de venta %q", domain.ErrInvalidInput, c.Params("pos"))
	}
	docType, err := c.ParamsInt("type")
	if err != nil || docType < 1 {
		return 0, 0, fmt.Errorf("%w: tipo de comprobante %q", domain.ErrInvalidInput, c.Params("type"))
	}
	return pos, docType, nil
}
