package http

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/wsfe-api/internal/application/dto"
	"github.com/jhoicas/wsfe-api/internal/domain"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

// DocumentStore alta y lectura de comprobantes.
type DocumentStore interface {
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
}

// DocumentAuthorizer lo implementa *billing.AuthorizationService.
type DocumentAuthorizer interface {
	AuthorizeDocument(ctx context.Context, id string) (*entity.AuthorizationResult, error)
	History(ctx context.Context, id string) ([]*entity.AuthorizationAttempt, error)
}

// ReceiptDownloader lo implementa *billing.ReceiptUseCase.
type ReceiptDownloader interface {
	DownloadReceipt(ctx context.Context, id string) ([]byte, string, error)
}

// DocumentHandler maneja alta, autorización y descarga de comprobantes (protegido).
type DocumentHandler struct {
	docs     DocumentStore
	auth     DocumentAuthorizer
	receipts ReceiptDownloader
	validate *validator.Validate
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(docs DocumentStore, auth DocumentAuthorizer, receipts ReceiptDownloader) *DocumentHandler {
	return &DocumentHandler{
		docs:     docs,
		auth:     auth,
		receipts: receipts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create registra un comprobante pending. Se rechaza si no pasa el mapeo a las tablas de AFIP
// o la validación de totales, sin llamar a AFIP.
// POST /api/documents
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.validate.Struct(&in); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	doc, err := in.ToEntity(afip.ArgentinaTZ)
	if err != nil {
		return writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	if _, err := afip.BuildCAERequest(doc, 0); err != nil {
		return writeError(c, err)
	}
	if err := h.docs.Create(c.UserContext(), doc); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewDocumentResponse(doc))
}

// GetByID devuelve el comprobante con su estado de autorización.
// GET /api/documents/:id
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	doc, err := h.docs.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Authorize solicita CAE. Un rechazo de AFIP responde 200 con outcome "R".
// POST /api/documents/:id/authorize
func (h *DocumentHandler) Authorize(c *fiber.Ctx) error {
	result, err := h.auth.AuthorizeDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// Attempts historial de intentos de autorización.
// GET /api/documents/:id/attempts
func (h *DocumentHandler) Attempts(c *fiber.Ctx) error {
	attempts, err := h.auth.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if attempts == nil {
		attempts = []*entity.AuthorizationAttempt{}
	}
	return c.JSON(attempts)
}

// Receipt descarga el PDF del comprobante autorizado.
// GET /api/documents/:id/receipt
func (h *DocumentHandler) Receipt(c *fiber.Ctx) error {
	pdf, filename, err := h.receipts.DownloadReceipt(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(pdf)
}
