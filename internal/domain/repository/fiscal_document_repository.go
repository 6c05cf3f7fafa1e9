package repository

import (
	"context"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
)

// FiscalDocumentRepository puerto de persistencia de comprobantes a autorizar.
type FiscalDocumentRepository interface {
	// Create registra un comprobante en estado pending. Asigna ID si viene vacío.
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	// GetByID devuelve el comprobante con su desglose de IVA, tributos y asociados.
	// Retorna domain.ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
	// ListPending devuelve los IDs en estado pending o error, en orden de creación.
	// pointOfSale = 0 no filtra por punto de venta; limit <= 0 no limita.
	ListPending(ctx context.Context, pointOfSale int, limit int) ([]string, error)
}
