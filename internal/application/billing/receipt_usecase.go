package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/wsfe-api/internal/domain"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/domain/repository"
	catalog "github.com/jhoicas/wsfe-api/pkg/afip"
)

// ReceiptData todo lo que necesita la representación impresa de un comprobante autorizado.
type ReceiptData struct {
	Document     *entity.FiscalDocument
	IssuerCUIT   int64
	DocumentType int    // código AFIP (1 = Factura A, ...)
	QRURL        string // https://www.afip.gob.ar/fe/qr/?p=...
}

// ReceiptGenerator genera el PDF; lo implementa pdf.MarotoReceiptGenerator.
type ReceiptGenerator interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

// ReceiptUseCase genera el comprobante impreso con el QR de AFIP.
// Solo se permite si el comprobante ya tiene CAE.
type ReceiptUseCase struct {
	documents  repository.FiscalDocumentRepository
	generator  ReceiptGenerator
	issuerCUIT int64
}

// NewReceiptUseCase construye el caso de uso.
func NewReceiptUseCase(documents repository.FiscalDocumentRepository, generator ReceiptGenerator, issuerCUIT int64) *ReceiptUseCase {
	return &ReceiptUseCase{documents: documents, generator: generator, issuerCUIT: issuerCUIT}
}

// DownloadReceipt devuelve el PDF y su nombre de archivo.
//
// Retorna:
//   - domain.ErrNotFound     si el comprobante no existe.
//   - domain.ErrInvalidInput si todavía no tiene CAE.
func (uc *ReceiptUseCase) DownloadReceipt(ctx context.Context, id string) (pdfBytes []byte, filename string, err error) {
	// ── 1. Cargar comprobante ─────────────────────────────────────────────────
	doc, err := uc.documents.GetByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("receipt: obtener comprobante: %w", err)
	}
	if doc == nil {
		return nil, "", domain.ErrNotFound
	}

	// ── 2. Validar que ya fue autorizado ──────────────────────────────────────
	if !doc.IsAuthorized() {
		return nil, "", fmt.Errorf("%w: el comprobante está en estado %s, sin CAE", domain.ErrInvalidInput, doc.Status)
	}

	// ── 3. Armar QR ───────────────────────────────────────────────────────────
	docType, ok := catalog.DocumentTypeCode(doc.Class, doc.Kind)
	if !ok {
		return nil, "", fmt.Errorf("%w: clase %q, tipo %q", domain.ErrInvalidInput, doc.Class, doc.Kind)
	}
	currency, ok := catalog.CurrencyCode(doc.Currency)
	if !ok {
		return nil, "", fmt.Errorf("%w: moneda %q", domain.ErrInvalidInput, doc.Currency)
	}
	idType, _ := catalog.IDTypeCode(doc.Counterparty.IDType)
	qr, err := catalog.BuildQRURL(catalog.QRData{
		IssueDate:        doc.IssueDate,
		IssuerCUIT:       uc.issuerCUIT,
		PointOfSale:      doc.PointOfSale,
		DocumentType:     docType,
		Number:           doc.Number,
		Total:            doc.Total,
		Currency:         currency,
		ExchangeRate:     doc.ExchangeRate,
		ReceiverIDType:   idType,
		ReceiverIDNumber: doc.Counterparty.IDNumber,
		CAE:              doc.CAE,
	})
	if err != nil {
		return nil, "", fmt.Errorf("receipt: %w", err)
	}

	// ── 4. Generar PDF ────────────────────────────────────────────────────────
	pdfBytes, err = uc.generator.GenerateReceipt(ctx, ReceiptData{
		Document:     doc,
		IssuerCUIT:   uc.issuerCUIT,
		DocumentType: docType,
		QRURL:        qr,
	})
	if err != nil {
		return nil, "", fmt.Errorf("receipt: generación fallida: %w", err)
	}

	filename = fmt.Sprintf("comprobante_%03d_%05d_%08d.pdf", docType, doc.PointOfSale, doc.Number)
	return pdfBytes, filename, nil
}
