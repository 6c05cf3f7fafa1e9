package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/wsfe-api/internal/domain"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/domain/repository"
)

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

// FiscalDocumentRepo implementación de FiscalDocumentRepository (usable con pool o tx).
// Receptor, desglose de IVA, tributos y asociados se guardan como JSONB.
type FiscalDocumentRepo struct {
	q Querier
}

// NewFiscalDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalDocumentRepository(q Querier) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{q: q}
}

const documentColumns = `
	id, class, kind, point_of_sale, number, issue_date, counterparty,
	total, non_taxed, net_taxed, exempt, vat_amount, other_taxes,
	currency, exchange_rate, concept, service_from, service_to, payment_due,
	vat, other_tributes, associated,
	status, cae, cae_expiry, authorization_error, created_at, updated_at`

// Create persiste el comprobante en estado pending.
func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = entity.AuthStatusPending
	}

	counterparty, vat, tributes, associated, err := encodeDocumentJSON(doc)
	if err != nil {
		return err
	}

	query := `INSERT INTO fiscal_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err = r.q.Exec(ctx, query,
		doc.ID, doc.Class, doc.Kind, doc.PointOfSale, doc.Number, doc.IssueDate, counterparty,
		doc.Total, doc.NonTaxed, doc.NetTaxed, doc.Exempt, doc.VATAmount, doc.OtherTaxes,
		doc.Currency, doc.ExchangeRate, doc.Concept, doc.ServiceFrom, doc.ServiceTo, doc.PaymentDue,
		vat, tributes, associated,
		doc.Status, nullIfEmpty(doc.CAE), doc.CAEExpiry, nullIfEmpty(doc.AuthorizationErr), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("comprobante %s: %w", doc.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert fiscal document: %w", err)
	}
	return nil
}

// GetByID obtiene el comprobante completo. domain.ErrNotFound si no existe.
func (r *FiscalDocumentRepo) GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents WHERE id = $1`

	var doc entity.FiscalDocument
	var counterparty, vat, tributes, associated []byte
	var cae, authErr *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.Class, &doc.Kind, &doc.PointOfSale, &doc.Number, &doc.IssueDate, &counterparty,
		&doc.Total, &doc.NonTaxed, &doc.NetTaxed, &doc.Exempt, &doc.VATAmount, &doc.OtherTaxes,
		&doc.Currency, &doc.ExchangeRate, &doc.Concept, &doc.ServiceFrom, &doc.ServiceTo, &doc.PaymentDue,
		&vat, &tributes, &associated,
		&doc.Status, &cae, &doc.CAEExpiry, &authErr, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("comprobante %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get fiscal document: %w", err)
	}
	doc.CAE = derefStr(cae)
	doc.AuthorizationErr = derefStr(authErr)

	if err := decodeDocumentJSON(&doc, counterparty, vat, tributes, associated); err != nil {
		return nil, fmt.Errorf("comprobante %s: %w", id, err)
	}
	return &doc, nil
}

// ListPending IDs en estado pending o error, del más antiguo al más reciente.
func (r *FiscalDocumentRepo) ListPending(ctx context.Context, pointOfSale int, limit int) ([]string, error) {
	query := `
		SELECT id FROM fiscal_documents
		WHERE status IN ($1, $2)
		  AND ($3 = 0 OR point_of_sale = $3)
		ORDER BY created_at, id`
	args := []any{entity.AuthStatusPending, entity.AuthStatusError, pointOfSale}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan pending documents: %w", err)
	}
	return ids, nil
}

// ── JSONB ──

func encodeDocumentJSON(doc *entity.FiscalDocument) (counterparty, vat, tributes, associated []byte, err error) {
	if counterparty, err = json.Marshal(doc.Counterparty); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode counterparty: %w", err)
	}
	if vat, err = json.Marshal(nonNil(doc.VAT)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode vat: %w", err)
	}
	if tributes, err = json.Marshal(nonNil(doc.OtherTributes)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode other tributes: %w", err)
	}
	if associated, err = json.Marshal(nonNil(doc.Associated)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode associated: %w", err)
	}
	return counterparty, vat, tributes, associated, nil
}

func decodeDocumentJSON(doc *entity.FiscalDocument, counterparty, vat, tributes, associated []byte) error {
	fields := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"counterparty", counterparty, &doc.Counterparty},
		{"vat", vat, &doc.VAT},
		{"other_tributes", tributes, &doc.OtherTributes},
		{"associated", associated, &doc.Associated},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
