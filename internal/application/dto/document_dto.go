package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
)

const dateLayout = "2006-01-02"

// CreateDocumentRequest alta de un comprobante a autorizar.
// Importes como string decimal ("1210.00") para no perder precisión.
type CreateDocumentRequest struct {
	Class        string                      `json:"class" validate:"required,oneof=A B C E M"`
	Kind         string                      `json:"kind" validate:"required,oneof=invoice debit_note credit_note"`
	PointOfSale  int                         `json:"point_of_sale" validate:"min=1,max=99998"`
	IssueDate    string                      `json:"issue_date" validate:"required,datetime=2006-01-02"`
	Counterparty PartyRequest                `json:"counterparty"`
	Total        decimal.Decimal             `json:"total"`
	NonTaxed     decimal.Decimal             `json:"non_taxed"`
	NetTaxed     decimal.Decimal             `json:"net_taxed"`
	Exempt       decimal.Decimal             `json:"exempt"`
	VATAmount    decimal.Decimal             `json:"vat_amount"`
	OtherTaxes   decimal.Decimal             `json:"other_taxes"`
	Currency     string                      `json:"currency" validate:"required,len=3,uppercase"`
	ExchangeRate decimal.Decimal             `json:"exchange_rate"`
	Concept      string                      `json:"concept" validate:"required,oneof=goods services both"`
	ServiceFrom  string                      `json:"service_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ServiceTo    string                      `json:"service_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PaymentDue   string                      `json:"payment_due,omitempty" validate:"omitempty,datetime=2006-01-02"`
	VAT          []entity.TaxBreakdownItem   `json:"vat,omitempty"`
	Tributes     []entity.OtherTributeItem   `json:"other_tributes,omitempty"`
	Associated   []entity.AssociatedDocument `json:"associated,omitempty"`
}

// PartyRequest receptor del comprobante.
type PartyRequest struct {
	IDType   string `json:"id_type" validate:"required"`
	IDNumber string `json:"id_number" validate:"required_unless=IDType final_consumer"`
	Name     string `json:"name"`
}

// ToEntity convierte la solicitud en un comprobante pending. Las fechas son días calendario
// en la zona horaria de Argentina.
func (r *CreateDocumentRequest) ToEntity(loc *time.Location) (*entity.FiscalDocument, error) {
	issue, err := time.ParseInLocation(dateLayout, r.IssueDate, loc)
	if err != nil {
		return nil, fmt.Errorf("issue_date: %w", err)
	}
	doc := &entity.FiscalDocument{
		Class:         r.Class,
		Kind:          r.Kind,
		PointOfSale:   r.PointOfSale,
		IssueDate:     issue,
		Counterparty:  entity.Party{IDType: r.Counterparty.IDType, IDNumber: r.Counterparty.IDNumber, Name: r.Counterparty.Name},
		Total:         r.Total,
		NonTaxed:      r.NonTaxed,
		NetTaxed:      r.NetTaxed,
		Exempt:        r.Exempt,
		VATAmount:     r.VATAmount,
		OtherTaxes:    r.OtherTaxes,
		Currency:      r.Currency,
		ExchangeRate:  r.ExchangeRate,
		Concept:       r.Concept,
		VAT:           r.VAT,
		OtherTributes: r.Tributes,
		Associated:    r.Associated,
		Status:        entity.AuthStatusPending,
	}
	if doc.ExchangeRate.IsZero() && r.Currency == "ARS" {
		doc.ExchangeRate = decimal.NewFromInt(1)
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"service_from", r.ServiceFrom, &doc.ServiceFrom},
		{"service_to", r.ServiceTo, &doc.ServiceTo},
		{"payment_due", r.PaymentDue, &doc.PaymentDue},
	} {
		if f.raw == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, f.raw, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = &t
	}
	return doc, nil
}

// DocumentResponse vista de un comprobante con su estado de autorización.
type DocumentResponse struct {
	ID                 string                      `json:"id"`
	Class              string                      `json:"class"`
	Kind               string                      `json:"kind"`
	PointOfSale        int                         `json:"point_of_sale"`
	Number             int64                       `json:"number"`
	IssueDate          string                      `json:"issue_date"`
	Counterparty       entity.Party                `json:"counterparty"`
	Total              decimal.Decimal             `json:"total"`
	Currency           string                      `json:"currency"`
	Status             string                      `json:"status"`
	CAE                string                      `json:"cae,omitempty"`
	CAEExpiry          string                      `json:"cae_expiry,omitempty"`
	AuthorizationError string                      `json:"authorization_error,omitempty"`
	VAT                []entity.TaxBreakdownItem   `json:"vat"`
	Associated         []entity.AssociatedDocument `json:"associated,omitempty"`
}

// NewDocumentResponse arma la vista del comprobante.
func NewDocumentResponse(d *entity.FiscalDocument) DocumentResponse {
	resp := DocumentResponse{
		ID:                 d.ID,
		Class:              d.Class,
		Kind:               d.Kind,
		PointOfSale:        d.PointOfSale,
		Number:             d.Number,
		IssueDate:          d.IssueDate.Format(dateLayout),
		Counterparty:       d.Counterparty,
		Total:              d.Total,
		Currency:           d.Currency,
		Status:             d.Status,
		CAE:                d.CAE,
		AuthorizationError: d.AuthorizationErr,
		VAT:                d.VAT,
		Associated:         d.Associated,
	}
	if d.CAEExpiry != nil {
		resp.CAEExpiry = d.CAEExpiry.Format(dateLayout)
	}
	if resp.VAT == nil {
		resp.VAT = []entity.TaxBreakdownItem{}
	}
	return resp
}

// BatchRequest lote explícito (IDs) o pendientes de un punto de venta.
type BatchRequest struct {
	IDs         []string `json:"ids" validate:"omitempty,max=500,dive,required"`
	PointOfSale int      `json:"point_of_sale" validate:"min=0,max=99998"`
	Limit       int      `json:"limit" validate:"min=0,max=500"`
}

// LastNumberResponse último comprobante autorizado.
type LastNumberResponse struct {
	PointOfSale  int   `json:"point_of_sale"`
	DocumentType int   `json:"document_type"`
	Number       int64 `json:"number"`
}
