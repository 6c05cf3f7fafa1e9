package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de autorización ante AFIP. Un comprobante persiste exactamente uno de ellos.
const (
	AuthStatusPending  = "pending"  // Sin CAE, pendiente de envío o reenvío
	AuthStatusApproved = "approved" // CAE otorgado (resultado A o P)
	AuthStatusRejected = "rejected" // Rechazado por AFIP; requiere corrección manual
	AuthStatusError    = "error"    // Falla técnica (firma, red, protocolo, mapeo)
)

// FiscalDocument representa una factura, nota de débito o nota de crédito electrónica
// tal como la necesita el cliente de autorización.
type FiscalDocument struct {
	ID          string
	Class       string // A, B, C, E, M
	Kind        string // invoice, debit_note, credit_note
	PointOfSale int
	Number      int64 // asignado por AFIP al autorizar (0 mientras esté pendiente)
	IssueDate   time.Time

	Counterparty Party

	Total      decimal.Decimal // ImpTotal
	NonTaxed   decimal.Decimal // ImpTotConc: no gravado
	NetTaxed   decimal.Decimal // ImpNeto: neto gravado
	Exempt     decimal.Decimal // ImpOpEx: exento
	VATAmount  decimal.Decimal // ImpIVA
	OtherTaxes decimal.Decimal // ImpTrib

	Currency     string          // ISO 4217 (ARS, USD, ...)
	ExchangeRate decimal.Decimal // 1 para ARS
	Concept      string          // goods, services, both

	ServiceFrom *time.Time
	ServiceTo   *time.Time
	PaymentDue  *time.Time

	VAT           []TaxBreakdownItem
	OtherTributes []OtherTributeItem
	Associated    []AssociatedDocument

	Status           string
	CAE              string
	CAEExpiry        *time.Time
	AuthorizationErr string // último error técnico o de AFIP (texto original)
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Party identificación del receptor del comprobante.
type Party struct {
	IDType   string `json:"id_type"` // cuit, dni, final_consumer, ...
	IDNumber string `json:"id_number"`
	Name     string `json:"name,omitempty"`
}

// TaxBreakdownItem una alícuota de IVA con su base imponible e importe.
// Rate es el porcentaje (21, 10.5, ...). Si Amount es cero se calcula como Base × Rate / 100.
type TaxBreakdownItem struct {
	Rate       decimal.Decimal `json:"rate"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	Amount     decimal.Decimal `json:"amount"`
}

// OtherTributeItem tributo distinto del IVA (percepciones, impuestos internos, ...).
type OtherTributeItem struct {
	Kind        string          `json:"kind"` // national, provincial, municipal, internal, other
	Description string          `json:"description"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// AssociatedDocument comprobante asociado (obligatorio en notas de crédito/débito).
type AssociatedDocument struct {
	Class       string `json:"class"`
	Kind        string `json:"kind"`
	PointOfSale int    `json:"point_of_sale"`
	Number      int64  `json:"number"`
}

// IsAuthorized indica si el comprobante ya tiene CAE.
func (d *FiscalDocument) IsAuthorized() bool {
	return d.Status == AuthStatusApproved && d.CAE != ""
}
