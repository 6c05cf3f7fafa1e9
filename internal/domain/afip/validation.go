// Package afip contiene validaciones de dominio para comprobantes electrónicos AFIP (WSFEv1).
// Utiliza catálogos y reglas de pkg/afip.
package afip

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/pkg/afip"
)

// ErrInvalidDocument agrupa errores de validación del comprobante.
var ErrInvalidDocument = errors.New("comprobante inválido para AFIP")

// Tolerance diferencia máxima aceptada por redondeo entre totales declarados y sumas.
var Tolerance = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// VATAmountOf devuelve el importe del ítem de IVA; si viene en cero lo calcula como Base × Rate / 100.
func VATAmountOf(item entity.TaxBreakdownItem) decimal.Decimal {
	if !item.Amount.IsZero() {
		return item.Amount.Round(2)
	}
	return item.BaseAmount.Mul(item.Rate).Div(hundred).Round(2)
}

// ValidateDocument valida la coherencia interna del comprobante antes de armar la solicitud:
//   - ImpTotal = ImpTotConc + ImpNeto + ImpOpEx + ImpTrib + ImpIVA
//   - la suma del desglose de IVA coincide con ImpNeto e ImpIVA
//   - la suma de tributos coincide con ImpTrib
//   - los conceptos de servicios informan período y vencimiento de pago
//   - clase C no discrimina IVA; notas de crédito/débito referencian un comprobante
func ValidateDocument(doc *entity.FiscalDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: comprobante nulo", ErrInvalidDocument)
	}
	var errs []error

	if doc.PointOfSale < 1 || doc.PointOfSale > 99998 {
		errs = append(errs, fmt.Errorf("punto de venta %d fuera de rango (1-99998)", doc.PointOfSale))
	}
	if doc.IssueDate.IsZero() {
		errs = append(errs, errors.New("fecha de emisión obligatoria"))
	}
	if !doc.ExchangeRate.IsPositive() {
		errs = append(errs, fmt.Errorf("cotización %s debe ser mayor a cero", doc.ExchangeRate))
	}
	if doc.Currency == "ARS" && !doc.ExchangeRate.Equal(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("cotización en pesos debe ser 1, se recibió %s", doc.ExchangeRate))
	}

	expectedTotal := doc.NonTaxed.Add(doc.NetTaxed).Add(doc.Exempt).Add(doc.OtherTaxes).Add(doc.VATAmount)
	if !within(doc.Total, expectedTotal) {
		errs = append(errs, fmt.Errorf("total (%s) no coincide con no gravado + neto + exento + tributos + IVA (%s)",
			doc.Total.StringFixed(2), expectedTotal.StringFixed(2)))
	}

	if doc.Class == afip.ClassC {
		if len(doc.VAT) > 0 || !doc.VATAmount.IsZero() {
			errs = append(errs, errors.New("comprobantes clase C no discriminan IVA"))
		}
	} else if !doc.NetTaxed.IsZero() || len(doc.VAT) > 0 {
		var sumBase, sumVAT decimal.Decimal
		for _, item := range doc.VAT {
			sumBase = sumBase.Add(item.BaseAmount)
			sumVAT = sumVAT.Add(VATAmountOf(item))
		}
		if len(doc.VAT) == 0 {
			errs = append(errs, errors.New("neto gravado sin desglose de IVA"))
		} else {
			if !within(doc.NetTaxed, sumBase) {
				errs = append(errs, fmt.Errorf("neto gravado (%s) no coincide con la suma de bases de IVA (%s)",
					doc.NetTaxed.StringFixed(2), sumBase.StringFixed(2)))
			}
			if !within(doc.VATAmount, sumVAT) {
				errs = append(errs, fmt.Errorf("IVA (%s) no coincide con la suma del desglose (%s)",
					doc.VATAmount.StringFixed(2), sumVAT.StringFixed(2)))
			}
		}
	}

	var sumTrib decimal.Decimal
	for _, t := range doc.OtherTributes {
		sumTrib = sumTrib.Add(t.Amount)
	}
	if !within(doc.OtherTaxes, sumTrib) {
		errs = append(errs, fmt.Errorf("tributos (%s) no coinciden con la suma de ítems (%s)",
			doc.OtherTaxes.StringFixed(2), sumTrib.StringFixed(2)))
	}

	if code, ok := afip.ConceptCode(doc.Concept); ok && afip.ConceptRequiresServiceDates(code) {
		if doc.ServiceFrom == nil || doc.ServiceTo == nil || doc.PaymentDue == nil {
			errs = append(errs, errors.New("servicios requieren fecha desde, hasta y vencimiento de pago"))
		} else if doc.ServiceTo.Before(*doc.ServiceFrom) {
			errs = append(errs, errors.New("fecha de servicio hasta anterior a desde"))
		}
	}

	if (doc.Kind == afip.KindCreditNote || doc.Kind == afip.KindDebitNote) && len(doc.Associated) == 0 {
		errs = append(errs, errors.New("notas de crédito/débito requieren comprobante asociado"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDocument}, errs...)...)
	}
	return nil
}

func within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
