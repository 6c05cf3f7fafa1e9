// Package afip contiene catálogos y validaciones alineados a las tablas paramétricas
// del Web Service de Factura Electrónica (WSFEv1) de AFIP (Argentina).
package afip

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Tipos de comprobante (FEParamGetTiposCbte)
// =============================================================================

// Clases de comprobante según la condición frente al IVA de emisor y receptor.
const (
	ClassA = "A"
	ClassB = "B"
	ClassC = "C"
	ClassE = "E" // Exportación
	ClassM = "M"
)

// Especies de comprobante.
const (
	KindInvoice    = "invoice"
	KindDebitNote  = "debit_note"
	KindCreditNote = "credit_note"
)

// Códigos CbteTipo.
const (
	CbteFacturaA     = 1
	CbteNotaDebitoA  = 2
	CbteNotaCreditoA = 3
	CbteFacturaB     = 6
	CbteNotaDebitoB  = 7
	CbteNotaCreditoB = 8
	CbteFacturaC     = 11
	CbteNotaDebitoC  = 12
	CbteNotaCreditoC = 13
	CbteFacturaE     = 19
	CbteNotaDebitoE  = 20
	CbteNotaCreditoE = 21
	CbteFacturaM     = 51
	CbteNotaDebitoM  = 52
	CbteNotaCreditoM = 53
)

type docTypeKey struct {
	class string
	kind  string
}

var documentTypeCodes = map[docTypeKey]int{
	{ClassA, KindInvoice}: CbteFacturaA, {ClassA, KindDebitNote}: CbteNotaDebitoA, {ClassA, KindCreditNote}: CbteNotaCreditoA,
	{ClassB, KindInvoice}: CbteFacturaB, {ClassB, KindDebitNote}: CbteNotaDebitoB, {ClassB, KindCreditNote}: CbteNotaCreditoB,
	{ClassC, KindInvoice}: CbteFacturaC, {ClassC, KindDebitNote}: CbteNotaDebitoC, {ClassC, KindCreditNote}: CbteNotaCreditoC,
	{ClassE, KindInvoice}: CbteFacturaE, {ClassE, KindDebitNote}: CbteNotaDebitoE, {ClassE, KindCreditNote}: CbteNotaCreditoE,
	{ClassM, KindInvoice}: CbteFacturaM, {ClassM, KindDebitNote}: CbteNotaDebitoM, {ClassM, KindCreditNote}: CbteNotaCreditoM,
}

// DocumentTypeCode devuelve el CbteTipo para una clase (A/B/C/E/M) y especie.
func DocumentTypeCode(class, kind string) (int, bool) {
	code, ok := documentTypeCodes[docTypeKey{class, kind}]
	return code, ok
}

// DocumentClassOf devuelve la clase (A/B/C/E/M) de un CbteTipo conocido.
func DocumentClassOf(code int) (string, bool) {
	for k, c := range documentTypeCodes {
		if c == code {
			return k.class, true
		}
	}
	return "", false
}

// =============================================================================
// Tipos de documento del receptor (FEParamGetTiposDoc)
// =============================================================================

const (
	IDTypeCUIT          = "cuit"
	IDTypeCUIL          = "cuil"
	IDTypeCDI           = "cdi"
	IDTypeLE            = "le"
	IDTypeLC            = "lc"
	IDTypeForeignID     = "foreign_id"
	IDTypePassport      = "passport"
	IDTypeDNI           = "dni"
	IDTypeFinalConsumer = "final_consumer" // Consumidor final sin identificar
)

// DocTipoConsumidorFinal es el código que AFIP asigna al receptor sin identificar.
const DocTipoConsumidorFinal = 99

var idTypeCodes = map[string]int{
	IDTypeCUIT:          80,
	IDTypeCUIL:          86,
	IDTypeCDI:           87,
	IDTypeLE:            89,
	IDTypeLC:            90,
	IDTypeForeignID:     91,
	IDTypePassport:      94,
	IDTypeDNI:           96,
	IDTypeFinalConsumer: DocTipoConsumidorFinal,
}

// IDTypeCode devuelve el DocTipo del receptor.
func IDTypeCode(idType string) (int, bool) {
	code, ok := idTypeCodes[idType]
	return code, ok
}

// =============================================================================
// Alícuotas de IVA (FEParamGetTiposIva)
// =============================================================================

// IvaCode asocia una alícuota (en porcentaje) con su Id AFIP.
type IvaCode struct {
	Rate decimal.Decimal
	Code int
}

var ivaCodes = []IvaCode{
	{Rate: decimal.Zero, Code: 3},
	{Rate: decimal.RequireFromString("10.5"), Code: 4},
	{Rate: decimal.NewFromInt(21), Code: 5},
	{Rate: decimal.NewFromInt(27), Code: 6},
	{Rate: decimal.NewFromInt(5), Code: 8},
	{Rate: decimal.RequireFromString("2.5"), Code: 9},
}

// VATRateCode devuelve el Id de alícuota AFIP para un porcentaje de IVA (ej: 21, 10.5).
// La comparación es numérica: 21, 21.0 y 21.00 son la misma alícuota.
func VATRateCode(rate decimal.Decimal) (int, bool) {
	for _, c := range ivaCodes {
		if c.Rate.Equal(rate) {
			return c.Code, true
		}
	}
	return 0, false
}

// =============================================================================
// Conceptos (FEParamGetTiposConcepto)
// =============================================================================

const (
	ConceptGoods    = "goods"
	ConceptServices = "services"
	ConceptBoth     = "both"
)

var conceptCodes = map[string]int{
	ConceptGoods:    1,
	ConceptServices: 2,
	ConceptBoth:     3,
}

// ConceptCode devuelve el código de concepto (1=productos, 2=servicios, 3=ambos).
func ConceptCode(concept string) (int, bool) {
	code, ok := conceptCodes[concept]
	return code, ok
}

// ConceptRequiresServiceDates indica si el concepto exige FchServDesde/FchServHasta/FchVtoPago.
func ConceptRequiresServiceDates(code int) bool {
	return code == 2 || code == 3
}

// =============================================================================
// Monedas (FEParamGetTiposMonedas) - códigos de uso frecuente
// =============================================================================

var currencyCodes = map[string]string{
	"ARS": "PES",
	"USD": "DOL",
	"EUR": "060",
	"BRL": "012",
	"UYU": "011",
}

// CurrencyCode traduce un código ISO 4217 al MonId de AFIP.
func CurrencyCode(iso string) (string, bool) {
	code, ok := currencyCodes[iso]
	return code, ok
}

// =============================================================================
// Tributos (FEParamGetTiposTributos)
// =============================================================================

const (
	TributeNational   = "national"
	TributeProvincial = "provincial"
	TributeMunicipal  = "municipal"
	TributeInternal   = "internal"
	TributeOther      = "other"
)

var tributeCodes = map[string]int{
	TributeNational:   1,
	TributeProvincial: 2,
	TributeMunicipal:  3,
	TributeInternal:   4,
	TributeOther:      99,
}

// TributeCode devuelve el Id de tributo AFIP.
func TributeCode(kind string) (int, bool) {
	code, ok := tributeCodes[kind]
	return code, ok
}

// MustDocumentTypeCode es como DocumentTypeCode pero entra en pánico ante una combinación inválida.
// Pensado para tablas y fixtures.
func MustDocumentTypeCode(class, kind string) int {
	code, ok := DocumentTypeCode(class, kind)
	if !ok {
		panic(fmt.Sprintf("afip: tipo de comprobante desconocido %s/%s", class, kind))
	}
	return code
}
