package afip

import (
	"fmt"
	"strconv"
	"time"

	domafip "github.com/jhoicas/wsfe-api/internal/domain/afip"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	catalog "github.com/jhoicas/wsfe-api/pkg/afip"
)

// CAERequest solicitud de CAE para un único comprobante, lista para serializar.
type CAERequest struct {
	PointOfSale  int
	DocumentType int
	Detail       FECAEDetRequest
}

// WithNumber devuelve una copia con CbteDesde = CbteHasta = n.
func (r CAERequest) WithNumber(n int64) CAERequest {
	r.Detail.CbteDesde = n
	r.Detail.CbteHasta = n
	return r
}

func (r CAERequest) body(auth FEAuthRequest) *FECAESolicitar {
	return &FECAESolicitar{
		Xmlns: wsfeNS,
		Auth:  auth,
		FeCAEReq: FECAERequest{
			FeCabReq: FECAECabRequest{CantReg: 1, PtoVta: r.PointOfSale, CbteTipo: r.DocumentType},
			FeDetReq: []FECAEDetRequest{r.Detail},
		},
	}
}

// BuildCAERequest traduce el comprobante a los campos de FECAESolicitar con número next
// (0 = a asignar). Primero mapea a las tablas de AFIP y luego valida los totales;
// no realiza ninguna llamada de red.
func BuildCAERequest(doc *entity.FiscalDocument, next int64) (*CAERequest, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: comprobante nulo", domafip.ErrInvalidDocument)
	}
	if next < 0 {
		return nil, fmt.Errorf("afip: número de comprobante negativo %d", next)
	}

	docType, ok := catalog.DocumentTypeCode(doc.Class, doc.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: clase %q, tipo %q", ErrUnsupportedDocumentType, doc.Class, doc.Kind)
	}
	concept, ok := catalog.ConceptCode(doc.Concept)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedConcept, doc.Concept)
	}
	idType, ok := catalog.IDTypeCode(doc.Counterparty.IDType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedIDType, doc.Counterparty.IDType)
	}
	docNro, err := receiverNumber(doc.Counterparty, idType)
	if err != nil {
		return nil, err
	}
	monID, ok := catalog.CurrencyCode(doc.Currency)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, doc.Currency)
	}
	iva, err := vatItems(doc)
	if err != nil {
		return nil, err
	}
	tributos, err := tributeItems(doc.OtherTributes)
	if err != nil {
		return nil, err
	}
	asoc, err := associatedItems(doc.Associated)
	if err != nil {
		return nil, err
	}

	if err := domafip.ValidateDocument(doc); err != nil {
		return nil, err
	}

	det := FECAEDetRequest{
		Concepto:   concept,
		DocTipo:    idType,
		DocNro:     docNro,
		CbteDesde:  next,
		CbteHasta:  next,
		CbteFch:    NewDate(doc.IssueDate),
		ImpTotal:   NewAmount(doc.Total),
		ImpTotConc: NewAmount(doc.NonTaxed),
		ImpNeto:    NewAmount(doc.NetTaxed),
		ImpOpEx:    NewAmount(doc.Exempt),
		ImpTrib:    NewAmount(doc.OtherTaxes),
		ImpIVA:     NewAmount(doc.VATAmount),
		MonId:      monID,
		MonCotiz:   NewAmount(doc.ExchangeRate),
		CbtesAsoc:  asoc,
		Tributos:   tributos,
		Iva:        iva,
	}
	if catalog.ConceptRequiresServiceDates(concept) {
		det.FchServDesde = datePtr(doc.ServiceFrom)
		det.FchServHasta = datePtr(doc.ServiceTo)
		det.FchVtoPago = datePtr(doc.PaymentDue)
	}

	return &CAERequest{PointOfSale: doc.PointOfSale, DocumentType: docType, Detail: det}, nil
}

func receiverNumber(p entity.Party, idType int) (int64, error) {
	if idType == catalog.DocTipoConsumidorFinal && p.IDNumber == "" {
		return 0, nil
	}
	switch p.IDType {
	case catalog.IDTypeCUIT, catalog.IDTypeCUIL:
		n, err := catalog.ParseCUIT(p.IDNumber)
		if err != nil {
			return 0, fmt.Errorf("%w: receptor: %v", domafip.ErrInvalidDocument, err)
		}
		return n, nil
	}
	digits := make([]byte, 0, len(p.IDNumber))
	for i := 0; i < len(p.IDNumber); i++ {
		if c := p.IDNumber[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: número de documento del receptor %q", domafip.ErrInvalidDocument, p.IDNumber)
	}
	return n, nil
}

// vatItems agrupa el desglose por alícuota: una sola entrada salvo que haya varias alícuotas.
// Clase C no discrimina IVA y no informa el nodo.
func vatItems(doc *entity.FiscalDocument) ([]AlicIva, error) {
	if doc.Class == catalog.ClassC {
		if len(doc.VAT) > 0 {
			return nil, fmt.Errorf("%w: %d alícuotas", ErrClassCWithVAT, len(doc.VAT))
		}
		return nil, nil
	}
	if len(doc.VAT) == 0 {
		return nil, nil
	}
	var out []AlicIva
	index := make(map[int]int, len(doc.VAT))
	for _, item := range doc.VAT {
		code, ok := catalog.VATRateCode(item.Rate)
		if !ok {
			return nil, &UnsupportedTaxRateError{Rate: item.Rate}
		}
		amount := domafip.VATAmountOf(item)
		if i, seen := index[code]; seen {
			out[i].BaseImp = NewAmount(out[i].BaseImp.Add(item.BaseAmount))
			out[i].Importe = NewAmount(out[i].Importe.Add(amount))
			continue
		}
		index[code] = len(out)
		out = append(out, AlicIva{Id: code, BaseImp: NewAmount(item.BaseAmount), Importe: NewAmount(amount)})
	}
	return out, nil
}

func tributeItems(items []entity.OtherTributeItem) ([]Tributo, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]Tributo, 0, len(items))
	for _, t := range items {
		code, ok := catalog.TributeCode(t.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedTribute, t.Kind)
		}
		out = append(out, Tributo{
			Id:      code,
			Desc:    t.Description,
			BaseImp: NewAmount(t.BaseAmount),
			Alic:    NewAmount(t.Rate),
			Importe: NewAmount(t.Amount),
		})
	}
	return out, nil
}

func associatedItems(items []entity.AssociatedDocument) ([]CbteAsoc, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]CbteAsoc, 0, len(items))
	for _, a := range items {
		code, ok := catalog.DocumentTypeCode(a.Class, a.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: asociado clase %q, tipo %q", ErrUnsupportedDocumentType, a.Class, a.Kind)
		}
		out = append(out, CbteAsoc{Tipo: code, PtoVta: a.PointOfSale, Nro: a.Number})
	}
	return out, nil
}

func datePtr(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	d := NewDate(*t)
	return &d
}
