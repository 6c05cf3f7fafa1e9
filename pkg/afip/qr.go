package afip

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// QRBaseURL es la URL de verificación de comprobantes de AFIP (RG 4892/2020).
const QRBaseURL = "https://www.afip.gob.ar/fe/qr/?p="

// QRData datos que AFIP exige codificar en el QR impreso del comprobante.
type QRData struct {
	IssueDate        time.Time
	IssuerCUIT       int64
	PointOfSale      int
	DocumentType     int
	Number           int64
	Total            decimal.Decimal
	Currency         string // MonId (PES, DOL, ...)
	ExchangeRate     decimal.Decimal
	ReceiverIDType   int    // 0 si no se informa
	ReceiverIDNumber string // vacío si no se informa
	CAE              string
}

type qrPayload struct {
	Ver        int         `json:"ver"`
	Fecha      string      `json:"fecha"`
	Cuit       int64       `json:"cuit"`
	PtoVta     int         `json:"ptoVta"`
	TipoCmp    int         `json:"tipoCmp"`
	NroCmp     int64       `json:"nroCmp"`
	Importe    json.Number `json:"importe"`
	Moneda     string      `json:"moneda"`
	Ctz        json.Number `json:"ctz"`
	TipoDocRec int         `json:"tipoDocRec,omitempty"`
	NroDocRec  int64       `json:"nroDocRec,omitempty"`
	TipoCodAut string      `json:"tipoCodAut"`
	CodAut     int64       `json:"codAut"`
}

// BuildQRURL arma la URL del QR: QRBaseURL + Base64(JSON).
func BuildQRURL(d QRData) (string, error) {
	codAut, err := strconv.ParseInt(d.CAE, 10, 64)
	if err != nil {
		return "", fmt.Errorf("afip: CAE no numérico %q: %w", d.CAE, err)
	}
	p := qrPayload{
		Ver:        1,
		Fecha:      d.IssueDate.Format("2006-01-02"),
		Cuit:       d.IssuerCUIT,
		PtoVta:     d.PointOfSale,
		TipoCmp:    d.DocumentType,
		NroCmp:     d.Number,
		Importe:    json.Number(d.Total.StringFixed(2)),
		Moneda:     d.Currency,
		Ctz:        json.Number(d.ExchangeRate.StringFixed(2)),
		TipoCodAut: "E",
		CodAut:     codAut,
	}
	if d.ReceiverIDType != 0 && d.ReceiverIDNumber != "" {
		nro, err := strconv.ParseInt(string(extractDigits(d.ReceiverIDNumber)), 10, 64)
		if err == nil {
			p.TipoDocRec = d.ReceiverIDType
			p.NroDocRec = nro
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("afip: serializar QR: %w", err)
	}
	return QRBaseURL + base64.StdEncoding.EncodeToString(raw), nil
}
