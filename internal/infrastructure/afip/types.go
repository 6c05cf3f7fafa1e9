// Package afip implementa el cliente de autorización de comprobantes electrónicos de AFIP:
// ticket de acceso (WSAA loginCms) y solicitud de CAE (WSFEv1).
package afip

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ── Tipos escalares del esquema ───────────────────────────────────────────────

// ArgentinaTZ zona horaria en la que AFIP expresa las fechas (UTC-3, sin horario de verano).
var ArgentinaTZ = time.FixedZone("ART", -3*60*60)

// Amount importe serializado siempre con exactamente dos decimales.
type Amount struct {
	decimal.Decimal
}

// NewAmount redondea a dos decimales.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(2)}
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.Decimal.StringFixed(2)), nil
}

func (a *Amount) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("importe inválido %q: %w", s, err)
	}
	a.Decimal = v
	return nil
}

// Date fecha en formato YYYYMMDD.
type Date struct {
	time.Time
}

// NewDate conserva solo el día calendario de t en hora argentina.
func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.In(ArgentinaTZ).Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, ArgentinaTZ)}
}

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.Format("20060102")), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || strings.EqualFold(s, "NULL") {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.ParseInLocation("20060102", s, ArgentinaTZ)
	if err != nil {
		return fmt.Errorf("fecha inválida %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// ── Autenticación ─────────────────────────────────────────────────────────────

// FEAuthRequest credenciales del ticket de acceso que acompañan cada operación WSFEv1.
type FEAuthRequest struct {
	Token string `xml:"Token"`
	Sign  string `xml:"Sign"`
	Cuit  int64  `xml:"Cuit"`
}

// ── FECAESolicitar ────────────────────────────────────────────────────────────

// FECAESolicitar cuerpo de la solicitud de CAE.
type FECAESolicitar struct {
	XMLName  xml.Name      `xml:"FECAESolicitar"`
	Xmlns    string        `xml:"xmlns,attr"`
	Auth     FEAuthRequest `xml:"Auth"`
	FeCAEReq FECAERequest  `xml:"FeCAEReq"`
}

// FECAERequest cabecera + detalle (un comprobante por llamada en este diseño).
type FECAERequest struct {
	FeCabReq FECAECabRequest   `xml:"FeCabReq"`
	FeDetReq []FECAEDetRequest `xml:"FeDetReq>FECAEDetRequest"`
}

// FECAECabRequest cabecera del lote.
type FECAECabRequest struct {
	CantReg  int `xml:"CantReg"`
	PtoVta   int `xml:"PtoVta"`
	CbteTipo int `xml:"CbteTipo"`
}

// FECAEDetRequest detalle del comprobante. El orden de los campos es el del esquema WSFEv1.
type FECAEDetRequest struct {
	Concepto     int        `xml:"Concepto"`
	DocTipo      int        `xml:"DocTipo"`
	DocNro       int64      `xml:"DocNro"`
	CbteDesde    int64      `xml:"CbteDesde"`
	CbteHasta    int64      `xml:"CbteHasta"`
	CbteFch      Date       `xml:"CbteFch"`
	ImpTotal     Amount     `xml:"ImpTotal"`
	ImpTotConc   Amount     `xml:"ImpTotConc"`
	ImpNeto      Amount     `xml:"ImpNeto"`
	ImpOpEx      Amount     `xml:"ImpOpEx"`
	ImpTrib      Amount     `xml:"ImpTrib"`
	ImpIVA       Amount     `xml:"ImpIVA"`
	FchServDesde *Date      `xml:"FchServDesde,omitempty"`
	FchServHasta *Date      `xml:"FchServHasta,omitempty"`
	FchVtoPago   *Date      `xml:"FchVtoPago,omitempty"`
	MonId        string     `xml:"MonId"`
	MonCotiz     Amount     `xml:"MonCotiz"`
	CbtesAsoc    []CbteAsoc `xml:"CbtesAsoc>CbteAsoc,omitempty"`
	Tributos     []Tributo  `xml:"Tributos>Tributo,omitempty"`
	Iva          []AlicIva  `xml:"Iva>AlicIva,omitempty"`
}

// CbteAsoc comprobante asociado.
type CbteAsoc struct {
	Tipo   int   `xml:"Tipo"`
	PtoVta int   `xml:"PtoVta"`
	Nro    int64 `xml:"Nro"`
}

// Tributo ítem de otros tributos.
type Tributo struct {
	Id      int    `xml:"Id"`
	Desc    string `xml:"Desc"`
	BaseImp Amount `xml:"BaseImp"`
	Alic    Amount `xml:"Alic"`
	Importe Amount `xml:"Importe"`
}

// AlicIva ítem del desglose de IVA.
type AlicIva struct {
	Id      int    `xml:"Id"`
	BaseImp Amount `xml:"BaseImp"`
	Importe Amount `xml:"Importe"`
}

// CodeMsg observación, error o evento devuelto por AFIP.
type CodeMsg struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

// FECAESolicitarResponse envoltorio de la respuesta de FECAESolicitar.
type FECAESolicitarResponse struct {
	XMLName xml.Name       `xml:"FECAESolicitarResponse"`
	Result  *FECAEResponse `xml:"FECAESolicitarResult"`
}

// FECAEResponse resultado de la solicitud de CAE.
type FECAEResponse struct {
	FeCabResp *FECAECabResponse  `xml:"FeCabResp"`
	FeDetResp []FECAEDetResponse `xml:"FeDetResp>FECAEDetResponse"`
	Events    []CodeMsg          `xml:"Events>Evt"`
	Errors    []CodeMsg          `xml:"Errors>Err"`
}

// FECAECabResponse cabecera de la respuesta; Resultado es A, R o P.
type FECAECabResponse struct {
	Cuit       int64  `xml:"Cuit"`
	PtoVta     int    `xml:"PtoVta"`
	CbteTipo   int    `xml:"CbteTipo"`
	FchProceso string `xml:"FchProceso"`
	CantReg    int    `xml:"CantReg"`
	Resultado  string `xml:"Resultado"`
	Reproceso  string `xml:"Reproceso"`
}

// FECAEDetResponse detalle por comprobante.
type FECAEDetResponse struct {
	Concepto      int       `xml:"Concepto"`
	DocTipo       int       `xml:"DocTipo"`
	DocNro        int64     `xml:"DocNro"`
	CbteDesde     int64     `xml:"CbteDesde"`
	CbteHasta     int64     `xml:"CbteHasta"`
	CbteFch       Date      `xml:"CbteFch"`
	Resultado     string    `xml:"Resultado"`
	Observaciones []CodeMsg `xml:"Observaciones>Obs"`
	CAE           string    `xml:"CAE"`
	CAEFchVto     Date      `xml:"CAEFchVto"`
}

// ── FECompUltimoAutorizado ────────────────────────────────────────────────────

// FECompUltimoAutorizado consulta el último número autorizado para PtoVta + CbteTipo.
type FECompUltimoAutorizado struct {
	XMLName  xml.Name      `xml:"FECompUltimoAutorizado"`
	Xmlns    string        `xml:"xmlns,attr"`
	Auth     FEAuthRequest `xml:"Auth"`
	PtoVta   int           `xml:"PtoVta"`
	CbteTipo int           `xml:"CbteTipo"`
}

// FECompUltimoAutorizadoResponse respuesta de FECompUltimoAutorizado.
type FECompUltimoAutorizadoResponse struct {
	XMLName xml.Name            `xml:"FECompUltimoAutorizadoResponse"`
	Result  *FERecuperaLastCbte `xml:"FECompUltimoAutorizadoResult"`
}

// FERecuperaLastCbte resultado con CbteNro (0 si no hay comprobantes).
type FERecuperaLastCbte struct {
	PtoVta   int       `xml:"PtoVta"`
	CbteTipo int       `xml:"CbteTipo"`
	CbteNro  *int64    `xml:"CbteNro"`
	Errors   []CodeMsg `xml:"Errors>Err"`
	Events   []CodeMsg `xml:"Events>Evt"`
}

// ── FECompConsultar ───────────────────────────────────────────────────────────

// FECompConsultar recupera un comprobante ya autorizado.
type FECompConsultar struct {
	XMLName       xml.Name          `xml:"FECompConsultar"`
	Xmlns         string            `xml:"xmlns,attr"`
	Auth          FEAuthRequest     `xml:"Auth"`
	FeCompConsReq FECompConsultaReq `xml:"FeCompConsReq"`
}

// FECompConsultaReq identifica el comprobante a consultar.
type FECompConsultaReq struct {
	CbteTipo int   `xml:"CbteTipo"`
	CbteNro  int64 `xml:"CbteNro"`
	PtoVta   int   `xml:"PtoVta"`
}

// FECompConsultarResponse respuesta de FECompConsultar.
type FECompConsultarResponse struct {
	XMLName xml.Name                `xml:"FECompConsultarResponse"`
	Result  *FECompConsultaResponse `xml:"FECompConsultarResult"`
}

// FECompConsultaResponse resultado de la consulta.
type FECompConsultaResponse struct {
	ResultGet *FECompConsResponse `xml:"ResultGet"`
	Errors    []CodeMsg           `xml:"Errors>Err"`
	Events    []CodeMsg           `xml:"Events>Evt"`
}

// FECompConsResponse datos del comprobante tal como los registró AFIP.
type FECompConsResponse struct {
	Concepto        int       `xml:"Concepto"`
	DocTipo         int       `xml:"DocTipo"`
	DocNro          int64     `xml:"DocNro"`
	CbteDesde       int64     `xml:"CbteDesde"`
	CbteHasta       int64     `xml:"CbteHasta"`
	CbteFch         Date      `xml:"CbteFch"`
	ImpTotal        Amount    `xml:"ImpTotal"`
	ImpTotConc      Amount    `xml:"ImpTotConc"`
	ImpNeto         Amount    `xml:"ImpNeto"`
	ImpOpEx         Amount    `xml:"ImpOpEx"`
	ImpTrib         Amount    `xml:"ImpTrib"`
	ImpIVA          Amount    `xml:"ImpIVA"`
	MonId           string    `xml:"MonId"`
	MonCotiz        Amount    `xml:"MonCotiz"`
	Resultado       string    `xml:"Resultado"`
	CodAutorizacion string    `xml:"CodAutorizacion"`
	EmisionTipo     string    `xml:"EmisionTipo"`
	FchVto          Date      `xml:"FchVto"`
	FchProceso      string    `xml:"FchProceso"`
	Observaciones   []CodeMsg `xml:"Observaciones>Obs"`
	PtoVta          int       `xml:"PtoVta"`
	CbteTipo        int       `xml:"CbteTipo"`
}

// ── FEDummy ───────────────────────────────────────────────────────────────────

// FEDummy verificación de infraestructura; no requiere ticket.
type FEDummy struct {
	XMLName xml.Name `xml:"FEDummy"`
	Xmlns   string   `xml:"xmlns,attr"`
}

// FEDummyResponse respuesta de FEDummy.
type FEDummyResponse struct {
	XMLName xml.Name       `xml:"FEDummyResponse"`
	Result  *DummyResponse `xml:"FEDummyResult"`
}

// DummyResponse estado de los servidores de AFIP ("OK" cuando están operativos).
type DummyResponse struct {
	AppServer  string `xml:"AppServer" json:"app_server"`
	DbServer   string `xml:"DbServer" json:"db_server"`
	AuthServer string `xml:"AuthServer" json:"auth_server"`
}

// Healthy indica si los tres servidores informan OK.
func (d *DummyResponse) Healthy() bool {
	return d != nil && d.AppServer == "OK" && d.DbServer == "OK" && d.AuthServer == "OK"
}

// ── WSAA loginCms ─────────────────────────────────────────────────────────────

type loginCms struct {
	XMLName xml.Name `xml:"loginCms"`
	Xmlns   string   `xml:"xmlns,attr"`
	In0     string   `xml:"in0"`
}

type loginCmsResponse struct {
	XMLName xml.Name `xml:"loginCmsResponse"`
	Return  *string  `xml:"loginCmsReturn"`
}
