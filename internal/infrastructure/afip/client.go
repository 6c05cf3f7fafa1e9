package afip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
)

const (
	wsfeNS = "http://ar.gov.afip.dif.FEV1/"

	// WSFEURLProduction y WSFEURLHomologation endpoints de WSFEv1.
	WSFEURLProduction   = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"
	WSFEURLHomologation = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
)

// Operaciones WSFEv1; coinciden con el Operation de los errores tipados.
const (
	OpSolicitar        = "FECAESolicitar"
	OpUltimoAutorizado = "FECompUltimoAutorizado"
	OpConsultar        = "FECompConsultar"
	OpDummy            = "FEDummy"
)

// SessionProvider entrega un ticket vigente; lo implementa SessionManager.
type SessionProvider interface {
	GetSession(ctx context.Context) (*Session, error)
}

// ClientConfig parámetros del cliente WSFEv1.
type ClientConfig struct {
	CUIT     int64
	Endpoint string
	// Timeout acota cada llamada SOAP individual.
	Timeout time.Duration
}

// Client autoriza comprobantes contra WSFEv1.
type Client struct {
	cfg      ClientConfig
	sessions SessionProvider
	caller   *caller
	observer Observer
	log      zerolog.Logger
}

// NewClient construye el cliente. observer puede ser nil.
func NewClient(cfg ClientConfig, sessions SessionProvider, t Transport, observer Observer, log zerolog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = WSFEURLHomologation
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Client{
		cfg:      cfg,
		sessions: sessions,
		caller:   &caller{transport: t, observer: observer, log: log, timeout: cfg.Timeout},
		observer: observer,
		log:      log,
	}
}

// ── Authorize ─────────────────────────────────────────────────────────────────

// Authorize solicita CAE para doc:
//  1. arma y valida la solicitud (sin red)
//  2. obtiene el ticket de acceso
//  3. consulta el último número autorizado y usa el siguiente
//  4. envía FECAESolicitar e interpreta el resultado
//
// Un rechazo de AFIP se devuelve como resultado con OutcomeRejected y error nil.
// Entre los pasos 3 y 4 otro emisor del mismo punto de venta podría tomar el número;
// AFIP rechaza ese caso y el llamador debe reintentar.
func (c *Client) Authorize(ctx context.Context, doc *entity.FiscalDocument) (*entity.AuthorizationResult, error) {
	req, err := BuildCAERequest(doc, 0)
	if err != nil {
		return nil, err
	}

	sess, err := c.sessions.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	last, err := c.lastAuthorized(ctx, sess, req.PointOfSale, req.DocumentType)
	if err != nil {
		return nil, err
	}
	numbered := req.WithNumber(last + 1)

	c.log.Info().
		Str("document_id", doc.ID).
		Int("pto_vta", numbered.PointOfSale).
		Int("cbte_tipo", numbered.DocumentType).
		Int64("cbte_nro", numbered.Detail.CbteDesde).
		Msg("afip: solicitando CAE")

	resp, err := invoke[FECAESolicitarResponse](ctx, c.caller, OpSolicitar, c.cfg.Endpoint,
		wsfeNS+OpSolicitar, numbered.body(sess.authFor(c.cfg.CUIT)))
	if err != nil {
		return nil, withNumber(err, numbered.Detail.CbteDesde)
	}

	result, err := interpretCAEResponse(resp, numbered)
	if err != nil {
		return nil, withNumber(err, numbered.Detail.CbteDesde)
	}
	c.observer.ObserveOutcome(string(result.Outcome))
	return result, nil
}

// interpretCAEResponse clasifica la respuesta. El Resultado del detalle tiene prioridad
// sobre el de la cabecera; sin cabecera no hay resultado y es un error de protocolo.
func interpretCAEResponse(resp *FECAESolicitarResponse, req CAERequest) (*entity.AuthorizationResult, error) {
	const op = OpSolicitar
	if resp.Result == nil {
		return nil, &ProtocolError{Operation: op, Detail: "falta FECAESolicitarResult"}
	}
	r := resp.Result
	if r.FeCabResp == nil {
		return nil, &ProtocolError{Operation: op, Detail: "falta FeCabResp: " + joinMessages(r.Errors)}
	}

	outcome := r.FeCabResp.Resultado
	var det *FECAEDetResponse
	if len(r.FeDetResp) > 0 {
		det = &r.FeDetResp[0]
		if det.Resultado != "" {
			outcome = det.Resultado
		}
	}

	result := &entity.AuthorizationResult{
		Outcome:      entity.Outcome(outcome),
		DocumentType: r.FeCabResp.CbteTipo,
		PointOfSale:  r.FeCabResp.PtoVta,
		Number:       req.Detail.CbteDesde,
		DocumentDate: req.Detail.CbteFch.Time,
		ProcessedAt:  r.FeCabResp.FchProceso,
		Errors:       toMessages(r.Errors),
		Events:       toMessages(r.Events),
		Observations: []entity.Message{},
	}
	if det != nil {
		result.Observations = toMessages(det.Observaciones)
		if det.CbteDesde != 0 {
			result.Number = det.CbteDesde
		}
		if !det.CbteFch.IsZero() {
			result.DocumentDate = det.CbteFch.Time
		}
	}

	switch result.Outcome {
	case entity.OutcomeApproved, entity.OutcomePartial:
		if det == nil || det.CAE == "" {
			return nil, &ProtocolError{Operation: op, Detail: "resultado " + outcome + " sin CAE"}
		}
		result.AuthorizationCode = det.CAE
		if !det.CAEFchVto.IsZero() {
			expiry := det.CAEFchVto.Time
			result.AuthorizationExpiry = &expiry
		}
	case entity.OutcomeRejected:
	default:
		return nil, &ProtocolError{Operation: op, Detail: fmt.Sprintf("Resultado desconocido %q", outcome)}
	}
	return result, nil
}

func toMessages(in []CodeMsg) []entity.Message {
	out := make([]entity.Message, 0, len(in))
	for _, m := range in {
		out = append(out, entity.Message{Code: m.Code, Text: m.Msg})
	}
	return out
}

// ── FECompUltimoAutorizado ────────────────────────────────────────────────────

// LastAuthorizedNumber devuelve el último número autorizado para el punto de venta y tipo (0 si no hay).
func (c *Client) LastAuthorizedNumber(ctx context.Context, pointOfSale, documentType int) (int64, error) {
	sess, err := c.sessions.GetSession(ctx)
	if err != nil {
		return 0, err
	}
	return c.lastAuthorized(ctx, sess, pointOfSale, documentType)
}

func (c *Client) lastAuthorized(ctx context.Context, sess *Session, pointOfSale, documentType int) (int64, error) {
	const op = OpUltimoAutorizado
	body := &FECompUltimoAutorizado{
		Xmlns:    wsfeNS,
		Auth:     sess.authFor(c.cfg.CUIT),
		PtoVta:   pointOfSale,
		CbteTipo: documentType,
	}
	resp, err := invoke[FECompUltimoAutorizadoResponse](ctx, c.caller, op, c.cfg.Endpoint, wsfeNS+op, body)
	if err != nil {
		return 0, err
	}
	if resp.Result == nil {
		return 0, &ProtocolError{Operation: op, Detail: "falta FECompUltimoAutorizadoResult"}
	}
	if len(resp.Result.Errors) > 0 {
		return 0, &ServiceError{Operation: op, Errors: resp.Result.Errors}
	}
	if resp.Result.CbteNro == nil {
		return 0, &ProtocolError{Operation: op, Detail: "falta CbteNro"}
	}
	return *resp.Result.CbteNro, nil
}

// ── FECompConsultar ───────────────────────────────────────────────────────────

// DocumentRecord comprobante tal como quedó registrado en AFIP.
type DocumentRecord struct {
	entity.AuthorizationResult
	Concept          int             `json:"concept"`
	ReceiverIDType   int             `json:"receiver_id_type"`
	ReceiverIDNumber int64           `json:"receiver_id_number"`
	Total            decimal.Decimal `json:"total"`
	NonTaxed         decimal.Decimal `json:"non_taxed"`
	NetTaxed         decimal.Decimal `json:"net_taxed"`
	Exempt           decimal.Decimal `json:"exempt"`
	OtherTaxes       decimal.Decimal `json:"other_taxes"`
	VATAmount        decimal.Decimal `json:"vat_amount"`
	Currency         string          `json:"currency"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	EmissionType     string          `json:"emission_type"`
}

// QueryDocument consulta un comprobante emitido. Si AFIP no lo tiene devuelve *ServiceError con NotFound.
func (c *Client) QueryDocument(ctx context.Context, pointOfSale, documentType int, number int64) (*DocumentRecord, error) {
	const op = OpConsultar
	sess, err := c.sessions.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	body := &FECompConsultar{
		Xmlns:         wsfeNS,
		Auth:          sess.authFor(c.cfg.CUIT),
		FeCompConsReq: FECompConsultaReq{CbteTipo: documentType, CbteNro: number, PtoVta: pointOfSale},
	}
	resp, err := invoke[FECompConsultarResponse](ctx, c.caller, op, c.cfg.Endpoint, wsfeNS+op, body)
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, &ProtocolError{Operation: op, Detail: "falta FECompConsultarResult"}
	}
	g := resp.Result.ResultGet
	if g == nil {
		if len(resp.Result.Errors) > 0 {
			return nil, &ServiceError{Operation: op, Errors: resp.Result.Errors}
		}
		return nil, &ProtocolError{Operation: op, Detail: "falta ResultGet"}
	}

	rec := &DocumentRecord{
		AuthorizationResult: entity.AuthorizationResult{
			Outcome:           entity.Outcome(g.Resultado),
			AuthorizationCode: g.CodAutorizacion,
			DocumentDate:      g.CbteFch.Time,
			DocumentType:      g.CbteTipo,
			PointOfSale:       g.PtoVta,
			Number:            g.CbteDesde,
			ProcessedAt:       g.FchProceso,
			Observations:      toMessages(g.Observaciones),
			Errors:            toMessages(resp.Result.Errors),
			Events:            toMessages(resp.Result.Events),
		},
		Concept:          g.Concepto,
		ReceiverIDType:   g.DocTipo,
		ReceiverIDNumber: g.DocNro,
		Total:            g.ImpTotal.Decimal,
		NonTaxed:         g.ImpTotConc.Decimal,
		NetTaxed:         g.ImpNeto.Decimal,
		Exempt:           g.ImpOpEx.Decimal,
		OtherTaxes:       g.ImpTrib.Decimal,
		VATAmount:        g.ImpIVA.Decimal,
		Currency:         g.MonId,
		ExchangeRate:     g.MonCotiz.Decimal,
		EmissionType:     g.EmisionTipo,
	}
	if !g.FchVto.IsZero() {
		expiry := g.FchVto.Time
		rec.AuthorizationExpiry = &expiry
	}
	return rec, nil
}

// FindAuthorized verifica si el comprobante number del punto de venta corresponde a doc
// (mismo tipo, receptor, fecha, moneda e importe total). number es el que se envió en el
// FECAESolicitar interrumpido; sirve para no duplicar números cuando AFIP lo procesó pero
// la respuesta se perdió. Devuelve nil si no hay coincidencia o si AFIP nunca llegó a ese número.
func (c *Client) FindAuthorized(ctx context.Context, doc *entity.FiscalDocument, number int64) (*entity.AuthorizationResult, error) {
	if number <= 0 {
		return nil, nil
	}
	req, err := BuildCAERequest(doc, 0)
	if err != nil {
		return nil, err
	}
	last, err := c.LastAuthorizedNumber(ctx, req.PointOfSale, req.DocumentType)
	if err != nil || last < number {
		return nil, err
	}
	rec, err := c.QueryDocument(ctx, req.PointOfSale, req.DocumentType, number)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) && se.NotFound() {
			return nil, nil
		}
		return nil, err
	}

	det := req.Detail
	matches := rec.AuthorizationCode != "" &&
		rec.Number == number &&
		rec.DocumentType == req.DocumentType &&
		rec.ReceiverIDType == det.DocTipo &&
		rec.ReceiverIDNumber == det.DocNro &&
		rec.Currency == det.MonId &&
		rec.Total.Round(2).Equal(det.ImpTotal.Decimal) &&
		NewDate(rec.DocumentDate).Equal(det.CbteFch.Time)
	if !matches {
		return nil, nil
	}
	c.log.Warn().
		Str("document_id", doc.ID).
		Int64("cbte_nro", rec.Number).
		Msg("afip: comprobante ya autorizado en un intento anterior")
	result := rec.AuthorizationResult
	return &result, nil
}

// ── FEDummy ───────────────────────────────────────────────────────────────────

// Dummy consulta el estado de los servidores de AFIP. No requiere ticket.
func (c *Client) Dummy(ctx context.Context) (*DummyResponse, error) {
	const op = OpDummy
	resp, err := invoke[FEDummyResponse](ctx, c.caller, op, c.cfg.Endpoint, wsfeNS+op, &FEDummy{Xmlns: wsfeNS})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, &ProtocolError{Operation: op, Detail: "falta FEDummyResult"}
	}
	return resp.Result, nil
}
