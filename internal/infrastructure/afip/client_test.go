package afip_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

func TestClient_AuthorizeAprobado(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 42
	sessions := newFixedSessions()

	res, err := newTestClient(srv.URL, sessions).Authorize(t.Context(), invoiceA())
	require.NoError(t, err)

	assert.Equal(t, entity.OutcomeApproved, res.Outcome)
	assert.True(t, res.Approved())
	assert.Equal(t, "74123456789012", res.AuthorizationCode)
	require.NotNil(t, res.AuthorizationExpiry)
	assert.Equal(t, "2024-03-25", res.AuthorizationExpiry.Format("2006-01-02"))
	assert.Equal(t, int64(43), res.Number)
	assert.Equal(t, 3, res.PointOfSale)
	assert.Equal(t, 1, res.DocumentType)

	require.NotNil(t, fake.lastRequest)
	det := fake.lastRequest.FeCAEReq.FeDetReq[0]
	assert.Equal(t, int64(43), det.CbteDesde)
	assert.Equal(t, int64(43), det.CbteHasta)
	assert.Equal(t, "TOKEN", fake.lastRequest.Auth.Token)
	assert.Equal(t, testCUIT, fake.lastRequest.Auth.Cuit)
	assert.Equal(t, 1, fake.count("FECompUltimoAutorizado"))
	assert.Equal(t, 1, fake.count("FECAESolicitar"))
}

func TestClient_AuthorizeRechazadoEsValor(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.respond = func(req *afip.FECAESolicitar) string {
		return soapEnvelope(fmt.Sprintf(`<FECAESolicitarResponse xmlns="%s"><FECAESolicitarResult>`+
			`<FeCabResp><Cuit>20123456786</Cuit><PtoVta>3</PtoVta><CbteTipo>1</CbteTipo><FchProceso>20240315101010</FchProceso>`+
			`<CantReg>1</CantReg><Resultado>R</Resultado><Reproceso>N</Reproceso></FeCabResp>`+
			`<FeDetResp><FECAEDetResponse><Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>33693450239</DocNro>`+
			`<CbteDesde>1</CbteDesde><CbteHasta>1</CbteHasta><CbteFch>20240315</CbteFch><Resultado>R</Resultado>`+
			`<Observaciones><Obs><Code>10016</Code><Msg>El numero o fecha del comprobante no se corresponde con el proximo a autorizar.</Msg></Obs></Observaciones>`+
			`<CAE></CAE><CAEFchVto></CAEFchVto></FECAEDetResponse></FeDetResp>`+
			`</FECAESolicitarResult></FECAESolicitarResponse>`, wsfeNS))
	}

	res, err := newTestClient(srv.URL, newFixedSessions()).Authorize(t.Context(), invoiceA())
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRejected, res.Outcome)
	assert.False(t, res.Approved())
	assert.Empty(t, res.AuthorizationCode)
	assert.Nil(t, res.AuthorizationExpiry)
	require.Len(t, res.Observations, 1)
	assert.Equal(t, 10016, res.Observations[0].Code)
	assert.Equal(t, "El numero o fecha del comprobante no se corresponde con el proximo a autorizar.", res.Observations[0].Text)
}

func TestClient_AuthorizeDetallePrevaleceSobreCabecera(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.respond = func(req *afip.FECAESolicitar) string {
		return soapEnvelope(`<FECAESolicitarResponse xmlns="` + wsfeNS + `"><FECAESolicitarResult>` +
			`<FeCabResp><PtoVta>3</PtoVta><CbteTipo>1</CbteTipo><Resultado>P</Resultado></FeCabResp>` +
			`<FeDetResp><FECAEDetResponse><CbteDesde>1</CbteDesde><Resultado>R</Resultado></FECAEDetResponse></FeDetResp>` +
			`</FECAESolicitarResult></FECAESolicitarResponse>`)
	}

	res, err := newTestClient(srv.URL, newFixedSessions()).Authorize(t.Context(), invoiceA())
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRejected, res.Outcome)
}

func TestClient_AuthorizeSinCabeceraEsErrorDeProtocolo(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.respond = func(req *afip.FECAESolicitar) string {
		return soapEnvelope(`<FECAESolicitarResponse xmlns="` + wsfeNS + `"><FECAESolicitarResult>` +
			`<Errors><Err><Code>600</Code><Msg>ValidacionDeToken: No validaron las credenciales</Msg></Err></Errors>` +
			`</FECAESolicitarResult></FECAESolicitarResponse>`)
	}
	sessions := newFixedSessions()
	before := *sessions.session

	_, err := newTestClient(srv.URL, sessions).Authorize(t.Context(), invoiceA())
	var pe *afip.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Detail, "600")
	assert.Equal(t, int64(1), pe.Number, "el error conserva el número enviado")
	n, lost := afip.SubmittedNumber(err)
	assert.True(t, lost)
	assert.Equal(t, int64(1), n)
	assert.True(t, afip.IsRetryable(err))
	assert.Equal(t, before, *sessions.session, "la sesión no se modifica")
}

func TestClient_AuthorizeAprobadoSinCAE(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.respond = func(req *afip.FECAESolicitar) string {
		return soapEnvelope(`<FECAESolicitarResponse xmlns="` + wsfeNS + `"><FECAESolicitarResult>` +
			`<FeCabResp><PtoVta>3</PtoVta><CbteTipo>1</CbteTipo><Resultado>A</Resultado></FeCabResp>` +
			`</FECAESolicitarResult></FECAESolicitarResponse>`)
	}

	_, err := newTestClient(srv.URL, newFixedSessions()).Authorize(t.Context(), invoiceA())
	var pe *afip.ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestClient_AuthorizeAlicuotaNoSoportadaNoLlamaRed(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	sessions := newFixedSessions()
	doc := invoiceA()
	doc.VAT[0].Rate = d("15")
	doc.VAT[0].Amount = d("150")
	doc.VATAmount = d("150")
	doc.Total = d("1150")

	_, err := newTestClient(srv.URL, sessions).Authorize(t.Context(), doc)
	var rateErr *afip.UnsupportedTaxRateError
	require.ErrorAs(t, err, &rateErr)
	assert.Zero(t, fake.total())
	assert.Zero(t, sessions.calls.Load(), "tampoco se pide ticket")
}

func TestClient_AuthorizeFallaDeAutenticacionNoEnvia(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	sessions := newFixedSessions()
	sessions.err = &afip.AuthenticationError{Detail: "loginCms sin respuesta",
		Err: &afip.TransportError{Operation: "loginCms", Timeout: true, Err: errors.New("deadline")}}

	_, err := newTestClient(srv.URL, sessions).Authorize(t.Context(), invoiceA())
	var authErr *afip.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, fake.total())
}

func TestClient_AuthorizeTimeoutDeLlamada(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := afip.NewClient(afip.ClientConfig{CUIT: testCUIT, Endpoint: srv.URL, Timeout: 50 * time.Millisecond},
		newFixedSessions(), afip.NewHTTPTransport(5*time.Second), nil, zerolog.Nop())

	_, err := c.Authorize(t.Context(), invoiceA())
	var transportErr *afip.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, transportErr.Timeout)
	assert.Equal(t, "FECompUltimoAutorizado", transportErr.Operation)
	assert.True(t, afip.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load(), "no se envía FECAESolicitar")
}

func TestClient_LastAuthorizedNumber(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 1287

	n, err := newTestClient(srv.URL, newFixedSessions()).LastAuthorizedNumber(t.Context(), 3, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1287), n)
}

func TestClient_LastAuthorizedNumberErrorDeServicio(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.raw["FECompUltimoAutorizado"] = soapEnvelope(`<FECompUltimoAutorizadoResponse xmlns="` + wsfeNS + `"><FECompUltimoAutorizadoResult>` +
		`<PtoVta>0</PtoVta><CbteTipo>0</CbteTipo><Errors><Err><Code>10015</Code><Msg>Punto de venta inválido</Msg></Err></Errors>` +
		`</FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`)

	_, err := newTestClient(srv.URL, newFixedSessions()).LastAuthorizedNumber(t.Context(), 0, 1)
	var se *afip.ServiceError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.NotFound())
	assert.False(t, afip.IsRetryable(err))
}

func TestClient_QueryDocument(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.raw["FECompConsultar"] = soapEnvelope(`<FECompConsultarResponse xmlns="` + wsfeNS + `"><FECompConsultarResult><ResultGet>` +
		`<Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>33693450239</DocNro><CbteDesde>43</CbteDesde><CbteHasta>43</CbteHasta>` +
		`<CbteFch>20240315</CbteFch><ImpTotal>1210</ImpTotal><ImpTotConc>0</ImpTotConc><ImpNeto>1000</ImpNeto><ImpOpEx>0</ImpOpEx>` +
		`<ImpTrib>0</ImpTrib><ImpIVA>210</ImpIVA><MonId>PES</MonId><MonCotiz>1</MonCotiz><Resultado>A</Resultado>` +
		`<CodAutorizacion>74123456789012</CodAutorizacion><EmisionTipo>CAE</EmisionTipo><FchVto>20240325</FchVto>` +
		`<FchProceso>20240315101010</FchProceso><PtoVta>3</PtoVta><CbteTipo>1</CbteTipo>` +
		`</ResultGet></FECompConsultarResult></FECompConsultarResponse>`)

	rec, err := newTestClient(srv.URL, newFixedSessions()).QueryDocument(t.Context(), 3, 1, 43)
	require.NoError(t, err)
	assert.Equal(t, "74123456789012", rec.AuthorizationCode)
	assert.Equal(t, int64(43), rec.Number)
	assert.True(t, rec.Total.Equal(d("1210")))
	assert.Equal(t, "CAE", rec.EmissionType)
	require.NotNil(t, rec.AuthorizationExpiry)
}

func TestClient_QueryDocumentInexistente(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.raw["FECompConsultar"] = soapEnvelope(`<FECompConsultarResponse xmlns="` + wsfeNS + `"><FECompConsultarResult>` +
		`<Errors><Err><Code>602</Code><Msg>No existen datos en nuestros registros para los parametros ingresados.</Msg></Err></Errors>` +
		`</FECompConsultarResult></FECompConsultarResponse>`)

	_, err := newTestClient(srv.URL, newFixedSessions()).QueryDocument(t.Context(), 3, 1, 999)
	var se *afip.ServiceError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.NotFound())
}

func TestClient_Dummy(t *testing.T) {
	_, srv := newFakeWSFE(t)
	sessions := newFixedSessions()

	status, err := newTestClient(srv.URL, sessions).Dummy(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Healthy())
	assert.Zero(t, sessions.calls.Load(), "FEDummy no usa ticket")
}

func consultarResponse(total string) string {
	return soapEnvelope(`<FECompConsultarResponse xmlns="` + wsfeNS + `"><FECompConsultarResult><ResultGet>` +
		`<Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>33693450239</DocNro><CbteDesde>43</CbteDesde><CbteHasta>43</CbteHasta>` +
		`<CbteFch>20240315</CbteFch><ImpTotal>` + total + `</ImpTotal><MonId>PES</MonId><MonCotiz>1</MonCotiz><Resultado>A</Resultado>` +
		`<CodAutorizacion>74123456789012</CodAutorizacion><EmisionTipo>CAE</EmisionTipo><FchVto>20240325</FchVto>` +
		`<PtoVta>3</PtoVta><CbteTipo>1</CbteTipo></ResultGet></FECompConsultarResult></FECompConsultarResponse>`)
}

func TestClient_FindAuthorizedCoincide(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 43
	fake.raw["FECompConsultar"] = consultarResponse("1210.00")

	res, err := newTestClient(srv.URL, newFixedSessions()).FindAuthorized(t.Context(), invoiceA(), 43)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "74123456789012", res.AuthorizationCode)
	assert.Equal(t, int64(43), res.Number)
}

func TestClient_FindAuthorizedNoCoincide(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 43
	fake.raw["FECompConsultar"] = consultarResponse("999.00")

	res, err := newTestClient(srv.URL, newFixedSessions()).FindAuthorized(t.Context(), invoiceA(), 43)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_FindAuthorizedSinComprobantes(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 0

	res, err := newTestClient(srv.URL, newFixedSessions()).FindAuthorized(t.Context(), invoiceA(), 43)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, fake.count("FECompConsultar"))
}

func TestClient_FindAuthorizedNumeroNoAlcanzado(t *testing.T) {
	// doc-1 idéntico quedó autorizado como 43; el envío de doc-2 (44) nunca llegó a AFIP.
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 43
	fake.raw["FECompConsultar"] = consultarResponse("1210.00")
	doc2 := invoiceA()
	doc2.ID = "doc-2"

	res, err := newTestClient(srv.URL, newFixedSessions()).FindAuthorized(t.Context(), doc2, 44)
	require.NoError(t, err)
	assert.Nil(t, res, "no se adopta el CAE de otro comprobante")
	assert.Zero(t, fake.count("FECompConsultar"))
}

func TestClient_FindAuthorizedOtroNumeroNoCoincide(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 44
	fake.raw["FECompConsultar"] = consultarResponse("1210.00") // informa el 43

	res, err := newTestClient(srv.URL, newFixedSessions()).FindAuthorized(t.Context(), invoiceA(), 44)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_FindAuthorizedSinNumero(t *testing.T) {
	fake, srv := newFakeWSFE(t)

	res, err := newTestClient(srv.URL, newFixedSessions()).FindAuthorized(t.Context(), invoiceA(), 0)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, fake.total())
}

func TestClient_AuthorizeRespuestaIlegibleConservaNumero(t *testing.T) {
	fake, srv := newFakeWSFE(t)
	fake.lastNumber = 43
	fake.raw["FECAESolicitar"] = "<html>502 Bad Gateway</html>"

	_, err := newTestClient(srv.URL, newFixedSessions()).Authorize(t.Context(), invoiceA())
	require.Error(t, err)
	n, lost := afip.SubmittedNumber(err)
	assert.True(t, lost)
	assert.Equal(t, int64(44), n)
}
