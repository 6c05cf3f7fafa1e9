package afip_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
	catalog "github.com/jhoicas/wsfe-api/pkg/afip"
)

const (
	testCUIT = int64(20123456786)
	wsfeNS   = "http://ar.gov.afip.dif.FEV1/"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ── comprobantes ──

func invoiceA() *entity.FiscalDocument {
	return &entity.FiscalDocument{
		ID:           "doc-1",
		Class:        catalog.ClassA,
		Kind:         catalog.KindInvoice,
		PointOfSale:  3,
		IssueDate:    time.Date(2024, 3, 15, 0, 0, 0, 0, afip.ArgentinaTZ),
		Counterparty: entity.Party{IDType: catalog.IDTypeCUIT, IDNumber: "33-69345023-9"},
		Total:        d("1210"),
		NetTaxed:     d("1000"),
		VATAmount:    d("210"),
		Currency:     "ARS",
		ExchangeRate: decimal.NewFromInt(1),
		Concept:      catalog.ConceptGoods,
		VAT:          []entity.TaxBreakdownItem{{Rate: d("21"), BaseAmount: d("1000"), Amount: d("210")}},
	}
}

// ── certificado ──

func testCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "wsfe-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

// ── sesión fija ──

type fixedSessions struct {
	calls   atomic.Int32
	session *afip.Session
	err     error
}

func newFixedSessions() *fixedSessions {
	return &fixedSessions{session: &afip.Session{Token: "TOKEN", Sign: "SIGN", ExpiresAt: time.Now().Add(time.Hour)}}
}

func (f *fixedSessions) GetSession(context.Context) (*afip.Session, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// ── WSFEv1 simulado ──

func soapEnvelope(inner string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		inner + `</soap:Body></soap:Envelope>`
}

func approvedResponse(req *afip.FECAESolicitar) string {
	det := req.FeCAEReq.FeDetReq[0]
	return soapEnvelope(fmt.Sprintf(`<FECAESolicitarResponse xmlns="%s"><FECAESolicitarResult>`+
		`<FeCabResp><Cuit>%d</Cuit><PtoVta>%d</PtoVta><CbteTipo>%d</CbteTipo><FchProceso>20240315101010</FchProceso>`+
		`<CantReg>1</CantReg><Resultado>A</Resultado><Reproceso>N</Reproceso></FeCabResp>`+
		`<FeDetResp><FECAEDetResponse><Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>33693450239</DocNro>`+
		`<CbteDesde>%d</CbteDesde><CbteHasta>%d</CbteHasta><CbteFch>20240315</CbteFch><Resultado>A</Resultado>`+
		`<CAE>74123456789012</CAE><CAEFchVto>20240325</CAEFchVto></FECAEDetResponse></FeDetResp>`+
		`</FECAESolicitarResult></FECAESolicitarResponse>`,
		wsfeNS, req.Auth.Cuit, req.FeCAEReq.FeCabReq.PtoVta, req.FeCAEReq.FeCabReq.CbteTipo, det.CbteDesde, det.CbteHasta))
}

type fakeWSFE struct {
	mu          sync.Mutex
	calls       map[string]int
	lastNumber  int64
	lastRequest *afip.FECAESolicitar
	respond     func(req *afip.FECAESolicitar) string
	raw         map[string]string // respuesta fija por operación
}

func newFakeWSFE(t *testing.T) (*fakeWSFE, *httptest.Server) {
	t.Helper()
	f := &fakeWSFE{calls: map[string]int{}, respond: approvedResponse, raw: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeWSFE) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeWSFE) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeWSFE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	op := strings.TrimPrefix(r.Header.Get("SOAPAction"), wsfeNS)

	f.mu.Lock()
	f.calls[op]++
	raw, fixed := f.raw[op]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if fixed {
		_, _ = io.WriteString(w, raw)
		return
	}

	switch op {
	case "FECompUltimoAutorizado":
		req, err := afip.DecodeEnvelope[afip.FECompUltimoAutorizado](body, op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, soapEnvelope(fmt.Sprintf(`<FECompUltimoAutorizadoResponse xmlns="%s"><FECompUltimoAutorizadoResult>`+
			`<PtoVta>%d</PtoVta><CbteTipo>%d</CbteTipo><CbteNro>%d</CbteNro></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`,
			wsfeNS, req.PtoVta, req.CbteTipo, f.lastNumber)))
	case "FECAESolicitar":
		req, err := afip.DecodeEnvelope[afip.FECAESolicitar](body, op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastRequest = req
		f.mu.Unlock()
		_, _ = io.WriteString(w, f.respond(req))
	case "FEDummy":
		_, _ = io.WriteString(w, soapEnvelope(`<FEDummyResponse xmlns="`+wsfeNS+`"><FEDummyResult>`+
			`<AppServer>OK</AppServer><DbServer>OK</DbServer><AuthServer>OK</AuthServer></FEDummyResult></FEDummyResponse>`))
	default:
		http.Error(w, "operación desconocida "+op, http.StatusNotFound)
	}
}

func newTestClient(url string, sessions afip.SessionProvider) *afip.Client {
	return afip.NewClient(afip.ClientConfig{CUIT: testCUIT, Endpoint: url, Timeout: 5 * time.Second},
		sessions, afip.NewHTTPTransport(5*time.Second), nil, zerolog.Nop())
}
