package afip_test

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/smallstep/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip/signer"
)

const ticketResponse = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<loginTicketResponse version="1.0"><header><source>CN=wsaahomo, O=AFIP, C=AR</source>` +
	`<destination>SERIALNUMBER=CUIT 20123456786, CN=wsfe-test</destination><uniqueId>383520211</uniqueId>` +
	`<generationTime>2024-03-15T10:00:00.123-03:00</generationTime><expirationTime>2024-03-15T22:00:00.123-03:00</expirationTime>` +
	`</header><credentials><token>PD94bWwgdG9rZW4=</token><sign>c2lnbg==</sign></credentials></loginTicketResponse>`

func loginCmsResponse(t *testing.T, ticket string) string {
	t.Helper()
	var escaped bytes.Buffer
	require.NoError(t, xml.EscapeText(&escaped, []byte(ticket)))
	return soapEnvelope(`<loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov"><loginCmsReturn>` +
		escaped.String() + `</loginCmsReturn></loginCmsResponse>`)
}

func newWSAA(t *testing.T, url string, timeout time.Duration) *afip.WSAAClient {
	t.Helper()
	return afip.NewWSAAClient(afip.WSAAConfig{Endpoint: url, Service: signer.ServiceWSFE, TTL: 12 * time.Hour, Timeout: timeout},
		testCert(t), signer.NewCMSSigner(), afip.NewHTTPTransport(5*time.Second), nil, zerolog.Nop())
}

func TestWSAAClient_Authenticate(t *testing.T) {
	var in0 string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(body); err == nil {
			if el := doc.FindElement("//in0"); el != nil {
				in0 = el.Text()
			}
		}
		_, _ = io.WriteString(w, loginCmsResponse(t, ticketResponse))
	}))
	defer srv.Close()

	s, err := newWSAA(t, srv.URL, time.Second).Authenticate(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "PD94bWwgdG9rZW4=", s.Token)
	assert.Equal(t, "c2lnbg==", s.Sign)
	want := time.Date(2024, 3, 16, 1, 0, 0, 123000000, time.UTC)
	assert.True(t, want.Equal(s.ExpiresAt), s.ExpiresAt.String())

	// el in0 es un CMS válido con el TRA embebido
	der, err := base64.StdEncoding.DecodeString(in0)
	require.NoError(t, err)
	p7, err := pkcs7.Parse(der)
	require.NoError(t, err)
	require.NoError(t, p7.Verify())
	assert.Contains(t, string(p7.Content), "<service>wsfe</service>")
}

func TestWSAAClient_Fault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, soapEnvelope(`<soapenv:Fault xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">`+
			`<faultcode xmlns:ns1="http://xml.apache.org/axis/">ns1:coe.alreadyAuthenticated</faultcode>`+
			`<faultstring>El CEE ya posee un TA valido para el acceso al WSN solicitado</faultstring></soapenv:Fault>`))
	}))
	defer srv.Close()

	_, err := newWSAA(t, srv.URL, time.Second).Authenticate(t.Context())
	var authErr *afip.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Detail, "ticket vigente")
	fault, ok := afip.AsSOAPFault(err)
	require.True(t, ok)
	assert.Equal(t, "ns1:coe.alreadyAuthenticated", fault.Code)
}

func TestWSAAClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newWSAA(t, srv.URL, 50*time.Millisecond).Authenticate(t.Context())
	var authErr *afip.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	var transportErr *afip.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, transportErr.Timeout)
}

func TestWSAAClient_TicketIncompleto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, loginCmsResponse(t, `<loginTicketResponse version="1.0"><header/><credentials><token>x</token></credentials></loginTicketResponse>`))
	}))
	defer srv.Close()

	_, err := newWSAA(t, srv.URL, time.Second).Authenticate(t.Context())
	var authErr *afip.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestWSAAClient_FallaDeFirma(t *testing.T) {
	cert := testCert(t)
	cert.PrivateKey = nil
	c := afip.NewWSAAClient(afip.WSAAConfig{Endpoint: "http://127.0.0.1:1"}, cert, signer.NewCMSSigner(),
		afip.NewHTTPTransport(time.Second), nil, zerolog.Nop())

	_, err := c.Authenticate(t.Context())
	var signErr *afip.SigningError
	require.ErrorAs(t, err, &signErr)
	assert.False(t, afip.IsRetryable(err))
}
