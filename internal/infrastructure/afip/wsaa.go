package afip

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip/signer"
)

const (
	wsaaNS = "http://wsaa.view.sua.dvadac.desein.afip.gov"

	// WSAAURLProduction y WSAAURLHomologation endpoints de loginCms.
	WSAAURLProduction   = "https://wsaa.afip.gov.ar/ws/services/LoginCms"
	WSAAURLHomologation = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"

	faultAlreadyAuthenticated = "alreadyAuthenticated"
)

// Session ticket de acceso vigente (token + sign) emitido por WSAA.
type Session struct {
	Token       string
	Sign        string
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// ValidAt indica si la sesión sirve en t (t < ExpiresAt).
func (s *Session) ValidAt(t time.Time) bool {
	return s != nil && s.Token != "" && t.Before(s.ExpiresAt)
}

func (s *Session) authFor(cuit int64) FEAuthRequest {
	return FEAuthRequest{Token: s.Token, Sign: s.Sign, Cuit: cuit}
}

// Authenticator obtiene un ticket nuevo; lo implementa WSAAClient y los fakes de test.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// EnvelopeSigner firma el TRA y devuelve el CMS en DER.
type EnvelopeSigner interface {
	Sign(traXML []byte, cert tls.Certificate) ([]byte, error)
}

// WSAAConfig parámetros de loginCms.
type WSAAConfig struct {
	Endpoint string
	Service  string
	TTL      time.Duration
	Timeout  time.Duration
}

// WSAAClient invoca loginCms con un TRA firmado.
type WSAAClient struct {
	cfg    WSAAConfig
	cert   tls.Certificate
	signer EnvelopeSigner
	caller *caller
	now    func() time.Time
}

// NewWSAAClient construye el cliente. observer y log pueden ser cero (se descartan los eventos).
func NewWSAAClient(cfg WSAAConfig, cert tls.Certificate, s EnvelopeSigner, t Transport, observer Observer, log zerolog.Logger) *WSAAClient {
	if cfg.Service == "" {
		cfg.Service = signer.ServiceWSFE
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = WSAAURLHomologation
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &WSAAClient{
		cfg:    cfg,
		cert:   cert,
		signer: s,
		caller: &caller{transport: t, observer: observer, log: log, timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Authenticate firma un TRA nuevo y canjea el CMS por token + sign.
// Las fallas de firma son *SigningError; todo lo demás es *AuthenticationError.
func (c *WSAAClient) Authenticate(ctx context.Context) (*Session, error) {
	tra, err := signer.NewTicketRequest(c.cfg.Service, c.now(), c.cfg.TTL).XML()
	if err != nil {
		return nil, &SigningError{Op: "TRA", Err: err}
	}
	cms, err := c.signer.Sign(tra, c.cert)
	if err != nil {
		return nil, &SigningError{Op: "CMS", Err: err}
	}

	body := &loginCms{Xmlns: wsaaNS, In0: base64.StdEncoding.EncodeToString(cms)}
	resp, err := invoke[loginCmsResponse](ctx, c.caller, "loginCms", c.cfg.Endpoint, "", body)
	if err != nil {
		return nil, authError(err)
	}
	if resp.Return == nil || strings.TrimSpace(*resp.Return) == "" {
		return nil, &AuthenticationError{Detail: "loginCmsReturn ausente"}
	}
	return parseTicketResponse(*resp.Return)
}

func authError(err error) error {
	if fault, ok := AsSOAPFault(err); ok {
		detail := "WSAA rechazó el TRA (" + fault.Code + ")"
		if strings.Contains(fault.Code, faultAlreadyAuthenticated) {
			detail = "WSAA informa un ticket vigente emitido fuera de esta sesión"
		}
		return &AuthenticationError{Detail: detail, Err: err}
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return &AuthenticationError{Detail: "loginCms sin respuesta", Err: err}
	}
	return &AuthenticationError{Detail: "respuesta loginCms inválida", Err: err}
}

// parseTicketResponse extrae credenciales y vencimiento del loginTicketResponse.
func parseTicketResponse(raw string) (*Session, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromString(raw); err != nil {
		return nil, &AuthenticationError{Detail: "loginTicketResponse no interpretable", Err: err}
	}
	root := doc.SelectElement("loginTicketResponse")
	if root == nil {
		return nil, &AuthenticationError{Detail: "falta loginTicketResponse"}
	}

	token := elementText(root, "credentials/token")
	sign := elementText(root, "credentials/sign")
	if token == "" || sign == "" {
		return nil, &AuthenticationError{Detail: "credenciales incompletas en loginTicketResponse"}
	}
	expires, err := parseTimestamp(elementText(root, "header/expirationTime"))
	if err != nil {
		return nil, &AuthenticationError{Detail: "expirationTime inválido", Err: err}
	}
	generated, _ := parseTimestamp(elementText(root, "header/generationTime"))

	return &Session{Token: token, Sign: sign, GeneratedAt: generated, ExpiresAt: expires}, nil
}

func elementText(root *etree.Element, path string) string {
	if el := root.FindElement(path); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("fecha vacía")
	}
	return time.Parse(time.RFC3339Nano, s)
}
