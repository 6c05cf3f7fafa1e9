package afip

import (
	"github.com/rs/zerolog"

	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip/signer"
	catalog "github.com/jhoicas/wsfe-api/pkg/afip"
	"github.com/jhoicas/wsfe-api/pkg/config"
)

// Endpoints devuelve las URLs de WSAA y WSFEv1 para el ambiente, respetando los overrides.
func Endpoints(cfg config.AFIPConfig) (wsaaURL, wsfeURL string) {
	wsaaURL, wsfeURL = WSAAURLHomologation, WSFEURLHomologation
	if cfg.Production() {
		wsaaURL, wsfeURL = WSAAURLProduction, WSFEURLProduction
	}
	if cfg.WSAAURL != "" {
		wsaaURL = cfg.WSAAURL
	}
	if cfg.WSFEURL != "" {
		wsfeURL = cfg.WSFEURL
	}
	return wsaaURL, wsfeURL
}

// NewFromConfig carga el certificado y arma WSAA + SessionManager + Client compartiendo transporte.
// Un certificado ilegible es *SigningError.
func NewFromConfig(cfg config.AFIPConfig, observer Observer, log zerolog.Logger) (*Client, *SessionManager, error) {
	cuit, err := catalog.ParseCUIT(cfg.CUIT)
	if err != nil {
		return nil, nil, err
	}
	cert, err := signer.LoadCertificate(cfg.CertPath, cfg.KeyPath, cfg.CertPassword)
	if err != nil {
		return nil, nil, &SigningError{Op: "certificado", Err: err}
	}
	if observer == nil {
		observer = NopObserver{}
	}

	wsaaURL, wsfeURL := Endpoints(cfg)
	transport := NewHTTPTransport(cfg.CallTimeout)

	wsaa := NewWSAAClient(WSAAConfig{
		Endpoint: wsaaURL,
		Service:  cfg.Service,
		TTL:      cfg.TicketTTL,
		Timeout:  cfg.AuthTimeout,
	}, cert, signer.NewCMSSigner(), transport, observer, log)

	sessions := NewSessionManager(wsaa, SessionConfig{
		Timeout:  cfg.AuthTimeout,
		Observer: observer,
		Logger:   log,
	})

	client := NewClient(ClientConfig{
		CUIT:     cuit,
		Endpoint: wsfeURL,
		Timeout:  cfg.CallTimeout,
	}, sessions, transport, observer, log)

	log.Info().
		Str("environment", cfg.Environment).
		Str("wsaa", wsaaURL).
		Str("wsfe", wsfeURL).
		Msg("afip: cliente inicializado")
	return client, sessions, nil
}
