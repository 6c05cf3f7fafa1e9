package afip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxResponseSize límite de lectura de la respuesta SOAP.
const maxResponseSize = 1 << 20

// Response respuesta HTTP cruda de un servicio SOAP.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport puerto de salida HTTP; los tests inyectan un servidor httptest o un fake.
type Transport interface {
	Post(ctx context.Context, operation, endpoint, soapAction string, payload []byte) (*Response, error)
}

// HTTPTransport implementa Transport con net/http.
type HTTPTransport struct {
	httpClient *http.Client
}

// NewHTTPTransport construye el transporte con un timeout de red por llamada.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{httpClient: &http.Client{Timeout: timeout}}
}

// NewHTTPTransportWithClient usa un *http.Client ya configurado (proxies, TLS propio).
func NewHTTPTransportWithClient(c *http.Client) *HTTPTransport {
	return &HTTPTransport{httpClient: c}
}

// Post envía payload como text/xml. Cualquier falla antes de recibir el cuerpo completo es *TransportError.
// Los códigos HTTP de error no fallan aquí: AFIP devuelve los SOAP Fault con status 500.
func (t *HTTPTransport) Post(ctx context.Context, operation, endpoint, soapAction string, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Operation: operation, Err: fmt.Errorf("crear request: %w", err)}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: operation, Timeout: isTimeout(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Operation: operation, Timeout: isTimeout(ctx, err), Err: fmt.Errorf("leer respuesta: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
