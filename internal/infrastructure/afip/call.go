package afip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Observer recibe eventos del cliente para métricas. Las implementaciones deben ser seguras
// para uso concurrente.
type Observer interface {
	ObserveCall(operation string, elapsed time.Duration, err error)
	ObserveSessionRefresh(err error)
	ObserveOutcome(outcome string)
}

// NopObserver descarta todos los eventos.
type NopObserver struct{}

func (NopObserver) ObserveCall(string, time.Duration, error) {}
func (NopObserver) ObserveSessionRefresh(error)              {}
func (NopObserver) ObserveOutcome(string)                    {}

// caller agrupa transporte, observer y logger comunes a WSAA y WSFEv1.
type caller struct {
	transport Transport
	observer  Observer
	log       zerolog.Logger
	timeout   time.Duration
}

// invoke serializa body, lo envía a endpoint y decodifica el primer elemento del Body como T.
// timeout acota toda la llamada, incluida la lectura de la respuesta.
func invoke[T any](ctx context.Context, c *caller, operation, endpoint, soapAction string, body any) (*T, error) {
	start := time.Now()
	out, err := doInvoke[T](ctx, c, operation, endpoint, soapAction, body)
	elapsed := time.Since(start)
	c.observer.ObserveCall(operation, elapsed, err)

	ev := c.log.Debug()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("operation", operation).Dur("elapsed", elapsed).Msg("afip: llamada SOAP")
	return out, err
}

func doInvoke[T any](ctx context.Context, c *caller, operation, endpoint, soapAction string, body any) (*T, error) {
	payload, err := EncodeEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("afip: %s: %w", operation, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.transport.Post(ctx, operation, endpoint, soapAction, payload)
	if err != nil {
		return nil, err
	}

	out, err := DecodeEnvelope[T](resp.Body, operation)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) && resp.StatusCode >= 300 {
			pe.Detail = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, pe.Detail)
		}
		return nil, err
	}
	return out, nil
}
