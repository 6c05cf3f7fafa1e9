package billing

import (
	"context"
	"time"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
)

// Authorizer puerto de salida hacia AFIP; lo implementa *afip.Client.
type Authorizer interface {
	// Authorize solicita CAE. Un rechazo se devuelve como resultado, no como error.
	Authorize(ctx context.Context, doc *entity.FiscalDocument) (*entity.AuthorizationResult, error)
	// FindAuthorized devuelve el resultado si AFIP autorizó doc con el número enviado
	// en un intento anterior, o nil.
	FindAuthorized(ctx context.Context, doc *entity.FiscalDocument, number int64) (*entity.AuthorizationResult, error)
}

// Metrics registra resultados de la capa de aplicación. nil en los constructores = sin métricas.
type Metrics interface {
	ObserveAttempt(status string)
	ObserveBatch(succeeded, failed int, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAttempt(string)                {}
func (nopMetrics) ObserveBatch(int, int, time.Duration) {}
