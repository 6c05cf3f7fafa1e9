package repository

import (
	"context"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
)

// AuthorizationRepository puerto de salida del resultado de autorización
// (actualiza el comprobante y deja el intento en la auditoría).
type AuthorizationRepository interface {
	// RecordAttempt inserta el intento y actualiza el estado del comprobante en una
	// misma transacción. Un comprobante approved no se modifica.
	RecordAttempt(ctx context.Context, attempt *entity.AuthorizationAttempt) error
	// ListAttempts devuelve los intentos de un comprobante, del más antiguo al más reciente.
	ListAttempts(ctx context.Context, documentID string) ([]*entity.AuthorizationAttempt, error)
}
