package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/wsfe-api/internal/domain"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/domain/repository"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

// RetryPolicy reintentos del llamador ante fallas técnicas (transporte, protocolo, autenticación).
// Los rechazos de AFIP y los errores de firma o mapeo nunca se reintentan.
type RetryPolicy struct {
	MaxAttempts int           // total de intentos, incluido el primero
	Backoff     time.Duration // espera lineal: Backoff × número de intento
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// AuthorizationService caso de uso: cargar el comprobante, pedir CAE y persistir el intento.
// Las llamadas concurrentes sobre el mismo comprobante comparten una única ejecución
// dentro del proceso.
type AuthorizationService struct {
	inflight  singleflight.Group
	documents repository.FiscalDocumentRepository
	attempts  repository.AuthorizationRepository
	authority Authorizer
	policy    RetryPolicy
	metrics   Metrics
	log       zerolog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewAuthorizationService construye el caso de uso. metrics puede ser nil.
func NewAuthorizationService(
	documents repository.FiscalDocumentRepository,
	attempts repository.AuthorizationRepository,
	authority Authorizer,
	policy RetryPolicy,
	metrics Metrics,
	log zerolog.Logger,
) *AuthorizationService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AuthorizationService{
		documents: documents,
		attempts:  attempts,
		authority: authority,
		policy:    policy,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// AuthorizeDocument autoriza el comprobante id. Un rechazo de AFIP se devuelve como resultado
// con error nil; el error describe la última falla técnica cuando se agotan los intentos.
// Si ya hay una autorización en curso para id, espera y devuelve ese mismo resultado.
func (s *AuthorizationService) AuthorizeDocument(ctx context.Context, id string) (*entity.AuthorizationResult, error) {
	v, err, _ := s.inflight.Do(id, func() (any, error) {
		return s.authorizeDocument(ctx, id)
	})
	result, _ := v.(*entity.AuthorizationResult)
	return result, err
}

func (s *AuthorizationService) authorizeDocument(ctx context.Context, id string) (*entity.AuthorizationResult, error) {
	log := s.log.With().Str("document_id", id).Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 0. Cargar comprobante y verificar estado
	// ═══════════════════════════════════════════════════════════════════════════
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("billing: cargar comprobante %s: %w", id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("billing: comprobante %s: %w", id, domain.ErrNotFound)
	}
	if doc.IsAuthorized() {
		return nil, fmt.Errorf("billing: comprobante %s (CAE %s): %w", id, doc.CAE, domain.ErrAlreadyAuthorized)
	}

	previous, err := s.attempts.ListAttempts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("billing: historial de intentos %s: %w", id, err)
	}
	seq := len(previous)

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Solicitar CAE con reintentos acotados
	// ═══════════════════════════════════════════════════════════════════════════
	var lastErr error
	for try := 1; try <= s.policy.attempts(); try++ {
		if try > 1 {
			if err := s.sleep(ctx, s.policy.Backoff*time.Duration(try-1)); err != nil {
				return nil, err
			}
		}

		seq++
		started := s.now()
		result, err := s.authorizeOnce(ctx, doc, lastErr)
		attempt := &entity.AuthorizationAttempt{
			ID:         uuid.NewString(),
			DocumentID: id,
			Attempt:    seq,
			Result:     result,
			StartedAt:  started,
			FinishedAt: s.now(),
		}

		switch {
		case err != nil:
			attempt.Status = entity.AuthStatusError
			attempt.Error = err.Error()
		case result.Approved():
			attempt.Status = entity.AuthStatusApproved
		default:
			attempt.Status = entity.AuthStatusRejected
		}

		// ═══════════════════════════════════════════════════════════════════════
		// 2. Persistir el intento (auditoría + estado del comprobante)
		// ═══════════════════════════════════════════════════════════════════════
		if recErr := s.attempts.RecordAttempt(ctx, attempt); recErr != nil {
			log.Error().Err(recErr).Int("attempt", seq).Msg("billing: no se pudo persistir el intento")
			if err == nil {
				return result, fmt.Errorf("billing: persistir resultado de %s: %w", id, recErr)
			}
		}
		s.metrics.ObserveAttempt(attempt.Status)

		if err == nil {
			ev := log.Info()
			if !result.Approved() {
				ev = log.Warn().Interface("errors", result.Errors).Interface("observations", result.Observations)
			}
			ev.Int("pto_vta", result.PointOfSale).
				Int("cbte_tipo", result.DocumentType).
				Int64("cbte_nro", result.Number).
				Str("outcome", string(result.Outcome)).
				Msg("billing: comprobante procesado")
			return result, nil
		}

		lastErr = err
		if !afip.IsRetryable(err) {
			log.Error().Err(err).Int("attempt", seq).Msg("billing: falla no reintentable")
			return nil, err
		}
		log.Warn().Err(err).Int("attempt", seq).Int("max", s.policy.attempts()).Msg("billing: falla técnica, se reintenta")
	}
	return nil, fmt.Errorf("billing: intentos agotados para %s: %w", id, lastErr)
}

// authorizeOnce envía el comprobante. Si el intento anterior perdió la respuesta de
// FECAESolicitar, primero consulta ese mismo número para no duplicar numeración.
func (s *AuthorizationService) authorizeOnce(ctx context.Context, doc *entity.FiscalDocument, prev error) (*entity.AuthorizationResult, error) {
	if number, lost := afip.SubmittedNumber(prev); lost {
		found, err := s.authority.FindAuthorized(ctx, doc, number)
		if err != nil {
			return nil, err
		}
		if found != nil {
			s.log.Info().Str("document_id", doc.ID).Int64("cbte_nro", found.Number).
				Msg("billing: CAE recuperado por consulta, no se reenvía")
			return found, nil
		}
	}
	return s.authority.Authorize(ctx, doc)
}

// History devuelve los intentos registrados para el comprobante.
func (s *AuthorizationService) History(ctx context.Context, id string) ([]*entity.AuthorizationAttempt, error) {
	if _, err := s.documents.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.attempts.ListAttempts(ctx, id)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
