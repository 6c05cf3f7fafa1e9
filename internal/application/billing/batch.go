package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/domain/repository"
)

// DocumentAuthorizer autoriza un comprobante persistido; lo implementa *AuthorizationService.
type DocumentAuthorizer interface {
	AuthorizeDocument(ctx context.Context, id string) (*entity.AuthorizationResult, error)
}

// RejectedError AFIP rechazó el comprobante; Result trae los códigos y mensajes.
type RejectedError struct {
	Result *entity.AuthorizationResult
}

func (e *RejectedError) Error() string {
	if e.Result == nil {
		return "comprobante rechazado por AFIP"
	}
	msgs := append(append([]entity.Message{}, e.Result.Errors...), e.Result.Observations...)
	if len(msgs) == 0 {
		return "comprobante rechazado por AFIP"
	}
	return fmt.Sprintf("comprobante rechazado por AFIP: [%d] %s", msgs[0].Code, msgs[0].Text)
}

// ErrRejected permite errors.Is sobre *RejectedError.
var ErrRejected = errors.New("comprobante rechazado")

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// BatchFailure un comprobante que no obtuvo CAE y el motivo.
type BatchFailure struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// MarshalJSON expone el error como texto.
func (f BatchFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}{f.ID, msg})
}

// BatchReport resultado del lote. Cada ID de entrada aparece exactamente una vez.
type BatchReport struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// Pacer espaciado fijo entre llamadas a AFIP. La primera pasa sin espera.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer interval <= 0 desactiva el espaciado.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait bloquea hasta el próximo turno o hasta que ctx se cancele.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// BatchOrchestrator autoriza comprobantes de a uno, con espaciado entre llamadas.
// Nunca envía en paralelo: dos llamadas concurrentes verían el mismo último número.
type BatchOrchestrator struct {
	authorizer DocumentAuthorizer
	documents  repository.FiscalDocumentRepository
	pacer      *Pacer
	metrics    Metrics
	log        zerolog.Logger
}

// NewBatchOrchestrator construye el orquestador. metrics puede ser nil.
func NewBatchOrchestrator(
	authorizer DocumentAuthorizer,
	documents repository.FiscalDocumentRepository,
	interval time.Duration,
	metrics Metrics,
	log zerolog.Logger,
) *BatchOrchestrator {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &BatchOrchestrator{
		authorizer: authorizer,
		documents:  documents,
		pacer:      NewPacer(interval),
		metrics:    metrics,
		log:        log,
	}
}

// AuthorizeBatch procesa ids en orden. Una falla no detiene el lote; si ctx se cancela,
// los comprobantes restantes quedan en Failed con ctx.Err().
func (o *BatchOrchestrator) AuthorizeBatch(ctx context.Context, ids []string) *BatchReport {
	start := time.Now()
	report := &BatchReport{Succeeded: []string{}, Failed: []BatchFailure{}}

	for i, id := range ids {
		if err := o.pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			for _, rest := range ids[i:] {
				report.Failed = append(report.Failed, BatchFailure{ID: rest, Err: err})
			}
			o.log.Warn().Err(err).Int("pending", len(ids)-i).Msg("billing: lote interrumpido")
			break
		}

		result, err := o.authorizer.AuthorizeDocument(ctx, id)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, BatchFailure{ID: id, Err: err})
		case !result.Approved():
			report.Failed = append(report.Failed, BatchFailure{ID: id, Err: &RejectedError{Result: result}})
		default:
			report.Succeeded = append(report.Succeeded, id)
		}
	}

	elapsed := time.Since(start)
	o.metrics.ObserveBatch(len(report.Succeeded), len(report.Failed), elapsed)
	o.log.Info().
		Int("total", len(ids)).
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", elapsed).
		Msg("billing: lote finalizado")
	return report
}

// AuthorizePending toma hasta limit comprobantes pending o error del punto de venta y los autoriza.
func (o *BatchOrchestrator) AuthorizePending(ctx context.Context, pointOfSale, limit int) (*BatchReport, error) {
	ids, err := o.documents.ListPending(ctx, pointOfSale, limit)
	if err != nil {
		return nil, fmt.Errorf("billing: listar pendientes: %w", err)
	}
	return o.AuthorizeBatch(ctx, ids), nil
}
