package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/domain/repository"
)

var _ repository.AuthorizationRepository = (*AuthorizationRepo)(nil)

// AuthorizationRepo persiste intentos de autorización y el estado resultante del comprobante.
type AuthorizationRepo struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewAuthorizationRepository construye el adaptador sobre el pool.
func NewAuthorizationRepository(pool *pgxpool.Pool) *AuthorizationRepo {
	return &AuthorizationRepo{pool: pool, tx: NewTxRunner(pool)}
}

// RecordAttempt inserta el intento y actualiza el comprobante en una transacción.
// Un comprobante ya approved conserva su CAE aunque llegue un intento posterior.
func (r *AuthorizationRepo) RecordAttempt(ctx context.Context, attempt *entity.AuthorizationAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	var result []byte
	if attempt.Result != nil {
		var err error
		if result, err = json.Marshal(attempt.Result); err != nil {
			return fmt.Errorf("encode authorization result: %w", err)
		}
	}
	upd := documentUpdateFor(attempt)

	return r.tx.Run(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO authorization_attempts (id, document_id, attempt, status, result, error, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			attempt.ID, attempt.DocumentID, attempt.Attempt, attempt.Status,
			result, nullIfEmpty(attempt.Error), attempt.StartedAt, attempt.FinishedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("intento %d de %s ya registrado: %w", attempt.Attempt, attempt.DocumentID, err)
			}
			return fmt.Errorf("insert authorization attempt: %w", err)
		}

		_, err = q.Exec(ctx, `
			UPDATE fiscal_documents
			SET status              = $2,
			    number              = COALESCE($3, number),
			    cae                 = COALESCE($4, cae),
			    cae_expiry          = COALESCE($5, cae_expiry),
			    authorization_error = $6,
			    updated_at          = $7
			WHERE id = $1 AND status <> 'approved'`,
			attempt.DocumentID, upd.status, upd.number, upd.cae, upd.caeExpiry, upd.errText, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("update fiscal document status: %w", err)
		}
		return nil
	})
}

// ListAttempts intentos de un comprobante en orden de registro.
func (r *AuthorizationRepo) ListAttempts(ctx context.Context, documentID string) ([]*entity.AuthorizationAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, attempt, status, result, error, started_at, finished_at
		FROM authorization_attempts
		WHERE document_id = $1
		ORDER BY attempt`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list authorization attempts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.AuthorizationAttempt, error) {
		var a entity.AuthorizationAttempt
		var result []byte
		var errText *string
		if err := row.Scan(&a.ID, &a.DocumentID, &a.Attempt, &a.Status, &result, &errText, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan authorization attempt: %w", err)
		}
		a.Error = derefStr(errText)
		if len(result) > 0 {
			a.Result = &entity.AuthorizationResult{}
			if err := json.Unmarshal(result, a.Result); err != nil {
				return nil, fmt.Errorf("decode authorization result: %w", err)
			}
		}
		return &a, nil
	})
}

// documentUpdate columnas del comprobante que cambian con un intento; nil = sin cambio.
type documentUpdate struct {
	status    string
	number    *int64
	cae       *string
	caeExpiry *time.Time
	errText   *string
}

func documentUpdateFor(a *entity.AuthorizationAttempt) documentUpdate {
	upd := documentUpdate{status: a.Status}
	switch a.Status {
	case entity.AuthStatusApproved:
		if a.Result != nil {
			upd.number = &a.Result.Number
			upd.cae = nullIfEmpty(a.Result.AuthorizationCode)
			upd.caeExpiry = a.Result.AuthorizationExpiry
		}
	case entity.AuthStatusRejected:
		if a.Result != nil {
			upd.errText = nullIfEmpty(rejectionText(a.Result))
		}
	default:
		upd.errText = nullIfEmpty(a.Error)
	}
	return upd
}

// rejectionText conserva códigos y textos de AFIP tal cual.
func rejectionText(r *entity.AuthorizationResult) string {
	parts := make([]string, 0, len(r.Errors)+len(r.Observations))
	for _, m := range r.Errors {
		parts = append(parts, fmt.Sprintf("[%d] %s", m.Code, m.Text))
	}
	for _, m := range r.Observations {
		parts = append(parts, fmt.Sprintf("[%d] %s", m.Code, m.Text))
	}
	return strings.Join(parts, "; ")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
