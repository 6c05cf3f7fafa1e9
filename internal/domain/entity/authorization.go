package entity

import "time"

// Outcome resultado de negocio informado por AFIP para un comprobante.
type Outcome string

const (
	OutcomeApproved Outcome = "A"
	OutcomeRejected Outcome = "R"
	OutcomePartial  Outcome = "P"
)

// Message código y texto tal como los devuelve AFIP (observaciones, errores, eventos).
type Message struct {
	Code int    `json:"code"`
	Text string `json:"message"`
}

// AuthorizationResult resultado inmutable de una solicitud de CAE.
// Con OutcomeRejected, AuthorizationCode está vacío y Errors/Observations traen el motivo.
type AuthorizationResult struct {
	Outcome             Outcome    `json:"outcome"`
	AuthorizationCode   string     `json:"cae,omitempty"`
	AuthorizationExpiry *time.Time `json:"cae_expiry,omitempty"`
	DocumentDate        time.Time  `json:"document_date"`
	DocumentType        int        `json:"document_type"`
	PointOfSale         int        `json:"point_of_sale"`
	Number              int64      `json:"number"`
	ProcessedAt         string     `json:"processed_at,omitempty"` // FchProceso (yyyymmddhhmiss)
	Observations        []Message  `json:"observations"`
	Errors              []Message  `json:"errors"`
	Events              []Message  `json:"events,omitempty"`
}

// Approved indica si AFIP otorgó CAE (A o P).
func (r *AuthorizationResult) Approved() bool {
	return r != nil && (r.Outcome == OutcomeApproved || r.Outcome == OutcomePartial) && r.AuthorizationCode != ""
}

// AuthorizationAttempt registro de auditoría de cada intento de autorización.
// Los reintentos crean un intento nuevo; nunca se sobrescribe uno anterior.
type AuthorizationAttempt struct {
	ID         string               `json:"id"`
	DocumentID string               `json:"document_id"`
	Attempt    int                  `json:"attempt"`
	Status     string               `json:"status"` // approved, rejected, error
	Result     *AuthorizationResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}
