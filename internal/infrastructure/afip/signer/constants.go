// Constantes del ticket de requerimiento de acceso (TRA) de WSAA.

package signer

import "time"

// Servicios de negocio para los que se solicita ticket.
const (
	ServiceWSFE = "wsfe"
)

// Versión del esquema loginTicketRequest.
const TicketRequestVersion = "1.0"

// TimestampLayout formato ISO-8601 con offset que exige WSAA.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// DefaultTicketTTL ventana de validez solicitada (WSAA acepta hasta 24 h).
const DefaultTicketTTL = 12 * time.Hour

// ClockSkew margen hacia atrás de generationTime para tolerar relojes desfasados.
const ClockSkew = 10 * time.Minute
