package afip

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "ticket"

// SessionConfig parámetros del administrador de sesión.
type SessionConfig struct {
	// Timeout acota la renovación completa (firma + loginCms).
	Timeout  time.Duration
	Now      func() time.Time
	Observer Observer
	Logger   zerolog.Logger
}

// SessionManager mantiene en memoria el ticket vigente y coordina su renovación.
// Llamadas concurrentes con el ticket vencido provocan una sola invocación a WSAA;
// el resto espera ese resultado. El ticket se reemplaza completo y solo si la renovación tuvo éxito.
type SessionManager struct {
	auth     Authenticator
	timeout  time.Duration
	now      func() time.Time
	observer Observer
	log      zerolog.Logger

	current atomic.Pointer[Session]
	group   singleflight.Group
}

// NewSessionManager crea el administrador sin sesión cargada.
func NewSessionManager(auth Authenticator, cfg SessionConfig) *SessionManager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	return &SessionManager{
		auth:     auth,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		observer: cfg.Observer,
		log:      cfg.Logger,
	}
}

// GetSession devuelve el ticket vigente o lo renueva. Si ctx se cancela mientras espera,
// la renovación en curso continúa para los demás llamadores.
func (m *SessionManager) GetSession(ctx context.Context) (*Session, error) {
	if s := m.current.Load(); s.ValidAt(m.now()) {
		return s, nil
	}

	ch := m.group.DoChan(refreshKey, func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Session), nil
	}
}

// Current devuelve el ticket en memoria sin renovarlo (puede ser nil o estar vencido).
func (m *SessionManager) Current() *Session {
	return m.current.Load()
}

func (m *SessionManager) refresh(ctx context.Context) (*Session, error) {
	// Otro llamador pudo haber renovado entre la lectura y la entrada al grupo.
	if s := m.current.Load(); s.ValidAt(m.now()) {
		return s, nil
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	s, err := m.auth.Authenticate(ctx)
	if err == nil && !s.ValidAt(m.now()) {
		err = &AuthenticationError{Detail: "WSAA devolvió un ticket ya vencido"}
	}
	m.observer.ObserveSessionRefresh(err)
	if err != nil {
		m.log.Error().Err(err).Msg("afip: no se pudo renovar el ticket de acceso")
		return nil, err
	}

	m.current.Store(s)
	m.log.Info().Time("expires_at", s.ExpiresAt).Msg("afip: ticket de acceso renovado")
	return s, nil
}
