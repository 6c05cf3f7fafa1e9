package afip_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

// ── autenticador simulado ──

type fakeAuth struct {
	calls atomic.Int32
	delay time.Duration
	ttl   time.Duration
	now   func() time.Time
	err   error
}

func (f *fakeAuth) Authenticate(ctx context.Context) (*afip.Session, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &afip.AuthenticationError{Detail: "loginCms sin respuesta",
				Err: &afip.TransportError{Operation: "loginCms", Timeout: true, Err: ctx.Err()}}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &afip.Session{Token: "T" + string(rune('0'+n)), Sign: "S", ExpiresAt: f.now().Add(f.ttl)}, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newManager(auth afip.Authenticator, clk *clock, timeout time.Duration) *afip.SessionManager {
	return afip.NewSessionManager(auth, afip.SessionConfig{Timeout: timeout, Now: clk.Now, Logger: zerolog.Nop()})
}

// ── tests ──

func TestSessionManager_ReutilizaSesionVigente(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	auth := &fakeAuth{ttl: time.Hour, now: clk.Now}
	m := newManager(auth, clk, time.Second)

	first, err := m.GetSession(context.Background())
	require.NoError(t, err)
	clk.Advance(59 * time.Minute)
	second, err := m.GetSession(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), auth.calls.Load())
}

func TestSessionManager_RenuevaAlVencer(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	auth := &fakeAuth{ttl: time.Hour, now: clk.Now}
	m := newManager(auth, clk, time.Second)

	first, err := m.GetSession(context.Background())
	require.NoError(t, err)

	clk.Advance(time.Hour) // now == expiresAt ya no es válido
	second, err := m.GetSession(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), auth.calls.Load())
	assert.Same(t, second, m.Current())
}

func TestSessionManager_UnaSolaRenovacionConcurrente(t *testing.T) {
	clk := &clock{t: time.Now()}
	auth := &fakeAuth{ttl: time.Hour, now: clk.Now, delay: 50 * time.Millisecond}
	m := newManager(auth, clk, time.Second)

	const callers = 20
	var wg sync.WaitGroup
	sessions := make([]*afip.Session, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = m.GetSession(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), auth.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestSessionManager_FallaNoGuardaSesion(t *testing.T) {
	clk := &clock{t: time.Now()}
	auth := &fakeAuth{ttl: time.Hour, now: clk.Now, err: &afip.AuthenticationError{Detail: "WSAA rechazó el TRA"}}
	m := newManager(auth, clk, time.Second)

	_, err := m.GetSession(context.Background())
	var authErr *afip.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Nil(t, m.Current())

	auth.err = nil
	s, err := m.GetSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, s, m.Current())
}

func TestSessionManager_TimeoutDeAutenticacion(t *testing.T) {
	clk := &clock{t: time.Now()}
	auth := &fakeAuth{ttl: time.Hour, now: clk.Now, delay: time.Second}
	m := newManager(auth, clk, 20*time.Millisecond)

	_, err := m.GetSession(context.Background())
	var authErr *afip.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	var transportErr *afip.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, transportErr.Timeout)
	assert.True(t, afip.IsRetryable(err))
	assert.Nil(t, m.Current())
}

func TestSessionManager_TicketVencidoEsError(t *testing.T) {
	clk := &clock{t: time.Now()}
	auth := &fakeAuth{ttl: -time.Minute, now: clk.Now}
	m := newManager(auth, clk, time.Second)

	_, err := m.GetSession(context.Background())
	var authErr *afip.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
	assert.Nil(t, m.Current())
}

func TestSessionManager_CancelacionDelLlamador(t *testing.T) {
	clk := &clock{t: time.Now()}
	auth := &fakeAuth{ttl: time.Hour, now: clk.Now, delay: 100 * time.Millisecond}
	m := newManager(auth, clk, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.GetSession(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// la renovación sigue para los demás llamadores
	require.Eventually(t, func() bool { return m.Current() != nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), auth.calls.Load())
}
