package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/wsfe-api/internal/application/billing"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

// ── autorizador por ID ──

type scriptedAuthorizer struct {
	mu     sync.Mutex
	byID   map[string]step
	order  []string
	at     []time.Time
	onCall func(id string)
}

func (s *scriptedAuthorizer) AuthorizeDocument(_ context.Context, id string) (*entity.AuthorizationResult, error) {
	s.mu.Lock()
	s.order = append(s.order, id)
	s.at = append(s.at, time.Now())
	hook := s.onCall
	st, ok := s.byID[id]
	s.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if !ok {
		return approved(1), nil
	}
	return st.result, st.err
}

func newBatch(a billing.DocumentAuthorizer, interval time.Duration) *billing.BatchOrchestrator {
	return billing.NewBatchOrchestrator(a, newFakeDocs(), interval, nil, zerolog.Nop())
}

func TestAuthorizeBatch_TodosAprobados(t *testing.T) {
	a := &scriptedAuthorizer{}
	report := newBatch(a, 0).AuthorizeBatch(t.Context(), []string{"d1", "d2", "d3"})

	assert.Equal(t, []string{"d1", "d2", "d3"}, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"d1", "d2", "d3"}, a.order)
}

func TestAuthorizeBatch_FallaNoDetieneElLote(t *testing.T) {
	a := &scriptedAuthorizer{byID: map[string]step{
		"d2": {err: &afip.TransportError{Operation: afip.OpSolicitar, Timeout: true, Err: context.DeadlineExceeded}},
		"d3": {result: rejected()},
	}}
	report := newBatch(a, 0).AuthorizeBatch(t.Context(), []string{"d1", "d2", "d3", "d4"})

	assert.Equal(t, []string{"d1", "d4"}, report.Succeeded)
	require.Len(t, report.Failed, 2)

	assert.Equal(t, "d2", report.Failed[0].ID)
	var te *afip.TransportError
	assert.ErrorAs(t, report.Failed[0].Err, &te)

	assert.Equal(t, "d3", report.Failed[1].ID)
	assert.ErrorIs(t, report.Failed[1].Err, billing.ErrRejected)
	var re *billing.RejectedError
	require.ErrorAs(t, report.Failed[1].Err, &re)
	assert.Contains(t, re.Error(), "10016")
}

func TestAuthorizeBatch_CadaIDUnaVez(t *testing.T) {
	a := &scriptedAuthorizer{byID: map[string]step{"d2": {err: errors.New("x")}}}
	ids := []string{"d1", "d2", "d3", "d4", "d5"}
	report := newBatch(a, 0).AuthorizeBatch(t.Context(), ids)

	seen := map[string]int{}
	for _, id := range report.Succeeded {
		seen[id]++
	}
	for _, f := range report.Failed {
		seen[f.ID]++
	}
	assert.Len(t, seen, len(ids))
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], id)
	}
}

func TestAuthorizeBatch_Espaciado(t *testing.T) {
	const interval = 40 * time.Millisecond
	a := &scriptedAuthorizer{}
	newBatch(a, interval).AuthorizeBatch(t.Context(), []string{"d1", "d2", "d3"})

	require.Len(t, a.at, 3)
	for i := 1; i < len(a.at); i++ {
		gap := a.at[i].Sub(a.at[i-1])
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond, "llamada %d", i)
	}
}

func TestAuthorizeBatch_CancelacionMarcaRestantes(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	a := &scriptedAuthorizer{}
	a.onCall = func(id string) {
		if id == "d2" {
			cancel()
		}
	}

	report := newBatch(a, 0).AuthorizeBatch(ctx, []string{"d1", "d2", "d3", "d4"})

	assert.Equal(t, []string{"d1", "d2"}, report.Succeeded)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "d3", report.Failed[0].ID)
	assert.Equal(t, "d4", report.Failed[1].ID)
	for _, f := range report.Failed {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
	assert.Equal(t, []string{"d1", "d2"}, a.order)
}

func TestAuthorizeBatch_Vacio(t *testing.T) {
	report := newBatch(&scriptedAuthorizer{}, time.Second).AuthorizeBatch(t.Context(), nil)
	assert.Empty(t, report.Succeeded)
	assert.Empty(t, report.Failed)
}

func TestAuthorizeBatch_Metricas(t *testing.T) {
	m := &fakeMetrics{}
	o := billing.NewBatchOrchestrator(&scriptedAuthorizer{}, newFakeDocs(), 0, m, zerolog.Nop())
	o.AuthorizeBatch(t.Context(), []string{"d1"})
	assert.Equal(t, 1, m.batches)
}

func TestAuthorizePending(t *testing.T) {
	docs := newFakeDocs(pendingDoc("p1"), pendingDoc("p2"), pendingDoc("p3"))
	a := &scriptedAuthorizer{}
	o := billing.NewBatchOrchestrator(a, docs, 0, nil, zerolog.Nop())

	report, err := o.AuthorizePending(t.Context(), 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, report.Succeeded)
}

func TestBatchReport_JSON(t *testing.T) {
	report := &billing.BatchReport{
		Succeeded: []string{"d1"},
		Failed:    []billing.BatchFailure{{ID: "d2", Err: errors.New(`falla "rara"`)}},
	}
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{"succeeded":["d1"],"failed":[{"id":"d2","error":"falla \"rara\""}]}`, string(raw))
}

func TestPacer_SinIntervaloNoEspera(t *testing.T) {
	p := billing.NewPacer(0)
	start := time.Now()
	for range 100 {
		require.NoError(t, p.Wait(t.Context()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
