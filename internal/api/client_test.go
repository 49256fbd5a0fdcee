package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/shopfloor/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeoutSec int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(model.ServerConfig{BaseURL: srv.URL + "/", TimeoutSec: timeoutSec}, nil)
}

func TestActiveStatus_SendsFiltersAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apontamento/status-ativos", r.URL.Path)
		assert.Equal(t, "Torno CNC", r.URL.Query().Get("lista"))
		assert.Empty(t, r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status_ativos":[{"ordem_servico_id":100,"status_atual":"Produção em andamento",
			"ultima_quantidade":"12","ativos_por_trabalho":[{"trabalho_id":7,"trabalho_nome":"Corte",
			"status":"Produção em andamento","inicio_acao":"2026-03-01T08:00:00"}]}]}`))
	}, 5)

	resp, err := c.ActiveStatus(context.Background(), Filter{List: "Torno CNC"})
	require.NoError(t, err)
	require.Len(t, resp.Active, 1)
	o := resp.Active[0]
	assert.Equal(t, 100, o.OrderID)
	assert.Equal(t, model.StatusProductionInProgress, o.EffectiveStatus())
	assert.Equal(t, model.Qty(12), o.LastQuantity)
	assert.Equal(t, "Corte", o.Tasks[0].TaskName)
}

func TestEndpoints_Paths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/apontamento/os/5/logs":
			w.Write([]byte(`{"logs":[{"tipo_acao":"inicio_setup","quantidade":null}]}`))
		case "/apontamento/detalhes/5":
			w.Write([]byte(`{"trabalhos":[{"trabalho_id":7,"trabalho_nome":"Corte","ultima_quantidade":4}]}`))
		case "/apontamento/api/check-pending":
			w.Write([]byte(`{"success":true,"pending":[{"os":"OS-5","status":"Pausado","tempo":"2h"}]}`))
		default:
			http.NotFound(w, r)
		}
	}, 5)
	ctx := context.Background()

	logs, err := c.Logs(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "inicio_setup", logs.Logs[0].Action)
	assert.False(t, logs.Logs[0].Quantity.Valid)

	details, err := c.Details(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.Qty(4), details.Tasks[0].LastQuantity)

	pending, err := c.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, pending.Success)
	assert.Equal(t, model.Text("OS-5"), pending.Pending[0].OS)

	assert.Equal(t, []string{"/apontamento/os/5/logs", "/apontamento/detalhes/5", "/apontamento/api/check-pending"}, paths)
}

func TestGet_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, 5)

	_, err := c.ActiveStatus(context.Background(), Filter{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Body)
}

func TestGet_SoftTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 1)
	defer close(release)

	start := time.Now()
	_, err := c.ActiveStatus(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 3*time.Second)
}
