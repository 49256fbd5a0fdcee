package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestQuantity_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want Quantity
	}{
		{`12`, Qty(12)},
		{`"12"`, Qty(12)},
		{`12.9`, Qty(12)},
		{`null`, Quantity{}},
		{`"abc"`, Quantity{}},
		{`""`, Quantity{}},
		{`true`, Quantity{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var q Quantity
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &q))
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestStatusResponse_Decode(t *testing.T) {
	body := `{"status_ativos":[{
		"ordem_servico_id": 100,
		"os_numero": 5521,
		"status_atual": "Produção em andamento",
		"operador_nome": "Ana", "operador_codigo": 77,
		"ultima_quantidade": "12",
		"inicio_acao": "2026-03-01T08:00:00",
		"ativos_por_trabalho": [
			{"item_id": 3, "trabalho_id": 7, "trabalho_nome": "Corte", "status": "Pausado",
			 "inicio_acao": "2026-03-01T09:30:00.123456", "motivo_pausa": "Almoço", "ultima_quantidade": 9}
		]
	}, {"ordem_servico_id": 101, "status_atual": "Aguardando"}]}`

	var resp StatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Len(t, resp.Active, 2)

	o := resp.Active[0]
	assert.Equal(t, "5521", o.Label())
	assert.Equal(t, Text("77"), o.OperatorCode)
	assert.Equal(t, Qty(12), o.LastQuantity)
	require.Len(t, o.Tasks, 1)
	assert.Equal(t, 7, *o.Tasks[0].TaskID)
	assert.Equal(t, "Almoço", o.Tasks[0].PauseReason)

	start, ok := o.Tasks[0].StartTime()
	require.True(t, ok)
	assert.Equal(t, 30, start.Minute())

	assert.False(t, o.TasksAbsent)
	assert.Nil(t, resp.Active[1].Tasks, "absent ativos_por_trabalho stays nil")
	assert.True(t, resp.Active[1].TasksAbsent)
	assert.Equal(t, "OS-101", resp.Active[1].Label())
	assert.False(t, resp.Active[1].LastQuantity.Valid)
}

func TestOrderStatus_TaskListPresence(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		absent bool
	}{
		{"missing", `{"ordem_servico_id": 1}`, true},
		{"null", `{"ordem_servico_id": 1, "ativos_por_trabalho": null}`, true},
		{"empty", `{"ordem_servico_id": 1, "ativos_por_trabalho": []}`, false},
		{"listed", `{"ordem_servico_id": 1, "ativos_por_trabalho": [{"trabalho_nome": "Corte"}]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o OrderStatus
			require.NoError(t, json.Unmarshal([]byte(tt.body), &o))
			assert.Equal(t, 1, o.OrderID)
			assert.Equal(t, tt.absent, o.TasksAbsent)
		})
	}

	var reused OrderStatus
	require.NoError(t, json.Unmarshal([]byte(`{"ordem_servico_id": 2}`), &reused))
	require.NoError(t, json.Unmarshal([]byte(`{"ordem_servico_id": 2, "ativos_por_trabalho": []}`), &reused))
	assert.False(t, reused.TasksAbsent, "decoding into a reused value resets the flag")
}

func TestEffectiveStatus(t *testing.T) {
	o := OrderStatus{Status: "Aguardando"}
	assert.Equal(t, StatusAwaiting, o.EffectiveStatus())

	o.Tasks = []ActiveTask{{Status: "Pausado"}, {Status: "Setup em andamento"}}
	assert.Equal(t, StatusSetupInProgress, o.EffectiveStatus())

	o.Tasks = append(o.Tasks, ActiveTask{Status: "Produção em andamento"})
	assert.Equal(t, StatusProductionInProgress, o.EffectiveStatus())

	o.Status = "Pausado"
	assert.Equal(t, StatusPaused, o.EffectiveStatus(), "server status wins when not awaiting")
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := ParseTimestamp("2026-03-01T08:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())

	_, ok = ParseTimestamp("2026-03-01 08:00:00")
	assert.True(t, ok)

	_, ok = ParseTimestamp("yesterday")
	assert.False(t, ok)
}

func TestConfig_WithDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("poller:\n  interval_sec: 5\nlogging:\n  level: debug\n"), &cfg))
	cfg = cfg.WithDefaults()

	assert.Equal(t, 5*time.Second, cfg.Poller.Interval())
	assert.Equal(t, 3*time.Second, cfg.Poller.RetryDelay())
	assert.Equal(t, 1200*time.Millisecond, cfg.Poller.TouchCooldown())
	assert.Equal(t, 10*time.Second, cfg.Server.Timeout())
	assert.Equal(t, 20*time.Second, cfg.Render.LockWindow())
	assert.Equal(t, "debug", cfg.Logging.Level)
}
