package dashboard

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/storage"
)

func intp(v int) *int { return &v }

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

func newFormatter(t *testing.T, machines ...string) (*Formatter, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(dir, nil)
	require.NoError(t, err)
	cfg := model.DefaultConfig()
	cfg.Dashboard.Machines = machines
	f, err := NewFormatter(dir, store, cfg, nil)
	require.NoError(t, err)
	f.now = func() time.Time { return fixedNow }
	return f, store
}

func sampleResponse() *model.StatusResponse {
	return &model.StatusResponse{Active: []model.OrderStatus{
		{
			OrderID: 1, OSNumber: "OS-1", Status: "Aguardando", Machine: "torno cnc",
			LastQuantity: model.Qty(3),
		},
		{
			OrderID: 2, OSNumber: "OS-2", Status: "Produção em andamento", Machine: "Torno CNC",
			StartedAt: "2026-03-02T09:00:00", OperatorName: "Ana", ItemCode: "P-10", ItemName: "Eixo",
			TotalQuantity: model.Qty(40), MachineType: "CNC",
			Tasks: []model.ActiveTask{
				{TaskID: intp(7), TaskName: "Corte", Status: "Produção em andamento", StartedAt: "2026-03-02T09:30:00", LastQuantity: model.Qty(12)},
			},
		},
		{
			OrderID: 3, Status: "Setup em andamento", Machine: "Zeta",
			Tasks: []model.ActiveTask{{TaskName: "Dobra", Status: "Pausado"}},
		},
		{OrderID: 4, Status: "Pausado", Machine: "Alfa"},
		{OrderID: 5, Status: "Produção em andamento"},
	}}
}

func principalOf(t *testing.T, data *Data, orderID int) *Card {
	t.Helper()
	for _, m := range data.Machines {
		if m.Principal != nil && m.Principal.OrderID == orderID {
			return m.Principal
		}
	}
	t.Fatalf("order %d is not a principal card", orderID)
	return nil
}

func TestSummarize(t *testing.T) {
	got := Summarize(sampleResponse())
	want := Summary{Total: 5, Setup: 1, Paused: 2, Production: 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestBuild_GroupsAndOrdersMachines(t *testing.T) {
	f, _ := newFormatter(t, "Torno CNC", "Fresa")

	data, err := f.Build(sampleResponse())
	require.NoError(t, err)

	var names []string
	for _, m := range data.Machines {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Torno CNC", "Fresa", "Alfa", NoMachine, "Zeta"}, names)

	torno := data.Machines[0]
	require.NotNil(t, torno.Principal)
	assert.Equal(t, 2, torno.Principal.OrderID, "production outranks awaiting")
	assert.Equal(t, "CNC", torno.Type)
	require.Len(t, torno.Queue, 1)
	assert.Equal(t, "OS-1", torno.Queue[0].Label)
	assert.Equal(t, 3, torno.Queue[0].LastQty)

	assert.Nil(t, data.Machines[1].Principal, "known machine without cards is still listed")
}

func TestBuild_PrincipalCard(t *testing.T) {
	f, _ := newFormatter(t)

	data, err := f.Build(sampleResponse())
	require.NoError(t, err)

	card := principalOf(t, data, 2)
	assert.Equal(t, "P-10 Eixo", card.Item)
	assert.Equal(t, "01:00:00", card.Elapsed)
	assert.Equal(t, 12, card.LastQty)
	require.Len(t, card.Tasks, 1)
	assert.Equal(t, TaskRow{Key: "7", Name: "Corte", Status: "Produção em andamento", Qty: 12, Total: 40, Percent: 30, Elapsed: "00:30:00"}, card.Tasks[0])
}

func TestBuild_ShadowQuantityNeverRegresses(t *testing.T) {
	f, store := newFormatter(t)
	resp := sampleResponse()

	_, err := f.Build(resp)
	require.NoError(t, err)

	resp.Active[1].Tasks[0].LastQuantity = model.Qty(9)
	data, err := f.Build(resp)
	require.NoError(t, err)

	assert.Equal(t, 12, principalOf(t, data, 2).Tasks[0].Qty)

	var stored int
	found, err := store.Get(ShadowKey(2, "7"), &stored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 12, stored)

	resp.Active[1].Tasks[0].LastQuantity = model.Quantity{}
	data, err = f.Build(resp)
	require.NoError(t, err)
	assert.Equal(t, 12, principalOf(t, data, 2).Tasks[0].Qty, "absent quantity reads the shadow")
}

func TestPercent(t *testing.T) {
	tests := []struct {
		qty, total, want int
	}{
		{12, 40, 30},
		{50, 40, 100},
		{-3, 40, 0},
		{5, 0, 0},
		{1, 3, 33},
	}
	for _, tt := range tests {
		if got := percent(tt.qty, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.qty, tt.total, got, tt.want)
		}
	}
}

func TestWrite_RendersMarkdown(t *testing.T) {
	f, _ := newFormatter(t, "Torno CNC", "Fresa")

	require.NoError(t, f.Write(sampleResponse()))
	content, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	out := string(content)

	assert.Contains(t, out, "# Apontamentos Ativos")
	assert.Contains(t, out, "| 5 | 1 | 2 | 2 |")
	assert.Contains(t, out, "## Torno CNC (CNC)")
	assert.Contains(t, out, "**OS-2** · Produção em andamento · ⏱ 01:00:00 · Ana")
	assert.Contains(t, out, "| Corte | Produção em andamento | 12 / 40 | 30% | 00:30:00 |")
	assert.Contains(t, out, "**Na fila (1)**")
	assert.Contains(t, out, "- OS-1 · Qtde: 3 · Aguardando")
	assert.Contains(t, out, "## Fresa")
	assert.Contains(t, out, "_Sem cartão ativo._")
}

func TestWrite_EmptyResponse(t *testing.T) {
	f, _ := newFormatter(t)

	require.NoError(t, f.Write(&model.StatusResponse{}))
	content, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "_Nenhum cartão ativo._")
}

func TestFilterText(t *testing.T) {
	assert.Empty(t, filterText(model.PollerConfig{}))
	assert.Equal(t, "lista=Torno, status=Pausado",
		filterText(model.PollerConfig{FilterList: "Torno", FilterStatus: "Pausado"}))
}
