package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Quantity is a produced quantity as reported by the server or another
// session. Invalid quantities (null, absent, non-numeric) never update caches.
type Quantity struct {
	Value int
	Valid bool
}

// Qty returns a valid Quantity.
func Qty(v int) Quantity {
	return Quantity{Value: v, Valid: true}
}

// ParseQuantity accepts integers, numeric strings and floats (truncated).
func ParseQuantity(raw string) Quantity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Quantity{}
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return Qty(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Qty(int(f))
	}
	return Quantity{}
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = Quantity{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*q = Quantity{}
			return nil
		}
		*q = ParseQuantity(s)
		return nil
	}
	*q = ParseQuantity(string(data))
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if !q.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(q.Value)), nil
}

// Text is a string field the server sometimes sends as a number
// (operator codes, OS numbers).
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(string(data))
	return nil
}

// ActiveTask is one task (machine operation) currently in setup, production
// or pause for an order.
type ActiveTask struct {
	ItemID       *int     `json:"item_id"`
	ItemCode     Text     `json:"item_codigo"`
	ItemName     string   `json:"item_nome"`
	TaskID       *int     `json:"trabalho_id"`
	TaskName     string   `json:"trabalho_nome"`
	Status       string   `json:"status"`
	StartedAt    string   `json:"inicio_acao"`
	OperatorID   *int     `json:"operador_id"`
	OperatorName string   `json:"operador_nome"`
	OperatorCode Text     `json:"operador_codigo"`
	PauseReason  string   `json:"motivo_pausa"`
	LastQuantity Quantity `json:"ultima_quantidade"`
}

// StartTime parses StartedAt. ok is false when absent or malformed.
func (a ActiveTask) StartTime() (time.Time, bool) {
	return ParseTimestamp(a.StartedAt)
}

// OrderStatus is one entry of status_ativos.
type OrderStatus struct {
	OrderID  int          `json:"ordem_servico_id"`
	OSNumber Text         `json:"os_numero"`
	Status   string       `json:"status_atual"`
	Tasks    []ActiveTask `json:"ativos_por_trabalho"`

	// TasksAbsent is set by decoding when ativos_por_trabalho is missing or
	// null. The task list then carries no information; an explicit [] does.
	TasksAbsent bool `json:"-"`

	OperatorID    *int     `json:"operador_id"`
	OperatorName  string   `json:"operador_nome"`
	OperatorCode  Text     `json:"operador_codigo"`
	ItemID        *int     `json:"item_id"`
	ItemCode      Text     `json:"item_codigo"`
	ItemName      string   `json:"item_nome"`
	TaskID        *int     `json:"trabalho_id"`
	TaskName      string   `json:"trabalho_nome"`
	StartedAt     string   `json:"inicio_acao"`
	LastQuantity  Quantity `json:"ultima_quantidade"`
	TotalQuantity Quantity `json:"quantidade_total"`
	Machine       string   `json:"lista_kanban"`
	MachineColor  string   `json:"lista_cor"`
	MachineType   string   `json:"lista_tipo"`
}

func (o *OrderStatus) UnmarshalJSON(data []byte) error {
	type plain OrderStatus
	var aux struct {
		plain
		Tasks *[]ActiveTask `json:"ativos_por_trabalho"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = OrderStatus(aux.plain)
	if aux.Tasks == nil {
		o.Tasks = nil
		o.TasksAbsent = true
		return nil
	}
	o.Tasks = *aux.Tasks
	o.TasksAbsent = false
	return nil
}

// Label is the display identifier of the order: os_numero, else OS-<id>.
func (o OrderStatus) Label() string {
	if o.OSNumber != "" {
		return string(o.OSNumber)
	}
	return "OS-" + strconv.Itoa(o.OrderID)
}

// StartTime parses the order-level inicio_acao.
func (o OrderStatus) StartTime() (time.Time, bool) {
	return ParseTimestamp(o.StartedAt)
}

// EffectiveStatus is status_atual, unless that is awaiting/unknown while tasks
// are still active; then the status is derived from the tasks with
// production > setup > paused precedence.
func (o OrderStatus) EffectiveStatus() Status {
	st := ParseStatus(o.Status)
	if st != StatusAwaiting || len(o.Tasks) == 0 {
		return st
	}
	derived := StatusAwaiting
	for _, t := range o.Tasks {
		ts := ParseStatus(t.Status)
		if !ts.IsActive() {
			continue
		}
		if derived == StatusAwaiting || ts.Rank() < derived.Rank() {
			derived = ts
		}
	}
	return derived
}

// StatusResponse is the body of GET /apontamento/status-ativos.
type StatusResponse struct {
	Active []OrderStatus `json:"status_ativos"`
}

// LogEntry is one apontamento record of an order.
type LogEntry struct {
	Timestamp    string   `json:"data_hora"`
	Action       string   `json:"tipo_acao"`
	OperatorName string   `json:"operador_nome"`
	OperatorCode Text     `json:"operador_codigo"`
	ItemName     string   `json:"item_nome"`
	TaskName     string   `json:"trabalho_nome"`
	Quantity     Quantity `json:"quantidade"`
	PauseReason  string   `json:"motivo_pausa"`
	ElapsedSec   Quantity `json:"tempo_decorrido"`
	EndedAt      string   `json:"data_fim"`
}

// LogsResponse is the body of GET /apontamento/os/{id}/logs.
type LogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// TaskQuantity is a last-known quantity per task from the detail endpoint.
type TaskQuantity struct {
	TaskID       *int     `json:"trabalho_id"`
	TaskName     string   `json:"trabalho_nome"`
	LastQuantity Quantity `json:"ultima_quantidade"`
}

// DetailResponse is the body of GET /apontamento/detalhes/{id}.
type DetailResponse struct {
	Tasks []TaskQuantity `json:"trabalhos"`
}

// PendingItem is an apontamento the server considers overdue.
type PendingItem struct {
	OS     Text   `json:"os"`
	Status string `json:"status"`
	Time   Text   `json:"tempo"`
}

// PendingResponse is the body of GET /apontamento/api/check-pending.
type PendingResponse struct {
	Success bool          `json:"success"`
	Pending []PendingItem `json:"pending"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses the ISO timestamps the server emits. Timestamps
// without a zone are read as local time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
