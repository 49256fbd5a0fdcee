// Package dashboard renders the machine-grouped overview of active
// apontamentos into <state>/dashboard.md.
package dashboard

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/qpt"
	"github.com/msageha/shopfloor/internal/storage"
	"github.com/msageha/shopfloor/internal/timer"
	atomicyaml "github.com/msageha/shopfloor/internal/yaml"
	"github.com/msageha/shopfloor/templates"
)

const (
	// ShadowPrefix prefixes the per-task quantity keys. A shadow value only
	// ever grows, so the dashboard never shows a quantity going backwards
	// between polls.
	ShadowPrefix = "ap_dash_qty:"
	// NoMachine groups orders without lista_kanban.
	NoMachine = "Sem Máquina"

	FileName     = "dashboard.md"
	templateName = "dashboard.md.tmpl"
)

type Summary struct {
	Total      int
	Setup      int
	Paused     int
	Production int
}

type TaskRow struct {
	Key     string
	Name    string
	Status  string
	Qty     int
	Total   int
	Percent int
	Elapsed string
}

// Card is one order inside a machine group.
type Card struct {
	OrderID  int
	Label    string
	Item     string
	Status   string
	Operator string
	Elapsed  string
	Total    int
	LastQty  int
	Tasks    []TaskRow
}

type Machine struct {
	Name      string
	Color     string
	Type      string
	Principal *Card
	Queue     []Card
}

type Data struct {
	GeneratedAt time.Time
	Filter      string
	Summary     Summary
	Machines    []Machine
}

// Formatter turns a status-ativos response into dashboard data and markdown.
type Formatter struct {
	store    *storage.Store
	machines []string
	filter   string
	path     string
	now      func() time.Time
	tmpl     *template.Template
	logger   *zap.Logger
}

// NewFormatter parses the embedded template. store may be nil, in which case
// quantities are shown as reported.
func NewFormatter(stateDir string, store *storage.Store, cfg model.Config, logger *zap.Logger) (*Formatter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templates.FS, templateName)
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}
	return &Formatter{
		store:    store,
		machines: cfg.Dashboard.Machines,
		filter:   filterText(cfg.Poller),
		path:     filepath.Join(stateDir, FileName),
		now:      time.Now,
		tmpl:     tmpl,
		logger:   logger.Named("dashboard"),
	}, nil
}

func (f *Formatter) Path() string {
	return f.path
}

func filterText(cfg model.PollerConfig) string {
	var parts []string
	if cfg.FilterList != "" {
		parts = append(parts, "lista="+cfg.FilterList)
	}
	if cfg.FilterStatus != "" {
		parts = append(parts, "status="+cfg.FilterStatus)
	}
	return strings.Join(parts, ", ")
}

// Summarize counts the header counters. An order counts as paused when its
// status is paused or any of its tasks is.
func Summarize(resp *model.StatusResponse) Summary {
	var s Summary
	if resp == nil {
		return s
	}
	for _, o := range resp.Active {
		s.Total++
		switch model.ParseStatus(o.Status) {
		case model.StatusSetupInProgress:
			s.Setup++
		case model.StatusProductionInProgress:
			s.Production++
		}
		if isPaused(o) {
			s.Paused++
		}
	}
	return s
}

func isPaused(o model.OrderStatus) bool {
	if model.ParseStatus(o.Status) == model.StatusPaused {
		return true
	}
	for _, t := range o.Tasks {
		if model.ParseStatus(t.Status) == model.StatusPaused {
			return true
		}
	}
	return false
}

// Build groups the response by machine. Known machines come first in
// configured order (listed even when empty), unknown ones follow
// alphabetically. Within a machine the best-ranked order is the principal
// card and the rest are queued.
func (f *Formatter) Build(resp *model.StatusResponse) (*Data, error) {
	now := f.now()
	data := &Data{
		GeneratedAt: now,
		Filter:      f.filter,
		Summary:     Summarize(resp),
	}

	canon := make(map[string]string, len(f.machines))
	known := make(map[string]int, len(f.machines))
	for i, m := range f.machines {
		key := strings.ToLower(strings.TrimSpace(m))
		if key == "" {
			continue
		}
		if _, dup := canon[key]; !dup {
			canon[key] = m
			known[m] = i
		}
	}

	groups := make(map[string][]model.OrderStatus)
	if resp != nil {
		for _, o := range resp.Active {
			name := strings.TrimSpace(o.Machine)
			if name == "" {
				name = NoMachine
			}
			if c, ok := canon[strings.ToLower(name)]; ok {
				name = c
			}
			groups[name] = append(groups[name], o)
		}
	}

	names := make([]string, 0, len(known)+len(groups))
	for name := range known {
		names = append(names, name)
	}
	for name := range groups {
		if _, ok := known[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		ki, iok := known[names[i]]
		kj, jok := known[names[j]]
		switch {
		case iok && jok:
			return ki < kj
		case iok != jok:
			return iok
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		orders := groups[name]
		sort.SliceStable(orders, func(i, j int) bool {
			return model.ParseStatus(orders[i].Status).Rank() < model.ParseStatus(orders[j].Status).Rank()
		})
		m := Machine{Name: name}
		for i, o := range orders {
			card, err := f.card(o, now)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				m.Principal = &card
				m.Color = o.MachineColor
				m.Type = o.MachineType
				continue
			}
			m.Queue = append(m.Queue, card)
		}
		data.Machines = append(data.Machines, m)
	}
	return data, nil
}

func (f *Formatter) card(o model.OrderStatus, now time.Time) (Card, error) {
	total := 0
	if o.TotalQuantity.Valid {
		total = o.TotalQuantity.Value
	}
	status := model.ParseStatus(o.Status)
	c := Card{
		OrderID:  o.OrderID,
		Label:    o.Label(),
		Item:     strings.TrimSpace(string(o.ItemCode) + " " + o.ItemName),
		Status:   string(status),
		Operator: o.OperatorName,
		Total:    total,
	}
	if o.LastQuantity.Valid {
		c.LastQty = o.LastQuantity.Value
	}
	if status.IsActive() {
		if start, ok := cardStart(o); ok {
			c.Elapsed = timer.FormatElapsed(now.Sub(start))
		}
	}

	for _, t := range o.Tasks {
		key := qpt.TaskKey(t.TaskID, t.TaskName)
		qty, err := f.shadow(o.OrderID, key, t.LastQuantity)
		if err != nil {
			return Card{}, err
		}
		name := t.TaskName
		if name == "" {
			name = "Serviço"
		}
		row := TaskRow{
			Key:     key,
			Name:    name,
			Status:  t.Status,
			Qty:     qty,
			Total:   total,
			Percent: percent(qty, total),
		}
		if start, ok := t.StartTime(); ok {
			row.Elapsed = timer.FormatElapsed(now.Sub(start))
		}
		c.Tasks = append(c.Tasks, row)
		if qty > c.LastQty {
			c.LastQty = qty
		}
	}
	return c, nil
}

// cardStart is the order inicio_acao, else the earliest task start.
func cardStart(o model.OrderStatus) (time.Time, bool) {
	if start, ok := o.StartTime(); ok {
		return start, true
	}
	var earliest time.Time
	for _, t := range o.Tasks {
		if start, ok := t.StartTime(); ok && (earliest.IsZero() || start.Before(earliest)) {
			earliest = start
		}
	}
	return earliest, !earliest.IsZero()
}

// shadow raises the persisted shadow quantity to the candidate and returns
// the resulting maximum.
func (f *Formatter) shadow(orderID int, taskKey string, q model.Quantity) (int, error) {
	if f.store == nil || taskKey == "" {
		if q.Valid {
			return q.Value, nil
		}
		return 0, nil
	}
	key := ShadowKey(orderID, taskKey)
	var out int
	if !q.Valid {
		if _, err := f.store.Get(key, &out); err != nil {
			return 0, fmt.Errorf("read %s: %w", key, err)
		}
		return out, nil
	}
	err := storage.Update(f.store, key, func(v *int) error {
		if q.Value > *v {
			*v = q.Value
		}
		out = *v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", key, err)
	}
	return out, nil
}

func ShadowKey(orderID int, taskKey string) string {
	return ShadowPrefix + strconv.Itoa(orderID) + ":" + taskKey
}

func percent(qty, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(qty) / float64(total) * 100))
	return max(0, min(100, p))
}

// Render builds and executes the template.
func (f *Formatter) Render(resp *model.StatusResponse) (string, error) {
	data, err := f.Build(resp)
	if err != nil {
		return "", fmt.Errorf("build dashboard data: %w", err)
	}
	var out strings.Builder
	if err := f.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return out.String(), nil
}

// Write renders resp into dashboard.md.
func (f *Formatter) Write(resp *model.StatusResponse) error {
	content, err := f.Render(resp)
	if err != nil {
		return err
	}
	if err := atomicyaml.WriteFileAtomic(f.path, []byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", FileName, err)
	}
	return nil
}

// OnRefresh is the poller hook. Failures are logged; the next refresh
// retries.
func (f *Formatter) OnRefresh(resp *model.StatusResponse) {
	if err := f.Write(resp); err != nil {
		f.logger.Warn("dashboard write failed", zap.Error(err))
	}
}
