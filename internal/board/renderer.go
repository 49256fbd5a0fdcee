package board

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/qpt"
	"github.com/msageha/shopfloor/internal/timer"
)

var badges = map[model.Status]Badge{
	model.StatusSetupInProgress:      {Class: "status-setup", Color: "bg-primary", Label: "Setup"},
	model.StatusSetupDone:            {Class: "status-setup-concluido", Color: "bg-info", Label: "Setup Concluído"},
	model.StatusProductionInProgress: {Class: "status-producao", Color: "bg-success", Label: "Produção"},
	model.StatusPaused:               {Class: "status-pausado", Color: "bg-warning", Label: "Pausado"},
	model.StatusFinished:             {Class: "status-finalizado", Color: "bg-secondary", Label: "Finalizado"},
}

func badgeFor(s model.Status) Badge {
	if b, ok := badges[s]; ok {
		return b
	}
	return Badge{Color: "bg-light text-dark", Label: "Aguardando"}
}

// StatusClass is the CSS-style class of a status, empty for awaiting.
func StatusClass(s model.Status) string {
	return badgeFor(s).Class
}

// ChipClass picks a chip color from the task status text.
func ChipClass(status string) string {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "setup"):
		return "info"
	case strings.Contains(s, "paus"):
		return "warning"
	default:
		return "success"
	}
}

// ChipKey identifies a task chip within an order.
func ChipKey(t model.ActiveTask) string {
	item, task := 0, 0
	if t.ItemID != nil {
		item = *t.ItemID
	}
	if t.TaskID != nil {
		task = *t.TaskID
	}
	if item == 0 && task == 0 {
		return strings.TrimSpace(t.TaskName)
	}
	return strconv.Itoa(item) + ":" + strconv.Itoa(task)
}

type RendererOption func(*Renderer)

// WithNow replaces time.Now for the chip lock window.
func WithNow(now func() time.Time) RendererOption {
	return func(r *Renderer) { r.now = now }
}

// Renderer writes server status onto the registry's nodes. Every operation
// on an order without a node is a no-op.
type Renderer struct {
	reg        *Registry
	lockWindow time.Duration
	operatorID int
	now        func() time.Time
	logger     *zap.Logger
}

func NewRenderer(reg *Registry, cfg model.Config, logger *zap.Logger, opts ...RendererOption) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		reg:        reg,
		lockWindow: cfg.Render.LockWindow(),
		operatorID: cfg.Operator.ID,
		now:        time.Now,
		logger:     logger.Named("board"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Registry() *Registry {
	return r.reg
}

// Describe sets the card's identity fields.
func (r *Renderer) Describe(orderID int, label, machine string) {
	r.with(orderID, func(v *View) bool {
		if v.Label == label && v.Machine == machine {
			return false
		}
		v.Label, v.Machine = label, machine
		return true
	})
}

// ApplyStatus sets the badge, the visible buttons and the timer class.
// Disabled restrictions set by SetOperator are kept.
func (r *Renderer) ApplyStatus(orderID int, status model.Status) {
	r.with(orderID, func(v *View) bool {
		b := badgeFor(status)
		if v.Status == status && v.Badge == b {
			return false
		}
		v.Status = status
		v.Badge = b
		v.Buttons = status.Actions()
		v.TimerClass = b.Class
		return true
	})
}

// RenderChips replaces the task chips of an order. Identical content is a
// no-op. After non-empty chips are written the node is locked for the lock
// window and differing renders are skipped until it expires. It reports
// whether the node changed.
func (r *Renderer) RenderChips(orderID int, tasks []model.ActiveTask) bool {
	n, ok := r.reg.Node(orderID)
	if !ok {
		return false
	}

	chips := make([]Chip, 0, len(tasks))
	for _, t := range tasks {
		st := model.ParseStatus(t.Status)
		c := Chip{
			Key:      ChipKey(t),
			ItemCode: string(t.ItemCode),
			TaskName: t.TaskName,
			Operator: t.OperatorName,
			Status:   st,
			Class:    ChipClass(t.Status),
		}
		if st == model.StatusPaused {
			c.PauseReason = t.PauseReason
		}
		chips = append(chips, c)
	}
	sig := chipSignature(chips)
	now := r.now()

	return n.updateChips(func(curSig string, lockedUntil time.Time) (bool, time.Time) {
		if sig == curSig {
			return false, lockedUntil
		}
		if now.Before(lockedUntil) {
			r.logger.Debug("chip render skipped while locked", zap.Int("order", orderID))
			return false, lockedUntil
		}
		if len(chips) > 0 {
			return true, now.Add(r.lockWindow)
		}
		return true, time.Time{}
	}, sig, chips)
}

// ChipDisplay returns the timer display of one chip.
func (r *Renderer) ChipDisplay(orderID int, chipKey string) timer.Display {
	n, ok := r.reg.Node(orderID)
	if !ok {
		return nil
	}
	return chipDisplay{node: n, key: chipKey}
}

// TimerDisplay returns the order-level timer display.
func (r *Renderer) TimerDisplay(orderID int) timer.Display {
	n, ok := r.reg.Node(orderID)
	if !ok {
		return nil
	}
	return n
}

// ShowQuantities implements qpt.Sink.
func (r *Renderer) ShowQuantities(orderID int, items []qpt.Item) {
	r.with(orderID, func(v *View) bool {
		v.Quantities = append([]qpt.Item(nil), items...)
		return true
	})
}

// SetLastQuantity updates the "last quantity" label.
func (r *Renderer) SetLastQuantity(orderID, qty int) {
	text := strconv.Itoa(qty)
	r.with(orderID, func(v *View) bool {
		if v.LastQuantity == text {
			return false
		}
		v.LastQuantity = text
		return true
	})
}

// SetOperator shows who owns the running apontamento. When that operator is
// not the local one, the restricted actions are disabled and a warning is
// shown.
func (r *Renderer) SetOperator(orderID int, operatorID *int, name, code string) {
	r.with(orderID, func(v *View) bool {
		v.Operator = ""
		if name != "" {
			v.Operator = name
			if code != "" {
				v.Operator += " (" + code + ")"
			}
		}
		v.Warning = ""
		v.Disabled = nil
		if r.operatorID != 0 && operatorID != nil && *operatorID != r.operatorID {
			v.Warning = "Em uso por: " + name
			v.Disabled = make(map[model.Action]string)
			for a := range model.RestrictedActions {
				v.Disabled[a] = "Apenas " + name + " pode modificar este apontamento"
			}
		}
		return true
	})
}

// SetIdle puts the card back to its awaiting placeholder: no chips, no timer
// text, no operator. The chip lock is cleared.
func (r *Renderer) SetIdle(orderID int) {
	n, ok := r.reg.Node(orderID)
	if !ok {
		return
	}
	n.mu.Lock()
	n.chipsSig = ""
	n.lockedUntil = time.Time{}
	n.mu.Unlock()

	b := badgeFor(model.StatusAwaiting)
	n.update(func(v *View) bool {
		v.Status = model.StatusAwaiting
		v.Badge = b
		v.Buttons = model.StatusAwaiting.Actions()
		v.Chips = nil
		v.TimerText = ""
		v.TimerClass = ""
		v.Operator = ""
		v.Warning = ""
		v.Disabled = nil
		return true
	})
}

// Unlock clears the chip lock window of an order.
func (r *Renderer) Unlock(orderID int) {
	if n, ok := r.reg.Node(orderID); ok {
		n.mu.Lock()
		n.lockedUntil = time.Time{}
		n.mu.Unlock()
	}
}

func (r *Renderer) with(orderID int, fn func(v *View) bool) {
	if n, ok := r.reg.Node(orderID); ok {
		n.update(fn)
	}
}

// updateChips decides and applies a chip render atomically with respect to
// the node's lock window.
func (n *Node) updateChips(decide func(curSig string, lockedUntil time.Time) (bool, time.Time), sig string, chips []Chip) bool {
	n.mu.Lock()
	apply, until := decide(n.chipsSig, n.lockedUntil)
	if !apply {
		n.mu.Unlock()
		return false
	}
	prev := make(map[string]string, len(n.view.Chips))
	for _, c := range n.view.Chips {
		prev[c.Key] = c.TimerText
	}
	for i := range chips {
		chips[i].TimerText = prev[chips[i].Key]
	}
	n.chipsSig = sig
	n.lockedUntil = until
	n.view.Chips = chips
	n.view.Version++
	hook, id := n.onChange, n.view.OrderID
	n.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return true
}

func chipSignature(chips []Chip) string {
	var b strings.Builder
	for _, c := range chips {
		b.WriteString(c.Key)
		b.WriteByte('|')
		b.WriteString(c.TaskName)
		b.WriteByte('|')
		b.WriteString(c.Operator)
		b.WriteByte('|')
		b.WriteString(c.PauseReason)
		b.WriteByte('|')
		b.WriteString(string(c.Status))
		b.WriteByte(';')
	}
	return b.String()
}
