// Package board holds the view state of order cards and renders server status
// onto them.
package board

import (
	"sort"
	"sync"
	"time"

	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/qpt"
)

// Badge is the single status indicator of a card.
type Badge struct {
	Class string
	Color string
	Label string
}

// Chip is one active task shown on a card.
type Chip struct {
	Key         string
	ItemCode    string
	TaskName    string
	Operator    string
	PauseReason string
	Status      model.Status
	Class       string
	TimerText   string
}

// View is a copy of a node's state.
type View struct {
	OrderID      int
	Label        string
	Machine      string
	Ghost        bool
	Status       model.Status
	Badge        Badge
	Buttons      []model.Action
	Disabled     map[model.Action]string
	Chips        []Chip
	TimerText    string
	TimerClass   string
	Quantities   []qpt.Item
	LastQuantity string
	Operator     string
	Warning      string
	Version      uint64
}

// Enabled reports whether action is shown and not disabled.
func (v View) Enabled(action model.Action) bool {
	if _, off := v.Disabled[action]; off {
		return false
	}
	for _, a := range v.Buttons {
		if a == action {
			return true
		}
	}
	return false
}

// Node is the view handle of one card. Ghost nodes are display-only copies of
// the order's authoritative node.
type Node struct {
	mu          sync.Mutex
	view        View
	chipsSig    string
	lockedUntil time.Time
	onChange    func(orderID int)
}

func newNode(orderID int, ghost bool) *Node {
	return &Node{view: View{
		OrderID: orderID,
		Ghost:   ghost,
		Status:  model.StatusAwaiting,
		Badge:   badgeFor(model.StatusAwaiting),
		Buttons: model.StatusAwaiting.Actions(),
	}}
}

// View returns a copy of the node state.
func (n *Node) View() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view.clone()
}

// SetTimerText implements timer.Display for the order-level timer.
func (n *Node) SetTimerText(text string) {
	n.update(func(v *View) bool {
		if v.TimerText == text {
			return false
		}
		v.TimerText = text
		return true
	})
}

// update applies fn under the node lock and, when fn reports a change, bumps
// the version and notifies the change hook outside the lock.
func (n *Node) update(fn func(v *View) bool) bool {
	n.mu.Lock()
	if !fn(&n.view) {
		n.mu.Unlock()
		return false
	}
	n.view.Version++
	hook, id := n.onChange, n.view.OrderID
	n.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return true
}

func (v View) clone() View {
	out := v
	out.Buttons = append([]model.Action(nil), v.Buttons...)
	out.Chips = append([]Chip(nil), v.Chips...)
	out.Quantities = append([]qpt.Item(nil), v.Quantities...)
	if v.Disabled != nil {
		out.Disabled = make(map[model.Action]string, len(v.Disabled))
		for k, val := range v.Disabled {
			out.Disabled[k] = val
		}
	}
	return out
}

// chipDisplay writes a task timer into one chip of a node.
type chipDisplay struct {
	node *Node
	key  string
}

func (d chipDisplay) SetTimerText(text string) {
	d.node.update(func(v *View) bool {
		for i := range v.Chips {
			if v.Chips[i].Key == d.key {
				if v.Chips[i].TimerText == text {
					return false
				}
				v.Chips[i].TimerText = text
				return true
			}
		}
		return false
	})
}

// Registry maps order ids to their authoritative node and ghost copies.
type Registry struct {
	mu       sync.Mutex
	nodes    map[int]*Node
	ghosts   map[int][]*Node
	onChange func(orderID int)
}

func NewRegistry() *Registry {
	return &Registry{
		nodes:  make(map[int]*Node),
		ghosts: make(map[int][]*Node),
	}
}

// OnChange installs a hook called after any authoritative node mutates.
// Nodes created earlier get the hook too.
func (r *Registry) OnChange(fn func(orderID int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
	for _, n := range r.nodes {
		n.mu.Lock()
		n.onChange = fn
		n.mu.Unlock()
	}
}

// Ensure returns the authoritative node of an order, creating it if needed.
func (r *Registry) Ensure(orderID int) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[orderID]; ok {
		return n
	}
	n := newNode(orderID, false)
	n.onChange = r.onChange
	r.nodes[orderID] = n
	return n
}

func (r *Registry) Node(orderID int) (*Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[orderID]
	return n, ok
}

// AddGhost creates a display-only copy of an order's card.
func (r *Registry) AddGhost(orderID int) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := newNode(orderID, true)
	r.ghosts[orderID] = append(r.ghosts[orderID], g)
	return g
}

// RemoveGhost detaches a ghost; it stops receiving updates.
func (r *Registry) RemoveGhost(g *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := g.View().OrderID
	list := r.ghosts[id]
	for i, n := range list {
		if n == g {
			r.ghosts[id] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.ghosts[id]) == 0 {
		delete(r.ghosts, id)
	}
}

func (r *Registry) Ghosts(orderID int) []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Node(nil), r.ghosts[orderID]...)
}

// OrderIDs lists orders with an authoritative node, ascending.
func (r *Registry) OrderIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Views returns a copy of every authoritative node, ordered by id.
func (r *Registry) Views() []View {
	ids := r.OrderIDs()
	out := make([]View, 0, len(ids))
	for _, id := range ids {
		if n, ok := r.Node(id); ok {
			out = append(out, n.View())
		}
	}
	return out
}
