package board

import (
	"sort"
	"strings"

	"github.com/msageha/shopfloor/internal/model"
)

// Queued maps every order waiting behind another on the same machine to that
// machine's name. The best-ranked order of a machine (ties keep response
// order) is the one being worked and is not queued. Orders without a machine
// are never queued.
func Queued(active []model.OrderStatus) map[int]string {
	type group struct {
		name   string
		orders []model.OrderStatus
	}
	groups := make(map[string]*group)
	for _, o := range active {
		name := strings.TrimSpace(o.Machine)
		if o.OrderID <= 0 || name == "" {
			continue
		}
		key := strings.ToLower(name)
		g, ok := groups[key]
		if !ok {
			g = &group{name: name}
			groups[key] = g
		}
		g.orders = append(g.orders, o)
	}

	queued := make(map[int]string)
	for _, g := range groups {
		sort.SliceStable(g.orders, func(i, j int) bool {
			return model.ParseStatus(g.orders[i].Status).Rank() < model.ParseStatus(g.orders[j].Status).Rank()
		})
		for _, o := range g.orders[1:] {
			if _, dup := queued[o.OrderID]; !dup {
				queued[o.OrderID] = g.name
			}
		}
	}
	return queued
}

// SetQueue makes the ghosts match queued: one ghost per queued order, carrying
// its machine name. Ghosts of orders no longer queued are detached. The
// change hook runs for every order that gained a ghost so its content is
// mirrored right away.
func (r *Registry) SetQueue(queued map[int]string) {
	r.mu.Lock()
	for id, list := range r.ghosts {
		if _, ok := queued[id]; !ok {
			delete(r.ghosts, id)
			continue
		}
		r.ghosts[id] = list[:1]
	}
	var added []int
	for id, machine := range queued {
		if list, ok := r.ghosts[id]; ok {
			g := list[0]
			g.update(func(v *View) bool {
				if v.Machine == machine {
					return false
				}
				v.Machine = machine
				return true
			})
			continue
		}
		g := newNode(id, true)
		g.view.Machine = machine
		r.ghosts[id] = []*Node{g}
		added = append(added, id)
	}
	hook := r.onChange
	r.mu.Unlock()

	if hook == nil {
		return
	}
	sort.Ints(added)
	for _, id := range added {
		hook(id)
	}
}

// QueueViews returns a copy of every ghost, ordered by machine then order id.
func (r *Registry) QueueViews() []View {
	r.mu.Lock()
	var out []View
	for _, list := range r.ghosts {
		for _, g := range list {
			out = append(out, g.View())
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Machine != out[j].Machine {
			return out[i].Machine < out[j].Machine
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}
