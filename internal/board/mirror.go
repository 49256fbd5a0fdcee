package board

import (
	"context"
	"time"
)

// Mirror keeps ghost cards in step with their authoritative node. Label,
// status, last quantity, timer and chips are copied on every interval and
// whenever the authoritative node changes.
type Mirror struct {
	reg      *Registry
	interval time.Duration
	changed  chan int
}

func NewMirror(reg *Registry, interval time.Duration) *Mirror {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	m := &Mirror{
		reg:      reg,
		interval: interval,
		changed:  make(chan int, 64),
	}
	return m
}

// Notify schedules a sync of one order. It never blocks; the periodic sync
// covers a dropped notification.
func (m *Mirror) Notify(orderID int) {
	select {
	case m.changed <- orderID:
	default:
	}
}

// Run syncs until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-m.changed:
			m.Sync(id)
		case <-ticker.C:
			m.SyncAll()
		}
	}
}

// Sync copies one order's authoritative state into its ghosts.
func (m *Mirror) Sync(orderID int) {
	ghosts := m.reg.Ghosts(orderID)
	if len(ghosts) == 0 {
		return
	}
	src, ok := m.reg.Node(orderID)
	if !ok {
		return
	}
	v := src.View()
	for _, g := range ghosts {
		g.update(func(gv *View) bool {
			if gv.TimerText == v.TimerText && gv.TimerClass == v.TimerClass &&
				gv.Label == v.Label && gv.Status == v.Status && gv.LastQuantity == v.LastQuantity &&
				chipSignature(gv.Chips) == chipSignature(v.Chips) && sameChipTimers(gv.Chips, v.Chips) {
				return false
			}
			gv.Label = v.Label
			gv.Status = v.Status
			gv.Badge = v.Badge
			gv.LastQuantity = v.LastQuantity
			gv.TimerText = v.TimerText
			gv.TimerClass = v.TimerClass
			gv.Chips = append([]Chip(nil), v.Chips...)
			return true
		})
	}
}

func (m *Mirror) SyncAll() {
	for _, id := range m.reg.OrderIDs() {
		m.Sync(id)
	}
}

func sameChipTimers(a, b []Chip) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].TimerText != b[i].TimerText {
			return false
		}
	}
	return true
}
