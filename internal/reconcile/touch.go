package reconcile

import (
	"sync"
	"time"
)

// Touches records when an order was last changed locally. Poll results for a
// recently touched order are not rendered, so a stale response cannot
// overwrite what the operator just did.
type Touches struct {
	mu       sync.Mutex
	at       map[int]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewTouches creates a tracker. now defaults to time.Now.
func NewTouches(cooldown time.Duration, now func() time.Time) *Touches {
	if now == nil {
		now = time.Now
	}
	return &Touches{at: make(map[int]time.Time), cooldown: cooldown, now: now}
}

func (t *Touches) Mark(orderID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.at[orderID] = t.now()
}

// Suppressed reports whether the order was touched less than the cooldown
// ago. Expired touches are forgotten.
func (t *Touches) Suppressed(orderID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.at[orderID]
	if !ok {
		return false
	}
	if t.now().Sub(at) < t.cooldown {
		return true
	}
	delete(t.at, orderID)
	return false
}
