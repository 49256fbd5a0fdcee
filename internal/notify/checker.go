package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/model"
)

const (
	PendingTitle = "Apontamento Pendente"
	StatusTitle  = "Status Atualizado"
)

// PendingSource is the check-pending endpoint.
type PendingSource interface {
	Pending(ctx context.Context) (*model.PendingResponse, error)
}

// PendingMessage is the body of a pending-apontamento alert.
func PendingMessage(item model.PendingItem) string {
	return fmt.Sprintf("OS %s está %s há %s", item.OS, strings.ToLower(item.Status), item.Time)
}

// Checker polls check-pending and alerts once per (OS, status) while it
// stays pending. An item that leaves the list and comes back alerts again.
type Checker struct {
	source   PendingSource
	sender   Sender
	interval time.Duration

	mu   sync.Mutex
	seen map[string]bool

	logger *zap.Logger
}

func NewChecker(source PendingSource, sender Sender, interval time.Duration, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Checker{
		source:   source,
		sender:   sender,
		interval: interval,
		seen:     make(map[string]bool),
		logger:   logger.Named("notify"),
	}
}

// Check runs one poll and returns the items alerted.
func (c *Checker) Check(ctx context.Context) ([]model.PendingItem, error) {
	resp, err := c.source.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pending: %w", err)
	}
	if !resp.Success {
		return nil, nil
	}

	c.mu.Lock()
	current := make(map[string]bool, len(resp.Pending))
	var fresh []model.PendingItem
	for _, item := range resp.Pending {
		key := string(item.OS) + "|" + item.Status
		current[key] = true
		if !c.seen[key] {
			fresh = append(fresh, item)
		}
	}
	c.seen = current
	c.mu.Unlock()

	for _, item := range fresh {
		if err := c.sender.Send(PendingTitle, PendingMessage(item)); err != nil {
			c.logger.Warn("send notification failed", zap.String("os", string(item.OS)), zap.Error(err))
		}
	}
	return fresh, nil
}

// Run checks immediately and then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("pending check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// StatusWatcher alerts when an order's status changes between two refreshes.
// The first sighting of an order never alerts.
type StatusWatcher struct {
	sender Sender

	mu   sync.Mutex
	last map[int]string

	logger *zap.Logger
}

func NewStatusWatcher(sender Sender, logger *zap.Logger) *StatusWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusWatcher{
		sender: sender,
		last:   make(map[int]string),
		logger: logger.Named("notify"),
	}
}

// Observe compares resp with the previous refresh. Orders missing from resp
// are forgotten.
func (w *StatusWatcher) Observe(resp *model.StatusResponse) int {
	if resp == nil {
		return 0
	}
	type change struct {
		label, from, to, operator string
	}

	w.mu.Lock()
	next := make(map[int]string, len(resp.Active))
	var changes []change
	for _, o := range resp.Active {
		st := string(o.EffectiveStatus())
		next[o.OrderID] = st
		if prev, ok := w.last[o.OrderID]; ok && prev != st {
			changes = append(changes, change{o.Label(), prev, st, o.OperatorName})
		}
	}
	w.last = next
	w.mu.Unlock()

	for _, ch := range changes {
		msg := fmt.Sprintf("%s mudou de %q para %q", ch.label, ch.from, ch.to)
		if ch.operator != "" {
			msg += " (" + ch.operator + ")"
		}
		if err := w.sender.Send(StatusTitle, msg); err != nil {
			w.logger.Warn("send notification failed", zap.String("os", ch.label), zap.Error(err))
		}
	}
	return len(changes)
}
