// Package reconcile polls the server for active orders and reconciles the
// board, the quantity cache and the timers with the response.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/api"
	"github.com/msageha/shopfloor/internal/board"
	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/qpt"
	"github.com/msageha/shopfloor/internal/timer"
)

// ErrRefreshInProgress is returned when Refresh is called while another
// refresh is running. The call is dropped, not queued.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// StatusSource fetches the active-status snapshot.
type StatusSource interface {
	ActiveStatus(ctx context.Context, f api.Filter) (*model.StatusResponse, error)
}

type Poller struct {
	source   StatusSource
	filter   api.Filter
	cache    *qpt.Cache
	renderer *board.Renderer
	timers   *timer.Engine
	touches  *Touches

	interval   time.Duration
	retryDelay time.Duration

	running atomic.Bool
	visible atomic.Bool
	trigger chan struct{}

	retryMu sync.Mutex
	retry   *time.Timer

	hookMu    sync.Mutex
	onRefresh func(*model.StatusResponse)

	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPoller wires a poller. The poller starts visible.
func NewPoller(
	source StatusSource,
	cache *qpt.Cache,
	renderer *board.Renderer,
	timers *timer.Engine,
	touches *Touches,
	cfg model.PollerConfig,
	logger *zap.Logger,
) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		source:     source,
		filter:     api.Filter{List: cfg.FilterList, Status: cfg.FilterStatus},
		cache:      cache,
		renderer:   renderer,
		timers:     timers,
		touches:    touches,
		interval:   cfg.Interval(),
		retryDelay: cfg.RetryDelay(),
		trigger:    make(chan struct{}, 1),
		logger:     logger.Named("poller"),
	}
	if p.interval <= 0 {
		p.interval = 10 * time.Second
	}
	if p.retryDelay <= 0 {
		p.retryDelay = 3 * time.Second
	}
	p.visible.Store(true)
	return p
}

// OnRefresh installs a hook called with every successful response.
func (p *Poller) OnRefresh(fn func(*model.StatusResponse)) {
	p.hookMu.Lock()
	defer p.hookMu.Unlock()
	p.onRefresh = fn
}

// Trigger asks Run for an immediate refresh. Never blocks; triggers arriving
// while one is pending collapse into it.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// SetVisible pauses or resumes interval polling. Becoming visible triggers a
// refresh.
func (p *Poller) SetVisible(v bool) {
	if !p.visible.Swap(v) && v {
		p.Trigger()
	}
}

// Run refreshes once, then on every interval while visible and on every
// Trigger, until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()
	defer p.cancelRetry()

	p.refreshLogged(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if p.visible.Load() {
				p.refreshLogged(ctx)
			}
		case <-p.trigger:
			p.refreshLogged(ctx)
		}
	}
}

// Wait blocks until background backfills started by Refresh finish.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) refreshLogged(ctx context.Context) {
	err := p.Refresh(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, ErrRefreshInProgress):
		p.logger.Debug("refresh skipped, one is running")
	default:
		p.logger.Warn("refresh failed", zap.Error(err))
	}
}

// Refresh fetches the active orders and reconciles every returned order.
// On failure one retry is scheduled after the retry delay.
func (p *Poller) Refresh(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer p.running.Store(false)

	resp, err := p.source.ActiveStatus(ctx, p.filter)
	if err != nil {
		if ctx.Err() == nil {
			p.scheduleRetry(ctx)
		}
		return fmt.Errorf("fetch active status: %w", err)
	}

	p.apply(ctx, resp)

	p.hookMu.Lock()
	hook := p.onRefresh
	p.hookMu.Unlock()
	if hook != nil {
		hook(resp)
	}
	return nil
}

func (p *Poller) scheduleRetry(ctx context.Context) {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	if p.retry != nil {
		return
	}
	p.logger.Info("retry scheduled", zap.Duration("delay", p.retryDelay))
	p.retry = time.AfterFunc(p.retryDelay, func() {
		p.retryMu.Lock()
		p.retry = nil
		p.retryMu.Unlock()
		if ctx.Err() == nil {
			p.Trigger()
		}
	})
}

func (p *Poller) cancelRetry() {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
}

func (p *Poller) apply(ctx context.Context, resp *model.StatusResponse) {
	seen := make(map[int]bool, len(resp.Active))
	for _, o := range resp.Active {
		if o.OrderID <= 0 {
			continue
		}
		seen[o.OrderID] = true
		p.applyOrder(ctx, o)
	}

	reg := p.renderer.Registry()
	for _, id := range reg.OrderIDs() {
		if seen[id] {
			continue
		}
		n, ok := reg.Node(id)
		if !ok {
			continue
		}
		v := n.View()
		if v.Status == model.StatusAwaiting && len(v.Chips) == 0 && !p.timers.Running(timer.OrderKey(id)) {
			continue
		}
		if p.touches.Suppressed(id) {
			continue
		}
		p.logger.Debug("order left active set", zap.Int("order", id))
		p.timers.StopAllForOrder(id)
		p.renderer.SetIdle(id)
		p.cache.Render(id, p.renderer)
	}
	reg.SetQueue(board.Queued(resp.Active))

	if err := p.cache.Flush(); err != nil {
		p.logger.Warn("flush quantities", zap.Error(err))
	}
}

func (p *Poller) applyOrder(ctx context.Context, o model.OrderStatus) {
	id := o.OrderID
	p.renderer.Registry().Ensure(id)

	p.cache.Merge(id, o.TaskID, o.TaskName, o.LastQuantity)
	for _, t := range o.Tasks {
		p.cache.Merge(id, t.TaskID, t.TaskName, t.LastQuantity)
	}

	if !p.cache.Has(id) {
		p.backfill(ctx, id)
	}

	if p.touches.Suppressed(id) {
		p.logger.Debug("render suppressed after local touch", zap.Int("order", id))
		return
	}

	status := o.EffectiveStatus()
	p.renderer.Describe(id, o.Label(), o.Machine)
	p.renderer.ApplyStatus(id, status)
	p.renderer.SetOperator(id, o.OperatorID, o.OperatorName, string(o.OperatorCode))
	if qty, ok := p.lastQuantity(o); ok {
		p.renderer.SetLastQuantity(id, qty)
	}
	if !o.TasksAbsent {
		p.renderer.RenderChips(id, o.Tasks)
	}
	p.cache.Render(id, p.renderer)

	p.syncOrderTimer(o, status)
	if !o.TasksAbsent {
		p.syncTaskTimers(o)
	}
}

// lastQuantity is the larger of the server's order-level value and the
// cached value for the order's current task.
func (p *Poller) lastQuantity(o model.OrderStatus) (int, bool) {
	qty, ok := p.cache.Quantity(o.OrderID, o.TaskID, o.TaskName)
	if o.LastQuantity.Valid && (!ok || o.LastQuantity.Value > qty) {
		return o.LastQuantity.Value, true
	}
	return qty, ok
}

func (p *Poller) backfill(ctx context.Context, orderID int) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.cache.Backfill(ctx, orderID); err != nil {
			p.logger.Debug("backfill failed", zap.Int("order", orderID), zap.Error(err))
			return
		}
		p.cache.Render(orderID, p.renderer)
	}()
}

func (p *Poller) syncOrderTimer(o model.OrderStatus, status model.Status) {
	key := timer.OrderKey(o.OrderID)
	if !status.IsActive() {
		if p.timers.Running(key) {
			p.timers.Stop(key)
			if d := p.renderer.TimerDisplay(o.OrderID); d != nil {
				d.SetTimerText("")
			}
		}
		return
	}

	start, ok := orderStart(o, status)
	if !ok {
		rec, found := p.timers.Persisted(o.OrderID)
		if !found {
			return
		}
		start = rec.Start()
	}
	class := board.StatusClass(status)
	if cur, curClass, running := p.timers.StartedAt(key); running && cur.Equal(start) && curClass == class {
		return
	}
	p.timers.Start(key, start, class, p.renderer.TimerDisplay(o.OrderID))
}

// orderStart is the order's inicio_acao, else the earliest start among tasks
// in the order's status.
func orderStart(o model.OrderStatus, status model.Status) (time.Time, bool) {
	if t, ok := o.StartTime(); ok {
		return t, true
	}
	var earliest time.Time
	for _, t := range o.Tasks {
		if model.ParseStatus(t.Status) != status {
			continue
		}
		if s, ok := t.StartTime(); ok && (earliest.IsZero() || s.Before(earliest)) {
			earliest = s
		}
	}
	return earliest, !earliest.IsZero()
}

func (p *Poller) syncTaskTimers(o model.OrderStatus) {
	var keep []timer.Key
	for _, t := range o.Tasks {
		if !model.ParseStatus(t.Status).IsActive() {
			continue
		}
		start, ok := t.StartTime()
		if !ok {
			continue
		}
		key := timer.TaskKey(o.OrderID, deref(t.ItemID), deref(t.TaskID))
		keep = append(keep, key)

		class := board.ChipClass(t.Status)
		if cur, curClass, running := p.timers.StartedAt(key); running && cur.Equal(start) && curClass == class {
			continue
		}
		p.timers.Start(key, start, class, p.renderer.ChipDisplay(o.OrderID, board.ChipKey(t)))
	}
	p.timers.StopMissing(o.OrderID, keep)
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
