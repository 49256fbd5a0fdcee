// Package session wires one shopfloor client: the board, the quantity cache,
// timers, the poller and the broadcast channel shared with other sessions on
// the same state directory.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/shopfloor/internal/api"
	"github.com/msageha/shopfloor/internal/board"
	"github.com/msageha/shopfloor/internal/broadcast"
	"github.com/msageha/shopfloor/internal/dashboard"
	"github.com/msageha/shopfloor/internal/events"
	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/notify"
	"github.com/msageha/shopfloor/internal/qpt"
	"github.com/msageha/shopfloor/internal/reconcile"
	"github.com/msageha/shopfloor/internal/storage"
	"github.com/msageha/shopfloor/internal/timer"
)

// JournalFile is the session journal under <state>/logs.
const JournalFile = "journal" + events.JournalExtension

var (
	ErrInvalidOrder    = errors.New("invalid order id")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrMissingTask     = errors.New("task id or task name required")
)

type Option func(*options)

type options struct {
	sender notify.Sender
}

// WithSender replaces the desktop notifier.
func WithSender(s notify.Sender) Option {
	return func(o *options) { o.sender = s }
}

type Session struct {
	stateDir string
	cfg      model.Config

	store     *storage.Store
	client    *api.Client
	cache     *qpt.Cache
	renderer  *board.Renderer
	timers    *timer.Engine
	touches   *reconcile.Touches
	poller    *reconcile.Poller
	bus       *events.Bus
	channel   *broadcast.Channel
	mirror    *board.Mirror
	journal   *events.Journal
	dashboard *dashboard.Formatter
	checker   *notify.Checker
	watcher   *notify.StatusWatcher

	lastMu sync.Mutex
	last   *model.StatusResponse

	unsubs    []func()
	closeOnce sync.Once
	logger    *zap.Logger
}

// New builds every component of a session rooted at stateDir. Nothing runs
// until Run.
func New(stateDir string, cfg model.Config, logger *zap.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sender == nil {
		o.sender = notify.Desktop(logger)
	}

	store, err := storage.Open(stateDir, logger)
	if err != nil {
		return nil, err
	}
	journal, err := events.OpenJournal(filepath.Join(stateDir, "logs", JournalFile), events.DefaultMaxJournalSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		stateDir: stateDir,
		cfg:      cfg,
		store:    store,
		client:   api.New(cfg.Server, logger),
		touches:  reconcile.NewTouches(cfg.Poller.TouchCooldown(), nil),
		bus:      events.NewBus(100, logger),
		journal:  journal,
		logger:   logger.Named("session"),
	}
	s.cache = qpt.New(store, s.client, logger)
	reg := board.NewRegistry()
	s.renderer = board.NewRenderer(reg, cfg, logger)
	s.timers = timer.New(store, logger, timer.WithTick(cfg.Render.TimerTick()))
	s.poller = reconcile.NewPoller(s.client, s.cache, s.renderer, s.timers, s.touches, cfg.Poller, logger)
	s.channel = broadcast.New(store, s.bus, logger)
	s.mirror = board.NewMirror(reg, cfg.Render.GhostSyncInterval())
	reg.OnChange(s.mirror.Notify)

	if cfg.Dashboard.Enabled {
		s.dashboard, err = dashboard.NewFormatter(stateDir, store, cfg, logger)
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
	}
	if cfg.Notify.Enabled {
		s.checker = notify.NewChecker(s.client, o.sender, cfg.Notify.Interval(), logger)
		s.watcher = notify.NewStatusWatcher(o.sender, logger)
	}

	s.poller.OnRefresh(func(resp *model.StatusResponse) {
		s.lastMu.Lock()
		s.last = resp
		s.lastMu.Unlock()
		s.bus.Publish(events.EventRefreshed, 0, resp)
	})
	s.unsubs = append(s.unsubs,
		s.bus.Subscribe(events.EventQuantity, s.onQuantity),
		s.bus.Subscribe(events.EventStop, s.onStop),
		s.bus.Subscribe(events.EventQPTUpdate, s.onQPTUpdate),
		s.bus.Subscribe(events.EventRefreshed, s.onRefreshed),
	)
	return s, nil
}

func (s *Session) Config() model.Config { return s.cfg }

func (s *Session) StateDir() string { return s.stateDir }

func (s *Session) Store() *storage.Store { return s.store }

func (s *Session) Client() *api.Client { return s.client }

func (s *Session) Cache() *qpt.Cache { return s.cache }

func (s *Session) Registry() *board.Registry { return s.renderer.Registry() }

func (s *Session) Renderer() *board.Renderer { return s.renderer }

func (s *Session) Poller() *reconcile.Poller { return s.poller }

// Origin is the id other sessions see on this session's broadcasts.
func (s *Session) Origin() string { return s.channel.Origin() }

// Dashboard is nil unless dashboard.enabled is set.
func (s *Session) Dashboard() *dashboard.Formatter { return s.dashboard }

// Run drives the poller, the ghost mirror, the broadcast listener and the
// pending-notification checker until ctx is done or one of them fails.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	changes, err := s.store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch store: %w", err)
	}
	g.Go(func() error { return s.channel.Listen(ctx, changes) })
	g.Go(func() error { return s.poller.Run(ctx) })
	g.Go(func() error { return s.mirror.Run(ctx) })
	if s.checker != nil {
		g.Go(func() error { return s.checker.Run(ctx) })
	}

	s.logger.Info("session started",
		zap.String("origin", s.channel.Origin()),
		zap.String("server", s.cfg.Server.BaseURL))
	err = g.Wait()
	s.logger.Info("session stopped")
	return err
}

// Refresh runs one poll synchronously, including the quantity backfills it
// starts. For one-shot commands.
func (s *Session) Refresh(ctx context.Context) (*model.StatusResponse, error) {
	err := s.poller.Refresh(ctx)
	s.poller.Wait()
	if err != nil {
		return nil, err
	}
	last := s.Last()
	if s.dashboard != nil {
		if err := s.dashboard.Write(last); err != nil {
			return last, err
		}
	}
	return last, nil
}

// Last is the most recent successful poll response, nil before the first.
func (s *Session) Last() *model.StatusResponse {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last
}

// QuantityInput is a quantity recorded by the local operator.
type QuantityInput struct {
	OrderID  int
	TaskID   *int
	TaskName string
	ItemCode string
	Quantity int
}

// RecordQuantity applies a locally recorded quantity: the cache keeps the
// maximum, the card renders right away and is shielded from stale polls for
// the touch cooldown, and other sessions are told. The chip lock is released
// so the first poll after the cooldown shows the server's task state.
func (s *Session) RecordQuantity(in QuantityInput) error {
	if in.OrderID <= 0 {
		return ErrInvalidOrder
	}
	if in.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if qpt.TaskKey(in.TaskID, in.TaskName) == "" {
		return ErrMissingTask
	}
	id := in.OrderID
	s.touches.Mark(id)
	s.renderer.Registry().Ensure(id)
	s.renderer.Unlock(id)

	s.cache.Merge(id, in.TaskID, in.TaskName, model.Qty(in.Quantity))
	shown := in.Quantity
	if qty, ok := s.cache.Quantity(id, in.TaskID, in.TaskName); ok && qty > shown {
		shown = qty
	}
	s.renderer.SetLastQuantity(id, shown)
	s.cache.Render(id, s.renderer)
	if err := s.cache.Flush(); err != nil {
		return fmt.Errorf("persist quantity: %w", err)
	}

	err := s.channel.Publish(broadcast.Message{
		OrderID:  id,
		Quantity: model.Qty(in.Quantity),
		TaskID:   in.TaskID,
		TaskName: in.TaskName,
		ItemCode: in.ItemCode,
	})
	if err != nil {
		return err
	}
	s.record(events.EventQuantity, id, s.channel.Origin(), map[string]any{
		"task_key": qpt.TaskKey(in.TaskID, in.TaskName),
		"quantity": in.Quantity,
	})
	return nil
}

// StopOrder ends the local view of an order's apontamento and tells other
// sessions to do the same. Cached quantities are kept.
func (s *Session) StopOrder(orderID int) error {
	if orderID <= 0 {
		return ErrInvalidOrder
	}
	s.touches.Mark(orderID)
	s.idle(orderID)
	if err := s.channel.Publish(broadcast.Message{Type: broadcast.TypeStop, OrderID: orderID}); err != nil {
		return err
	}
	s.record(events.EventStop, orderID, s.channel.Origin(), nil)
	s.poller.Trigger()
	return nil
}

// SyncQuantities backfills an order from the detail endpoint when nothing is
// cached, persists it and announces the update to other sessions.
func (s *Session) SyncQuantities(ctx context.Context, orderID int) ([]qpt.Item, error) {
	if orderID <= 0 {
		return nil, ErrInvalidOrder
	}
	if err := s.cache.Backfill(ctx, orderID); err != nil {
		return nil, err
	}
	s.cache.Render(orderID, s.renderer)
	if err := s.cache.Flush(); err != nil {
		return nil, fmt.Errorf("persist quantities: %w", err)
	}
	if err := s.channel.Publish(broadcast.Message{Type: broadcast.TypeQPTUpdate, OrderID: orderID}); err != nil {
		return nil, err
	}
	s.record(events.EventQPTUpdate, orderID, s.channel.Origin(), nil)
	return s.cache.Entries(orderID), nil
}

func (s *Session) idle(orderID int) {
	s.timers.StopAllForOrder(orderID)
	s.renderer.SetIdle(orderID)
}

func (s *Session) onQuantity(e events.Event) {
	m, ok := e.Payload.(broadcast.Message)
	if !ok {
		return
	}
	changed := s.cache.Merge(m.OrderID, m.TaskID, m.TaskName, m.Quantity)
	s.record(e.Type, m.OrderID, m.Origin, map[string]any{
		"task_key": qpt.TaskKey(m.TaskID, m.TaskName),
		"quantity": m.Quantity,
		"changed":  changed,
	})
	if s.touches.Suppressed(m.OrderID) {
		return
	}
	if qty, ok := s.cache.Quantity(m.OrderID, m.TaskID, m.TaskName); ok {
		s.renderer.SetLastQuantity(m.OrderID, qty)
	}
	s.cache.Render(m.OrderID, s.renderer)
}

func (s *Session) onStop(e events.Event) {
	m, _ := e.Payload.(broadcast.Message)
	s.idle(e.OrderID)
	s.record(e.Type, e.OrderID, m.Origin, nil)
	s.poller.Trigger()
}

func (s *Session) onQPTUpdate(e events.Event) {
	m, _ := e.Payload.(broadcast.Message)
	changed, err := s.cache.Reload(e.OrderID)
	if err != nil {
		s.logger.Warn("reload quantities", zap.Int("order", e.OrderID), zap.Error(err))
		return
	}
	s.record(e.Type, e.OrderID, m.Origin, map[string]any{"changed": changed})
	if !s.touches.Suppressed(e.OrderID) {
		s.cache.Render(e.OrderID, s.renderer)
	}
}

func (s *Session) onRefreshed(e events.Event) {
	resp, ok := e.Payload.(*model.StatusResponse)
	if !ok {
		return
	}
	if s.dashboard != nil {
		s.dashboard.OnRefresh(resp)
	}
	if s.watcher != nil {
		s.watcher.Observe(resp)
	}
}

func (s *Session) record(t events.EventType, orderID int, origin string, details map[string]any) {
	if err := s.journal.Record(t, orderID, origin, details); err != nil {
		s.logger.Warn("journal write failed", zap.String("type", string(t)), zap.Error(err))
	}
}

// Close stops event delivery and timers and flushes pending quantities. Call
// it after Run has returned. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, unsub := range s.unsubs {
			unsub()
		}
		s.bus.Close()
		s.poller.Wait()
		s.timers.Close()
		if ferr := s.cache.Flush(); ferr != nil {
			err = errors.Join(err, fmt.Errorf("flush quantities: %w", ferr))
		}
		if jerr := s.journal.Close(); jerr != nil {
			err = errors.Join(err, jerr)
		}
	})
	return err
}
