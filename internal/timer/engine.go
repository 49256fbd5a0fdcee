// Package timer runs the elapsed-time counters shown on cards and task chips.
package timer

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/storage"
)

// StorageKey holds the start metadata of order-level timers so a restarted
// session can resume counting.
const StorageKey = "apontamento_timers"

// Key identifies one timer. Order-level timers have zero item and task.
type Key struct {
	OrderID int
	ItemID  int
	TaskID  int
}

func OrderKey(orderID int) Key {
	return Key{OrderID: orderID}
}

func TaskKey(orderID, itemID, taskID int) Key {
	return Key{OrderID: orderID, ItemID: itemID, TaskID: taskID}
}

func (k Key) IsOrder() bool {
	return k.ItemID == 0 && k.TaskID == 0
}

func (k Key) String() string {
	if k.IsOrder() {
		return strconv.Itoa(k.OrderID)
	}
	return fmt.Sprintf("%d/%d/%d", k.OrderID, k.ItemID, k.TaskID)
}

// Display receives the formatted elapsed time. Implementations are called
// from the timer goroutine.
type Display interface {
	SetTimerText(text string)
}

// Record is the persisted start metadata of an order timer.
type Record struct {
	StartTime      string `yaml:"startTime"`
	StartTimestamp int64  `yaml:"startTimestamp"` // unix milliseconds
	StatusClass    string `yaml:"statusClass"`
}

// Start returns the recorded start time.
func (r Record) Start() time.Time {
	return time.UnixMilli(r.StartTimestamp)
}

// FormatElapsed renders d as HH:MM:SS, flooring to whole seconds. Negative
// durations render as zero; hours are not wrapped.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

type running struct {
	mu      sync.Mutex
	start   time.Time
	class   string
	display Display
	stopped bool
	done    chan struct{}
}

func (r *running) write(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped && r.display != nil {
		r.display.SetTimerText(text)
	}
}

func (r *running) stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.done)
	}
	r.mu.Unlock()
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTick sets the refresh interval. Default one second.
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// Engine owns one goroutine per running timer. At most one timer runs per
// key; starting a key again replaces the previous timer.
type Engine struct {
	mu     sync.Mutex
	timers map[Key]*running
	closed bool
	wg     sync.WaitGroup

	store  *storage.Store
	now    func() time.Time
	tick   time.Duration
	logger *zap.Logger
}

// New creates an engine. store may be nil, in which case nothing is
// persisted.
func New(store *storage.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		timers: make(map[Key]*running),
		store:  store,
		now:    time.Now,
		tick:   time.Second,
		logger: logger.Named("timer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start cancels any timer under key and starts a new one counting from
// start. The display is written immediately and then on every tick.
func (e *Engine) Start(key Key, start time.Time, statusClass string, display Display) {
	r := &running{start: start, class: statusClass, display: display, done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if prev, ok := e.timers[key]; ok {
		prev.stop()
	}
	e.timers[key] = r
	e.wg.Add(1)
	e.mu.Unlock()

	r.write(FormatElapsed(e.now().Sub(start)))
	go e.run(r)

	if key.IsOrder() {
		e.persist(key.OrderID, &Record{
			StartTime:      start.Format(time.RFC3339Nano),
			StartTimestamp: start.UnixMilli(),
			StatusClass:    statusClass,
		})
	}
}

func (e *Engine) run(r *running) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.write(FormatElapsed(e.now().Sub(r.start)))
		}
	}
}

// Stop cancels the timer under key. Unknown keys are ignored.
func (e *Engine) Stop(key Key) {
	e.mu.Lock()
	r, ok := e.timers[key]
	delete(e.timers, key)
	e.mu.Unlock()
	if ok {
		r.stop()
	}
	if key.IsOrder() {
		e.persist(key.OrderID, nil)
	}
}

// StopAllForOrder cancels the order timer and every task timer of the order.
func (e *Engine) StopAllForOrder(orderID int) {
	e.mu.Lock()
	var stopped []*running
	for k, r := range e.timers {
		if k.OrderID == orderID {
			stopped = append(stopped, r)
			delete(e.timers, k)
		}
	}
	e.mu.Unlock()
	for _, r := range stopped {
		r.stop()
	}
	e.persist(orderID, nil)
}

// StopMissing cancels task timers of the order whose keys are not in keep.
// The order-level timer is left alone.
func (e *Engine) StopMissing(orderID int, keep []Key) {
	wanted := make(map[Key]bool, len(keep))
	for _, k := range keep {
		wanted[k] = true
	}
	e.mu.Lock()
	var stopped []*running
	for k, r := range e.timers {
		if k.OrderID != orderID || k.IsOrder() || wanted[k] {
			continue
		}
		stopped = append(stopped, r)
		delete(e.timers, k)
	}
	e.mu.Unlock()
	for _, r := range stopped {
		r.stop()
	}
}

// Running reports whether a timer runs under key.
func (e *Engine) Running(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[key]
	return ok
}

// StartedAt returns the start time and status class of a running timer.
func (e *Engine) StartedAt(key Key) (time.Time, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.timers[key]
	if !ok {
		return time.Time{}, "", false
	}
	return r.start, r.class, true
}

// Refresh writes the current elapsed time to every display without waiting
// for the next tick.
func (e *Engine) Refresh() {
	e.mu.Lock()
	all := make([]*running, 0, len(e.timers))
	for _, r := range e.timers {
		all = append(all, r)
	}
	e.mu.Unlock()

	now := e.now()
	for _, r := range all {
		r.write(FormatElapsed(now.Sub(r.start)))
	}
}

// Persisted returns the stored start metadata of an order timer.
func (e *Engine) Persisted(orderID int) (Record, bool) {
	if e.store == nil {
		return Record{}, false
	}
	var doc map[string]Record
	found, err := e.store.Get(StorageKey, &doc)
	if err != nil {
		e.logger.Warn("read persisted timers", zap.Error(err))
		return Record{}, false
	}
	if !found {
		return Record{}, false
	}
	rec, ok := doc[strconv.Itoa(orderID)]
	return rec, ok
}

// Close stops every timer and waits for their goroutines. Persisted start
// metadata is kept for the next session.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	all := e.timers
	e.timers = make(map[Key]*running)
	e.mu.Unlock()

	for _, r := range all {
		r.stop()
	}
	e.wg.Wait()
}

// persist writes rec for the order, or removes it when rec is nil.
func (e *Engine) persist(orderID int, rec *Record) {
	if e.store == nil {
		return
	}
	id := strconv.Itoa(orderID)
	err := storage.Update(e.store, StorageKey, func(doc *map[string]Record) error {
		if *doc == nil {
			*doc = make(map[string]Record)
		}
		if rec == nil {
			delete(*doc, id)
		} else {
			(*doc)[id] = *rec
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("persist timer", zap.Int("order", orderID), zap.Error(err))
	}
}
