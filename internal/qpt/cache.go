// Package qpt keeps the last known produced quantity per task ("quantidades
// por trabalho") of every order. Quantities only ever grow: the displayed value
// for a task is the maximum of what the server, this session and the durable
// store have seen.
package qpt

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/storage"
)

// StorageKey is the durable document holding every order's entries.
const StorageKey = "qpt_cache_v1"

type Entry struct {
	Task string `yaml:"trab" json:"trab"`
	Qty  int    `yaml:"qty" json:"qty"`
}

// Entries maps task key to entry for one order.
type Entries map[string]Entry

// document is the shape of StorageKey: order id -> task key -> entry.
type document map[string]Entries

// Item is one rendered line of an order's quantity list.
type Item struct {
	Key  string `json:"key"`
	Task string `json:"task"`
	Qty  int    `json:"qty"`
}

// Sink receives rendered quantity lists.
type Sink interface {
	ShowQuantities(orderID int, items []Item)
}

// DetailFetcher loads last-known quantities when nothing is cached.
type DetailFetcher interface {
	Details(ctx context.Context, orderID int) (*model.DetailResponse, error)
}

type Cache struct {
	mu       sync.Mutex
	mem      map[int]Entries
	rendered map[int]string
	dirty    map[int]bool

	store   *storage.Store
	fetcher DetailFetcher
	group   singleflight.Group
	logger  *zap.Logger
}

func New(store *storage.Store, fetcher DetailFetcher, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		mem:      make(map[int]Entries),
		rendered: make(map[int]string),
		dirty:    make(map[int]bool),
		store:    store,
		fetcher:  fetcher,
		logger:   logger.Named("qpt"),
	}
}

// Merge records a candidate quantity for (order, task). The stored value
// becomes max(existing, candidate); invalid candidates are ignored. It reports
// whether the order's entries changed.
func (c *Cache) Merge(orderID int, taskID *int, taskName string, q model.Quantity) bool {
	if !q.Valid {
		return false
	}
	key := TaskKey(taskID, taskName)
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	before := c.mem[orderID]
	next := before.clone()
	prev, exists := next[key]
	e := Entry{Task: strings.TrimSpace(taskName), Qty: q.Value}
	if e.Task == "" {
		e.Task = prev.Task
	}
	if e.Task == "" {
		e.Task = key
	}
	if exists && prev.Qty > e.Qty {
		e.Qty = prev.Qty
	}
	next[key] = e
	next = normalize(next)

	if next.equal(before) {
		return false
	}
	c.mem[orderID] = next
	c.dirty[orderID] = true
	return true
}

// Entries returns the deduplicated entries of an order sorted by label.
func (c *Cache) Entries(orderID int) []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return c.mem[orderID].items()
}

// Orders lists the orders with cached quantities, ascending.
func (c *Cache) Orders() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	ids := make([]int, 0, len(c.mem))
	for id, entries := range c.mem {
		if len(entries) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Has reports whether any quantity is cached for the order.
func (c *Cache) Has(orderID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return len(c.mem[orderID]) > 0
}

// Quantity looks a task up by key, falling back to its label.
func (c *Cache) Quantity(orderID int, taskID *int, taskName string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	entries := c.mem[orderID]
	if e, ok := entries[TaskKey(taskID, taskName)]; ok {
		return e.Qty, true
	}
	label := NormalizeLabel(taskName)
	if label == "" {
		return 0, false
	}
	for k, e := range entries {
		if entryLabel(k, e) == label {
			return e.Qty, true
		}
	}
	return 0, false
}

// Render pushes the order's list to sink unless it is identical to the last
// list rendered for that order. Changed lists are persisted.
func (c *Cache) Render(orderID int, sink Sink) bool {
	c.mu.Lock()
	c.loadLocked()
	items := c.mem[orderID].items()
	sig := Signature(items)
	if last, ok := c.rendered[orderID]; ok && last == sig {
		c.mu.Unlock()
		return false
	}
	c.rendered[orderID] = sig
	c.mu.Unlock()

	if sink != nil {
		sink.ShowQuantities(orderID, items)
	}
	if err := c.persist(orderID); err != nil {
		c.logger.Warn("persist quantities", zap.Int("order", orderID), zap.Error(err))
	}
	return true
}

// Flush persists every order changed since its last persist.
func (c *Cache) Flush() error {
	c.mu.Lock()
	ids := make([]int, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		if err := c.persist(id); err != nil {
			return err
		}
	}
	return nil
}

// Reload folds the durable entries of an order into memory, for when another
// session announced a change. It reports whether memory changed.
func (c *Cache) Reload(orderID int) (bool, error) {
	var doc document
	if _, err := c.store.Get(StorageKey, &doc); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.mem[orderID]
	next := normalize(union(before, doc[strconv.Itoa(orderID)]))
	if next.equal(before) {
		return false, nil
	}
	c.setLocked(orderID, next)
	return true, nil
}

// Backfill fetches last-known quantities from the detail endpoint when the
// order has no cached entries. Concurrent calls for one order share a single
// request.
func (c *Cache) Backfill(ctx context.Context, orderID int) error {
	if c.fetcher == nil || c.Has(orderID) {
		return nil
	}
	_, err, _ := c.group.Do(strconv.Itoa(orderID), func() (any, error) {
		resp, err := c.fetcher.Details(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("fetch details for order %d: %w", orderID, err)
		}
		for _, t := range resp.Tasks {
			c.Merge(orderID, t.TaskID, t.TaskName, t.LastQuantity)
		}
		return nil, nil
	})
	return err
}

// Reset clears both tiers.
func (c *Cache) Reset() error {
	c.mu.Lock()
	c.mem = make(map[int]Entries)
	c.rendered = make(map[int]string)
	c.dirty = make(map[int]bool)
	c.mu.Unlock()
	return c.store.Remove(StorageKey)
}

// loadLocked fills memory from the durable tier while memory is empty.
func (c *Cache) loadLocked() {
	if len(c.mem) > 0 {
		return
	}
	var doc document
	if _, err := c.store.Get(StorageKey, &doc); err != nil {
		c.logger.Warn("load durable quantities", zap.Error(err))
		return
	}
	for k, entries := range doc {
		id, err := strconv.Atoi(k)
		if err != nil || len(entries) == 0 {
			continue
		}
		c.mem[id] = normalize(entries)
	}
}

// persist writes max(memory, durable) for the order and folds the result back
// into memory, so entries written by other sessions are never lost.
func (c *Cache) persist(orderID int) error {
	c.mu.Lock()
	snapshot := c.mem[orderID].clone()
	delete(c.dirty, orderID)
	c.mu.Unlock()

	id := strconv.Itoa(orderID)
	var merged Entries
	err := storage.Update(c.store, StorageKey, func(doc *document) error {
		if *doc == nil {
			*doc = make(document)
		}
		merged = normalize(union(snapshot, (*doc)[id]))
		if len(merged) == 0 {
			delete(*doc, id)
			return nil
		}
		(*doc)[id] = merged
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.dirty[orderID] = true
		c.mu.Unlock()
		return fmt.Errorf("persist order %d: %w", orderID, err)
	}

	c.mu.Lock()
	c.setLocked(orderID, normalize(union(c.mem[orderID], merged)))
	c.mu.Unlock()
	return nil
}

func (c *Cache) setLocked(orderID int, entries Entries) {
	if len(entries) == 0 {
		delete(c.mem, orderID)
		return
	}
	c.mem[orderID] = entries
}
