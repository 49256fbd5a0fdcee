// Package broadcast propagates state changes between sessions sharing a state
// directory. Every publish rewrites one store key with a fresh value; the
// other sessions observe the write through the store watcher.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/events"
	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/storage"
)

// StorageKey is the store key every broadcast is written to.
const StorageKey = "apontamento_broadcast"

// seenTTL bounds how long nonces are remembered for duplicate detection.
const seenTTL = time.Minute

type Type string

const (
	TypeQuantity  Type = "quantity"
	TypeStop      Type = "stop"
	TypeQPTUpdate Type = "qpt_update"
)

// Message is the broadcast payload. Quantity messages may omit Type.
type Message struct {
	Type     Type           `json:"type,omitempty"`
	OrderID  int            `json:"osId"`
	Quantity model.Quantity `json:"quantidade,omitzero"`
	TaskID   *int           `json:"trabalhoId,omitempty"`
	TaskName string         `json:"trabalhoNome,omitempty"`
	ItemCode string         `json:"itemCodigoBase,omitempty"`
	Origin   string         `json:"origin,omitempty"`
	Nonce    string         `json:"nonce,omitempty"`
	SentAt   int64          `json:"ts,omitempty"` // unix milliseconds
}

// Kind is the message type, defaulting to quantity.
func (m Message) Kind() Type {
	if m.Type == "" {
		return TypeQuantity
	}
	return m.Type
}

func (m Message) eventType() (events.EventType, bool) {
	switch m.Kind() {
	case TypeQuantity:
		return events.EventQuantity, true
	case TypeStop:
		return events.EventStop, true
	case TypeQPTUpdate:
		return events.EventQPTUpdate, true
	}
	return "", false
}

// Channel publishes and receives broadcasts for one session.
type Channel struct {
	store  *storage.Store
	bus    *events.Bus
	origin string
	now    func() time.Time
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func New(store *storage.Store, bus *events.Bus, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		store:  store,
		bus:    bus,
		origin: uuid.NewString(),
		now:    time.Now,
		logger: logger.Named("broadcast"),
		seen:   make(map[string]time.Time),
	}
}

// Origin identifies this session in published messages.
func (c *Channel) Origin() string {
	return c.origin
}

// Publish stamps m with this session's origin and a fresh nonce and writes it
// to the channel key.
func (c *Channel) Publish(m Message) error {
	m.Origin = c.origin
	m.Nonce = uuid.NewString()
	m.SentAt = c.now().UnixMilli()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	if err := c.store.SetRaw(StorageKey, data); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	c.logger.Debug("published",
		zap.String("type", string(m.Kind())),
		zap.Int("order", m.OrderID))
	return nil
}

// Handle decodes one channel value and publishes it on the bus. Undecodable
// values, this session's own messages and already seen nonces are dropped.
// It reports whether the message was delivered.
func (c *Channel) Handle(raw []byte) (Message, bool) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		c.logger.Warn("undecodable broadcast ignored", zap.Error(err))
		return Message{}, false
	}
	if m.Origin != "" && m.Origin == c.origin {
		return m, false
	}
	et, ok := m.eventType()
	if !ok {
		c.logger.Warn("unknown broadcast type ignored", zap.String("type", string(m.Type)))
		return m, false
	}
	if m.OrderID <= 0 {
		c.logger.Warn("broadcast without order ignored", zap.String("type", string(m.Kind())))
		return m, false
	}
	if !c.firstSight(m.Nonce) {
		return m, false
	}
	if c.bus != nil {
		c.bus.Publish(et, m.OrderID, m)
	}
	return m, true
}

func (c *Channel) firstSight(nonce string) bool {
	if nonce == "" {
		return true
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for n, at := range c.seen {
		if now.Sub(at) > seenTTL {
			delete(c.seen, n)
		}
	}
	if _, dup := c.seen[nonce]; dup {
		return false
	}
	c.seen[nonce] = now
	return true
}

// Listen handles channel writes from changes until ctx is done or changes is
// closed. Changes to other keys are ignored.
func (c *Channel) Listen(ctx context.Context, changes <-chan storage.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			if ch.Key != StorageKey || ch.Value == nil {
				continue
			}
			c.Handle(ch.Value)
		}
	}
}
