package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

const ChannelIngestion = "ingestion"

const EventDrainCompleted = "drain.completed"

// Message is one broadcast. Origin identifies the publishing process so that
// transports can drop their own echoes.
type Message struct {
	Channel string    `json:"channel"`
	Event   string    `json:"event"`
	Data    any       `json:"data,omitempty"`
	Origin  string    `json:"origin,omitempty"`
	At      time.Time `json:"at"`
}

type Handler func(Message)

// Handle identifies a subscription for Unsubscribe.
type Handle struct {
	ID      uuid.UUID
	Channel string
}

// Transport carries hub messages between processes.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(m Message)) error
	Close() error
}

type subscription struct {
	id      uuid.UUID
	channel string
	handler Handler

	mu     sync.Mutex
	closed bool
}

// Hub is an in-process broadcast channel. Messages are delivered to the
// subscribers present at publish time and are not retained.
type Hub struct {
	mu         sync.RWMutex
	log        *logger.Logger
	origin     string
	subs       map[string]map[uuid.UUID]*subscription
	transports []Transport
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:    log.With("component", "NotificationHub"),
		origin: uuid.NewString(),
		subs:   make(map[string]map[uuid.UUID]*subscription),
	}
}

func (h *Hub) Origin() string { return h.origin }

func (h *Hub) Subscribe(channel string, handler Handler) Handle {
	channel = strings.TrimSpace(channel)
	sub := &subscription{id: uuid.New(), channel: channel, handler: handler}

	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.subs[channel]
	if !ok {
		m = make(map[uuid.UUID]*subscription)
		h.subs[channel] = m
	}
	m[sub.id] = sub
	h.log.Debug("subscribed", "channel", channel, "subscription_id", sub.id)
	return Handle{ID: sub.id, Channel: channel}
}

// Unsubscribe removes the subscription. When it returns, any delivery already
// in progress has finished and the handler will not be called again. A
// handler must not unsubscribe itself synchronously.
func (h *Hub) Unsubscribe(handle Handle) bool {
	h.mu.Lock()
	m := h.subs[handle.Channel]
	sub, ok := m[handle.ID]
	if ok {
		delete(m, handle.ID)
		if len(m) == 0 {
			delete(h.subs, handle.Channel)
		}
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
	h.log.Debug("unsubscribed", "channel", handle.Channel, "subscription_id", handle.ID)
	return true
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.TrimSpace(channel)])
}

// Publish delivers to local subscribers and forwards to attached transports.
// It returns the number of local handlers invoked.
func (h *Hub) Publish(ctx context.Context, channel, event string, data any) int {
	msg := Message{
		Channel: strings.TrimSpace(channel),
		Event:   event,
		Data:    data,
		Origin:  h.origin,
		At:      time.Now().UTC(),
	}
	n := h.deliver(msg)

	h.mu.RLock()
	transports := append([]Transport(nil), h.transports...)
	h.mu.RUnlock()
	for _, t := range transports {
		if err := t.Publish(ctx, msg); err != nil {
			h.log.Warn("notification forward failed", "channel", msg.Channel, "event", event, "error", err)
		}
	}
	return n
}

func (h *Hub) deliver(msg Message) int {
	if msg.Channel == "" {
		return 0
	}
	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.subs[msg.Channel]))
	for _, sub := range h.subs[msg.Channel] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	n := 0
	for _, sub := range targets {
		if h.invoke(sub, msg) {
			n++
		}
	}
	return n
}

func (h *Hub) invoke(sub *subscription, msg Message) (called bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || sub.handler == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("notification handler panic", "channel", msg.Channel, "subscription_id", sub.id, "panic", r)
		}
	}()
	sub.handler(msg)
	return true
}

// Attach starts forwarding messages from t into the hub and registers t for
// outgoing publications. Messages carrying this hub's origin are ignored.
func (h *Hub) Attach(ctx context.Context, t Transport) error {
	if t == nil {
		return nil
	}
	err := t.StartForwarder(ctx, func(m Message) {
		if m.Origin == h.origin {
			return
		}
		h.deliver(m)
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.transports = append(h.transports, t)
	h.mu.Unlock()
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	transports := h.transports
	h.transports = nil
	h.mu.Unlock()
	var firstErr error
	for _, t := range transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
