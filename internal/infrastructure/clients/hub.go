package clients

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

const (
	EventActivated    = "ACTIVATED"
	EventNotification = "NOTIFICATION"
)

// clientBuffer is how many events a slow client may lag before events are
// dropped for it.
const clientBuffer = 16

// Event is one message on a client's event stream.
type Event struct {
	ID   uuid.UUID       `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	id      uuid.UUID
	events  chan Event
	claimed string
}

// Hub tracks connected foreground clients. It claims them on activation and
// displays local notifications by pushing them down their event streams.
type Hub struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

var (
	_ ports.ClientHub = (*Hub)(nil)
	_ ports.Notifier  = (*Hub)(nil)
)

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[uuid.UUID]*client)}
}

// Subscribe registers a client. The returned cancel func unregisters it and
// closes its channel.
func (h *Hub) Subscribe() (uuid.UUID, <-chan Event, func()) {
	c := &client{id: uuid.New(), events: make(chan Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	var once sync.Once
	return c.id, c.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, c.id)
			h.mu.Unlock()
			close(c.events)
		})
	}
}

// Claim marks every connected client as controlled by epoch and tells them.
func (h *Hub) Claim(ctx context.Context, epoch string) int {
	data, _ := json.Marshal(map[string]string{"epoch": epoch})
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.claimed = epoch
		h.send(c, Event{ID: uuid.New(), Type: EventActivated, At: time.Now().UTC(), Data: data})
	}
	return len(h.clients)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify shows n on every connected client.
func (h *Hub) Notify(ctx context.Context, n notification.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.send(c, Event{ID: uuid.New(), Type: EventNotification, At: time.Now().UTC(), Data: data})
	}
	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{"tag": n.Tag, "clients": len(h.clients)}).Debug("clients: notification shown")
	}
	return nil
}

// send never blocks; callers hold h.mu.
func (h *Hub) send(c *client, ev Event) {
	select {
	case c.events <- ev:
	default:
		if h.logger != nil {
			h.logger.WithFields(logrus.Fields{"client_id": c.id, "event": ev.Type}).Warn("clients: event dropped for slow client")
		}
	}
}
