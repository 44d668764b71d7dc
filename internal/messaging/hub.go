package messaging

import (
	"log/slog"
	"sync"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
)

// Event is one item of a user's live stream: a message change or a
// notification change.
type Event struct {
	Message      *inbox.MessageEvent `json:"message,omitempty"`
	Notification *inbox.Notification `json:"notification,omitempty"`
}

const subscriberBuffer = 64

// Hub fans live events out to the sessions of each user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a stream for userID. The returned func unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// PublishMessage delivers ev to both sides of the conversation.
func (h *Hub) PublishMessage(ev inbox.MessageEvent) {
	h.send(ev.SenderID, Event{Message: &ev})
	if ev.ReceiverID != ev.SenderID {
		h.send(ev.ReceiverID, Event{Message: &ev})
	}
}

// PublishNotification delivers n to its owner.
func (h *Hub) PublishNotification(userID string, n inbox.Notification) {
	h.send(userID, Event{Notification: &n})
}

// send never blocks; a slow session drops events and catches up on its
// next reload.
func (h *Hub) send(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			slog.Debug("hub subscriber full, event dropped", "user_id", userID)
		}
	}
}
