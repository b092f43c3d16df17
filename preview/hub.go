package preview

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Envelope types exchanged with the sandbox.
const (
	TypeFiles   = "files"
	TypeTheme   = "theme"
	TypeConsole = "console"
	TypeError   = "error"
)

// Envelope is the only message shape that crosses the sandbox boundary.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const subscriberBuffer = 64

// Hub fans envelopes out to the subscribers of each preview. Delivery is FIFO per
// subscriber; a subscriber whose buffer is full misses the envelope.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	logger *logrus.Logger
}

type subscriber struct {
	ch     chan Envelope
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subs:   make(map[string][]*subscriber),
		logger: logger,
	}
}

// Subscribe returns a channel receiving the envelopes published for id.
// Call the returned function to unsubscribe and close the channel.
func (h *Hub) Subscribe(id string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, subscriberBuffer)
	sub := &subscriber{ch: ch}

	h.mu.Lock()
	h.subs[id] = append(h.subs[id], sub)
	h.mu.Unlock()
	previewSubscribers.Inc()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			subs := h.subs[id]
			for i, s := range subs {
				if s == sub {
					h.subs[id] = append(subs[:i:i], subs[i+1:]...)
					if !s.closed {
						s.closed = true
						close(s.ch)
					}
					break
				}
			}
			if len(h.subs[id]) == 0 {
				delete(h.subs, id)
			}
			previewSubscribers.Dec()
		})
	}

	return ch, unsub
}

// Publish sends env to every subscriber of id and returns how many received it.
func (h *Hub) Publish(id string, env Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subs[id] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- env:
			delivered++
		default:
			envelopesDropped.WithLabelValues(env.Type).Inc()
			h.logger.WithFields(logrus.Fields{
				"previewId": id,
				"type":      env.Type,
			}).Warn("Dropping envelope for slow preview subscriber")
		}
	}
	envelopesPublished.WithLabelValues(env.Type).Inc()
	return delivered
}

// Subscribers returns the number of subscribers of id.
func (h *Hub) Subscribers(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}
