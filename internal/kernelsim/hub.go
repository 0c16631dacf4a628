package kernelsim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// sender is the write half of a subscriber's connection.
type sender interface {
	Send(ctx context.Context, env kernel.Envelope) error
	Close() error
}

type subscriber struct {
	name string
	conn sender
	send chan kernel.Envelope
}

func newSubscriber(name string, conn sender, buf int) *subscriber {
	s := &subscriber{
		name: name,
		conn: conn,
		send: make(chan kernel.Envelope, buf),
	}
	go s.writePump()
	return s
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for env := range s.send {
		if err := s.conn.Send(context.Background(), env); err != nil {
			return
		}
	}
}

// Hub fans broadcast envelopes out to every iopub subscriber.
type Hub struct {
	// mu guards subs and every send on a subscriber channel; send channels
	// are only closed with mu held for writing.
	mu   sync.RWMutex
	subs map[*subscriber]bool
	buf  int
	log  *slog.Logger
}

func NewHub(buf int, log *slog.Logger) *Hub {
	if buf <= 0 {
		buf = 64
	}
	return &Hub{
		subs: make(map[*subscriber]bool),
		buf:  buf,
		log:  log,
	}
}

// Add registers conn and starts its write pump.
func (h *Hub) Add(name string, conn sender) *subscriber {
	s := newSubscriber(name, conn, h.buf)
	h.mu.Lock()
	h.subs[s] = true
	h.mu.Unlock()
	return s
}

// Remove unregisters s and stops its write pump. Removing twice is a no-op.
func (h *Hub) Remove(s *subscriber) {
	h.mu.Lock()
	if h.subs[s] {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// Publish queues env for every subscriber. A subscriber whose buffer is full
// is disconnected.
func (h *Hub) Publish(env kernel.Envelope) {
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- env:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("iopub subscriber too slow, disconnecting", "conn", s.name)
		h.Remove(s)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
