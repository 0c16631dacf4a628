package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// EventMsg carries one kernel event into the Bubble Tea loop.
type EventMsg struct{ Event kernel.Event }

// syncMsg is closed by Model.Update once every earlier message is handled.
type syncMsg struct{ done chan struct{} }

// syncEvent rides the queue so the marker stays behind everything posted
// before it.
type syncEvent struct{ done chan struct{} }

func (syncEvent) Kind() kernel.Kind { return "sync" }

// Pump forwards a kernel.Queue into a Bubble Tea program in order.
// tea.Program.Send blocks until the event loop takes the message, so the
// queue absorbs bursts and the channel goroutines never block on the UI.
type Pump struct {
	q       *kernel.Queue
	send    func(tea.Msg)
	stopped chan struct{}
}

// NewPump creates a pump delivering to send, usually (*tea.Program).Send.
func NewPump(q *kernel.Queue, send func(tea.Msg)) *Pump {
	return &Pump{q: q, send: send, stopped: make(chan struct{})}
}

// Run forwards events until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	defer close(p.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.q.Ready():
			p.q.Drain(func(ev kernel.Event) {
				if s, ok := ev.(syncEvent); ok {
					p.send(syncMsg{done: s.done})
					return
				}
				p.send(EventMsg{Event: ev})
			})
		}
	}
}

// Sync blocks until the program has handled every event posted before the
// call. It is the session's Process hook and must not be called from
// Update.
func (p *Pump) Sync() {
	done := make(chan struct{})
	p.q.Post(syncEvent{done: done})
	select {
	case <-done:
	case <-p.stopped:
	}
}
