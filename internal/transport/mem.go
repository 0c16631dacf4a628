package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// MemConn is one end of an in-memory pipe.
type MemConn struct {
	name       string
	in         <-chan kernel.Envelope
	out        chan<- kernel.Envelope
	closed     chan struct{}
	peerClosed <-chan struct{}
	closeOnce  sync.Once
}

// Pipe returns two connected ends, each buffering up to buf envelopes.
func Pipe(name string, buf int) (*MemConn, *MemConn) {
	ab := make(chan kernel.Envelope, buf)
	ba := make(chan kernel.Envelope, buf)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})
	a := &MemConn{name: name, in: ba, out: ab, closed: aClosed, peerClosed: bClosed}
	b := &MemConn{name: name + "/peer", in: ab, out: ba, closed: bClosed, peerClosed: aClosed}
	return a, b
}

// Receive returns the next envelope, io.EOF once the peer has closed and
// everything it sent has been read.
func (c *MemConn) Receive(ctx context.Context) (kernel.Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	case <-ctx.Done():
		return kernel.Envelope{}, ctx.Err()
	case <-c.closed:
		return kernel.Envelope{}, fmt.Errorf("%s: %w", c.name, ErrClosed)
	case <-c.peerClosed:
		select {
		case env := <-c.in:
			return env, nil
		default:
		}
		return kernel.Envelope{}, fmt.Errorf("%s: %w", c.name, io.EOF)
	}
}

// Send blocks when the buffer is full.
func (c *MemConn) Send(ctx context.Context, env kernel.Envelope) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%s: %w", c.name, ErrClosed)
	case <-c.peerClosed:
		return fmt.Errorf("%s: %w", c.name, ErrClosed)
	default:
	}
	select {
	case c.out <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("%s: %w", c.name, ErrClosed)
	case <-c.peerClosed:
		return fmt.Errorf("%s: %w", c.name, ErrClosed)
	}
}

func (c *MemConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// MemConnector opens a fresh pipe per Connect and keeps the kernel-side end
// for the caller to drive.
type MemConnector struct {
	buf int

	mu    sync.Mutex
	peers map[kernel.Role]*MemConn
}

// NewMemConnector creates a connector whose pipes buffer buf envelopes.
func NewMemConnector(buf int) *MemConnector {
	return &MemConnector{
		buf:   buf,
		peers: make(map[kernel.Role]*MemConn),
	}
}

func (m *MemConnector) Connect(_ context.Context, role kernel.Role) (kernel.Conn, error) {
	local, peer := Pipe(role.String(), m.buf)
	m.mu.Lock()
	m.peers[role] = peer
	m.mu.Unlock()
	return local, nil
}

// Kernel returns the kernel-side end of role's most recent pipe, or nil.
func (m *MemConnector) Kernel(role kernel.Role) *MemConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[role]
}
