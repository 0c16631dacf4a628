package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type channelState int

const (
	chIdle channelState = iota
	chRunning
	chFailed // transport died; waiting for stop
	chStopping
	chStopped
)

// item is one inbox entry: an envelope, or the error that ended the stream.
type item struct {
	env Envelope
	err error
}

// Stats counts envelopes seen by a channel across restarts.
type Stats struct {
	Received  int // accepted into the inbox
	Delivered int // classified and posted
	Dropped   int // malformed, never queued
	Discarded int // queued but thrown away by stop
}

// Channel owns one kernel stream. A receive goroutine reads the transport into
// an inbox; a delivery goroutine classifies inbox entries and posts the events
// to the sink in arrival order.
type Channel struct {
	role     Role
	classify Classifier
	sink     Sink
	process  func()
	log      *slog.Logger

	mu     sync.Mutex
	state  channelState
	open   bool // delivery allowed
	conn   Conn
	cancel context.CancelFunc
	inbox  []item
	stats  Stats
	wake   chan struct{}
	wg     sync.WaitGroup

	// deliverMu serialises the delivery goroutine and Flush so events of one
	// envelope are never interleaved with another's.
	deliverMu sync.Mutex
}

func newChannel(role Role, classify Classifier, sink Sink, process func(), log *slog.Logger) *Channel {
	return &Channel{
		role:     role,
		classify: classify,
		sink:     sink,
		process:  process,
		log:      log.With("channel", role.String()),
		wake:     make(chan struct{}, 1),
	}
}

// Role returns the stream this channel carries.
func (c *Channel) Role() Role { return c.role }

// Running reports whether the channel is actively receiving.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == chRunning
}

// Stats returns a snapshot of the channel's counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Send writes env on the channel's transport.
func (c *Channel) Send(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != chRunning {
		return fmt.Errorf("%s channel: %w", c.role, ErrNotRunning)
	}
	return conn.Send(ctx, env)
}

// Flush posts every envelope already in the inbox, then runs the consumer's
// process callback so those events are handled before Flush returns. It never
// reads from the transport. It returns the number of envelopes flushed.
func (c *Channel) Flush() int {
	n := c.deliverPending()
	if c.process != nil {
		c.process()
	}
	return n
}

// start launches the receive and delivery goroutines on conn. Nothing is
// posted until openDelivery is called.
func (c *Channel) start(conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case chRunning, chFailed, chStopping:
		return fmt.Errorf("%s channel: %w", c.role, ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.state = chRunning
	c.open = false
	c.conn = conn
	c.cancel = cancel
	c.inbox = nil

	c.wg.Add(2)
	go c.receiveLoop(ctx, conn)
	go c.deliverLoop(ctx)
	return nil
}

func (c *Channel) openDelivery() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.signal()
}

// stop ends both goroutines and discards whatever is still in the inbox.
// When it returns the channel will not post again.
func (c *Channel) stop() error {
	c.mu.Lock()
	if c.state != chRunning && c.state != chFailed {
		c.mu.Unlock()
		return fmt.Errorf("%s channel: %w", c.role, ErrNotRunning)
	}
	c.state = chStopping
	cancel, conn := c.cancel, c.conn
	c.mu.Unlock()

	cancel()
	if err := conn.Close(); err != nil {
		c.log.Debug("close transport", "err", err)
	}
	c.wg.Wait()

	// A concurrent Flush may still be posting; wait it out.
	c.deliverMu.Lock()
	c.mu.Lock()
	discarded := len(c.inbox)
	c.stats.Discarded += discarded
	c.inbox = nil
	c.state = chStopped
	c.open = false
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()
	c.deliverMu.Unlock()

	if discarded > 0 {
		c.log.Info("discarded undelivered envelopes on stop", "count", discarded)
	}
	return nil
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) receiveLoop(ctx context.Context, conn Conn) {
	defer c.wg.Done()
	for {
		env, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrMalformed) {
				c.drop(err)
				continue
			}
			c.fail(err)
			return
		}
		if err := env.Validate(); err != nil {
			c.drop(err)
			continue
		}
		c.enqueue(item{env: env})
	}
}

func (c *Channel) drop(err error) {
	c.mu.Lock()
	c.stats.Dropped++
	c.mu.Unlock()
	c.log.Warn("dropping envelope", "err", err)
}

func (c *Channel) fail(err error) {
	c.log.Error("transport failed", "err", err)
	c.mu.Lock()
	if c.state == chRunning {
		c.state = chFailed
	}
	c.mu.Unlock()
	c.enqueue(item{err: err})
}

func (c *Channel) enqueue(it item) {
	c.mu.Lock()
	if c.state == chStopping {
		c.stats.Discarded++
		c.mu.Unlock()
		return
	}
	c.inbox = append(c.inbox, it)
	if it.err == nil {
		c.stats.Received++
	}
	c.mu.Unlock()
	c.signal()
}

func (c *Channel) deliverLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		c.deliverPending()
	}
}

// deliverPending posts inbox entries until the inbox is empty or the channel
// starts stopping. An entry that has been taken is always posted completely.
func (c *Channel) deliverPending() int {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	n := 0
	for {
		c.mu.Lock()
		if !c.open || c.state == chStopping || len(c.inbox) == 0 {
			c.mu.Unlock()
			return n
		}
		it := c.inbox[0]
		c.inbox[0] = item{}
		c.inbox = c.inbox[1:]
		c.mu.Unlock()

		c.emit(it)
		n++
	}
}

func (c *Channel) emit(it item) {
	if it.err != nil {
		c.sink.Post(ConnectionLost{Role: c.role, Err: it.err})
		return
	}
	for _, ev := range c.classify(it.env) {
		c.sink.Post(ev)
	}
	c.mu.Lock()
	c.stats.Delivered++
	c.mu.Unlock()
}
