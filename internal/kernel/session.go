package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Lifecycle misuse. Callers are expected to check State first.
var (
	ErrAlreadyRunning = errors.New("channels already running")
	ErrNotRunning     = errors.New("channels not running")
)

// State is the session lifecycle state.
type State int

const (
	NotStarted State = iota
	Running
	Stopped
)

var stateNames = map[State]string{
	NotStarted: "not_started",
	Running:    "running",
	Stopped:    "stopped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Options configures a Session.
type Options struct {
	Connector Connector
	Sink      Sink

	// Process is called by Flush after queued events have been posted. It
	// should make the consumer handle everything posted so far before
	// returning, e.g. Queue.Drain on the consumer goroutine.
	Process func()

	// ReadlineTag is the side-input request tag; DefaultReadlineTag if empty.
	ReadlineTag string

	// ExtraReplies are additional reply tags posted as generic Reply events.
	ExtraReplies []string

	Logger *slog.Logger
}

// Session owns the three kernel channels and starts and stops them as a unit.
type Session struct {
	connector Connector
	sink      Sink
	log       *slog.Logger

	mu       sync.Mutex
	state    State
	channels map[Role]*Channel
}

// NewSession builds the channels. It fails if the reply table does not cover
// every request kind.
func NewSession(opts Options) (*Session, error) {
	if opts.Connector == nil {
		return nil, errors.New("session: nil connector")
	}
	if opts.Sink == nil {
		return nil, errors.New("session: nil sink")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	replies := DefaultReplyTable().With(opts.ExtraReplies...)
	if err := replies.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	classifiers := map[Role]Classifier{
		Broadcast:    ClassifyBroadcast,
		RequestReply: replies.Classifier(),
		SideInput:    SideInputClassifier(opts.ReadlineTag),
	}

	s := &Session{
		connector: opts.Connector,
		sink:      opts.Sink,
		log:       log,
		channels:  make(map[Role]*Channel, len(Roles)),
	}
	for _, role := range Roles {
		s.channels[role] = newChannel(role, classifiers[role], opts.Sink, opts.Process, log)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel returns the channel for role.
func (s *Session) Channel(role Role) *Channel {
	return s.channels[role]
}

// StartChannels connects every role and starts receiving. StartedChannels is
// posted once, before any channel event. If a connection fails the ones
// already open are closed and the state is left unchanged.
func (s *Session) StartChannels(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return fmt.Errorf("start channels: %w", ErrAlreadyRunning)
	}

	conns := make([]Conn, len(Roles))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range Roles {
		g.Go(func() error {
			conn, err := s.connector.Connect(gctx, role)
			if err != nil {
				return fmt.Errorf("connect %s: %w", role, err)
			}
			conns[i] = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, conn := range conns {
			if conn != nil {
				conn.Close()
			}
		}
		return fmt.Errorf("start channels: %w", err)
	}

	for i, role := range Roles {
		if err := s.channels[role].start(conns[i]); err != nil {
			return fmt.Errorf("start channels: %w", err)
		}
	}
	s.state = Running
	s.sink.Post(StartedChannels{})
	for _, role := range Roles {
		s.channels[role].openDelivery()
	}
	s.log.Info("channels started")
	return nil
}

// StopChannels stops every channel, waits for their goroutines, and posts
// StoppedChannels once. Envelopes received but not yet delivered are
// discarded. No channel event is posted after StoppedChannels.
func (s *Session) StopChannels() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return fmt.Errorf("stop channels in state %s: %w", s.state, ErrNotRunning)
	}

	var g errgroup.Group
	for _, role := range Roles {
		g.Go(s.channels[role].stop)
	}
	err := g.Wait()

	s.state = Stopped
	s.sink.Post(StoppedChannels{})
	s.log.Info("channels stopped")
	return err
}

// Flush flushes the broadcast channel. Call it before blocking on a reply so
// pending output is observed first. It must not be called from the
// goroutine that Process waits on.
func (s *Session) Flush() int {
	return s.channels[Broadcast].Flush()
}

// Stats returns per-channel counters.
func (s *Session) Stats() map[Role]Stats {
	out := make(map[Role]Stats, len(s.channels))
	for role, ch := range s.channels {
		out[role] = ch.Stats()
	}
	return out
}

// Execute asks the kernel to run code and returns the request's msg_id.
func (s *Session) Execute(ctx context.Context, code string, silent bool) (string, error) {
	env, id := ExecuteRequest(code, silent)
	return id, s.channels[RequestReply].Send(ctx, env)
}

// Complete asks for completions of text at cursor within line.
func (s *Session) Complete(ctx context.Context, text, line string, cursor int) (string, error) {
	env, id := CompleteRequest(text, line, cursor)
	return id, s.channels[RequestReply].Send(ctx, env)
}

// ObjectInfo asks for introspection data about name.
func (s *Session) ObjectInfo(ctx context.Context, name string) (string, error) {
	env, id := ObjectInfoRequest(name)
	return id, s.channels[RequestReply].Send(ctx, env)
}

// KernelInfo asks the kernel to describe itself.
func (s *Session) KernelInfo(ctx context.Context) (string, error) {
	env, id := KernelInfoRequest()
	return id, s.channels[RequestReply].Send(ctx, env)
}

// History asks for the last n executed inputs.
func (s *Session) History(ctx context.Context, n int) (string, error) {
	env, id := HistoryRequest(n)
	return id, s.channels[RequestReply].Send(ctx, env)
}

// Input answers a ReadlineRequested event.
func (s *Session) Input(ctx context.Context, value string) error {
	return s.channels[SideInput].Send(ctx, ReadlineReplyEnvelope(value))
}
