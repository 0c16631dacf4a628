// Package kernelsim is a small in-process kernel speaking the channel
// protocol over websockets. It backs the `sim` command and the transport
// tests.
package kernelsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nagyistoce/jupyter-client/internal/config"
	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/transport"
)

type Options struct {
	Endpoints    map[kernel.Role]string
	Token        string
	ReadlineTag  string
	InputTimeout time.Duration
	SendBuffer   int
	Transport    transport.Options
	Logger       *slog.Logger
}

// OptionsFromConfig builds simulator options sharing the client's endpoints,
// codec and token.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) (Options, error) {
	topts, err := transport.OptionsFromConfig(cfg, logger)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Endpoints:    cfg.Endpoints(),
		Token:        cfg.Kernel.Token,
		ReadlineTag:  cfg.Channels.ReadlineTag,
		InputTimeout: cfg.Sim.InputTimeout,
		SendBuffer:   cfg.Sim.SendBuffer,
		Transport:    topts,
		Logger:       logger,
	}, nil
}

type Server struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
	hub      *Hub
	interp   *interpreter

	mu    sync.Mutex
	conns map[*transport.WSConn]bool
	stdin *transport.WSConn

	inputs chan string
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadlineTag == "" {
		opts.ReadlineTag = kernel.DefaultReadlineTag
	}
	if opts.InputTimeout <= 0 {
		opts.InputTimeout = 5 * time.Minute
	}
	if opts.Transport.Codec == nil {
		opts.Transport.Codec = transport.JSON()
	}
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = opts.Logger
	}
	s := &Server{
		opts:   opts,
		log:    opts.Logger.With("component", "kernelsim"),
		hub:    NewHub(opts.SendBuffer, opts.Logger),
		conns:  make(map[*transport.WSConn]bool),
		inputs: make(chan string, 1),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	s.interp = newInterpreter(s)
	return s
}

// Handler routes one path per role.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handlers := map[kernel.Role]func(context.Context, *transport.WSConn){
		kernel.Broadcast:    s.serveIOPub,
		kernel.RequestReply: s.serveShell,
		kernel.SideInput:    s.serveStdin,
	}
	for _, role := range kernel.Roles {
		serve := handlers[role]
		name := role.String()
		mux.HandleFunc("/"+s.opts.Endpoints[role], func(w http.ResponseWriter, r *http.Request) {
			s.handleWS(w, r, name, serve)
		})
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("kernel simulator listening", "addr", ln.Addr().String(), "codec", s.opts.Transport.Codec.Name())

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*transport.WSConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Subscribers reports the number of connected iopub clients.
func (s *Server) Subscribers() int { return s.hub.Count() }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, name string, serve func(context.Context, *transport.WSConn)) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := transport.Upgrade(w, r, &s.upgrader, name, s.opts.Transport)
	if err != nil {
		s.log.Warn("ws upgrade error", "err", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()
	s.log.Info("client connected", "channel", name, "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		s.log.Info("client disconnected", "channel", name, "remote", r.RemoteAddr)
	}()
	serve(r.Context(), conn)
}

func (s *Server) serveIOPub(ctx context.Context, conn *transport.WSConn) {
	sub := s.hub.Add(conn.Name(), conn)
	defer s.hub.Remove(sub)
	// iopub is one-way; reading only detects the disconnect.
	for {
		if _, err := conn.Receive(ctx); err != nil && !errors.Is(err, kernel.ErrMalformed) {
			return
		}
	}
}

func (s *Server) serveShell(ctx context.Context, conn *transport.WSConn) {
	for {
		env, err := conn.Receive(ctx)
		if errors.Is(err, kernel.ErrMalformed) {
			s.log.Warn("dropping malformed request", "err", err)
			continue
		}
		if err != nil {
			return
		}
		if err := env.Validate(); err != nil {
			s.log.Warn("dropping request", "err", err)
			continue
		}

		reply := s.interp.handle(ctx, env)
		if err := conn.Send(ctx, reply); err != nil {
			s.log.Warn("shell send failed", "reply", reply.Type(), "err", err)
			return
		}
		if env.Type() == kernel.RequestExecute {
			s.publishStatus("idle", env.String("msg_id"))
		}
	}
}

func (s *Server) serveStdin(ctx context.Context, conn *transport.WSConn) {
	s.mu.Lock()
	s.stdin = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.stdin == conn {
			s.stdin = nil
		}
		s.mu.Unlock()
	}()

	for {
		env, err := conn.Receive(ctx)
		if errors.Is(err, kernel.ErrMalformed) {
			continue
		}
		if err != nil {
			return
		}
		if env.Type() != kernel.ReadlineReply {
			s.log.Debug("ignoring stdin message", "type", env.Type())
			continue
		}
		select {
		case s.inputs <- env.String("value"):
		default:
			s.log.Debug("unsolicited readline reply dropped")
		}
	}
}

var (
	errNoStdin      = errors.New("no stdin client connected")
	errInputTimeout = errors.New("timed out waiting for input")
)

// readline asks the stdin client for a line and waits for the answer.
func (s *Server) readline(ctx context.Context, prompt, parent string) (string, error) {
	s.mu.Lock()
	conn := s.stdin
	s.mu.Unlock()
	if conn == nil {
		return "", errNoStdin
	}

	select {
	case <-s.inputs:
	default:
	}

	req := kernel.NewEnvelope(s.opts.ReadlineTag, map[string]any{
		"prompt":        prompt,
		"parent_msg_id": parent,
	})
	if err := conn.Send(ctx, req); err != nil {
		return "", fmt.Errorf("send %s: %w", s.opts.ReadlineTag, err)
	}

	timer := time.NewTimer(s.opts.InputTimeout)
	defer timer.Stop()
	select {
	case v := <-s.inputs:
		return v, nil
	case <-timer.C:
		return "", errInputTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Server) publish(tag, parent string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["parent_msg_id"] = parent
	s.hub.Publish(kernel.NewEnvelope(tag, fields))
}

func (s *Server) publishStatus(state, parent string) {
	s.publish("status", parent, map[string]any{"execution_state": state})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.opts.Token {
		return true
	}
	if r.Header.Get("X-Kernel-Token") == s.opts.Token {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.opts.Token
}

// checkOrigin allows non-browser clients, same-host pages and loopback.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
