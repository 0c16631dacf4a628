package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nagyistoce/jupyter-client/internal/config"
	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: connection closed")

// Options tunes websocket connections.
type Options struct {
	Codec        Codec
	Token        string
	DialTimeout  time.Duration
	DialRetries  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration // 0 disables pings
	PongTimeout  time.Duration // 0 disables the read deadline
	Logger       *slog.Logger
}

// OptionsFromConfig builds Options from the kernel section of cfg.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) (Options, error) {
	codec, err := ByName(cfg.Kernel.Codec)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Codec:        codec,
		Token:        cfg.Kernel.Token,
		DialTimeout:  cfg.Kernel.DialTimeout,
		DialRetries:  cfg.Kernel.DialRetries,
		BaseDelay:    cfg.Kernel.ReconnectBaseDelay,
		MaxDelay:     cfg.Kernel.ReconnectMaxDelay,
		WriteTimeout: cfg.Kernel.WriteTimeout,
		PingInterval: cfg.Kernel.PingInterval,
		PongTimeout:  cfg.Kernel.PongTimeout,
		Logger:       logger,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Codec == nil {
		o.Codec = JSON()
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// WSConn is a kernel.Conn over one websocket.
type WSConn struct {
	name  string
	conn  *websocket.Conn
	codec Codec
	opts  Options
	log   *slog.Logger

	writeMu   sync.Mutex // serialises all conn writes (ping, envelopes, close)
	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn, name string, opts Options) *WSConn {
	c := &WSConn{
		name:   name,
		conn:   conn,
		codec:  opts.Codec,
		opts:   opts,
		log:    opts.Logger.With("conn", name),
		closed: make(chan struct{}),
	}

	if opts.PongTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	}
	if opts.PingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

// Name identifies the connection in logs.
func (c *WSConn) Name() string { return c.name }

// Receive reads the next envelope. Cancelling ctx unblocks the read; the
// connection is unusable afterwards.
func (c *WSConn) Receive(ctx context.Context) (kernel.Envelope, error) {
	// The net.Conn deadline is safe to set while ReadMessage blocks; the
	// websocket.Conn read methods are not.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.NetConn().SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return kernel.Envelope{}, ctx.Err()
		}
		select {
		case <-c.closed:
			return kernel.Envelope{}, fmt.Errorf("%s: %w", c.name, ErrClosed)
		default:
		}
		return kernel.Envelope{}, fmt.Errorf("%s: read: %w", c.name, err)
	}
	return Decode(c.codec, data)
}

// Send writes env as one frame.
func (c *WSConn) Send(ctx context.Context, env kernel.Envelope) error {
	data, err := Encode(c.codec, env)
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", c.name, env.Type(), err)
	}

	select {
	case <-c.closed:
		return fmt.Errorf("%s: %w", c.name, ErrClosed)
	default:
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
		return fmt.Errorf("%s: write: %w", c.name, err)
	}
	return nil
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// pingLoop sends periodic pings until the connection closes.
func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("ping failed", "err", err)
				return
			}
		}
	}
}

// Connector dials one websocket per role under a base URL.
type Connector struct {
	baseURL   string
	endpoints map[kernel.Role]string
	opts      Options
	dialer    *websocket.Dialer
}

// NewConnector creates a Connector for baseURL (e.g. "ws://127.0.0.1:8765").
func NewConnector(baseURL string, endpoints map[kernel.Role]string, opts Options) *Connector {
	opts = opts.withDefaults()
	return &Connector{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		opts:      opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
	}
}

// URL returns the websocket URL for role.
func (c *Connector) URL(role kernel.Role) string {
	return c.baseURL + "/" + c.endpoints[role]
}

// Connect dials role's endpoint, retrying with exponential backoff up to
// DialRetries times.
func (c *Connector) Connect(ctx context.Context, role kernel.Role) (kernel.Conn, error) {
	if c.endpoints[role] == "" {
		return nil, fmt.Errorf("no endpoint for %s", role)
	}
	u := c.URL(role)

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	header.Set("X-Kernel-Codec", c.opts.Codec.Name())

	delay := c.opts.BaseDelay
	for attempt := 0; ; attempt++ {
		conn, _, err := c.dialer.DialContext(ctx, u, header)
		if err == nil {
			return newWSConn(conn, role.String(), c.opts), nil
		}
		if attempt >= c.opts.DialRetries {
			return nil, fmt.Errorf("dial %s: %w", u, err)
		}
		c.opts.Logger.Warn("dial failed", "url", u, "err", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.opts.MaxDelay)
	}
}

// Upgrade accepts a websocket on the server side.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, name string, opts Options) (*WSConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn, name, opts.withDefaults()), nil
}
