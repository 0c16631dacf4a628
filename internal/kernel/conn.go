package kernel

import "context"

// Conn is one stream's transport handle.
type Conn interface {
	// Receive blocks until the next envelope arrives. Undecodable frames are
	// reported as errors wrapping ErrMalformed; any other error ends the
	// stream. Receive must return promptly once ctx is done or Close is called.
	Receive(ctx context.Context) (Envelope, error)
	// Send writes an envelope. It must be safe to call concurrently with
	// Receive.
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Connector opens the transport for a role.
type Connector interface {
	Connect(ctx context.Context, role Role) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, role Role) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, role Role) (Conn, error) {
	return f(ctx, role)
}
