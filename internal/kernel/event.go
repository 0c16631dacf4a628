package kernel

// Role identifies one of the three kernel streams.
type Role int

const (
	Broadcast    Role = iota // kernel-initiated output (iopub)
	RequestReply             // replies to our requests (shell)
	SideInput                // kernel asks the consumer for input (stdin)
)

// Roles lists every role in start order.
var Roles = []Role{Broadcast, RequestReply, SideInput}

var roleNames = map[Role]string{
	Broadcast:    "broadcast",
	RequestReply: "request_reply",
	SideInput:    "side_input",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// Kind names an event in the consumer-facing catalogue.
type Kind string

const (
	KindMessageReceived   Kind = "message_received"
	KindOutputReceived    Kind = "output_received"
	KindErrorReceived     Kind = "error_received"
	KindExecuteReply      Kind = "execute_reply"
	KindCompleteReply     Kind = "complete_reply"
	KindObjectInfoReply   Kind = "object_info_reply"
	KindKernelInfoReply   Kind = "kernel_info_reply"
	KindHistoryReply      Kind = "history_reply"
	KindReply             Kind = "reply"
	KindReadlineRequested Kind = "readline_requested"
	KindStartedChannels   Kind = "started_channels"
	KindStoppedChannels   Kind = "stopped_channels"
	KindConnectionLost    Kind = "connection_lost"
)

// Event is a classified notification posted to a Sink. Concrete types double
// as Bubble Tea messages.
type Event interface {
	Kind() Kind
}

// MessageReceived is posted for every envelope on every channel.
type MessageReceived struct {
	Role     Role
	Envelope Envelope
}

// OutputReceived is posted for stream-output envelopes on the broadcast channel.
type OutputReceived struct{ Envelope Envelope }

// ErrorReceived is posted for stream-error envelopes on the broadcast channel.
type ErrorReceived struct{ Envelope Envelope }

// ExecuteReply answers an execute request.
type ExecuteReply struct{ Envelope Envelope }

// CompleteReply answers a completion request.
type CompleteReply struct{ Envelope Envelope }

// ObjectInfoReply answers an object introspection request.
type ObjectInfoReply struct{ Envelope Envelope }

// KernelInfoReply answers a kernel info request.
type KernelInfoReply struct{ Envelope Envelope }

// HistoryReply answers a history request.
type HistoryReply struct{ Envelope Envelope }

// Reply carries a reply kind configured at runtime that has no dedicated type.
type Reply struct {
	Tag      string
	Envelope Envelope
}

// ReadlineRequested is posted when the kernel blocks waiting for user input.
type ReadlineRequested struct{ Envelope Envelope }

// StartedChannels is posted once all channels are receiving.
type StartedChannels struct{}

// StoppedChannels is posted once all channels have stopped. No channel event
// is posted after it.
type StoppedChannels struct{}

// ConnectionLost is posted when a channel's transport fails. The channel stops
// receiving; outstanding requests on it will not be answered.
type ConnectionLost struct {
	Role Role
	Err  error
}

func (MessageReceived) Kind() Kind   { return KindMessageReceived }
func (OutputReceived) Kind() Kind    { return KindOutputReceived }
func (ErrorReceived) Kind() Kind     { return KindErrorReceived }
func (ExecuteReply) Kind() Kind      { return KindExecuteReply }
func (CompleteReply) Kind() Kind     { return KindCompleteReply }
func (ObjectInfoReply) Kind() Kind   { return KindObjectInfoReply }
func (KernelInfoReply) Kind() Kind   { return KindKernelInfoReply }
func (HistoryReply) Kind() Kind      { return KindHistoryReply }
func (Reply) Kind() Kind             { return KindReply }
func (ReadlineRequested) Kind() Kind { return KindReadlineRequested }
func (StartedChannels) Kind() Kind   { return KindStartedChannels }
func (StoppedChannels) Kind() Kind   { return KindStoppedChannels }
func (ConnectionLost) Kind() Kind    { return KindConnectionLost }
