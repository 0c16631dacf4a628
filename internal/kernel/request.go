package kernel

import (
	"strings"

	"github.com/google/uuid"
)

// Request tags sent on the request/reply stream.
const (
	RequestExecute    = "execute_request"
	RequestComplete   = "complete_request"
	RequestObjectInfo = "object_info_request"
	RequestKernelInfo = "kernel_info_request"
	RequestHistory    = "history_request"

	// ReadlineReply answers a side-input request.
	ReadlineReply = "readline_reply"
)

// RequestKinds lists every request this package builds. Each must have a
// matching entry in the reply table.
var RequestKinds = []string{
	RequestExecute,
	RequestComplete,
	RequestObjectInfo,
	RequestKernelInfo,
	RequestHistory,
}

// ReplyTag maps "foo_request" to "foo_reply".
func ReplyTag(requestTag string) string {
	return strings.TrimSuffix(requestTag, "_request") + "_reply"
}

// newRequest stamps a fresh msg_id into fields and returns the envelope with
// that id.
func newRequest(tag string, fields map[string]any) (Envelope, string) {
	id := uuid.NewString()
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["msg_id"] = id
	return Envelope{msgType: tag, fields: fields}, id
}

// ExecuteRequest builds a request to run code.
func ExecuteRequest(code string, silent bool) (Envelope, string) {
	return newRequest(RequestExecute, map[string]any{
		"code":   code,
		"silent": silent,
	})
}

// CompleteRequest builds a completion request for text at cursor in line.
func CompleteRequest(text, line string, cursor int) (Envelope, string) {
	return newRequest(RequestComplete, map[string]any{
		"text":       text,
		"line":       line,
		"cursor_pos": cursor,
	})
}

// ObjectInfoRequest builds an introspection request for an object name.
func ObjectInfoRequest(name string) (Envelope, string) {
	return newRequest(RequestObjectInfo, map[string]any{"oname": name})
}

// KernelInfoRequest builds a kernel info request.
func KernelInfoRequest() (Envelope, string) {
	return newRequest(RequestKernelInfo, nil)
}

// HistoryRequest builds a request for the last n history entries.
func HistoryRequest(n int) (Envelope, string) {
	return newRequest(RequestHistory, map[string]any{"n": n})
}

// ReadlineReplyEnvelope builds the answer to a side-input request.
func ReadlineReplyEnvelope(value string) Envelope {
	return NewEnvelope(ReadlineReply, map[string]any{"value": value})
}
