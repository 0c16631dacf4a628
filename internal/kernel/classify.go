package kernel

import (
	"fmt"
	"strings"
)

// Classifier turns one envelope into the events it produces. The generic
// MessageReceived always comes first.
type Classifier func(Envelope) []Event

// DefaultReadlineTag is the side-input request tag of the kernel protocol.
const DefaultReadlineTag = "readline_request"

// Output and error tags are disjoint. pyout/pyerr are the kernel's historic
// names for stream-output/stream-error.
var (
	outputTags = map[string]bool{"stream-output": true, "pyout": true, "stdout": true}
	errorTags  = map[string]bool{"stream-error": true, "pyerr": true, "stderr": true}
)

// ClassifyBroadcast classifies an envelope from the broadcast stream.
func ClassifyBroadcast(env Envelope) []Event {
	events := []Event{MessageReceived{Role: Broadcast, Envelope: env}}
	switch tag := env.Type(); {
	case outputTags[tag]:
		events = append(events, OutputReceived{Envelope: env})
	case errorTags[tag]:
		events = append(events, ErrorReceived{Envelope: env})
	}
	return events
}

// SideInputClassifier classifies envelopes from the stdin stream, posting
// ReadlineRequested when the tag equals requestTag.
func SideInputClassifier(requestTag string) Classifier {
	if requestTag == "" {
		requestTag = DefaultReadlineTag
	}
	return func(env Envelope) []Event {
		events := []Event{MessageReceived{Role: SideInput, Envelope: env}}
		if env.Type() == requestTag {
			events = append(events, ReadlineRequested{Envelope: env})
		}
		return events
	}
}

// ReplyTable maps reply tags to typed-event constructors.
type ReplyTable map[string]func(Envelope) Event

// DefaultReplyTable returns the table for every request kind this package
// can send.
func DefaultReplyTable() ReplyTable {
	return ReplyTable{
		"execute_reply":     func(e Envelope) Event { return ExecuteReply{Envelope: e} },
		"complete_reply":    func(e Envelope) Event { return CompleteReply{Envelope: e} },
		"object_info_reply": func(e Envelope) Event { return ObjectInfoReply{Envelope: e} },
		"kernel_info_reply": func(e Envelope) Event { return KernelInfoReply{Envelope: e} },
		"history_reply":     func(e Envelope) Event { return HistoryReply{Envelope: e} },
	}
}

// With returns a copy of t that also maps each of tags to a generic Reply.
// Tags already present keep their typed constructor.
func (t ReplyTable) With(tags ...string) ReplyTable {
	out := make(ReplyTable, len(t)+len(tags))
	for k, v := range t {
		out[k] = v
	}
	for _, tag := range tags {
		if _, ok := out[tag]; ok || tag == "" {
			continue
		}
		out[tag] = func(e Envelope) Event { return Reply{Tag: tag, Envelope: e} }
	}
	return out
}

// Validate checks that every request kind has a reply constructor.
func (t ReplyTable) Validate() error {
	var missing []string
	for _, req := range RequestKinds {
		reply := ReplyTag(req)
		if t[reply] == nil {
			missing = append(missing, reply)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("reply table incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Classifier returns the request/reply stream classifier backed by t.
// Unknown tags produce only MessageReceived.
func (t ReplyTable) Classifier() Classifier {
	return func(env Envelope) []Event {
		events := []Event{MessageReceived{Role: RequestReply, Envelope: env}}
		if ctor, ok := t[env.Type()]; ok {
			events = append(events, ctor(env))
		}
		return events
	}
}
