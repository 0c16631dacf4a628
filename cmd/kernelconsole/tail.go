package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/logging"
)

var (
	tailExec    []string
	tailInfo    bool
	tailHistory int
	tailAnswer  string
	tailOnce    bool
	tailJSON    bool
	tailRaw     bool
	tailTimeout time.Duration
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print kernel events to stdout without a UI",
	Long: "tail starts the channels, optionally sends requests, and prints every event\n" +
		"in delivery order until interrupted (or, with --once, until every request\n" +
		"has been answered).",
	RunE: runTail,
}

func init() {
	f := tailCmd.Flags()
	f.StringArrayVarP(&tailExec, "exec", "e", nil, "Code to execute (repeatable)")
	f.BoolVar(&tailInfo, "info", false, "Request kernel info")
	f.IntVar(&tailHistory, "history", 0, "Request the last N history entries")
	f.StringVar(&tailAnswer, "answer", "", "Answer every input request with this value")
	f.BoolVar(&tailOnce, "once", false, "Exit once every request has been answered")
	f.BoolVar(&tailJSON, "json", false, "Print events as JSON lines")
	f.BoolVar(&tailRaw, "raw", false, "Also print the message_received event of every envelope")
	f.DurationVar(&tailTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer := logging.Setup(cfg.Log)
	defer closer.Close()

	q := kernel.NewQueue()
	sess, err := newSession(cfg, logger, q, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if tailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tailTimeout)
		defer cancel()
	}

	if err := sess.StartChannels(ctx); err != nil {
		return err
	}
	defer sess.StopChannels()

	w := waiter{}
	for _, code := range tailExec {
		id, err := sess.Execute(ctx, code, false)
		if err != nil {
			return err
		}
		// An execution is done once its reply and its idle status are in.
		w.expect(id, 2)
	}
	if tailInfo {
		id, err := sess.KernelInfo(ctx)
		if err != nil {
			return err
		}
		w.expect(id, 1)
	}
	if tailHistory > 0 {
		id, err := sess.History(ctx, tailHistory)
		if err != nil {
			return err
		}
		w.expect(id, 1)
	}

	out := cmd.OutOrStdout()
	emit := func(ev kernel.Event) {
		if err := writeEvent(out, ev, tailJSON, tailRaw); err != nil {
			logger.Warn("write event", "err", err)
		}
	}

	var lost error
	handle := func(ev kernel.Event) {
		emit(ev)
		switch e := ev.(type) {
		case kernel.ReadlineRequested:
			if tailAnswer != "" {
				if err := sess.Input(ctx, tailAnswer); err != nil {
					logger.Warn("answer input", "err", err)
				}
			}
		case kernel.ConnectionLost:
			lost = fmt.Errorf("%s: %w", e.Role, e.Err)
		}
		w.observe(ev)
	}

	// finish stops the channels and prints what they posted on the way out.
	finish := func() {
		sess.StopChannels()
		q.Drain(handle)
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %s with %d requests outstanding", tailTimeout, len(w))
			}
			return nil
		case <-q.Ready():
		}
		q.Drain(handle)
		if lost != nil {
			finish()
			return fmt.Errorf("connection lost: %w", lost)
		}
		if tailOnce && w.done() {
			sess.Flush()
			finish()
			return nil
		}
	}
}

// waiter counts outstanding signals per request msg_id.
type waiter map[string]int

func (w waiter) expect(id string, n int) { w[id] = n }

func (w waiter) done() bool { return len(w) == 0 }

func (w waiter) observe(ev kernel.Event) {
	env, ok := envelopeOf(ev)
	if !ok {
		return
	}
	parent := env.String("parent_msg_id")
	if _, tracked := w[parent]; !tracked {
		return
	}
	isIdle := false
	if m, ok := ev.(kernel.MessageReceived); ok {
		if m.Role != kernel.Broadcast || m.Envelope.Type() != "status" || m.Envelope.String("execution_state") != "idle" {
			return
		}
		isIdle = true
	}
	if !isIdle && !isReply(ev) {
		return
	}
	if w[parent]--; w[parent] <= 0 {
		delete(w, parent)
	}
}

func isReply(ev kernel.Event) bool {
	switch ev.(type) {
	case kernel.ExecuteReply, kernel.CompleteReply, kernel.ObjectInfoReply,
		kernel.KernelInfoReply, kernel.HistoryReply, kernel.Reply:
		return true
	}
	return false
}

func envelopeOf(ev kernel.Event) (kernel.Envelope, bool) {
	switch e := ev.(type) {
	case kernel.MessageReceived:
		return e.Envelope, true
	case kernel.OutputReceived:
		return e.Envelope, true
	case kernel.ErrorReceived:
		return e.Envelope, true
	case kernel.ExecuteReply:
		return e.Envelope, true
	case kernel.CompleteReply:
		return e.Envelope, true
	case kernel.ObjectInfoReply:
		return e.Envelope, true
	case kernel.KernelInfoReply:
		return e.Envelope, true
	case kernel.HistoryReply:
		return e.Envelope, true
	case kernel.Reply:
		return e.Envelope, true
	case kernel.ReadlineRequested:
		return e.Envelope, true
	}
	return kernel.Envelope{}, false
}

// eventLine is the JSON form of one event.
type eventLine struct {
	Event  kernel.Kind    `json:"event"`
	Role   string         `json:"role,omitempty"`
	Type   string         `json:"type,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// writeEvent prints ev. message_received is printed only for broadcast
// envelopes no other event covers, unless raw is set.
func writeEvent(w io.Writer, ev kernel.Event, asJSON, raw bool) error {
	if m, ok := ev.(kernel.MessageReceived); ok && !raw && !standalone(m) {
		return nil
	}

	line := eventLine{Event: ev.Kind()}
	if env, ok := envelopeOf(ev); ok {
		line.Type = env.Type()
		line.Fields = env.Fields()
	}
	switch e := ev.(type) {
	case kernel.MessageReceived:
		line.Role = e.Role.String()
	case kernel.ConnectionLost:
		line.Role = e.Role.String()
		line.Error = e.Err.Error()
	}

	if asJSON {
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	_, err := fmt.Fprintln(w, formatLine(line))
	return err
}

// standalone reports whether a broadcast envelope has no classified event of
// its own (status, display_data and the like).
func standalone(m kernel.MessageReceived) bool {
	if m.Role != kernel.Broadcast {
		return false
	}
	evs := kernel.ClassifyBroadcast(m.Envelope)
	return len(evs) == 1
}

func formatLine(l eventLine) string {
	var b strings.Builder
	b.WriteString(string(l.Event))
	if l.Role != "" {
		fmt.Fprintf(&b, " [%s]", l.Role)
	}
	if l.Type != "" {
		fmt.Fprintf(&b, " %s", l.Type)
	}
	if l.Error != "" {
		fmt.Fprintf(&b, " error=%q", l.Error)
	}
	keys := make([]string, 0, len(l.Fields))
	for k := range l.Fields {
		if k == "msg_id" || k == "parent_msg_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.Fields[k])
	}
	return b.String()
}
