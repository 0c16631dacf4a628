package kernelsim

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// builtins are the interpreter's statements and their help text.
var builtins = map[string]string{
	"print":   "print TEXT\n\nWrite TEXT to stdout.",
	"error":   "error TEXT\n\nWrite TEXT to stderr.",
	"raise":   "raise TEXT\n\nFail the execution with TEXT as the error value.",
	"input":   "input PROMPT\n\nAsk the frontend for a line and echo it.",
	"display": "display MARKDOWN\n\nPublish MARKDOWN as rich display data.",
}

// interpreter runs one request at a time for every shell client.
type interpreter struct {
	srv     *Server
	started time.Time

	mu        sync.Mutex
	execCount int
	history   []string
}

func newInterpreter(srv *Server) *interpreter {
	return &interpreter{srv: srv, started: time.Now()}
}

// handle answers one shell request. Output goes to iopub as it is produced.
func (in *interpreter) handle(ctx context.Context, req kernel.Envelope) kernel.Envelope {
	in.mu.Lock()
	defer in.mu.Unlock()

	var fields map[string]any
	switch req.Type() {
	case kernel.RequestExecute:
		fields = in.execute(ctx, req)
	case kernel.RequestComplete:
		fields = in.complete(req)
	case kernel.RequestObjectInfo:
		fields = in.objectInfo(req)
	case kernel.RequestKernelInfo:
		fields = in.kernelInfo()
	case kernel.RequestHistory:
		fields = in.historyReply(req)
	default:
		fields = map[string]any{
			"status": "error",
			"ename":  "UnknownRequest",
			"evalue": req.Type(),
		}
	}
	if _, ok := fields["status"]; !ok {
		fields["status"] = "ok"
	}
	fields["parent_msg_id"] = req.String("msg_id")
	return kernel.NewEnvelope(kernel.ReplyTag(req.Type()), fields)
}

func (in *interpreter) execute(ctx context.Context, req kernel.Envelope) map[string]any {
	parent := req.String("msg_id")
	code := req.String("code")
	v, _ := req.Field("silent")
	silent, _ := v.(bool)

	in.srv.publishStatus("busy", parent)
	if !silent {
		in.execCount++
		in.history = append(in.history, code)
	}
	count := in.execCount

	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		stmt, arg, _ := strings.Cut(line, " ")
		switch stmt {
		case "print":
			in.srv.publish("stdout", parent, map[string]any{"data": arg + "\n"})
		case "error":
			in.srv.publish("stderr", parent, map[string]any{"data": arg + "\n"})
		case "raise":
			return in.fail(parent, count, "RuntimeError", arg)
		case "input":
			v, err := in.srv.readline(ctx, arg, parent)
			if err != nil {
				return in.fail(parent, count, "InputError", err.Error())
			}
			in.srv.publish("stdout", parent, map[string]any{"data": v + "\n"})
		case "display":
			in.srv.publish("display_data", parent, map[string]any{
				"data": map[string]any{"text/markdown": arg, "text/plain": arg},
			})
		default:
			if silent {
				continue
			}
			in.srv.publish("pyout", parent, map[string]any{
				"data":            map[string]any{"text/plain": line},
				"execution_count": count,
			})
		}
	}
	return map[string]any{"execution_count": count}
}

func (in *interpreter) fail(parent string, count int, ename, evalue string) map[string]any {
	in.srv.publish("pyerr", parent, map[string]any{
		"ename":  ename,
		"evalue": evalue,
	})
	return map[string]any{
		"status":          "error",
		"execution_count": count,
		"ename":           ename,
		"evalue":          evalue,
	}
}

func (in *interpreter) complete(req kernel.Envelope) map[string]any {
	text := req.String("text")
	seen := make(map[string]bool)
	matches := []string{}
	add := func(w string) {
		if strings.HasPrefix(w, text) && !seen[w] {
			seen[w] = true
			matches = append(matches, w)
		}
	}
	for w := range builtins {
		add(w)
	}
	for _, h := range in.history {
		for _, w := range strings.Fields(h) {
			add(w)
		}
	}
	sort.Strings(matches)
	return map[string]any{"matches": matches, "matched_text": text}
}

func (in *interpreter) objectInfo(req kernel.Envelope) map[string]any {
	name := req.String("oname")
	doc, found := builtins[name]
	out := map[string]any{"name": name, "found": found}
	if found {
		out["docstring"] = doc
		out["type_name"] = "statement"
	}
	return out
}

func (in *interpreter) kernelInfo() map[string]any {
	out := map[string]any{
		"protocol_version": "4.0",
		"language":         "kernelsim",
		"uptime_seconds":   int(time.Since(in.started).Seconds()),
		"execution_count":  in.execCount,
	}
	if st, err := currentProcStats(); err == nil {
		out["pid"] = st.PID
		out["rss_bytes"] = st.RSS
		out["cpu_percent"] = st.CPUPercent
		out["threads"] = st.Threads
	} else {
		in.srv.log.Debug("process stats unavailable", "err", err)
	}
	return out
}

func (in *interpreter) historyReply(req kernel.Envelope) map[string]any {
	n, _ := req.Int("n")
	h := in.history
	if n > 0 && n < len(h) {
		h = h[len(h)-n:]
	}
	return map[string]any{"history": append([]string{}, h...)}
}
