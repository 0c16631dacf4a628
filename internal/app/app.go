// Package app is the Bubble Tea console driving a kernel session.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/theme"
	"github.com/nagyistoce/jupyter-client/internal/views/console"
	"github.com/nagyistoce/jupyter-client/internal/views/status"
)

const defaultPrompt = ">>> "

// requestMsg reports the outcome of sending a request.
type requestMsg struct {
	kind string
	id   string
	err  error
}

// lifecycleMsg reports the outcome of starting or stopping channels.
type lifecycleMsg struct {
	op  string
	err error
}

type flushedMsg struct{ n int }

// Model is the root Bubble Tea model.
type Model struct {
	sess   *kernel.Session
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	input     textinput.Model
	console   console.Model
	statusBar status.Model
	md        *markdown

	// readline is set while the kernel waits on a side-input answer.
	readline bool

	// pending maps request msg_id to its kind until the reply arrives;
	// answered holds replies that beat their requestMsg.
	pending  map[string]string
	answered map[string]bool

	history []string
	histIdx int
}

// New creates the root model. endpoint is shown in the status bar.
func New(sess *kernel.Session, endpoint string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	in := textinput.New()
	in.Prompt = defaultPrompt
	in.PromptStyle = theme.StylePrompt
	in.Placeholder = "print hello   (:help for commands)"
	in.Focus()

	return Model{
		sess:      sess,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		input:     in,
		console:   console.New(),
		statusBar: status.New(endpoint),
		md:        &markdown{},
		pending:   make(map[string]string),
		answered:  make(map[string]bool),
	}
}

// Init starts the channels.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.startCmd())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case syncMsg:
		close(msg.done)
		return m, nil

	case requestMsg:
		if msg.err != nil {
			m.console.Add("err", fmt.Sprintf("%s: %v", msg.kind, msg.err))
			return m, nil
		}
		if m.answered[msg.id] {
			delete(m.answered, msg.id)
		} else {
			m.pending[msg.id] = msg.kind
		}
		m.statusBar.Pending = len(m.pending)
		return m, nil

	case lifecycleMsg:
		if msg.err != nil {
			m.console.Add("err", fmt.Sprintf("%s: %v", msg.op, msg.err))
		}
		return m, nil

	case flushedMsg:
		m.console.Add("sys", fmt.Sprintf("flushed %d pending broadcast messages", msg.n))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Complete):
		if m.readline || m.sess == nil {
			return m, nil
		}
		line := m.input.Value()
		text := lastToken(line)
		return m, m.request(kernel.RequestComplete, func(ctx context.Context) (string, error) {
			return m.sess.Complete(ctx, text, line, len(line))
		})

	case key.Matches(msg, m.keys.PrevInput):
		if m.histIdx > 0 {
			m.histIdx--
			m.input.SetValue(m.history[m.histIdx])
			m.input.CursorEnd()
		}
		return m, nil

	case key.Matches(msg, m.keys.NextInput):
		if m.histIdx < len(m.history)-1 {
			m.histIdx++
			m.input.SetValue(m.history[m.histIdx])
			m.input.CursorEnd()
		} else {
			m.histIdx = len(m.history)
			m.input.Reset()
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.console.ScrollUp(5)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.console.ScrollDown(5)
		return m, nil

	case key.Matches(msg, m.keys.Flush):
		return m, m.flushCmd()

	case key.Matches(msg, m.keys.KernelInfo):
		return m, m.kernelInfoCmd()

	case key.Matches(msg, m.keys.Restart):
		return m, m.restartCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	m.input.Reset()

	if m.readline {
		m.console.Add("in", m.input.Prompt+text)
		m.readline = false
		m.input.Prompt = defaultPrompt
		if m.sess == nil {
			return m, nil
		}
		sess, ctx := m.sess, m.ctx
		return m, func() tea.Msg {
			if err := sess.Input(ctx, text); err != nil {
				return requestMsg{kind: kernel.ReadlineReply, err: err}
			}
			return nil
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return m, nil
	}
	m.history = append(m.history, trimmed)
	m.histIdx = len(m.history)

	if strings.HasPrefix(trimmed, ":") {
		return m.command(trimmed)
	}
	if m.sess == nil {
		return m, nil
	}

	if name, ok := strings.CutSuffix(trimmed, "?"); ok && name != "" && !strings.ContainsAny(name, " \t") {
		m.console.Add("in", trimmed)
		return m, m.request(kernel.RequestObjectInfo, func(ctx context.Context) (string, error) {
			return m.sess.ObjectInfo(ctx, name)
		})
	}

	code := strings.ReplaceAll(trimmed, `\n`, "\n")
	m.console.Add("in", fmt.Sprintf("In [%d]: %s", m.statusBar.ExecCount+1, code))
	return m, m.request(kernel.RequestExecute, func(ctx context.Context) (string, error) {
		return m.sess.Execute(ctx, code, false)
	})
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return m, nil
	}
	if m.sess == nil && fields[0] != "help" {
		m.console.Add("err", "no session")
		return m, nil
	}

	switch fields[0] {
	case "help":
		m.console.Add("sys", ":info  :history [n]  :flush  :stats  :start  :stop  :restart  NAME?  \\n splits lines")
	case "info":
		return m, m.kernelInfoCmd()
	case "history":
		n := 10
		if len(fields) > 1 {
			if v, err := strconv.Atoi(fields[1]); err == nil {
				n = v
			}
		}
		return m, m.request(kernel.RequestHistory, func(ctx context.Context) (string, error) {
			return m.sess.History(ctx, n)
		})
	case "flush":
		return m, m.flushCmd()
	case "stats":
		stats := m.sess.Stats()
		for _, role := range kernel.Roles {
			st := stats[role]
			m.console.Add("sys", fmt.Sprintf("%-13s received=%d delivered=%d dropped=%d discarded=%d",
				role, st.Received, st.Delivered, st.Dropped, st.Discarded))
		}
	case "start":
		return m, m.startCmd()
	case "stop":
		sess := m.sess
		return m, func() tea.Msg { return lifecycleMsg{op: "stop", err: sess.StopChannels()} }
	case "restart":
		return m, m.restartCmd()
	default:
		m.console.Add("err", "unknown command :"+fields[0])
	}
	return m, nil
}

func (m Model) request(kind string, call func(context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		id, err := call(ctx)
		return requestMsg{kind: kind, id: id, err: err}
	}
}

func (m Model) kernelInfoCmd() tea.Cmd {
	if m.sess == nil {
		return nil
	}
	return m.request(kernel.RequestKernelInfo, m.sess.KernelInfo)
}

func (m Model) startCmd() tea.Cmd {
	if m.sess == nil {
		return nil
	}
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg { return lifecycleMsg{op: "start", err: sess.StartChannels(ctx)} }
}

func (m Model) restartCmd() tea.Cmd {
	if m.sess == nil {
		return nil
	}
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		if err := sess.StopChannels(); err != nil && !errors.Is(err, kernel.ErrNotRunning) {
			return lifecycleMsg{op: "restart", err: err}
		}
		return lifecycleMsg{op: "restart", err: sess.StartChannels(ctx)}
	}
}

// flushCmd runs Flush off the event loop: the session's Process hook waits
// for Update to catch up.
func (m Model) flushCmd() tea.Cmd {
	if m.sess == nil {
		return nil
	}
	sess := m.sess
	return func() tea.Msg { return flushedMsg{n: sess.Flush()} }
}

func (m *Model) handleEvent(ev kernel.Event) {
	switch e := ev.(type) {
	case kernel.StartedChannels:
		m.statusBar.State = kernel.Running.String()
		m.console.Add("sys", "channels started")

	case kernel.StoppedChannels:
		m.statusBar.State = kernel.Stopped.String()
		m.statusBar.Busy = false
		m.readline = false
		m.input.Prompt = defaultPrompt
		clear(m.pending)
		m.statusBar.Pending = 0
		m.console.Add("sys", "channels stopped")

	case kernel.ConnectionLost:
		m.statusBar.State = "lost"
		m.console.Add("err", fmt.Sprintf("%s connection lost: %v", e.Role, e.Err))

	case kernel.MessageReceived:
		if e.Role != kernel.Broadcast {
			break
		}
		switch e.Envelope.Type() {
		case "status":
			m.statusBar.Busy = e.Envelope.String("execution_state") == "busy"
		case "display_data":
			if md, ok := markdownOf(e.Envelope); ok {
				m.console.Add("md", m.md.render(md, m.width))
			} else if text := textOf(e.Envelope); text != "" {
				m.console.Add("out", text)
			}
		}

	case kernel.OutputReceived:
		m.console.Add("out", textOf(e.Envelope))

	case kernel.ErrorReceived:
		m.console.Add("err", textOf(e.Envelope))

	case kernel.ExecuteReply:
		m.answer(e.Envelope)
		if n, ok := e.Envelope.Int("execution_count"); ok {
			m.statusBar.ExecCount = n
		}
		if e.Envelope.String("status") == "error" {
			m.console.Add("err", fmt.Sprintf("%s: %s", e.Envelope.String("ename"), e.Envelope.String("evalue")))
		}

	case kernel.CompleteReply:
		m.answer(e.Envelope)
		m.applyCompletion(stringList(e.Envelope, "matches"))

	case kernel.ObjectInfoReply:
		m.answer(e.Envelope)
		name := e.Envelope.String("name")
		if doc := e.Envelope.String("docstring"); doc != "" {
			m.console.Add("rep", doc)
		} else {
			m.console.Add("rep", "no information about "+name)
		}

	case kernel.KernelInfoReply:
		m.answer(e.Envelope)
		m.console.Add("rep", kernelInfoLine(e.Envelope))

	case kernel.HistoryReply:
		m.answer(e.Envelope)
		entries := stringList(e.Envelope, "history")
		if len(entries) == 0 {
			m.console.Add("rep", "history is empty")
			break
		}
		m.console.Add("rep", strings.Join(entries, "\n"))

	case kernel.Reply:
		m.answer(e.Envelope)
		m.console.Add("rep", fmt.Sprintf("%s status=%s", e.Tag, e.Envelope.String("status")))

	case kernel.ReadlineRequested:
		m.readline = true
		m.input.Prompt = e.Envelope.String("prompt") + " "
		m.input.Reset()
		m.console.Add("ask", e.Envelope.String("prompt"))
	}

	if m.sess != nil {
		dropped := 0
		for _, st := range m.sess.Stats() {
			dropped += st.Dropped
		}
		m.statusBar.Dropped = dropped
	}
}

// answer clears the pending entry of the request env replies to.
func (m *Model) answer(env kernel.Envelope) {
	parent := env.String("parent_msg_id")
	if parent == "" {
		return
	}
	if _, ok := m.pending[parent]; ok {
		delete(m.pending, parent)
	} else {
		m.answered[parent] = true
	}
	m.statusBar.Pending = len(m.pending)
}

func (m *Model) applyCompletion(matches []string) {
	switch len(matches) {
	case 0:
		m.console.Add("sys", "no completions")
	case 1:
		line := m.input.Value()
		m.input.SetValue(line[:len(line)-len(lastToken(line))] + matches[0])
		m.input.CursorEnd()
	default:
		m.console.Add("rep", strings.Join(matches, "  "))
	}
}

func lastToken(line string) string {
	i := strings.LastIndexAny(line, " \t")
	return line[i+1:]
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	consoleHeight := max(m.height-6, 5)
	sections := []string{
		m.statusBar.View(),
		m.console.View(m.width, consoleHeight),
		m.input.View(),
		theme.StyleDimmed.Render("  enter:run  tab:complete  ctrl+f:flush  ctrl+k:info  ctrl+r:restart  pgup/pgdn:scroll  ctrl+c:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
