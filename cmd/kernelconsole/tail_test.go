package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nagyistoce/jupyter-client/internal/config"
	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/kernelsim"
	"github.com/nagyistoce/jupyter-client/internal/transport"
)

func TestWriteEvent(t *testing.T) {
	status := kernel.NewEnvelope("status", map[string]any{"execution_state": "idle", "parent_msg_id": "p"})
	stdout := kernel.NewEnvelope("stdout", map[string]any{"data": "hi"})

	tests := []struct {
		name string
		ev   kernel.Event
		raw  bool
		want string
	}{
		{"started", kernel.StartedChannels{}, false, "started_channels"},
		{"output", kernel.OutputReceived{Envelope: stdout}, false, "output_received stdout data=hi"},
		{"status shown", kernel.MessageReceived{Role: kernel.Broadcast, Envelope: status}, false, "message_received [broadcast] status execution_state=idle"},
		{"aliased message hidden", kernel.MessageReceived{Role: kernel.Broadcast, Envelope: stdout}, false, ""},
		{"aliased message raw", kernel.MessageReceived{Role: kernel.Broadcast, Envelope: stdout}, true, "message_received [broadcast] stdout data=hi"},
		{"reply message hidden", kernel.MessageReceived{Role: kernel.RequestReply, Envelope: status}, false, ""},
		{"lost", kernel.ConnectionLost{Role: kernel.SideInput, Err: io.EOF}, false, `connection_lost [side_input] error="EOF"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeEvent(&buf, tt.ev, false, tt.raw); err != nil {
				t.Fatal(err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteEventJSON(t *testing.T) {
	var buf bytes.Buffer
	env := kernel.NewEnvelope("execute_reply", map[string]any{"status": "ok"})
	if err := writeEvent(&buf, kernel.ExecuteReply{Envelope: env}, true, false); err != nil {
		t.Fatal(err)
	}
	var line eventLine
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, buf.String())
	}
	if line.Event != kernel.KindExecuteReply || line.Type != "execute_reply" || line.Fields["status"] != "ok" {
		t.Errorf("line = %+v", line)
	}
}

func TestWaiter(t *testing.T) {
	w := waiter{}
	w.expect("a", 2)
	w.expect("b", 1)

	reply := func(parent string) kernel.Event {
		return kernel.ExecuteReply{Envelope: kernel.NewEnvelope("execute_reply", map[string]any{"parent_msg_id": parent})}
	}
	idle := kernel.MessageReceived{Role: kernel.Broadcast, Envelope: kernel.NewEnvelope("status", map[string]any{
		"execution_state": "idle", "parent_msg_id": "a",
	})}
	output := kernel.OutputReceived{Envelope: kernel.NewEnvelope("stdout", map[string]any{"parent_msg_id": "a"})}

	w.observe(output)
	w.observe(reply("a"))
	if w.done() {
		t.Fatal("a still waits for idle")
	}
	w.observe(idle)
	w.observe(reply("unknown"))
	if w.done() {
		t.Fatal("b not answered yet")
	}
	w.observe(kernel.KernelInfoReply{Envelope: kernel.NewEnvelope("kernel_info_reply", map[string]any{"parent_msg_id": "b"})})
	if !w.done() {
		t.Fatalf("waiter = %v, want empty", w)
	}
}

func TestTailAgainstSimulator(t *testing.T) {
	sim := kernelsim.New(kernelsim.Options{
		Endpoints: config.Default().Endpoints(),
		Transport: transport.Options{Codec: transport.JSON(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()
	defer sim.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"tail",
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--url", "ws" + strings.TrimPrefix(srv.URL, "http"),
		"--log-file", "discard",
		"--exec", "print hello",
		"--exec", "input who?",
		"--answer", "ada",
		"--info",
		"--once",
		"--timeout", "10s",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("tail: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"started_channels",
		"output_received stdout data=hello",
		"readline_requested readline_request prompt=who?",
		"output_received stdout data=ada",
		"execute_reply execute_reply execution_count=2 status=ok",
		"kernel_info_reply",
		"stopped_channels",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestLoadConfigRejectsBadCodec(t *testing.T) {
	rootCmd.SetArgs([]string{"tail", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--codec", "xml"})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "codec") {
		t.Fatalf("Execute = %v, want codec error", err)
	}
	if errors.Is(err, kernel.ErrNotRunning) {
		t.Fatal("should fail before starting channels")
	}
}
