package console

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAddEntry(t *testing.T) {
	m := New()
	m.Add("out", "hello\n")
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}
	if m.Entries[0].Kind != "out" {
		t.Errorf("expected kind 'out', got %q", m.Entries[0].Kind)
	}
	if m.Entries[0].Text != "hello" {
		t.Errorf("trailing newline not trimmed: %q", m.Entries[0].Text)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add("out", "msg")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestScrollCountsLines(t *testing.T) {
	m := New()
	m.Add("out", "a\nb\nc")
	m.Add("out", "d")

	m.ScrollUp(100)
	if m.Offset != 3 { // 4 lines, max offset is len-1
		t.Errorf("expected offset 3, got %d", m.Offset)
	}
	m.ScrollDown(2)
	if m.Offset != 1 {
		t.Errorf("expected offset 1, got %d", m.Offset)
	}
	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
}

func TestAddResetsScroll(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Add("out", "msg")
	}
	m.ScrollUp(5)
	m.Add("out", "new")
	if m.Offset != 0 {
		t.Error("adding entry should reset scroll to 0")
	}
}

func TestViewEmpty(t *testing.T) {
	v := New().View(80, 20)
	if !strings.Contains(v, "Nothing received") {
		t.Error("empty view should show placeholder")
	}
}

func TestViewShowsNewestLines(t *testing.T) {
	m := New()
	m.Add("sys", "old line")
	for i := 0; i < 30; i++ {
		m.Add("out", "filler")
	}
	m.Add("err", "Traceback\nboom")

	v := m.View(80, 10)
	if strings.Contains(v, "old line") {
		t.Error("view should scroll old lines out")
	}
	if !strings.Contains(v, "Traceback") || !strings.Contains(v, "boom") {
		t.Error("view should contain both lines of the newest entry")
	}
}

func TestLongLinesTruncateByDisplayWidth(t *testing.T) {
	m := New()
	m.Add("out", strings.Repeat("é", 60))

	out := m.lines(41)
	if len(out) != 1 {
		t.Fatalf("expected 1 line, got %d", len(out))
	}
	line := out[0]
	if !utf8.ValidString(line) {
		t.Fatalf("truncated line is not valid UTF-8: %q", line)
	}
	if !strings.HasSuffix(line, "...") {
		t.Errorf("expected ellipsis, got %q", line)
	}
	if got := strings.Count(line, "é"); got != 21 {
		t.Errorf("kept %d runes, want 21", got)
	}
}
