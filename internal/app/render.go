package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// textOf extracts the printable payload of an output envelope: a plain
// "data" string, or the text/plain entry of a mime bundle.
func textOf(env kernel.Envelope) string {
	raw, _ := env.Field("data")
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["text/plain"].(string); ok {
			return s
		}
	}
	if ename := env.String("ename"); ename != "" {
		return ename + ": " + env.String("evalue")
	}
	return ""
}

// markdownOf returns the text/markdown entry of a display_data bundle.
func markdownOf(env kernel.Envelope) (string, bool) {
	raw, _ := env.Field("data")
	bundle, ok := raw.(map[string]any)
	if !ok {
		return "", false
	}
	md, ok := bundle["text/markdown"].(string)
	return md, ok
}

// stringList returns the strings of a decoded list field.
func stringList(env kernel.Envelope, field string) []string {
	raw, _ := env.Field(field)
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func kernelInfoLine(env kernel.Envelope) string {
	fields := env.Fields()
	delete(fields, "parent_msg_id")
	delete(fields, "status")
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return "kernel " + strings.Join(parts, " ")
}

// markdown renders display payloads with glamour at a fixed style so output
// does not depend on terminal detection.
type markdown struct {
	width int
	r     *glamour.TermRenderer
}

func (md *markdown) render(src string, width int) string {
	if md.r == nil || md.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(width-20, 20)),
		)
		if err != nil {
			return src
		}
		md.r, md.width = r, width
	}
	out, err := md.r.Render(src)
	if err != nil {
		return src
	}
	return strings.Trim(out, "\n")
}
