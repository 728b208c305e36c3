package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/hay-kot/parley/internal/feed/timeline"
)

// glamourGutter is the horizontal space glamour reserves around a block.
const glamourGutter = 2

// bodyRenderer renders message bodies as markdown and caches the result per
// item and width. Rendering falls back to the raw body on any error.
type bodyRenderer struct {
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newBodyRenderer() *bodyRenderer {
	return &bodyRenderer{cache: make(map[string]string)}
}

// SetWidth resets the renderer when the wrap width changes.
func (r *bodyRenderer) SetWidth(width int) {
	width = max(width-glamourGutter, 10)
	if width == r.width && r.renderer != nil {
		return
	}

	r.width = width
	r.cache = make(map[string]string)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r.renderer = nil
		return
	}
	r.renderer = renderer
}

func (r *bodyRenderer) Render(id, body string) string {
	if out, ok := r.cache[id]; ok {
		return out
	}

	out := body
	if r.renderer != nil {
		if rendered, err := r.renderer.Render(body); err == nil {
			out = strings.Trim(rendered, "\n")
		}
	}
	r.cache[id] = out
	return out
}

// renderItems draws the conversation for a viewport of the given width.
func renderItems(items []timeline.Item, bodies *bodyRenderer, width int, loc *time.Location) string {
	var b strings.Builder

	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}

		if it.Kind == timeline.KindDateBoundary {
			label := "── " + it.Day.Time(loc).Format("Mon, Jan 2 2006") + " ──"
			b.WriteString(boundaryStyle.Width(width).Render(label))
			b.WriteString("\n")
			continue
		}

		msg := it.Message
		sender := incomingStyle.Render(string(msg.SenderID))
		if it.Outgoing {
			sender = outgoingStyle.Render(string(msg.SenderID))
		}

		header := " " + sender + " " + timeStyle.Render(msg.SentAt.In(loc).Format("15:04"))
		if it.Unread {
			header += " " + unreadStyle.Render(iconUnread)
		}

		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(bodies.Render(it.ID(), msg.Body))
		b.WriteString("\n")
	}

	return b.String()
}
