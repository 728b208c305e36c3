package tui

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/core/validate"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

const (
	requestTimeout = 5 * time.Second
	// Rows taken by the header, input box, status line and help.
	chromeHeight = 7
)

// Conversations is the part of the parley service the chat needs.
type Conversations interface {
	Send(ctx context.Context, sender, recipient convo.ParticipantID, body string) (messaging.Message, error)
	MarkRead(ctx context.Context, key convo.Key, participant convo.ParticipantID, upto time.Time) (room.Summary, error)
}

// Feed is a live conversation projection.
type Feed interface {
	Updates() <-chan timeline.Update
	Err() error
}

type (
	// feedUpdateMsg carries one projection change.
	feedUpdateMsg struct{ update timeline.Update }

	// feedClosedMsg is sent once the feed stops.
	feedClosedMsg struct{ err error }

	sentMsg struct {
		body string
		err  error
	}

	// readAckMsg reports a read acknowledgement. A failure is not shown; the
	// marker rolls back to prev so the next focus retries it.
	readAckMsg struct {
		upto time.Time
		prev time.Time
		err  error
	}
)

// Options configures the chat.
type Options struct {
	Topic    string
	Location *time.Location
}

// Model is the chat UI for one conversation.
type Model struct {
	svc     Conversations
	feed    Feed
	me      convo.ParticipantID
	partner convo.ParticipantID
	key     convo.Key
	topic   string
	loc     *time.Location

	items    []timeline.Item
	index    map[string]int
	unread   int
	lastRead time.Time

	viewport viewport.Model
	input    textinput.Model
	help     help.Model
	keys     keyMap
	bodies   *bodyRenderer

	width, height int
	ready         bool
	focused       bool
	sending       bool
	err           error
	closed        bool
}

// New creates a chat between me and partner fed by feed.
func New(svc Conversations, feed Feed, me, partner convo.ParticipantID, opts Options) Model {
	key, _ := convo.DeriveKey(me, partner)

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	input := textinput.New()
	input.Placeholder = "Message " + string(partner)
	input.CharLimit = validate.MaxBodyLength
	input.Prompt = "› "
	input.Focus()

	return Model{
		svc:      svc,
		feed:     feed,
		me:       me,
		partner:  partner,
		key:      key,
		topic:    opts.Topic,
		loc:      loc,
		index:    make(map[string]int),
		input:    input,
		help:     help.New(),
		keys:     defaultKeyMap(),
		bodies:   newBodyRenderer(),
		focused:  true,
		viewport: viewport.New(0, 0),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.feed))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-6, 10)
		m.bodies.SetWidth(msg.Width)
		m.ready = true
		m.refresh(true)
		return m, nil

	case tea.FocusMsg:
		m.focused = true
		cmd := m.ackRead()
		return m, cmd

	case tea.BlurMsg:
		m.focused = false
		return m, nil

	case feedUpdateMsg:
		follow := m.viewport.AtBottom() || len(m.items) == 0
		m.apply(msg.update)
		m.refresh(follow)

		cmds = append(cmds, waitForUpdate(m.feed))
		if hasIncoming(msg.update.Appended) && m.focused {
			cmds = append(cmds, m.ackRead())
		}
		return m, tea.Batch(cmds...)

	case feedClosedMsg:
		m.closed = true
		m.err = msg.err
		return m, nil

	case sentMsg:
		m.sending = false
		if msg.err != nil {
			// Keep the draft so it can be retried.
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if m.input.Value() == msg.body {
			m.input.Reset()
		}
		return m, nil

	case readAckMsg:
		// A later ack may already be in flight; only undo our own advance.
		if msg.err != nil && m.lastRead.Equal(msg.upto) {
			m.lastRead = msg.prev
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m.send()
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "\n  Loading conversation…"
	}

	header := headerStyle.Render(string(m.partner))
	if m.topic != "" {
		header += " " + topicStyle.Render(m.topic)
	}

	status := statusStyle.Render(m.statusLine())
	if m.err != nil {
		status = errorStyle.Render(m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		inputBorderStyle.Width(max(m.width-2, 1)).Render(m.input.View()),
		status,
		statusStyle.Render(m.help.View(m.keys)),
	)
}

// Items returns the rendered conversation items.
func (m Model) Items() []timeline.Item {
	return m.items
}

// Draft returns the text in the input box.
func (m Model) Draft() string {
	return m.input.Value()
}

func (m Model) statusLine() string {
	switch {
	case m.closed:
		return "disconnected"
	case m.sending:
		return "sending…"
	case m.unread > 0:
		return iconUnread + " " + strconv.Itoa(m.unread) + " unread"
	default:
		return ""
	}
}

// apply merges an update into the local item list. Appended items extend the
// tail and changed items replace the item with the same ID.
func (m *Model) apply(u timeline.Update) {
	for _, it := range u.Appended {
		m.index[it.ID()] = len(m.items)
		m.items = append(m.items, it)
	}
	for _, it := range u.Changed {
		if i, ok := m.index[it.ID()]; ok {
			m.items[i] = it
		}
	}

	m.unread = 0
	for _, it := range m.items {
		if it.Unread {
			m.unread++
		}
	}
}

func (m *Model) refresh(gotoBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderItems(m.items, m.bodies, m.width, m.loc))
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) send() (tea.Model, tea.Cmd) {
	body := m.input.Value()
	if m.sending || m.closed {
		return m, nil
	}
	if _, err := validate.Body(body); err != nil {
		return m, nil
	}

	m.sending = true
	svc, me, partner := m.svc, m.me, m.partner
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := svc.Send(ctx, me, partner, body)
		return sentMsg{body: body, err: err}
	}
}

// ackRead marks the conversation read up to the newest message.
func (m *Model) ackRead() tea.Cmd {
	upto, ok := newestIncoming(m.items)
	if !ok || !upto.After(m.lastRead) {
		return nil
	}
	prev := m.lastRead
	m.lastRead = upto

	svc, key, me := m.svc, m.key, m.me
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := svc.MarkRead(ctx, key, me, upto)
		return readAckMsg{upto: upto, prev: prev, err: err}
	}
}

func waitForUpdate(feed Feed) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-feed.Updates()
		if !ok {
			return feedClosedMsg{err: feed.Err()}
		}
		return feedUpdateMsg{update: u}
	}
}

func hasIncoming(items []timeline.Item) bool {
	for _, it := range items {
		if it.Message != nil && !it.Outgoing {
			return true
		}
	}
	return false
}

func newestIncoming(items []timeline.Item) (time.Time, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Message != nil && !items[i].Outgoing {
			return items[i].Message.SentAt, true
		}
	}
	return time.Time{}, false
}
