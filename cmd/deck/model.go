package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/ipc"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/orchestrator"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/state"
	"github.com/hubenschmidt/interview-assistant/internal/transcript"
)

// maxCaptions is how many final lines the caption panel keeps.
const maxCaptions = 50

type conn interface {
	send(ch ipc.Channel, payload any) error
	next() (ipc.Message, error)
	close()
}

type (
	connectedMsg  struct{ conn conn }
	connectErrMsg struct{ err error }
	eventMsg      struct{ msg ipc.Message }
	eventErrMsg   struct{ err error }
	sendErrMsg    struct{ err error }
	reconnectMsg  struct{}
	clearErrMsg   struct{}
)

type model struct {
	url  string
	dial func(string) (conn, error)

	conn      conn
	connected bool
	attempt   int

	status    state.Snapshot
	asrStatus string
	partial   string
	captions  []transcript.Segment
	deck      []pipeline.Suggestion
	latencyMs float64
	selected  int

	errMsg string
	width  int
	height int
}

func newModel(url string) model {
	return model{
		url: url,
		dial: func(u string) (conn, error) {
			c, err := dialGateway(u)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		selected: -1,
	}
}

func (m model) Init() tea.Cmd {
	return connectCmd(m.dial, m.url)
}

func connectCmd(dial func(string) (conn, error), url string) tea.Cmd {
	return func() tea.Msg {
		c, err := dial(url)
		if err != nil {
			return connectErrMsg{err: err}
		}
		return connectedMsg{conn: c}
	}
}

func readEventCmd(c conn) tea.Cmd {
	return func() tea.Msg {
		msg, err := c.next()
		if err != nil {
			return eventErrMsg{err: err}
		}
		return eventMsg{msg: msg}
	}
}

func sendCmd(c conn, ch ipc.Channel, payload any) tea.Cmd {
	return func() tea.Msg {
		if err := c.send(ch, payload); err != nil {
			return sendErrMsg{err: err}
		}
		return nil
	}
}

// reconnectCmd backs off 1s, 2s, 4s, 8s, then holds at 16s.
func reconnectCmd(attempt int) tea.Cmd {
	delay := time.Duration(1<<min(attempt, 4)) * time.Second
	return tea.Tick(delay, func(time.Time) tea.Msg { return reconnectMsg{} })
}

func clearErrCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg { return clearErrMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case connectedMsg:
		m.conn = msg.conn
		m.connected = true
		m.attempt = 0
		m.errMsg = ""
		return m, readEventCmd(m.conn)

	case connectErrMsg:
		m.connected = false
		m.errMsg = msg.err.Error()
		return m, reconnectCmd(m.attempt)

	case eventErrMsg:
		m.connected = false
		m.errMsg = "disconnected: " + msg.err.Error()
		if m.conn != nil {
			m.conn.close()
			m.conn = nil
		}
		return m, reconnectCmd(m.attempt)

	case reconnectMsg:
		m.attempt++
		return m, connectCmd(m.dial, m.url)

	case eventMsg:
		cmd := m.handleEvent(msg.msg)
		return m, tea.Batch(cmd, readEventCmd(m.conn))

	case sendErrMsg:
		m.errMsg = msg.err.Error()
		return m, clearErrCmd()

	case clearErrMsg:
		m.errMsg = ""
		return m, nil
	}
	return m, nil
}

// handleEvent applies one gateway event to the view state.
func (m *model) handleEvent(msg ipc.Message) tea.Cmd {
	switch msg.Channel {
	case ipc.StatusSnapshot:
		json.Unmarshal(msg.Payload, &m.status)

	case ipc.ASRStatus:
		var p ipc.ASRStatusPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			m.asrStatus = p.Status
		}

	case ipc.TranscriptPartial:
		var seg transcript.Segment
		if json.Unmarshal(msg.Payload, &seg) == nil {
			m.partial = seg.Text
		}

	case ipc.TranscriptFinal:
		var seg transcript.Segment
		if json.Unmarshal(msg.Payload, &seg) == nil {
			m.partial = ""
			m.captions = append(m.captions, seg)
			if len(m.captions) > maxCaptions {
				m.captions = m.captions[len(m.captions)-maxCaptions:]
			}
		}

	case ipc.AutosuggestResult:
		var p orchestrator.SuggestionPayload
		if json.Unmarshal(msg.Payload, &p) == nil && !p.Stale {
			m.deck = p.Suggestions
			m.latencyMs = p.LatencyMs
			m.selected = -1
		}

	case ipc.DeckHotkey:
		var sg pipeline.Suggestion
		if json.Unmarshal(msg.Payload, &sg) == nil {
			for i, d := range m.deck {
				if d.ID == sg.ID {
					m.selected = i
				}
			}
		}

	case ipc.Error:
		var p ipc.ErrorPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			m.errMsg = p.Message
			return clearErrCmd()
		}
	}
	return nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" {
		if m.conn != nil {
			m.conn.close()
		}
		return m, tea.Quit
	}
	if !m.connected || m.conn == nil {
		return m, nil
	}

	switch key {
	case "1", "2", "3":
		return m, sendCmd(m.conn, ipc.DeckHotkey, int(key[0]-'1'))
	case "t":
		return m, sendCmd(m.conn, ipc.ModeOverride, mode.Technical)
	case "d":
		return m, sendCmd(m.conn, ipc.ModeOverride, mode.Discovery)
	case "s":
		return m, sendCmd(m.conn, ipc.ASRStart, asr.StartOptions{SampleRate: 16000})
	case "x":
		return m, sendCmd(m.conn, ipc.ASRStop, nil)
	}
	return m, nil
}

func (m model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	divider := dividerStyle.Render(strings.Repeat("─", width))

	sections := []string{
		titleStyle.Render("INTERVIEW DECK") + "  " + m.renderLights(),
		divider,
		m.renderCaption(width),
		divider,
		m.renderDeck(width),
		divider,
	}
	if m.errMsg != "" {
		sections = append(sections, errorStyle.Render("Error: ")+m.errMsg)
	}
	sections = append(sections, renderFooter())
	return strings.Join(sections, "\n")
}

func (m model) renderLights() string {
	if !m.connected {
		return lightOffStyle.Render("○ gateway offline")
	}
	light := func(name string, on bool) string {
		if on {
			return lightOnStyle.Render("● " + name)
		}
		return lightOffStyle.Render("○ " + name)
	}
	parts := []string{
		light("ASR", m.status.AsrReady),
		light("LLM", m.status.LlmReady),
		light("DB", m.status.DbReady),
		modeStyle.Render(strings.ToUpper(string(m.status.Mode))),
	}
	if m.asrStatus != "" {
		parts = append(parts, dimStyle.Render("asr:"+m.asrStatus))
	}
	return strings.Join(parts, "  ")
}

func (m model) renderCaption(width int) string {
	var lines []string
	start := max(len(m.captions)-3, 0)
	for _, seg := range m.captions[start:] {
		lines = append(lines, captionStyle.Render(truncate(seg.Text, width)))
	}
	if m.partial != "" {
		lines = append(lines, partialStyle.Render(truncate(m.partial+"▌", width)))
	}
	if len(lines) == 0 {
		return dimStyle.Render("  Waiting for speech...")
	}
	return strings.Join(lines, "\n")
}

func (m model) renderDeck(width int) string {
	if len(m.deck) == 0 {
		return dimStyle.Render("  No suggestions yet")
	}
	var cards []string
	for i, sg := range m.deck {
		head := cardKeyStyle.Render(fmt.Sprintf("[%d] ", i+1)) + cardLineStyle.Render(sg.NextLine)
		if i == m.selected {
			head = selectedStyle.Render(fmt.Sprintf("[%d] %s", i+1, sg.NextLine))
		}
		body := []string{truncate(head, width), dimStyle.Render("    " + truncate(sg.Summary, width-4))}
		if sg.Probe != nil && *sg.Probe != "" {
			body = append(body, dimStyle.Render("    probe: "+truncate(*sg.Probe, width-11)))
		}
		cards = append(cards, strings.Join(body, "\n"))
	}
	meta := dimStyle.Render(fmt.Sprintf("  %.0fms", m.latencyMs))
	return strings.Join(cards, "\n") + "\n" + meta
}

func renderFooter() string {
	keys := []struct{ key, desc string }{
		{"1-3", "Use"}, {"t", "Technical"}, {"d", "Discovery"},
		{"s", "Start ASR"}, {"x", "Stop ASR"}, {"q", "Quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+footerStyle.Render(" "+k.desc))
	}
	return strings.Join(parts, "  ")
}

func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}
