// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     flow
// Description: Interactive terminal UI for the Rise and Rest flows
// Author:      Mike Stoffels with Claude
// Created:     2025-12-09
// License:     MIT
// ============================================================================

package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
)

// focus slots inside one pane
const (
	slotPrimary = iota
	slotSecondary
	slotButton
	slotsPerPane
)

// pane is the view of one flow controller
type pane struct {
	ctrl     *player.Controller
	template *meditation.FlowTemplate
	inputs   [2]textinput.Model
	snapshot player.Snapshot
}

// Model is the bubbletea model of the flow TUI
type Model struct {
	panes   []*pane
	focus   int
	spinner spinner.Model
	events  chan player.Event
	timeout time.Duration

	notice string
	width  int
	height int
}

// Config holds TUI configuration
type Config struct {
	Controllers []*player.Controller
	Catalog     *meditation.Catalog

	// ToggleTimeout bounds one generation
	ToggleTimeout time.Duration
}

// New creates the TUI model and subscribes to the controllers
func New(cfg Config) (Model, error) {
	if len(cfg.Controllers) == 0 {
		return Model{}, errors.New("no flow to show")
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = meditation.DefaultCatalog()
	}
	timeout := cfg.ToggleTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	m := Model{
		spinner: sp,
		events:  make(chan player.Event, 64),
		timeout: timeout,
	}

	for _, c := range cfg.Controllers {
		tmpl, err := catalog.Flow(c.Flow())
		if err != nil {
			return Model{}, err
		}

		set := c.Intentions()
		p := &pane{ctrl: c, template: tmpl, snapshot: c.Snapshot()}
		p.inputs[0] = newInput(tmpl.Primary, set.Primary)
		p.inputs[1] = newInput(tmpl.Secondary, set.Secondary)
		m.panes = append(m.panes, p)

		c.AddListener(m.forward)
	}

	m.applyFocus()
	return m, nil
}

func newInput(field meditation.FieldYAML, value string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = field.Placeholder
	ti.CharLimit = 120
	ti.Width = 36
	ti.SetValue(value)
	return ti
}

// forward hands controller events to the update loop. Events are dropped
// when the loop falls behind; the next one refreshes the snapshot anyway.
func (m Model) forward(e player.Event) {
	select {
	case m.events <- e:
	default:
	}
}

// waitForEvent delivers the next controller event
func (m Model) waitForEvent() tea.Msg {
	return eventMsg{event: <-m.events}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForEvent,
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case eventMsg:
		m.applyEvent(msg.event)
		cmds = append(cmds, m.waitForEvent)

	case toggleDoneMsg:
		if p := m.paneFor(msg.flow); p != nil {
			p.snapshot = p.ctrl.Snapshot()
		}
		if msg.err != nil {
			m.notice = player.KindOf(msg.err).Message()
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) applyEvent(e player.Event) {
	p := m.paneFor(e.Flow)
	if p == nil {
		return
	}
	p.snapshot = p.ctrl.Snapshot()

	switch e.Type {
	case player.EventNotice:
		m.notice = e.Notice.Message
	case player.EventGenerated:
		m.notice = ""
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.activePane()
	slot := m.focus % slotsPerPane

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "tab", "down":
		m.focus = (m.focus + 1) % (len(m.panes) * slotsPerPane)
		m.applyFocus()
		return m, nil

	case "shift+tab", "up":
		m.focus = (m.focus - 1 + len(m.panes)*slotsPerPane) % (len(m.panes) * slotsPerPane)
		m.applyFocus()
		return m, nil

	case "esc":
		p.ctrl.Stop()
		p.snapshot = p.ctrl.Snapshot()
		return m, nil

	case "enter":
		return m, m.toggle(p)
	}

	if slot == slotButton {
		switch msg.String() {
		case " ":
			return m, m.toggle(p)
		case "q":
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	before := p.inputs[slot].Value()
	p.inputs[slot], cmd = p.inputs[slot].Update(msg)
	if p.inputs[slot].Value() != before {
		p.ctrl.SetIntentions(meditation.IntentionSet{
			Flow:      p.ctrl.Flow(),
			Primary:   p.inputs[0].Value(),
			Secondary: p.inputs[1].Value(),
		})
		p.snapshot = p.ctrl.Snapshot()
	}
	return m, cmd
}

// toggle runs the controller toggle off the update loop
func (m Model) toggle(p *pane) tea.Cmd {
	if p.snapshot.State == player.StateLocked {
		return nil
	}
	ctrl := p.ctrl
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return toggleDoneMsg{flow: ctrl.Flow(), err: ctrl.Toggle(ctx)}
	}
}

func (m *Model) applyFocus() {
	for i, p := range m.panes {
		for j := range p.inputs {
			if i*slotsPerPane+j == m.focus {
				p.inputs[j].Focus()
			} else {
				p.inputs[j].Blur()
			}
		}
	}
}

func (m Model) activePane() *pane {
	return m.panes[m.focus/slotsPerPane]
}

func (m Model) paneFor(f meditation.Flow) *pane {
	for _, p := range m.panes {
		if p.ctrl.Flow() == f {
			return p
		}
	}
	return nil
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(LogoStyle.Render(Logo))
	b.WriteString("  ")
	b.WriteString(SubHeaderStyle.Render("Guided meditation for your day"))
	b.WriteString("\n\n")

	views := make([]string, len(m.panes))
	for i, p := range m.panes {
		views[i] = m.renderPane(i, p)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, views...))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(NoticeStyle.Render("⚠ " + m.notice))
		b.WriteString("\n")
	}

	b.WriteString(m.renderHelpBar())
	return b.String()
}

func (m Model) renderPane(index int, p *pane) string {
	var b strings.Builder
	color := flowColor(p.template.Flow)
	active := m.focus/slotsPerPane == index

	b.WriteString(lipgloss.NewStyle().Foreground(color).Bold(true).Render(p.template.Title))
	b.WriteString("\n\n")

	b.WriteString(LabelStyle.Render(p.template.Primary.Label))
	b.WriteString("\n")
	b.WriteString(p.inputs[0].View())
	b.WriteString("\n\n")
	b.WriteString(LabelStyle.Render(p.template.Secondary.Label))
	b.WriteString("\n")
	b.WriteString(p.inputs[1].View())
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Foreground(color).Render(p.template.AudioTitle))
	b.WriteString("  ")
	if p.snapshot.State == player.StateLocked {
		b.WriteString(LockedBadgeStyle.Render("Complete both intentions to unlock"))
	} else {
		b.WriteString(DynamicBadgeStyle.Render("Dynamic"))
	}
	b.WriteString("\n")

	button := ButtonStyle
	if active && m.focus%slotsPerPane == slotButton {
		button = button.BorderForeground(color)
	}
	b.WriteString(button.Render(m.buttonLabel(p)))
	b.WriteString("\n")

	if p.snapshot.Script != "" {
		b.WriteString(ScriptStyle.Width(44).Render(excerpt(p.snapshot.Script, 160)))
		b.WriteString("\n")
	}

	style := PaneStyle
	if active {
		style = style.BorderForeground(color)
	}
	return style.Render(b.String())
}

func (m Model) buttonLabel(p *pane) string {
	s := p.snapshot
	switch {
	case s.Disabled:
		return "Audio unavailable"
	case s.State == player.StateGenerating:
		return m.spinner.View() + " Generating..."
	case s.State == player.StatePlaying:
		return s.State.Icon() + " Pause"
	case s.State == player.StateReady:
		return fmt.Sprintf("%s Play (%s)", s.State.Icon(), s.Duration.Round(time.Second))
	case s.State == player.StateIdle:
		return s.State.Icon() + " Generate & play"
	default:
		return s.State.Icon() + " Locked"
	}
}

func (m Model) renderHelpBar() string {
	hints := []string{
		RenderKeyHint("tab", "next field"),
		RenderKeyHint("enter/space", "play/pause"),
		RenderKeyHint("esc", "stop"),
		RenderKeyHint("ctrl+c", "quit"),
	}
	return strings.Join(hints, "  ")
}

// excerpt shortens s to at most n runes
func excerpt(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

// Run starts the flow TUI
func Run(cfg Config) error {
	m, err := New(cfg)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
