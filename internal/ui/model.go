package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
)

type snapshotMsg analysis.Snapshot

type streamDoneMsg struct{}

type tickMsg time.Time

// Model is the Bubble Tea model for one analysis session.
type Model struct {
	env    Env
	header Header
	names  NameFunc
	snaps  <-chan analysis.Snapshot
	cancel context.CancelFunc

	snap       analysis.Snapshot
	frame      int
	width      int
	done       bool
	cancelling bool
	quitting   bool
}

// NewModel creates a model fed by snaps. cancel is called when the user
// quits before the session ends; the model then waits for the final
// snapshot before exiting.
func NewModel(env Env, h Header, names NameFunc, snaps <-chan analysis.Snapshot, cancel context.CancelFunc) Model {
	if names == nil {
		names = identity
	}
	return Model{
		env:    env,
		header: h,
		names:  names,
		snaps:  snaps,
		cancel: cancel,
		snap:   analysis.Snapshot{State: analysis.StateIdle},
		width:  80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snaps), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				m.quitting = true
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				m.quitting = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()

	case snapshotMsg:
		m.snap = analysis.Snapshot(msg)
		return m, waitForSnapshot(m.snaps)

	case streamDoneMsg:
		m.done = true
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	body := View(m.env, m.header, m.snap, m.names, m.frame, m.width)
	switch {
	case m.done:
		body += "\n" + footerStyle.Render("analysis finished, q: quit")
	case m.cancelling:
		body += "\n" + footerStyle.Render("cancelling...")
	default:
		body += "\n" + footerStyle.Render("q: cancel")
	}
	return body + "\n"
}

// Snapshot returns the last snapshot the model received.
func (m Model) Snapshot() analysis.Snapshot { return m.snap }

func waitForSnapshot(in <-chan analysis.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-in
		if !ok {
			return streamDoneMsg{}
		}
		return snapshotMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}
