package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// proposalMsg carries a finished decision into the update loop
type proposalMsg Proposal

// batchDoneMsg reports the end of a fast-forward run
type batchDoneMsg struct {
	written int
	err     error
}

// sessionDoneMsg signals the terminal state
type sessionDoneMsg struct{}

// consoleModel is the operator surface. Decisions and batches run as
// commands off the update loop, one at a time.
type consoleModel struct {
	ctx         context.Context
	session     *Session
	fastForward int

	proposal *Proposal
	busy     bool
	queued   int
	status   string
	done     bool
}

func newConsoleModel(ctx context.Context, session *Session, fastForward int) consoleModel {
	return consoleModel{
		ctx:         ctx,
		session:     session,
		fastForward: fastForward,
		busy:        true,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return m.decideNext()
}

// decideNext starts (or rejoins) the session's decision task and waits for it
func (m consoleModel) decideNext() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		task := session.Propose(ctx)
		if task == nil {
			return sessionDoneMsg{}
		}
		return proposalMsg(task.Wait())
	}
}

func (m consoleModel) batch(n int) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		written, err := session.BatchAdvance(ctx, n)
		return batchDoneMsg{written: written, err: err}
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case proposalMsg:
		p := Proposal(msg)
		m.proposal = &p
		m.busy = false
		if m.queued > 0 {
			n := m.queued
			m.queued = 0
			return m.startBatch(n)
		}
		return m, nil

	case batchDoneMsg:
		if msg.err != nil {
			m.queued = 0
			m.status = fmt.Sprintf("Fast-forward stopped after %d URLs: %v", msg.written, msg.err)
			return m, m.decideNext()
		}
		m.status = fmt.Sprintf("Fast-forwarded %d URLs", msg.written)
		if m.queued > 0 {
			n := m.queued
			m.queued = 0
			return m.startBatch(n)
		}
		return m, m.decideNext()

	case sessionDoneMsg:
		m.done = true
		m.busy = false
		m.proposal = nil
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg.String())
	}

	return m, nil
}

func (m consoleModel) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit

	case "y", "enter":
		return m.resolve(m.session.Confirm)

	case "n":
		return m.resolve(m.session.Flip)

	case "f":
		if m.busy {
			// first-come-first-served: runs after the current task
			m.queued += m.fastForward
			m.status = fmt.Sprintf("Fast-forward %d queued", m.queued)
			return m, nil
		}
		return m.startBatch(m.fastForward)
	}

	return m, nil
}

func (m consoleModel) resolve(action func() (ResultRecord, error)) (tea.Model, tea.Cmd) {
	if m.busy || m.proposal == nil {
		return m, nil
	}

	if _, err := action(); err != nil {
		// the proposal stays on screen for another attempt
		m.status = fmt.Sprintf("Save failed: %v", err)
		return m, nil
	}

	m.proposal = nil
	m.busy = true
	m.status = ""
	return m, m.decideNext()
}

func (m consoleModel) startBatch(n int) (tea.Model, tea.Cmd) {
	m.busy = true
	m.proposal = nil
	m.status = fmt.Sprintf("Fast-forwarding %d URLs...", n)
	return m, m.batch(n)
}

func (m consoleModel) View() string {
	var b strings.Builder

	b.WriteString("URL Classifier\n\n")

	switch {
	case m.done:
		b.WriteString("All URLs have been classified!\n")
		return b.String()
	case m.proposal == nil:
		b.WriteString("Deciding...\n")
	default:
		p := m.proposal
		fmt.Fprintf(&b, "URL: %s\n", p.Record.URL)
		fmt.Fprintf(&b, "Raw URL: %s\n", p.Record.RawURL)
		fmt.Fprintf(&b, "Application: %s\n\n", p.Record.ApplicationName)
		fmt.Fprintf(&b, "Decision: %s\n", p.Decision.Label())
		fmt.Fprintf(&b, "%s\n\n", p.Decision.Reason)
		fmt.Fprintf(&b, "Progress: %d / %d\n", p.Position, m.session.Total())
	}

	if m.status != "" {
		fmt.Fprintf(&b, "\n%s\n", m.status)
	}

	fmt.Fprintf(&b, "\n[y] agree  [n] disagree  [f] fast forward %d  [q] quit\n", m.fastForward)
	return b.String()
}

// RunConsole drives the session interactively until it is terminal or the
// operator quits. Save failures are shown and can be retried.
func RunConsole(ctx context.Context, session *Session, fastForward int) error {
	program := tea.NewProgram(newConsoleModel(ctx, session, fastForward), tea.WithContext(ctx))

	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("running console: %w", err)
	}

	if m, ok := final.(consoleModel); ok && m.done {
		fmt.Println("All URLs have been classified!")
	}
	return nil
}
