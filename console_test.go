package main

import (
	"context"
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step feeds msg to the model and returns the updated model and the message
// produced by the resulting command, if any
func step(t *testing.T, m consoleModel, msg tea.Msg) (consoleModel, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	updated, ok := next.(consoleModel)
	require.True(t, ok)
	if cmd == nil {
		return updated, nil
	}
	return updated, cmd()
}

func TestConsoleConfirmFlow(t *testing.T) {
	decider := &stubDecider{decisions: map[string]Decision{
		"https://b.com": {Value: NotWorkRelated, Reason: ReasonInclude, Source: SourceInclude},
	}}
	session, path := newTestSession(t, decider, testRecords("https://a.com", "https://b.com"))
	m := newConsoleModel(context.Background(), session, 10)

	assert.Contains(t, m.View(), "Deciding...")

	m, msg := step(t, m, m.Init()())
	assert.Nil(t, msg)
	view := m.View()
	assert.Contains(t, view, "URL: https://a.com")
	assert.Contains(t, view, "Raw URL: https://a.com/raw")
	assert.Contains(t, view, "Decision: Work-related")
	assert.Contains(t, view, "Progress: 1 / 2")

	m, msg = step(t, m, key("y"))
	require.IsType(t, proposalMsg{}, msg)
	m, _ = step(t, m, msg)
	assert.Contains(t, m.View(), "Decision: Not work-related")
	assert.Contains(t, m.View(), ReasonInclude)

	m, msg = step(t, m, key("n"))
	assert.IsType(t, sessionDoneMsg{}, msg)
	m, msg = step(t, m, msg)
	assert.Equal(t, tea.QuitMsg{}, msg)
	assert.True(t, m.done)
	assert.Contains(t, m.View(), "All URLs have been classified!")

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "1", rows[1][4])
	assert.Equal(t, "1", rows[2][4], "flip of 0")
}

func TestConsoleIgnoresKeysWhileDeciding(t *testing.T) {
	decider := &stubDecider{gate: make(chan struct{})}
	session, path := newTestSession(t, decider, testRecords("https://a.com"))
	m := newConsoleModel(context.Background(), session, 10)

	m, msg := step(t, m, key("enter"))
	assert.Nil(t, msg)
	assert.Len(t, readCSV(t, path), 1, "nothing written without a proposal")

	close(decider.gate)
}

func TestConsoleFastForward(t *testing.T) {
	decider := &stubDecider{}
	session, path := newTestSession(t, decider, testRecords("https://a.com", "https://b.com", "https://c.com"))
	m := newConsoleModel(context.Background(), session, 2)

	m, _ = step(t, m, m.Init()())

	m, msg := step(t, m, key("f"))
	assert.Equal(t, batchDoneMsg{written: 2}, msg)
	assert.Contains(t, m.View(), "Fast-forwarding 2 URLs...")

	m, msg = step(t, m, msg)
	assert.Contains(t, m.View(), "Fast-forwarded 2 URLs")
	require.IsType(t, proposalMsg{}, msg)

	m, _ = step(t, m, msg)
	assert.Contains(t, m.View(), "URL: https://c.com")
	assert.Len(t, readCSV(t, path), 3)
}

func TestConsoleFastForwardQueuedWhileBusy(t *testing.T) {
	session, _ := newTestSession(t, &stubDecider{}, testRecords("https://a.com", "https://b.com"))
	m := newConsoleModel(context.Background(), session, 5)

	m, msg := step(t, m, key("f"))
	assert.Nil(t, msg)
	assert.Equal(t, 5, m.queued)
	assert.Contains(t, m.View(), "Fast-forward 5 queued")

	// the queued batch starts as soon as the decision lands
	m, msg = step(t, m, m.Init()())
	assert.Zero(t, m.queued)
	assert.Equal(t, batchDoneMsg{written: 2}, msg)

	m, msg = step(t, m, msg)
	assert.IsType(t, sessionDoneMsg{}, msg)
}

func TestConsoleSaveFailureIsRetryable(t *testing.T) {
	session, path := newTestSession(t, &stubDecider{}, testRecords("https://a.com"))
	m := newConsoleModel(context.Background(), session, 10)
	m, _ = step(t, m, m.Init()())

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0755))

	m, msg := step(t, m, key("y"))
	assert.Nil(t, msg)
	assert.Contains(t, m.View(), "Save failed")
	assert.Contains(t, m.View(), "URL: https://a.com")

	require.NoError(t, os.Remove(path))
	_, err := OpenResultLog(path, []string{ColumnURL, ColumnRawURL, ColumnApplicationName})
	require.NoError(t, err)

	_, msg = step(t, m, key("y"))
	assert.IsType(t, sessionDoneMsg{}, msg)
	assert.Len(t, readCSV(t, path), 2)
}

func TestConsoleQuit(t *testing.T) {
	session, _ := newTestSession(t, &stubDecider{}, testRecords("https://a.com"))
	m := newConsoleModel(context.Background(), session, 10)

	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, msg := step(t, m, k)
		assert.Equal(t, tea.QuitMsg{}, msg, k.String())
	}
}
