package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m confirmModel, msg tea.KeyMsg) (confirmModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(confirmModel)
	require.True(t, ok)
	return cm, cmd
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestConfirmModelDefaultsToNo(t *testing.T) {
	m := newConfirmModel("Commit changes?")
	assert.False(t, m.yes)

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.done)
	assert.False(t, m.yes)
	assert.NotNil(t, cmd)
}

func TestConfirmModelKeys(t *testing.T) {
	tests := []struct {
		name    string
		keys    []tea.KeyMsg
		yes     bool
		aborted bool
	}{
		{"y answers yes", []tea.KeyMsg{runeKey('y')}, true, false},
		{"Y answers yes", []tea.KeyMsg{runeKey('Y')}, true, false},
		{"n answers no", []tea.KeyMsg{runeKey('n')}, false, false},
		{"toggle then enter", []tea.KeyMsg{{Type: tea.KeyRight}, {Type: tea.KeyEnter}}, true, false},
		{"toggle twice then enter", []tea.KeyMsg{{Type: tea.KeyTab}, {Type: tea.KeyTab}, {Type: tea.KeyEnter}}, false, false},
		{"escape aborts", []tea.KeyMsg{{Type: tea.KeyEsc}}, false, true},
		{"ctrl+c aborts", []tea.KeyMsg{{Type: tea.KeyCtrlC}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newConfirmModel("q")
			for _, k := range tt.keys {
				m, _ = press(t, m, k)
			}
			assert.Equal(t, tt.yes, m.yes)
			assert.Equal(t, tt.aborted, m.aborted)
			assert.True(t, m.done || m.aborted)
		})
	}
}

func TestConfirmModelIgnoresOtherKeys(t *testing.T) {
	m := newConfirmModel("q")
	m, cmd := press(t, m, runeKey('x'))
	assert.False(t, m.done)
	assert.Nil(t, cmd)
}

func TestConfirmModelView(t *testing.T) {
	m := newConfirmModel("Commit 2 changes on a new branch?")
	view := m.View()
	assert.Contains(t, view, "Commit 2 changes on a new branch?")
	assert.Contains(t, view, "Yes")
	assert.Contains(t, view, "No")

	m, _ = press(t, m, runeKey('y'))
	assert.Empty(t, m.View(), "the prompt clears once answered")
}

func TestTerminalConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y", true},
		{"n", false},
		{"\r", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			var out bytes.Buffer
			c := terminalConfirmer{in: strings.NewReader(tt.input), out: &out}
			got, err := c.Confirm("Commit?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
