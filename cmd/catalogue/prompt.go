package main

import (
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
)

// errPromptAborted is returned when the operator interrupts a prompt.
var errPromptAborted = errors.New("prompt aborted")

type confirmKeyMap struct {
	Yes    key.Binding
	No     key.Binding
	Toggle key.Binding
	Submit key.Binding
	Quit   key.Binding
}

var confirmKeys = confirmKeyMap{
	Yes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "yes"),
	),
	No: key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("n", "no"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("left", "right", "tab", "h", "l"),
		key.WithHelp("←/→", "switch"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc", "q"),
		key.WithHelp("esc", "cancel"),
	),
}

// confirmModel is a yes/no question. The focused answer defaults to no.
type confirmModel struct {
	question string
	yes      bool // focused answer
	done     bool
	aborted  bool
}

func newConfirmModel(question string) confirmModel {
	return confirmModel{question: question}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, confirmKeys.Yes):
		m.yes, m.done = true, true
		return m, tea.Quit
	case key.Matches(keyMsg, confirmKeys.No):
		m.yes, m.done = false, true
		return m, tea.Quit
	case key.Matches(keyMsg, confirmKeys.Toggle):
		m.yes = !m.yes
	case key.Matches(keyMsg, confirmKeys.Submit):
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, confirmKeys.Quit):
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done || m.aborted {
		return ""
	}

	yes, no := "  Yes  ", "  No  "
	if m.yes {
		yes = output.TitleStyle.Render("[ Yes ]")
	} else {
		no = output.TitleStyle.Render("[ No ]")
	}

	var b strings.Builder
	b.WriteString(output.AttentionBox.Render(m.question))
	b.WriteString("\n")
	b.WriteString(yes + "  " + no)
	b.WriteString("\n\n")
	b.WriteString(output.MutedStyle.Render(strings.Join([]string{
		confirmKeys.Yes.Help().Key + " " + confirmKeys.Yes.Help().Desc,
		confirmKeys.No.Help().Key + " " + confirmKeys.No.Help().Desc,
		confirmKeys.Toggle.Help().Key + " " + confirmKeys.Toggle.Help().Desc,
		confirmKeys.Submit.Help().Key + " " + confirmKeys.Submit.Help().Desc,
	}, " • ")))
	b.WriteString("\n")
	return b.String()
}

// terminalConfirmer asks yes/no questions on a terminal. It satisfies
// vcs.Confirmer.
type terminalConfirmer struct {
	in  io.Reader
	out io.Writer
}

// Confirm shows prompt and waits for an answer.
func (c terminalConfirmer) Confirm(prompt string) (bool, error) {
	p := tea.NewProgram(newConfirmModel(prompt),
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
	)
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	if m.aborted {
		return false, errPromptAborted
	}
	return m.yes, nil
}
