package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/gdext-bridge/internal/hostsim"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#478CBF")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#478CBF"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectClass modelState = iota
	stateSelectMethod
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	s        *session
	classes  []hostsim.ClassInfo
	result   string
	inputs   []textinput.Model
	class    int
	method   int
	focusIdx int
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(s *session) *interactiveModel {
	return &interactiveModel{
		s:       s,
		classes: s.classes(false),
		state:   stateSelectClass,
	}
}

func (m *interactiveModel) Init() tea.Cmd { return nil }

func (m *interactiveModel) methods() []hostsim.MethodInfo {
	if len(m.classes) == 0 {
		return nil
	}
	return m.classes[m.class].Methods
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			switch m.state {
			case stateSelectClass:
				if m.class > 0 {
					m.class--
				}
			case stateSelectMethod:
				if m.method > 0 {
					m.method--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectClass:
				if m.class < len(m.classes)-1 {
					m.class++
				}
			case stateSelectMethod:
				if m.method < len(m.methods())-1 {
					m.method++
				}
			}

		case "enter":
			switch m.state {
			case stateSelectClass:
				if len(m.methods()) > 0 {
					m.method = 0
					m.state = stateSelectMethod
				}

			case stateSelectMethod:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectMethod:
				m.state = stateSelectClass
			case stateInputArgs:
				m.state = stateSelectMethod
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	meth := m.methods()[m.method]
	m.inputs = make([]textinput.Model, len(meth.Args))
	for i, t := range meth.Args {
		ti := textinput.New()
		ti.Placeholder = t.String()
		if i >= len(meth.Args)-meth.Defaults {
			ti.Placeholder += " (optional)"
		}
		name := fmt.Sprintf("arg%d", i)
		if i < len(meth.ArgNames) {
			name = meth.ArgNames[i]
		}
		ti.Prompt = name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callMethod() tea.Msg {
	meth := m.methods()[m.method]
	var raw []string
	for _, input := range m.inputs {
		v := input.Value()
		if v == "" {
			// trailing empty fields fall back to defaults
			break
		}
		raw = append(raw, v)
	}
	result, err := m.s.call(m.classes[m.class].Name, meth.Name, raw)
	return callResultMsg{result: result, err: err}
}

func (m *interactiveModel) View() string {
	if len(m.classes) == 0 {
		return errorStyle.Render("No extension classes registered.\n\nPress q to quit.")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("GDExtension Bridge"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectClass:
		b.WriteString("Select a class:\n\n")
		for i, c := range m.classes {
			line := c.Name + " : " + c.Parent
			if i == m.class {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter methods • q quit"))

	case stateSelectMethod:
		b.WriteString(fmt.Sprintf("Methods of %s:\n\n", funcStyle.Render(m.classes[m.class].Name)))
		for i, meth := range m.methods() {
			sig := methodSignature(meth)
			if i == m.method {
				b.WriteString(selectedStyle.Render("> " + sig))
			} else {
				b.WriteString("  " + funcStyle.Render(sig))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • esc back • q quit"))

	case stateInputArgs:
		meth := m.methods()[m.method]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(meth.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(meth.Args[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		meth := m.methods()[m.method]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(meth.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(s *session) error {
	p := tea.NewProgram(newInteractiveModel(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
