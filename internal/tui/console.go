// Package tui is the interactive query console: a prompt running the command
// language against one configured connection.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/veildb/veildb/internal/engine"
	"github.com/veildb/veildb/internal/query"
)

const queryTimeout = 30 * time.Second

// ConsoleModel is the bubbletea model for the query console.
type ConsoleModel struct {
	engine       *engine.Engine
	connectionID string
	connName     string

	input      textinput.Model
	output     viewport.Model
	spinner    spinner.Model
	running    bool
	ready      bool
	history    []string
	histPos    int
	transcript strings.Builder
	width      int
	height     int
}

type queryDoneMsg struct {
	command string
	result  *engine.Result
	err     error
}

// NewConsole creates a console bound to one connection.
func NewConsole(eng *engine.Engine, connectionID, connName string) ConsoleModel {
	input := textinput.New()
	input.Placeholder = "all()[0:10]"
	input.Prompt = "> "
	input.CharLimit = 512
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ConsoleModel{
		engine:       eng,
		connectionID: connectionID,
		connName:     connName,
		input:        input,
		spinner:      s,
		histPos:      -1,
		width:        80,
		height:       24,
	}
}

func (m ConsoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.output = viewport.New(msg.Width, msg.Height-5)
			m.ready = true
		} else {
			m.output.Width = msg.Width
			m.output.Height = msg.Height - 5
		}
		m.output.SetContent(m.transcript.String())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "up":
			if len(m.history) == 0 {
				return m, nil
			}
			if m.histPos < 0 {
				m.histPos = len(m.history) - 1
			} else if m.histPos > 0 {
				m.histPos--
			}
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
			return m, nil

		case "down":
			if m.histPos < 0 {
				return m, nil
			}
			m.histPos++
			if m.histPos >= len(m.history) {
				m.histPos = -1
				m.input.SetValue("")
			} else {
				m.input.SetValue(m.history[m.histPos])
				m.input.CursorEnd()
			}
			return m, nil

		case "pgup":
			m.output.HalfPageUp()
			return m, nil

		case "pgdown":
			m.output.HalfPageDown()
			return m, nil

		case "enter":
			if m.running {
				return m, nil
			}
			cmd := strings.TrimSpace(m.input.Value())
			if cmd == "" {
				return m, nil
			}
			if cmd == "exit" || cmd == "quit" {
				return m, tea.Quit
			}
			m.history = append(m.history, cmd)
			m.histPos = -1
			m.input.SetValue("")
			m.running = true
			return m, tea.Batch(m.spinner.Tick, m.runQuery(cmd))
		}

	case queryDoneMsg:
		m.running = false
		m.appendTranscript(msg)
		return m, nil

	case spinner.TickMsg:
		if m.running {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if !m.running {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ConsoleModel) runQuery(command string) tea.Cmd {
	eng := m.engine
	connID := m.connectionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		sess, err := eng.Manager(ctx, connID)
		if err != nil {
			return queryDoneMsg{command: command, err: err}
		}
		defer sess.Close()

		res, err := eng.Execute(ctx, sess, command)
		return queryDoneMsg{command: command, result: res, err: err}
	}
}

func (m *ConsoleModel) appendTranscript(msg queryDoneMsg) {
	m.transcript.WriteString(highlightStyle.Render("> "+msg.command) + "\n")
	if msg.err != nil {
		m.transcript.WriteString(errStyle.Render(msg.err.Error()) + "\n\n")
	} else {
		m.transcript.WriteString(renderResult(msg.result) + "\n")
	}
	if m.ready {
		m.output.SetContent(m.transcript.String())
		m.output.GotoBottom()
	}
}

func renderResult(res *engine.Result) string {
	switch res.Kind {
	case query.CmdCount:
		return fmt.Sprintf("%d\n", *res.Count)
	case query.CmdHelp:
		return res.Help
	case query.CmdProperties:
		var b strings.Builder
		for _, f := range res.Filters {
			b.WriteString("  " + f.Name + " (" + f.Type + ")")
			if f.HasOptions {
				b.WriteString(" / options: " + strings.Join(f.Options, ","))
			}
			b.WriteString("\n")
		}
		return b.String()
	default:
		if len(res.Rows) == 0 {
			return dimStyle.Render("no results") + "\n"
		}
		data, err := json.MarshalIndent(res.Rows, "", "  ")
		if err != nil {
			return errStyle.Render(err.Error()) + "\n"
		}
		return string(data) + "\n" + dimStyle.Render(fmt.Sprintf("%d rows", len(res.Rows))) + "\n"
	}
}

func (m ConsoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("veildb console: "+m.connName) + "\n")

	if m.ready {
		b.WriteString(m.output.View() + "\n")
	}

	if m.running {
		b.WriteString(fmt.Sprintf("%s running...\n", m.spinner.View()))
	} else {
		b.WriteString(m.input.View() + "\n")
	}
	b.WriteString(dimStyle.Render("enter to run • up/down for history • pgup/pgdown to scroll • try `help` • esc to quit"))
	return b.String()
}

// Run starts the console program and blocks until the user quits.
func Run(eng *engine.Engine, connectionID, connName string) error {
	p := tea.NewProgram(NewConsole(eng, connectionID, connName), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// styles
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)
