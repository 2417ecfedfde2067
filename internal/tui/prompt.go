package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"sentinel/internal/plugin"
)

// ErrPromptCancelled is returned when the user leaves the prompt early.
var ErrPromptCancelled = errors.New("prompt cancelled")

// promptModel asks the plugin questions in order. Every answer is
// required; Enter on a blank field keeps the cursor on that question.
type promptModel struct {
	questions []plugin.ConfigQuestion
	fields    []textinput.Model
	step      int
	problem   string
	submitted bool
}

func newPromptModel(questions []plugin.ConfigQuestion) promptModel {
	fields := make([]textinput.Model, len(questions))
	for i, q := range questions {
		in := textinput.New()
		in.Placeholder = q.Key
		in.CharLimit = 1024
		fields[i] = in
	}
	if len(fields) > 0 {
		fields[0].Focus()
	}
	return promptModel{questions: questions, fields: fields}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if len(m.fields) == 0 {
		return m, tea.Quit
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.fields[m.step], cmd = m.fields[m.step].Update(msg)
	return m, cmd
}

func (m promptModel) submit() (tea.Model, tea.Cmd) {
	if strings.TrimSpace(m.fields[m.step].Value()) == "" {
		m.problem = m.questions[m.step].Key + " is required"
		return m, nil
	}
	m.problem = ""
	m.fields[m.step].Blur()
	if m.step == len(m.fields)-1 {
		m.submitted = true
		return m, tea.Quit
	}
	m.step++
	m.fields[m.step].Focus()
	return m, textinput.Blink
}

func (m promptModel) View() string {
	if m.submitted || len(m.questions) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n%s\n",
		dimStyle.Render(fmt.Sprintf("[%d/%d]", m.step+1, len(m.questions))),
		headerStyle.Render(m.questions[m.step].Prompt),
		m.fields[m.step].View())
	if m.problem != "" {
		b.WriteString(levelStyle("high").Render(m.problem))
		b.WriteString("\n")
	}
	return b.String()
}

// answers returns the trimmed values keyed by question key.
func (m promptModel) answers() map[string]string {
	out := make(map[string]string, len(m.questions))
	for i, q := range m.questions {
		out[q.Key] = strings.TrimSpace(m.fields[i].Value())
	}
	return out
}

// Prompt asks each question in a small TUI and returns the answers keyed by
// ConfigQuestion.Key. Leaving early returns ErrPromptCancelled.
func Prompt(questions []plugin.ConfigQuestion, opts ...tea.ProgramOption) (map[string]string, error) {
	if len(questions) == 0 {
		return map[string]string{}, nil
	}
	final, err := tea.NewProgram(newPromptModel(questions), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("run prompt: %w", err)
	}
	m, ok := final.(promptModel)
	if !ok || !m.submitted {
		return nil, ErrPromptCancelled
	}
	return m.answers(), nil
}
