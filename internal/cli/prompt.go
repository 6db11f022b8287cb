package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/pyshim/pkg/pyversion"
)

// RequirementPromptModel asks for a version requirement and validates it
// before accepting.
type RequirementPromptModel struct {
	Input     textinput.Model
	Err       error
	Accepted  *pyversion.Requirement
	Cancelled bool
}

// NewRequirementPromptModel creates a focused prompt.
func NewRequirementPromptModel() RequirementPromptModel {
	ti := textinput.New()
	ti.Placeholder = "e.g. 3.9, ^3.8, >=3.7, <3.10"
	ti.Width = 30
	ti.Focus()
	return RequirementPromptModel{Input: ti}
}

func (m RequirementPromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m RequirementPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.Cancelled = true
			return m, tea.Quit
		case "enter":
			req, err := pyversion.Parse(m.Input.Value())
			if err != nil {
				m.Err = err
				return m, nil
			}
			m.Accepted = &req
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	m.Err = nil
	return m, cmd
}

func (m RequirementPromptModel) View() string {
	if m.Accepted != nil || m.Cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(StyleTitle.Render("No Python requirement found"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("Which version should be installed? (esc to cancel)"))
	b.WriteString("\n\n")
	b.WriteString(m.Input.View())
	b.WriteString("\n")
	if m.Err != nil {
		b.WriteString(StyleWarning.Render(m.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// promptRequirement runs the prompt on in/out.
func promptRequirement(in io.Reader, out io.Writer) (pyversion.Requirement, error) {
	final, err := tea.NewProgram(NewRequirementPromptModel(), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return pyversion.Requirement{}, fmt.Errorf("run prompt: %w", err)
	}
	m := final.(RequirementPromptModel)
	if m.Accepted == nil {
		return pyversion.Requirement{}, errCancelled
	}
	return *m.Accepted, nil
}
