package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// =============================================================================
// ToolchainListModel - Interactive toolchain selection
// =============================================================================

// ToolchainListModel is the bubbletea model for picking an installed toolchain.
type ToolchainListModel struct {
	Records  []toolchain.Record
	Cursor   int
	Selected *toolchain.Record
	Height   int
	Offset   int
}

// NewToolchainListModel creates a picker positioned on the newest toolchain.
func NewToolchainListModel(records []toolchain.Record) ToolchainListModel {
	return ToolchainListModel{
		Records: records,
		Cursor:  max(len(records)-1, 0),
		Height:  15,
		Offset:  max(len(records)-15, 0),
	}
}

func (m ToolchainListModel) Init() tea.Cmd {
	return nil
}

func (m ToolchainListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Records)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Records) == 0 {
				return m, tea.Quit
			}
			rec := m.Records[m.Cursor]
			m.Selected = &rec
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m ToolchainListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Toolchain"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Records))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Records[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		origin := "built"
		if !r.InstalledBySelf {
			origin = "external"
		}
		rows = append(rows, []string{cursor, r.Version.String(), origin, r.InstallDir})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Version", "Origin", "Location").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
			}
			if col >= 2 {
				return lipgloss.NewStyle().Foreground(colorDim)
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Records))))

	return b.String()
}

// pickToolchain runs the picker on in/out.
func pickToolchain(in io.Reader, out io.Writer, records []toolchain.Record) (toolchain.Record, error) {
	if len(records) == 0 {
		return toolchain.Record{}, pserrors.New(pserrors.ErrCodeToolchainNotInstalled, "no toolchains installed")
	}
	final, err := tea.NewProgram(NewToolchainListModel(records), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return toolchain.Record{}, fmt.Errorf("run picker: %w", err)
	}
	m := final.(ToolchainListModel)
	if m.Selected == nil {
		return toolchain.Record{}, errCancelled
	}
	return *m.Selected, nil
}
