// Package progress renders a live single-line status display.
//
// A [Reporter] owns the terminal line for one labeled activity. It consumes
// a channel of [Event] values: status events replace the displayed text,
// and a stop event ends the display with a final success or failure line.
// Independently of incoming events the reporter redraws on a fixed tick so
// the spinner animates during long silent stretches of a build.
//
// When the output is not a terminal, nothing is animated and only the final
// line is written.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-isatty"
)

// DefaultInterval is the redraw period.
const DefaultInterval = 100 * time.Millisecond

// DefaultWidth bounds the status text when the caller does not set one.
const DefaultWidth = 72

// clearLine returns the cursor to column zero and erases the line.
const clearLine = "\r\x1b[2K"

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Event is one message to a reporter.
type Event struct {
	Text string
	// Stop ends the display. OK selects the final icon.
	Stop bool
	OK   bool
}

// Status returns an event that replaces the displayed text.
func Status(text string) Event { return Event{Text: text} }

// Done returns a stop event for a successful activity.
func Done(text string) Event { return Event{Text: text, Stop: true, OK: true} }

// Failed returns a stop event for a failed activity.
func Failed(text string) Event { return Event{Text: text, Stop: true} }

// Reporter draws one status line.
type Reporter struct {
	Label    string
	Interval time.Duration
	// Width is the maximum display width of the status text.
	Width int

	out      io.Writer
	tty      bool
	spinner  lipgloss.Style
	label    lipgloss.Style
	dim      lipgloss.Style
	okIcon   lipgloss.Style
	failIcon lipgloss.Style
}

// New returns a reporter writing to w. Animation is enabled only when w is
// a terminal.
func New(w io.Writer, label string) *Reporter {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	re := lipgloss.NewRenderer(w)
	return &Reporter{
		Label:    label,
		Interval: DefaultInterval,
		Width:    DefaultWidth,
		out:      w,
		tty:      tty,
		spinner:  re.NewStyle().Foreground(lipgloss.Color("36")),
		label:    re.NewStyle().Bold(true),
		dim:      re.NewStyle().Foreground(lipgloss.Color("240")),
		okIcon:   re.NewStyle().Foreground(lipgloss.Color("35")),
		failIcon: re.NewStyle().Foreground(lipgloss.Color("167")),
	}
}

// Truncate shortens line to at most width display cells, keeping escape
// sequences intact and marking the cut with an ellipsis. Trailing whitespace
// and carriage returns from build output are dropped first.
func Truncate(line string, width int) string {
	line = strings.TrimRight(line, " \t\r\n")
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		line = line[i+1:]
	}
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(line, width, "…")
}

// Run renders until a stop event arrives or events is closed. The line is
// always cleared before Run returns.
func (r *Reporter) Run(events <-chan Event) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		text  string
		frame int
		drawn bool
	)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if drawn {
					fmt.Fprint(r.out, clearLine)
				}
				return
			}
			if ev.Stop {
				r.finish(ev, drawn)
				return
			}
			text = Truncate(ev.Text, r.Width)
		case <-ticker.C:
			if !r.tty {
				continue
			}
			fmt.Fprint(r.out, clearLine+r.render(frames[frame%len(frames)], text))
			frame++
			drawn = true
		}
	}
}

func (r *Reporter) render(frame, text string) string {
	s := r.spinner.Render(frame) + " " + r.label.Render(r.Label)
	if text != "" {
		s += " " + r.dim.Render(text)
	}
	return s
}

func (r *Reporter) finish(ev Event, drawn bool) {
	if drawn {
		fmt.Fprint(r.out, clearLine)
	}
	icon := r.okIcon.Render("✓")
	if !ev.OK {
		icon = r.failIcon.Render("✗")
	}
	line := icon + " " + r.label.Render(r.Label)
	if t := Truncate(ev.Text, r.Width); t != "" {
		line += " " + r.dim.Render(t)
	}
	fmt.Fprintln(r.out, line)
}
