package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorRed   = lipgloss.Color("#FF5555")
	colorGreen = lipgloss.Color("#50FA7B")
	colorGray  = lipgloss.Color("#6272A4")
	colorWhite = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Foreground(colorWhite).
			Padding(0, 1)

	heatingStyle = panelStyle.BorderForeground(colorGreen)

	alertStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorRed).
			Foreground(colorRed).
			Bold(true).
			Padding(0, 1)
)

// Terminal draws the panel as a bordered box on a terminal.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal creates a Terminal writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// Render draws the running status. The border turns green while heating.
func (t *Terminal) Render(st Status) error {
	line1, line2 := Lines(st)
	style := panelStyle
	if st.HeaterOn {
		style = heatingStyle
	}
	return t.draw(style.Render(line1 + "\n" + line2))
}

// Alert draws a two-line message in the alert style.
func (t *Terminal) Alert(line1, line2 string) error {
	return t.draw(alertStyle.Render(fit(line1) + "\n" + fit(line2)))
}

func (t *Terminal) draw(box string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Clear and home so the box redraws in place.
	if _, err := fmt.Fprintf(t.out, "\x1b[H\x1b[2J%s\n", box); err != nil {
		return fmt.Errorf("draw panel: %w", err)
	}
	return nil
}

// Plain writes the panel lines without styling, one frame per call. Used
// when stdout is not a terminal.
type Plain struct {
	out io.Writer
}

// NewPlain creates a Plain display writing to out.
func NewPlain(out io.Writer) *Plain {
	return &Plain{out: out}
}

// Render writes the status as one "line1 | line2" row.
func (p *Plain) Render(st Status) error {
	line1, line2 := Lines(st)
	_, err := fmt.Fprintf(p.out, "%s | %s\n", line1, line2)
	return err
}

// Alert writes the alert lines, fitted to the panel width, as one row.
func (p *Plain) Alert(line1, line2 string) error {
	_, err := fmt.Fprintf(p.out, "%s | %s\n", fit(line1), fit(line2))
	return err
}
