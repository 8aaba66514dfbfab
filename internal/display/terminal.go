package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var ErrNotOpen = errors.New("display not open")

// CSS color names used by the sequencer, mapped to terminal colors.
var palette = map[string]lipgloss.Color{
	"black":     lipgloss.Color("#000000"),
	"blue":      lipgloss.Color("#0000FF"),
	"lightblue": lipgloss.Color("#ADD8E6"),
	"white":     lipgloss.Color("#FFFFFF"),
}

// Terminal renders frames as centered, colored lines on a white panel.
type Terminal struct {
	out      io.Writer
	width    int
	renderer *lipgloss.Renderer

	mu   sync.Mutex
	open bool
}

func NewTerminal(out io.Writer, width int) *Terminal {
	if width <= 0 {
		width = 40
	}
	return &Terminal{out: out, width: width, renderer: lipgloss.NewRenderer(out)}
}

func (t *Terminal) style(color string) lipgloss.Style {
	fg, ok := palette[color]
	if !ok {
		fg = lipgloss.Color(color)
	}
	return t.renderer.NewStyle().
		Bold(true).
		Foreground(fg).
		Background(palette["white"]).
		Width(t.width).
		Align(lipgloss.Center).
		Padding(1, 0)
}

func (t *Terminal) Open(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = true
	_, err := fmt.Fprintln(t.out, t.renderer.NewStyle().Faint(true).Render("[display open]"))
	return err
}

func (t *Terminal) Show(_ context.Context, text, color string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return ErrNotOpen
	}
	_, err := fmt.Fprintln(t.out, t.style(color).Render(text))
	return err
}

func (t *Terminal) Close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	_, err := fmt.Fprintln(t.out, t.renderer.NewStyle().Faint(true).Render("[display closed]"))
	return err
}
