package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	youStyle      = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	strangerStyle = lipgloss.NewStyle().Bold(true).Foreground(Success)
	systemStyle   = lipgloss.NewStyle().Italic(true).Foreground(Muted)
	warnStyle     = lipgloss.NewStyle().Foreground(Warning)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(Error)
	pendingStyle  = lipgloss.NewStyle().Foreground(Muted)
	deliveredMark = lipgloss.NewStyle().Foreground(Success).Render("✓")
)

// printer serializes writes from the event loop and call goroutines.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

func (p *printer) you(text string, delivered bool) {
	mark := pendingStyle.Render("…")
	if delivered {
		mark = deliveredMark
	}
	p.line(youStyle.Render("You:") + " " + text + " " + mark)
}

func (p *printer) stranger(text string) {
	p.line(strangerStyle.Render("Stranger:") + " " + text)
}

func (p *printer) system(format string, args ...any) {
	p.line(systemStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) warn(format string, args ...any) {
	p.line(warnStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) error(format string, args ...any) {
	p.line(errorStyle.Render(fmt.Sprintf(format, args...)))
}
