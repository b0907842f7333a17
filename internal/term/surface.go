// Package term renders status frames into an ANSI terminal. It implements
// display.Surface for the CLI, redrawing in place the way the status would
// sit inline next to editor content.
package term

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/ternarybob/sidekick/pkg/display"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bodyStyle   = lipgloss.NewStyle().Faint(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Surface draws frames to a terminal writer, overwriting the previous frame
// in place.
type Surface struct {
	mu        sync.Mutex
	w         io.Writer
	lastLines int
}

// NewSurface creates a terminal surface writing to w.
func NewSurface(w io.Writer) *Surface {
	return &Surface{w: w}
}

// Render implements display.Surface.
func (s *Surface) Render(region display.Region, frame display.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.erase()

	lines := []string{headerStyle.Render(frame.Header)}
	for _, b := range frame.Body {
		lines = append(lines, bodyStyle.Render("  "+b))
	}
	if region.Path != "" {
		anchor := region.Path
		if region.StartLine > 0 {
			anchor = fmt.Sprintf("%s:%d-%d", region.Path, region.StartLine, region.EndLine)
		}
		lines = append(lines, borderStyle.Render("  ╰ "+anchor))
	}

	fmt.Fprint(s.w, strings.Join(lines, "\n")+"\n")
	s.lastLines = len(lines)
}

// Clear implements display.Surface.
func (s *Surface) Clear(region display.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.erase()
}

// erase rewinds over the previously drawn frame. Caller holds the lock.
func (s *Surface) erase() {
	if s.lastLines == 0 {
		return
	}
	fmt.Fprintf(s.w, "\x1b[%dA", s.lastLines)
	for i := 0; i < s.lastLines; i++ {
		fmt.Fprint(s.w, "\x1b[2K\n")
	}
	fmt.Fprintf(s.w, "\x1b[%dA", s.lastLines)
	s.lastLines = 0
}
