// Package prompt builds the outgoing assistant message from user input,
// file context, and any detected skill.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ternarybob/sidekick/pkg/skill"
)

// FileContext carries the code excerpt attached to a request.
type FileContext struct {
	// Path is the file path shown to the assistant.
	Path string

	// StartLine and EndLine are the 1-based inclusive line range of the
	// excerpt. Zero values mean the range is unknown.
	StartLine int
	EndLine   int

	// Filetype tags the fenced block (e.g. "go", "typescript").
	Filetype string

	// Text is the verbatim excerpt.
	Text string
}

// Detector matches free text against the skill registry. *skill.Registry
// satisfies it; tests substitute fakes.
type Detector interface {
	Detect(text string) (*skill.Skill, bool)
}

// Composer builds outgoing prompts.
type Composer struct {
	detector Detector
}

// NewComposer creates a composer. detector may be nil to disable skill
// enrichment.
func NewComposer(detector Detector) *Composer {
	return &Composer{detector: detector}
}

// Compose builds the outgoing message. Formatting is deterministic and no
// input is truncated. When a skill keyword appears in the user text, the
// skill's body is appended as a labeled section.
func (c *Composer) Compose(userText string, fc FileContext) string {
	var sb strings.Builder

	if fc.Path != "" {
		sb.WriteString(fmt.Sprintf("File: %s\n", fc.Path))
	}
	if fc.StartLine > 0 && fc.EndLine > 0 {
		sb.WriteString(fmt.Sprintf("Lines: %d-%d\n", fc.StartLine, fc.EndLine))
	}
	if fc.Text != "" {
		sb.WriteString("\n```" + fc.Filetype + "\n")
		sb.WriteString(fc.Text)
		if !strings.HasSuffix(fc.Text, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n")
	}

	sb.WriteString("\nTask: ")
	sb.WriteString(userText)
	sb.WriteString("\n")

	if c.detector != nil {
		if s, ok := c.detector.Detect(userText); ok {
			sb.WriteString(fmt.Sprintf("\n## Skill: %s\n\n", s.Name))
			sb.WriteString(s.Body)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
