package assist

import (
	"fmt"
	"strings"

	"github.com/ternarybob/sidekick/pkg/display"
)

// defaultBinary is the assistant executable when none is configured.
const defaultBinary = "claude"

// spinnerFrames cycle while the assistant has produced no output yet.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// loadingFrame shows elapsed time while waiting for the first output.
func loadingFrame(tick, elapsed int) display.Frame {
	return display.Frame{
		Header: fmt.Sprintf("%s asking assistant… %ds (cancel to abort)",
			spinnerFrames[tick%len(spinnerFrames)], elapsed),
	}
}

// workingFrame replaces the spinner once real output is flowing.
func workingFrame() display.Frame {
	return display.Frame{Header: "▸ assistant working…"}
}

// successFrame shows the terminal success status. Auto-dismissed after a
// short delay unless overridden.
func successFrame(elapsed int, sessionHeld, sessionSaved bool) display.Frame {
	header := fmt.Sprintf("✓ assistant done in %ds", elapsed)
	if sessionHeld {
		header += " [session]"
	}

	var body []string
	if sessionSaved {
		body = append(body, "continuation saved, ask again to continue the conversation")
	}
	return display.Frame{Header: header, Body: body}
}

// exitErrorFrame shows a nonzero exit. Persistent: requires explicit
// dismiss, cancel, or a new request.
func exitErrorFrame(code int) display.Frame {
	return display.Frame{
		Header: fmt.Sprintf("✗ assistant failed (exit %d)", code),
		Body:   []string{"dismiss to close"},
	}
}

// errorFrame shows a resolution, spawn, or write failure.
func errorFrame(message string) display.Frame {
	return display.Frame{
		Header: "✗ " + message,
		Body:   []string{"dismiss to close"},
	}
}

// cancelledFrame is the explicit, final cancellation status.
func cancelledFrame() display.Frame {
	return display.Frame{Header: "✕ cancelled"}
}

// TerminalArgv assembles the command line for an interactive assistant
// session. No print or output-format flags: the assistant owns the TTY.
// token, when non-empty, resumes that conversation.
func TerminalArgv(cfg Config, path, token string) []string {
	argv := []string{path}

	if token != "" {
		argv = append(argv, "--resume", token)
	}
	if cfg.Model != "" {
		argv = append(argv, "--model", cfg.Model)
	}
	if cfg.SkipPermissionChecks {
		argv = append(argv, "--dangerously-skip-permissions")
	}
	return argv
}

// buildArgv assembles the assistant command line. The prompt itself travels
// on stdin; the flags select output format, model, session continuity, and
// tool permissions.
func (m *Manager) buildArgv(path string, useSession bool) []string {
	argv := []string{path, "-p", "--output-format", "json"}

	if useSession {
		if token, ok := m.sessions.Token(); ok {
			argv = append(argv, "--resume", token)
		}
	}

	if m.cfg.Model != "" {
		argv = append(argv, "--model", m.cfg.Model)
	}

	switch {
	case !m.cfg.AllowTools:
		argv = append(argv, "--disallowedTools", "*")
	case len(m.cfg.AllowedTools) > 0:
		argv = append(argv, "--allowedTools", strings.Join(m.cfg.AllowedTools, ","))
	}
	// AllowTools with an empty allow-list: no flag, everything permitted.

	if m.cfg.SkipPermissionChecks {
		argv = append(argv, "--dangerously-skip-permissions")
	}

	return argv
}
