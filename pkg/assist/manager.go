// Package assist owns the single in-flight assistant invocation: the
// external process, the progress ticker, the accumulated output, and the
// display region the status is rendered into. At most one request is active
// per Manager; starting a new request retires the old one first.
package assist

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/sidekick/internal/logger"
	"github.com/ternarybob/sidekick/pkg/display"
	"github.com/ternarybob/sidekick/pkg/runner"
	"github.com/ternarybob/sidekick/pkg/session"
)

// Phase is the lifecycle state of the current request.
type Phase int

const (
	// PhaseStarting means the process is being resolved and spawned.
	PhaseStarting Phase = iota
	// PhaseRunning means the process is alive and the prompt delivered.
	PhaseRunning
	// PhaseCompleted means the process exited zero.
	PhaseCompleted
	// PhaseFailed means resolution, spawn, write, or the process failed.
	PhaseFailed
	// PhaseCancelled means the user cancelled the request.
	PhaseCancelled
)

// String returns the string representation of a phase.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether no further process events apply to this phase.
func (p Phase) terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Config holds the assistant invocation settings.
type Config struct {
	// Binary is the assistant executable name resolved from PATH.
	// Empty means "claude".
	Binary string

	// Model selects the assistant model when non-empty.
	Model string

	// AllowTools permits tool use. When false, all tools are denied.
	AllowTools bool

	// AllowedTools restricts tool use when AllowTools is true. Empty
	// means everything is permitted.
	AllowedTools []string

	// SkipPermissionChecks bypasses interactive permission prompts.
	SkipPermissionChecks bool
}

// Refresher is asked to reload externally-modified content after the
// assistant exits. Hosts that edit files in place wire this to their
// buffer-reload mechanism.
type Refresher interface {
	Refresh()
}

// Request describes one assistant invocation.
type Request struct {
	// Prompt is the composed message delivered on stdin.
	Prompt string

	// Region anchors the status display.
	Region display.Region

	// UseSession resumes the stored continuation token, when one is held.
	UseSession bool
}

// request is the single-flight record of one in-progress invocation.
type request struct {
	id         uuid.UUID
	region     display.Region
	useSession bool
	phase      Phase
	startedAt  time.Time

	handle runner.Handle
	output strings.Builder

	sawOutput bool
	spinner   int

	stopTick     chan struct{}
	dismissTimer *time.Timer
}

// Manager drives the request lifecycle. All state transitions happen under
// one mutex; ticker, output, and exit callbacks re-check the request
// identity before acting, so events for a superseded or torn-down request
// are dropped rather than trusted to stop arriving.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	runner   runner.Runner
	surface  display.Surface
	sessions *session.Store

	refresher Refresher

	current *request

	// lastRegion remembers where a terminal frame was drawn after the
	// request state itself was released, so Dismiss can still clear it.
	lastRegion *display.Region

	tickInterval time.Duration
	dismissDelay time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefresher sets the host refresh collaborator.
func WithRefresher(r Refresher) Option {
	return func(m *Manager) {
		m.refresher = r
	}
}

// WithTickInterval overrides the spinner redraw interval.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.tickInterval = d
	}
}

// WithDismissDelay overrides the success auto-dismiss delay.
func WithDismissDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.dismissDelay = d
	}
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config, r runner.Runner, surface display.Surface, sessions *session.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg,
		runner:       r,
		surface:      surface,
		sessions:     sessions,
		tickInterval: 100 * time.Millisecond,
		dismissDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a new request. Any in-flight request is retired first
// (ticker stopped, process terminated, handles released) with no
// cancellation frame, since it is being superseded rather than cancelled.
func (m *Manager) Start(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.retire(m.current)
		m.current = nil
	}

	r := &request{
		id:         uuid.New(),
		region:     req.Region,
		useSession: req.UseSession,
		phase:      PhaseStarting,
		startedAt:  time.Now(),
		stopTick:   make(chan struct{}),
	}
	m.current = r
	m.lastRegion = nil

	m.surface.Render(r.region, loadingFrame(0, 0))
	go m.tickLoop(r.id, r.stopTick)

	log := logger.GetLogger()

	bin := m.cfg.Binary
	if bin == "" {
		bin = defaultBinary
	}
	path, err := m.runner.LookPath(bin)
	if err != nil {
		log.Warn().Str("binary", bin).Err(err).Msg("Assistant binary not found")
		m.fail(r, "assistant '"+bin+"' not found in PATH")
		return
	}

	argv := m.buildArgv(path, req.UseSession)

	handle, err := m.runner.Spawn(argv, runner.Callbacks{
		OnStdout: func(chunk string) { m.onOutput(r.id, chunk) },
		OnStderr: func(chunk string) {
			log.Debug().Str("stream", "stderr").Msg(strings.TrimRight(chunk, "\n"))
		},
		OnExit: func(code int) { m.onExit(r.id, code) },
	})
	if err != nil {
		log.Warn().Err(err).Msg("Assistant process failed to start")
		m.fail(r, "failed to start assistant")
		return
	}
	r.handle = handle

	if err := handle.Write([]byte(req.Prompt)); err != nil {
		// Best effort: drop the handle without terminating; a later
		// exit event is discarded by the phase check.
		log.Warn().Err(err).Msg("Failed to deliver prompt to assistant")
		r.handle = nil
		m.fail(r, "failed to send prompt to assistant")
		return
	}
	if err := handle.CloseInput(); err != nil {
		log.Debug().Err(err).Msg("Closing assistant stdin failed")
	}

	r.phase = PhaseRunning
	log.Info().Str("request", r.id.String()).Bool("session", req.UseSession).Msg("Assistant request started")
}

// Cancel stops the in-flight request. A no-op when idle. The request state
// is released immediately; the Cancelled frame stays until dismissed or a
// new request replaces it.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.current
	if r == nil {
		return
	}

	m.retire(r)
	r.phase = PhaseCancelled
	m.surface.Render(r.region, cancelledFrame())
	region := r.region
	m.lastRegion = &region
	m.current = nil

	logger.GetLogger().Info().Msg("Assistant request cancelled")
}

// Dismiss clears the rendered frame and releases the request state without
// touching any live process. It also overrides a pending auto-dismiss.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r := m.current; r != nil {
		m.stopTimers(r)
		m.surface.Clear(r.region)
		m.current = nil
		return
	}
	if m.lastRegion != nil {
		m.surface.Clear(*m.lastRegion)
		m.lastRegion = nil
	}
}

// Busy reports whether a request is currently starting or running.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && !m.current.phase.terminal()
}

// State is a snapshot of the manager for debugging surfaces.
type State struct {
	Active     bool      `json:"active"`
	Phase      string    `json:"phase,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	OutputSize int       `json:"output_size,omitempty"`
	UseSession bool      `json:"use_session,omitempty"`
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return State{}
	}
	return State{
		Active:     true,
		Phase:      m.current.phase.String(),
		StartedAt:  m.current.startedAt,
		OutputSize: m.current.output.Len(),
		UseSession: m.current.useSession,
	}
}

// retire tears a request down silently: stop timers, terminate the process
// if alive, release the handle. No frame is rendered.
func (m *Manager) retire(r *request) {
	m.stopTimers(r)
	if r.handle != nil {
		r.handle.Terminate()
		r.handle = nil
	}
}

// stopTimers stops the ticker and any pending auto-dismiss.
func (m *Manager) stopTimers(r *request) {
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
	if r.dismissTimer != nil {
		r.dismissTimer.Stop()
		r.dismissTimer = nil
	}
}

// fail marks the request terminally failed and renders a persistent error
// frame. The state is kept so the frame survives until dismissed, cancelled,
// or superseded.
func (m *Manager) fail(r *request, message string) {
	m.stopTimers(r)
	r.phase = PhaseFailed
	m.surface.Render(r.region, errorFrame(message))
}

// tickLoop redraws the spinner until stopped. Each tick re-checks under the
// lock that it still belongs to the current request.
func (m *Manager) tickLoop(id uuid.UUID, stop chan struct{}) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !m.onTick(id) {
				return
			}
		}
	}
}

// onTick redraws the elapsed-time spinner frame. Returns false once the tick
// no longer applies to the current request.
func (m *Manager) onTick(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.current
	if r == nil || r.id != id || r.phase.terminal() {
		return false
	}
	if r.sawOutput {
		return false
	}

	r.spinner++
	elapsed := int(time.Since(r.startedAt).Seconds())
	m.surface.Render(r.region, loadingFrame(r.spinner, elapsed))
	return true
}

// onOutput accumulates a process output chunk. The first non-empty chunk
// stops the spinner and switches the frame to a static working indicator.
func (m *Manager) onOutput(id uuid.UUID, chunk string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.current
	if r == nil || r.id != id || r.phase.terminal() {
		return
	}

	r.output.WriteString(chunk)

	if !r.sawOutput && strings.TrimSpace(chunk) != "" {
		r.sawOutput = true
		if r.stopTick != nil {
			close(r.stopTick)
			r.stopTick = nil
		}
		m.surface.Render(r.region, workingFrame())
	}
}

// completionPayload is the machine-parseable final line of the process.
type completionPayload struct {
	SessionID    string `json:"session_id"`
	SessionIDAlt string `json:"sessionId"`
	Result       string `json:"result"`
	IsError      bool   `json:"is_error"`
}

// token returns the continuation token in whichever field it arrived.
func (p *completionPayload) token() string {
	if p.SessionID != "" {
		return p.SessionID
	}
	return p.SessionIDAlt
}

// onExit finishes the request: parse the completion payload, update the
// session store, ask the host to refresh, and render the terminal frame.
func (m *Manager) onExit(id uuid.UUID, code int) {
	m.mu.Lock()

	r := m.current
	if r == nil || r.id != id || r.phase.terminal() {
		m.mu.Unlock()
		return
	}

	m.stopTimers(r)

	log := logger.GetLogger()

	sessionSaved := false
	var payload completionPayload
	raw := strings.TrimSpace(r.output.String())
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		// A payload from a failed run is never trusted with the token.
		if token := payload.token(); token != "" && r.useSession && code == 0 {
			m.sessions.SetToken(token)
			sessionSaved = true
			log.Info().Str("session", token).Msg("Continuation token stored")
		}
	} else {
		// Non-fatal: the request is still judged by its exit code.
		log.Debug().Err(err).Msg("Completion payload not parseable")
	}

	elapsed := int(time.Since(r.startedAt).Seconds())
	_, sessionHeld := m.sessions.Token()

	if code == 0 {
		r.phase = PhaseCompleted
		m.surface.Render(r.region, successFrame(elapsed, sessionHeld, sessionSaved))
		r.dismissTimer = time.AfterFunc(m.dismissDelay, func() {
			m.autoDismiss(id)
		})
		log.Info().Int("elapsed_s", elapsed).Msg("Assistant request completed")
	} else {
		r.phase = PhaseFailed
		m.surface.Render(r.region, exitErrorFrame(code))
		log.Warn().Int("exit_code", code).Msg("Assistant request failed")
	}

	refresher := m.refresher
	m.mu.Unlock()

	// Regardless of parse outcome or exit code, the host refreshes any
	// externally-modified content. Outside the lock: the host may call
	// back into the manager.
	if refresher != nil {
		refresher.Refresh()
	}
}

// autoDismiss clears the success frame after the configured delay unless the
// request was already dismissed or superseded.
func (m *Manager) autoDismiss(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.current
	if r == nil || r.id != id || r.phase != PhaseCompleted {
		return
	}
	m.surface.Clear(r.region)
	m.current = nil
}
