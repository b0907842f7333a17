package assist

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/sidekick/pkg/display"
	"github.com/ternarybob/sidekick/pkg/runner"
	"github.com/ternarybob/sidekick/pkg/session"
)

// fakeHandle records writes and termination.
type fakeHandle struct {
	mu          sync.Mutex
	stdin       strings.Builder
	inputClosed bool
	terminated  bool
	writeErr    error
}

func (h *fakeHandle) Write(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	h.stdin.Write(p)
	return nil
}

func (h *fakeHandle) CloseInput() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inputClosed = true
	return nil
}

func (h *fakeHandle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = true
}

func (h *fakeHandle) isTerminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// spawned pairs a handle with its callbacks so tests can emit events.
type spawned struct {
	argv   []string
	cb     runner.Callbacks
	handle *fakeHandle
}

// fakeRunner hands out controllable processes.
type fakeRunner struct {
	mu        sync.Mutex
	lookupErr error
	spawnErr  error
	writeErr  error
	spawns    []*spawned
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Spawn(argv []string, cb runner.Callbacks) (runner.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	sp := &spawned{argv: argv, cb: cb, handle: &fakeHandle{writeErr: f.writeErr}}
	f.spawns = append(f.spawns, sp)
	return sp.handle, nil
}

func (f *fakeRunner) last(t *testing.T) *spawned {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.spawns, "expected a spawned process")
	return f.spawns[len(f.spawns)-1]
}

func (f *fakeRunner) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

// countingRefresher tracks host refresh requests.
type countingRefresher struct {
	mu    sync.Mutex
	count int
}

func (c *countingRefresher) Refresh() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingRefresher) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

var testRegion = display.Region{ID: "r1", Path: "a.go", StartLine: 3, EndLine: 7}

func newTestManager(t *testing.T, cfg Config, opts ...Option) (*Manager, *fakeRunner, *display.Recorder, *session.Store) {
	t.Helper()
	r := &fakeRunner{}
	rec := display.NewRecorder()
	store := session.NewStore()
	opts = append([]Option{WithTickInterval(5 * time.Millisecond), WithDismissDelay(30 * time.Millisecond)}, opts...)
	m := NewManager(cfg, r, rec, store, opts...)
	return m, r, rec, store
}

func header(t *testing.T, rec *display.Recorder) string {
	t.Helper()
	f, ok := rec.Last(testRegion)
	require.True(t, ok, "expected a rendered frame")
	return f.Header
}

func TestStart_RendersLoadingThenWorking(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{})

	m.Start(Request{Prompt: "do it", Region: testRegion})
	assert.Contains(t, header(t, rec), "asking assistant")

	sp := r.last(t)
	assert.Equal(t, "do it", sp.handle.stdin.String(), "prompt travels on stdin")
	assert.True(t, sp.handle.inputClosed, "stdin closed to signal end of input")

	sp.cb.OnStdout(`{"result":"ok"}`)
	assert.Equal(t, "▸ assistant working…", header(t, rec))
}

func TestStart_SpinnerTicksWhileSilent(t *testing.T) {
	m, _, rec, _ := newTestManager(t, Config{})

	m.Start(Request{Prompt: "p", Region: testRegion})

	assert.Eventually(t, func() bool {
		f, ok := rec.Last(testRegion)
		return ok && strings.Contains(f.Header, "asking assistant")
	}, time.Second, 5*time.Millisecond)
}

func TestExitZero_StoresTokenAndAutoDismisses(t *testing.T) {
	refresher := &countingRefresher{}
	m, r, rec, store := newTestManager(t, Config{}, WithRefresher(refresher))

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: true})
	sp := r.last(t)

	sp.cb.OnStdout(`{"session_id":"abc123","result":"done"}`)
	sp.cb.OnExit(0)

	token, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", token)

	h := header(t, rec)
	assert.Contains(t, h, "assistant done")
	assert.Contains(t, h, "[session]")
	assert.Equal(t, 1, refresher.calls(), "host refresh requested on exit")

	// Auto-dismiss clears the frame and releases the state.
	assert.Eventually(t, func() bool {
		_, ok := rec.Last(testRegion)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.False(t, m.Snapshot().Active)
}

func TestExitZero_WithoutUseSessionIgnoresToken(t *testing.T) {
	m, r, _, store := newTestManager(t, Config{})

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: false})
	sp := r.last(t)
	sp.cb.OnStdout(`{"session_id":"abc123"}`)
	sp.cb.OnExit(0)

	_, ok := store.Token()
	assert.False(t, ok, "token stored only when session continuity was requested")
}

func TestExitNonzero_PersistentErrorAndNoTokenChange(t *testing.T) {
	refresher := &countingRefresher{}
	m, r, rec, store := newTestManager(t, Config{}, WithRefresher(refresher))
	store.SetToken("keep-me")

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: true})
	sp := r.last(t)
	sp.cb.OnStdout(`{"session_id":"evil"}`)
	sp.cb.OnExit(1)

	assert.Contains(t, header(t, rec), "exit 1")
	assert.Equal(t, 1, refresher.calls(), "refresh happens regardless of exit code")

	token, _ := store.Token()
	assert.Equal(t, "keep-me", token, "failed run never touches the session store")

	// The error frame never auto-dismisses.
	time.Sleep(100 * time.Millisecond)
	assert.Contains(t, header(t, rec), "exit 1")
}

func TestExitNonzero_PayloadNeverStored(t *testing.T) {
	// A nonzero exit leaves the session store unchanged regardless of
	// what the payload carried.
	m, r, _, store := newTestManager(t, Config{})

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: true})
	sp := r.last(t)
	sp.cb.OnStdout(`{"session_id":"abc"}`)
	sp.cb.OnExit(2)

	_, ok := store.Token()
	assert.False(t, ok)
}

func TestGarbagePayload_StillSuccessOnExitZero(t *testing.T) {
	m, r, rec, store := newTestManager(t, Config{})

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: true})
	sp := r.last(t)
	sp.cb.OnStdout("not json at all")
	sp.cb.OnExit(0)

	assert.Contains(t, header(t, rec), "assistant done")
	_, ok := store.Token()
	assert.False(t, ok)
}

func TestStart_SupersedesActiveRequest(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{})

	m.Start(Request{Prompt: "first", Region: testRegion})
	first := r.last(t)

	m.Start(Request{Prompt: "second", Region: testRegion})
	require.Equal(t, 2, r.spawnCount())
	second := r.last(t)

	assert.True(t, first.handle.isTerminated(), "old process terminated before new request starts")
	assert.NotContains(t, header(t, rec), "cancelled", "superseding is silent")

	// Stale events from the first request are dropped.
	first.cb.OnStdout("stale output")
	first.cb.OnExit(1)
	assert.Contains(t, header(t, rec), "asking assistant")

	second.cb.OnExit(0)
	assert.Contains(t, header(t, rec), "assistant done")
}

func TestCancel_Idle_NoOp(t *testing.T) {
	m, _, rec, _ := newTestManager(t, Config{})

	m.Cancel()

	_, ok := rec.Last(testRegion)
	assert.False(t, ok, "cancel when idle renders nothing")
}

func TestCancel_TerminatesAndReleasesImmediately(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{})

	m.Start(Request{Prompt: "p", Region: testRegion})
	sp := r.last(t)

	m.Cancel()

	assert.True(t, sp.handle.isTerminated())
	assert.Equal(t, "✕ cancelled", header(t, rec))
	assert.False(t, m.Snapshot().Active, "state released immediately")

	// Late exit from the killed process is ignored.
	sp.cb.OnExit(1)
	assert.Equal(t, "✕ cancelled", header(t, rec))

	// Dismiss still clears the leftover frame.
	m.Dismiss()
	_, ok := rec.Last(testRegion)
	assert.False(t, ok)
}

func TestDismiss_PreemptsAutoDismiss(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{}, WithDismissDelay(time.Hour))

	m.Start(Request{Prompt: "p", Region: testRegion})
	r.last(t).cb.OnExit(0)
	require.Contains(t, header(t, rec), "assistant done")

	m.Dismiss()

	_, ok := rec.Last(testRegion)
	assert.False(t, ok)
	assert.False(t, m.Snapshot().Active)
}

func TestStart_PreemptsPendingAutoDismiss(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{}, WithDismissDelay(50*time.Millisecond))

	m.Start(Request{Prompt: "p", Region: testRegion})
	r.last(t).cb.OnExit(0)

	m.Start(Request{Prompt: "again", Region: testRegion})

	// The old auto-dismiss must not clear the new request's frame.
	time.Sleep(120 * time.Millisecond)
	assert.Contains(t, header(t, rec), "asking assistant")
}

func TestResolutionFailure_TerminalErrorWithoutRunning(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{Binary: "claude"})
	r.lookupErr = errors.New("not found")

	m.Start(Request{Prompt: "p", Region: testRegion})

	assert.Contains(t, header(t, rec), "not found in PATH")
	assert.Equal(t, 0, r.spawnCount(), "nothing spawned on resolution failure")
	assert.Equal(t, "failed", m.Snapshot().Phase)
}

func TestSpawnFailure_TerminalError(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{})
	r.spawnErr = errors.New("fork failed")

	m.Start(Request{Prompt: "p", Region: testRegion})

	assert.Contains(t, header(t, rec), "failed to start assistant")
}

func TestWriteFailure_TerminalErrorNoZombie(t *testing.T) {
	m, r, rec, _ := newTestManager(t, Config{})
	r.writeErr = errors.New("broken pipe")

	m.Start(Request{Prompt: "p", Region: testRegion})
	sp := r.last(t)

	assert.Contains(t, header(t, rec), "failed to send prompt")
	assert.False(t, sp.handle.isTerminated(), "write failure cleanup is best effort, no terminate")

	// The abandoned process's exit must not disturb the error frame.
	sp.cb.OnExit(0)
	assert.Contains(t, header(t, rec), "failed to send prompt")
}

func TestBuildArgv_Flags(t *testing.T) {
	m, r, _, store := newTestManager(t, Config{
		Model:                "claude-sonnet-4-20250514",
		AllowTools:           true,
		AllowedTools:         []string{"Read", "Grep"},
		SkipPermissionChecks: true,
	})
	store.SetToken("tok-1")

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: true})

	argv := strings.Join(r.last(t).argv, " ")
	assert.Contains(t, argv, "-p --output-format json")
	assert.Contains(t, argv, "--resume tok-1")
	assert.Contains(t, argv, "--model claude-sonnet-4-20250514")
	assert.Contains(t, argv, "--allowedTools Read,Grep")
	assert.Contains(t, argv, "--dangerously-skip-permissions")
	assert.NotContains(t, argv, "--disallowedTools")
}

func TestBuildArgv_DenyAllDefault(t *testing.T) {
	m, r, _, _ := newTestManager(t, Config{})

	m.Start(Request{Prompt: "p", Region: testRegion})

	argv := strings.Join(r.last(t).argv, " ")
	assert.Contains(t, argv, "--disallowedTools *")
	assert.NotContains(t, argv, "--resume", "no token held, no resume flag")
}

func TestBusy_ReflectsLifecycle(t *testing.T) {
	m, r, _, _ := newTestManager(t, Config{})
	assert.False(t, m.Busy(), "idle manager is not busy")

	m.Start(Request{Prompt: "p", Region: testRegion})
	assert.True(t, m.Busy())

	r.last(t).cb.OnExit(1)
	assert.False(t, m.Busy(), "a settled request is no longer busy even while its frame persists")

	m.Start(Request{Prompt: "again", Region: testRegion})
	assert.True(t, m.Busy())

	m.Cancel()
	assert.False(t, m.Busy())
}

func TestTerminalArgv(t *testing.T) {
	cfg := Config{Model: "claude-sonnet-4-20250514", SkipPermissionChecks: true}

	argv := strings.Join(TerminalArgv(cfg, "/usr/bin/claude", "tok-1"), " ")
	assert.True(t, strings.HasPrefix(argv, "/usr/bin/claude "))
	assert.Contains(t, argv, "--resume tok-1")
	assert.Contains(t, argv, "--model claude-sonnet-4-20250514")
	assert.Contains(t, argv, "--dangerously-skip-permissions")
	assert.NotContains(t, argv, "--output-format", "interactive sessions are not print-mode")

	bare := TerminalArgv(Config{}, "/usr/bin/claude", "")
	assert.Equal(t, []string{"/usr/bin/claude"}, bare, "no token, no model, no extra flags")
}

func TestBuildArgv_NoResumeWithoutUseSession(t *testing.T) {
	m, r, _, store := newTestManager(t, Config{})
	store.SetToken("tok-1")

	m.Start(Request{Prompt: "p", Region: testRegion, UseSession: false})

	assert.NotContains(t, strings.Join(r.last(t).argv, " "), "--resume")
}
