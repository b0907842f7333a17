// Package runner abstracts spawning the external assistant process.
package runner

// Callbacks receive process events. They may be invoked from internal
// goroutines; callers serialize their own state.
type Callbacks struct {
	// OnStdout receives each chunk read from the process's stdout.
	OnStdout func(chunk string)

	// OnStderr receives each chunk read from the process's stderr.
	OnStderr func(chunk string)

	// OnExit receives the exit code once, after both output streams have
	// drained. Zero means success; nothing else is interpreted.
	OnExit func(code int)
}

// Handle controls one spawned process.
type Handle interface {
	// Write delivers bytes to the process's stdin.
	Write(p []byte) error

	// CloseInput closes stdin, signalling end of input.
	CloseInput() error

	// Terminate requests the process die. Termination is best effort and
	// asynchronous; OnExit still fires when the process actually exits.
	Terminate()
}

// Runner resolves and spawns external processes.
type Runner interface {
	// LookPath resolves a binary name from the execution environment.
	LookPath(name string) (string, error)

	// Spawn starts argv[0] with the remaining arguments and wires the
	// callbacks. The returned handle is live until OnExit fires.
	Spawn(argv []string, cb Callbacks) (Handle, error)
}
