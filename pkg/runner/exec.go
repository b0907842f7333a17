package runner

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ExecRunner runs processes with os/exec.
type ExecRunner struct {
	// Dir, when set, is the working directory for spawned processes.
	Dir string
}

// NewExecRunner creates a runner spawning in dir (empty = inherit).
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir}
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Spawn implements Runner. Stdout and stderr are drained by goroutines;
// OnExit fires exactly once after both streams close and the process is
// reaped.
func (r *ExecRunner) Spawn(argv []string, cb Callbacks) (Handle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = r.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	h := &execHandle{cmd: cmd, stdin: stdin}

	var wg sync.WaitGroup
	wg.Add(2)
	go drain(stdout, cb.OnStdout, &wg)
	go drain(stderr, cb.OnStderr, &wg)

	go func() {
		wg.Wait()
		err := cmd.Wait()
		code := 0
		if err != nil {
			code = 1
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			}
		}
		if cb.OnExit != nil {
			cb.OnExit(code)
		}
	}()

	return h, nil
}

// drain forwards reads from rc to fn until EOF.
func drain(rc io.Reader, fn func(string), wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := rc.Read(buf)
		if n > 0 && fn != nil {
			fn(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// execHandle implements Handle for an os/exec process.
type execHandle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	killOnce  sync.Once
}

// Write implements Handle.
func (h *execHandle) Write(p []byte) error {
	_, err := h.stdin.Write(p)
	return err
}

// CloseInput implements Handle.
func (h *execHandle) CloseInput() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.stdin.Close()
	})
	return err
}

// Terminate implements Handle.
func (h *execHandle) Terminate() {
	h.killOnce.Do(func() {
		if h.cmd.Process != nil {
			// Best effort; exit is observed through OnExit.
			_ = h.cmd.Process.Kill()
		}
	})
}
