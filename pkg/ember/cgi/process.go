package cgi

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Process is one spawned CGI child, with its stdin/stdout pipes put in
// non-blocking mode so the owning connection can drain them from the
// same poller loop it uses for its client socket.
type Process struct {
	cmd     *exec.Cmd
	stdinW  *os.File
	stdoutR *os.File
	started time.Time

	stdinClosed  bool
	stdoutClosed bool
}

// Start spawns interpreter with scriptPath as argv[1]. env is the full
// CGI environment from BuildEnv.
func Start(interpreter, scriptPath string, env []string) (*Process, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, err
	}

	cmd := exec.Command(interpreter, scriptPath)
	cmd.Dir = filepath.Dir(scriptPath)
	cmd.Env = env
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}

	// The child inherited its own copies of the pipe ends it uses; the
	// parent only needs the other halves.
	stdinR.Close()
	stdoutW.Close()

	if err := unix.SetNonblock(int(stdinW.Fd()), true); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(stdoutR.Fd()), true); err != nil {
		return nil, err
	}

	return &Process{
		cmd:     cmd,
		stdinW:  stdinW,
		stdoutR: stdoutR,
		started: time.Now(),
	}, nil
}

// StdinFd is the write end of the child's stdin, for poller
// registration as write-readiness.
func (p *Process) StdinFd() int { return int(p.stdinW.Fd()) }

// StdoutFd is the read end of the child's stdout, for poller
// registration as read-readiness.
func (p *Process) StdoutFd() int { return int(p.stdoutR.Fd()) }

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Started reports when the child was spawned, for timeout accounting.
func (p *Process) Started() time.Time { return p.started }

// WriteStdin writes one chunk to the child's stdin. A zero count with
// a nil error means the pipe would have blocked; the caller should
// wait for the next write-readiness event.
func (p *Process) WriteStdin(b []byte) (int, error) {
	n, err := unix.Write(p.StdinFd(), b)
	if err != nil && isWouldBlock(err) {
		return 0, nil
	}
	return n, err
}

// CloseStdin closes the child's stdin, signalling end of request body.
func (p *Process) CloseStdin() error {
	if p.stdinClosed {
		return nil
	}
	p.stdinClosed = true
	return p.stdinW.Close()
}

// ReadStdout reads one chunk from the child's stdout into buf. A zero
// count with a nil error means either that the pipe would have blocked
// or that the child closed its stdout (end of file).
func (p *Process) ReadStdout(buf []byte) (int, error) {
	n, err := unix.Read(p.StdoutFd(), buf)
	if err != nil && isWouldBlock(err) {
		return 0, nil
	}
	return n, err
}

// CloseStdout closes the child's stdout read end, once the loop is
// done draining it.
func (p *Process) CloseStdout() error {
	if p.stdoutClosed {
		return nil
	}
	p.stdoutClosed = true
	return p.stdoutR.Close()
}

// TryWait performs a non-blocking reap. exited is false if the child
// is still running.
func (p *Process) TryWait() (exited bool, exitCode int, err error) {
	var status syscall.WaitStatus
	wpid, err := syscall.Wait4(p.PID(), &status, syscall.WNOHANG, nil)
	if err != nil {
		return false, 0, err
	}
	if wpid == 0 {
		return false, 0, nil
	}
	return true, status.ExitStatus(), nil
}

// Terminate sends SIGTERM, the first step of grace-then-kill timeout
// handling.
func (p *Process) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL, used once the termination grace period elapses.
func (p *Process) Kill() error {
	return p.cmd.Process.Signal(syscall.SIGKILL)
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
