// Package supervise owns the lifecycle of the game-server child process:
// launch with composed arguments, exclusive ownership of its stdin for
// operator commands, concurrent relay of its output streams, and
// non-blocking termination checks.
package supervise

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/gamekeeper/internal/paths"
)

var (
	// ErrLaunchFailed reports that the server binary is absent or could
	// not be spawned.
	ErrLaunchFailed = errors.New("launch failed")
	// ErrInputClosed reports a write to a dead process's input channel.
	// Callers log it; it is never fatal.
	ErrInputClosed = errors.New("input channel closed")
	// ErrNotRunning reports an operation against a supervisor with no
	// active child.
	ErrNotRunning = errors.New("server is not running")
)

// StopCommand is the server's own console command for a graceful
// shutdown. The server drains and saves state on it, which a process
// signal would skip.
const StopCommand = "stop"

// LaunchSpec carries the parameters composed into the server command
// line.
type LaunchSpec struct {
	Interpreter string // defaults to "java"
	Memory      string // java heap, e.g. "8G"
	AssetsPath  string // --assets argument
	Env         []string
}

// Supervisor runs at most one server child at a time and is the only
// holder of its handle. All command writes are serialized through it.
type Supervisor struct {
	layout paths.Layout
	log    *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	startedAt time.Time
	waitDone  chan struct{}
	exitCode  int
	exitErr   error
}

func New(layout paths.Layout, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{layout: layout, log: log}
}

// BuildArgs composes the java invocation: memory flag, the optional
// fast-start cache flag only when that file exists on disk, the server
// artifact and the assets location.
func (s *Supervisor) BuildArgs(spec LaunchSpec) []string {
	args := []string{fmt.Sprintf("-Xmx%s", spec.Memory)}
	if aot := s.layout.AOTCache(); fileExists(aot) {
		s.log.Info("using fast-start cache", "file", paths.AOTCacheName)
		args = append(args, fmt.Sprintf("-XX:AOTCache=%s", aot))
	}
	args = append(args, "-jar", s.layout.ServerJar(), "--assets", spec.AssetsPath)
	return args
}

// Launch spawns the server. Exactly one child may be active; launching
// over a live child is an error.
func (s *Supervisor) Launch(spec LaunchSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("%w: already supervising pid %d", ErrLaunchFailed, s.cmd.Process.Pid)
	}
	if !fileExists(s.layout.ServerJar()) {
		return fmt.Errorf("%w: %s not found", ErrLaunchFailed, paths.ServerJarName)
	}

	interp := spec.Interpreter
	if interp == "" {
		interp = "java"
	}
	// #nosec G204 -- argv is composed from local configuration
	cmd := exec.Command(interp, s.BuildArgs(spec)...)
	cmd.Dir = s.layout.Dir
	env := append(os.Environ(), spec.Env...)
	env = append(env, fmt.Sprintf("_JAVA_OPTIONS=-Xmx%s", spec.Memory))
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr
	s.startedAt = time.Now()
	s.exitCode = 0
	s.exitErr = nil
	s.waitDone = make(chan struct{})
	go s.reap(cmd, s.waitDone)
	return nil
}

// reap waits for the child and records its exit. The handle itself is
// cleared by Clear once the controller has observed the exit.
func (s *Supervisor) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	s.mu.Lock()
	s.exitCode = cmd.ProcessState.ExitCode()
	s.exitErr = err
	close(done)
	s.mu.Unlock()
}

// Streams hands out the child's output streams for the log relay.
func (s *Supervisor) Streams() (stdout, stderr io.Reader, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil, nil, ErrNotRunning
	}
	return s.stdout, s.stderr, nil
}

// SendCommand writes text plus a newline to the child's input channel
// and flushes immediately. Writes are serialized; a closed channel or a
// dead child only logs, it never fails the caller.
func (s *Supervisor) SendCommand(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(text); err != nil {
		s.log.Warn("failed to send command", "command", text, "error", err)
	}
}

func (s *Supervisor) writeLocked(text string) error {
	if s.cmd == nil || s.stdin == nil {
		return ErrNotRunning
	}
	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrInputClosed, err)
	}
	return nil
}

// RequestStop asks the server to shut down via its own console protocol;
// when the input channel is already gone it falls back to killing the
// process group. Calling it on an already-stopping child is a no-op
// beyond that fallback.
func (s *Supervisor) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return
	}
	if err := s.writeLocked(StopCommand); err != nil {
		s.log.Warn("graceful stop failed, killing process", "error", err)
		s.killLocked()
	}
}

// Kill forcefully terminates the process group.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
}

func (s *Supervisor) killLocked() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	pid := s.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Poll is a non-blocking status check: (code, true) once the child has
// exited, (_, false) while it is still running or when none was started.
func (s *Supervisor) Poll() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.waitDone == nil {
		return 0, false
	}
	select {
	case <-s.waitDone:
		return s.exitCode, true
	default:
		return 0, false
	}
}

// WaitDone exposes the channel closed when the child exits, for callers
// that want to block instead of polling.
func (s *Supervisor) WaitDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitDone
}

// PID returns the child's pid, or zero when nothing is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Uptime reports time since launch, zero when nothing is running.
func (s *Supervisor) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return 0
	}
	return time.Since(s.startedAt)
}

// Running reports whether a live child is attached.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.waitDone == nil {
		return false
	}
	select {
	case <-s.waitDone:
		return false
	default:
		return true
	}
}

// Clear drops the handle after the exit has been observed and handled.
// It is an error to clear a still-running child.
func (s *Supervisor) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	select {
	case <-s.waitDone:
	default:
		return fmt.Errorf("process %d still running", s.cmd.Process.Pid)
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	s.stderr = nil
	s.waitDone = nil
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
