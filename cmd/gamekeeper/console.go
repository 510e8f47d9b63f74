package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/gamekeeper"
)

// promptTimeout bounds how long a path prompt waits for operator input
// before the startup sequence gives up.
const promptTimeout = 5 * time.Minute

// lifecycle is the slice of the keeper the console needs.
type lifecycle interface {
	Start()
	Stop()
	SendCommand(string)
	State() gamekeeper.State
}

// console multiplexes stdin between its own commands, free-form server
// commands, and pending path prompts. It also prints relayed server
// output and state transitions.
type console struct {
	out io.Writer

	mu        sync.Mutex
	pending   chan string
	lastState gamekeeper.State
	lastPID   int
}

func newConsole(out io.Writer) *console {
	return &console{out: out, lastState: gamekeeper.StateIdle}
}

// childLine prints a relayed server output line.
func (c *console) childLine(e gamekeeper.ConsoleEntry) {
	_, _ = fmt.Fprintln(c.out, e.Line)
}

// OnStatus prints state transitions, swallowing the per-second ticks.
func (c *console) OnStatus(state gamekeeper.State, pid int, _ time.Duration) {
	c.mu.Lock()
	changed := state != c.lastState
	c.lastState = state
	c.lastPID = pid
	c.mu.Unlock()
	if !changed {
		return
	}
	if state == gamekeeper.StateRunning && pid > 0 {
		_, _ = fmt.Fprintf(c.out, "* %s (pid %d)\n", state, pid)
		return
	}
	_, _ = fmt.Fprintf(c.out, "* %s\n", state)
}

// RequestPath asks the operator for a file path. The reply arrives via
// the console loop, which routes the next stdin line here.
func (c *console) RequestPath(prompt string) (string, bool) {
	ch := make(chan string, 1)
	c.mu.Lock()
	c.pending = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	_, _ = fmt.Fprint(c.out, prompt)
	select {
	case line := <-ch:
		line = strings.TrimSpace(line)
		return line, line != ""
	case <-time.After(promptTimeout):
		return "", false
	}
}

// loop reads in until "exit", EOF, or a termination signal. The reader
// goroutine is released through done so it never lingers on a line
// nobody will consume.
func (c *console) loop(k lifecycle, in io.Reader) {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		close(lines)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case line, ok := <-lines:
			if !ok || !c.dispatch(k, line) {
				return
			}
		case <-sig:
			_, _ = fmt.Fprintln(c.out, "signal received, shutting down")
			return
		}
	}
}

// dispatch routes one input line. It returns false when the loop should
// end.
func (c *console) dispatch(k lifecycle, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending != nil {
		pending <- line
		return true
	}

	switch strings.ToLower(line) {
	case "start":
		k.Start()
	case "stop":
		k.Stop()
	case "status":
		c.mu.Lock()
		state, pid := c.lastState, c.lastPID
		c.mu.Unlock()
		if state == gamekeeper.StateRunning && pid > 0 {
			_, _ = fmt.Fprintf(c.out, "%s (pid %d)\n", state, pid)
		} else {
			_, _ = fmt.Fprintln(c.out, k.State())
		}
	case "exit", "quit":
		return false
	default:
		if k.State() != gamekeeper.StateRunning {
			_, _ = fmt.Fprintln(c.out, "server is not running")
			return true
		}
		k.SendCommand(line)
	}
	return true
}
