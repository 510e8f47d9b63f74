// Package detector finds server instances already running on the host so
// the controller can terminate them before launching, avoiding port and
// world-file contention.
package detector

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Instance is a running process matched by its command line.
type Instance struct {
	PID     int
	Cmdline string
}

// FindByCmdline returns processes whose command line contains needle.
// The calling process itself is excluded. It prefers a /proc scan and
// falls back to pgrep on hosts without one.
func FindByCmdline(needle string) []Instance {
	if found, ok := scanProc(needle); ok {
		return found
	}
	return pgrep(needle)
}

func scanProc(needle string) ([]Instance, bool) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, false
	}
	self := os.Getpid()
	var found []Instance
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		raw, err := os.ReadFile("/proc/" + e.Name() + "/cmdline")
		if err != nil || len(raw) == 0 {
			continue
		}
		cmdline := strings.ReplaceAll(string(raw), "\x00", " ")
		if strings.Contains(cmdline, needle) {
			found = append(found, Instance{PID: pid, Cmdline: strings.TrimSpace(cmdline)})
		}
	}
	return found, true
}

func pgrep(needle string) []Instance {
	out, err := exec.Command("pgrep", "-f", needle).Output()
	if err != nil {
		return nil
	}
	self := os.Getpid()
	var found []Instance
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid == self {
			continue
		}
		found = append(found, Instance{PID: pid})
	}
	return found
}

// Terminate sends SIGTERM to the instance and waits up to grace for it
// to disappear, then escalates to SIGKILL.
func (i Instance) Terminate(grace time.Duration) {
	_ = syscall.Kill(i.PID, syscall.SIGTERM)
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if syscall.Kill(i.PID, 0) != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = syscall.Kill(i.PID, syscall.SIGKILL)
}
