// Package runner invokes external tools (the Java runtime, the update
// downloader) and streams their combined output line by line. It carries
// no supervision logic; callers decide what an exit code means.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrToolNotFound reports that an external executable could not be
// located or spawned. Callers decide whether this is fatal.
var ErrToolNotFound = errors.New("tool not found")

type Runner struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

// Run spawns name with args in dir, merging stdout and stderr into one
// line-buffered stream delivered through onLine while the tool runs.
// It returns the tool's exit code. onLine may be nil.
func (r *Runner) Run(ctx context.Context, name string, args []string, dir string, onLine func(string)) (int, error) {
	// #nosec G204 -- tool paths come from local discovery, not remote input
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	// One pipe for both streams keeps the tool's own interleaving.
	pr, pw, err := os.Pipe()
	if err != nil {
		return -1, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return -1, classifySpawn(name, err)
	}
	// Child holds its own copy of the write end.
	_ = pw.Close()

	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if onLine != nil {
			onLine(sc.Text())
		}
	}
	_ = pr.Close()

	err = cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		return code, err
	}
	return code, nil
}

// Output runs the tool and returns its trimmed combined output along with
// the exit code. Used for short probe invocations.
func (r *Runner) Output(ctx context.Context, name string, args []string, dir string) (string, int, error) {
	var b strings.Builder
	code, err := r.Run(ctx, name, args, dir, func(line string) {
		b.WriteString(line)
		b.WriteByte('\n')
	})
	return strings.TrimSpace(b.String()), code, err
}

// RequiredJavaMajor is the Java release the server needs.
const RequiredJavaMajor = 25

// CheckJava probes `java -version` and classifies the output against the
// required major version token. The raw output is returned for operator
// diagnostics either way.
func (r *Runner) CheckJava(ctx context.Context) (bool, string, error) {
	out, _, err := r.Output(ctx, "java", []string{"-version"}, "")
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return false, out, fmt.Errorf("java: %w", err)
		}
		return false, out, err
	}
	want := fmt.Sprintf("version \"%d", RequiredJavaMajor)
	legacy := fmt.Sprintf("version \"1.%d", RequiredJavaMajor)
	ok := strings.Contains(out, want) || strings.Contains(out, legacy)
	if !ok {
		r.log.Warn("required java version not detected", "required", RequiredJavaMajor)
	}
	return ok, out, nil
}

func classifySpawn(name string, err error) error {
	var pe *fs.PathError
	if errors.Is(err, exec.ErrNotFound) || errors.As(err, &pe) {
		return fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}
	return err
}
