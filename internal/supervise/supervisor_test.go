package supervise

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/gamekeeper/internal/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeServer prepares a directory with a dummy server jar and a shell
// script standing in for the java interpreter. The script echoes every
// stdin line and exits cleanly on "stop".
func newFakeServer(t *testing.T, script string) (*Supervisor, paths.Layout, string) {
	t.Helper()
	dir := t.TempDir()
	layout := paths.Layout{Dir: dir}
	require.NoError(t, os.WriteFile(layout.ServerJar(), []byte("jar"), 0o644))
	interp := filepath.Join(dir, "fake-java")
	require.NoError(t, os.WriteFile(interp, []byte(script), 0o755))
	return New(layout, nil), layout, interp
}

const echoServer = `#!/bin/sh
while read line; do
  echo "got $line"
  if [ "$line" = "stop" ]; then exit 0; fi
done
exit 0
`

func TestLaunchFailsWithoutServerJar(t *testing.T) {
	dir := t.TempDir()
	s := New(paths.Layout{Dir: dir}, nil)
	err := s.Launch(LaunchSpec{Memory: "1G"})
	require.ErrorIs(t, err, ErrLaunchFailed)
	assert.False(t, s.Running())
}

func TestBuildArgsIncludesAOTOnlyWhenPresent(t *testing.T) {
	s, layout, _ := newFakeServer(t, echoServer)
	spec := LaunchSpec{Memory: "4G", AssetsPath: "/srv/Assets.zip"}

	args := s.BuildArgs(spec)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-Xmx4G")
	assert.Contains(t, joined, "--assets /srv/Assets.zip")
	assert.NotContains(t, joined, "AOTCache")

	require.NoError(t, os.WriteFile(layout.AOTCache(), []byte("cache"), 0o644))
	joined = strings.Join(s.BuildArgs(spec), " ")
	assert.Contains(t, joined, "-XX:AOTCache="+layout.AOTCache())
}

func TestSendCommandWritesTextPlusNewline(t *testing.T) {
	dir := t.TempDir()
	layout := paths.Layout{Dir: dir}
	require.NoError(t, os.WriteFile(layout.ServerJar(), []byte("jar"), 0o644))
	capture := filepath.Join(dir, "stdin-capture")
	script := "#!/bin/sh\ncat > " + capture + "\n"
	interp := filepath.Join(dir, "fake-java")
	require.NoError(t, os.WriteFile(interp, []byte(script), 0o755))

	s := New(layout, nil)
	require.NoError(t, s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"}))

	s.SendCommand("say hello")
	s.SendCommand("stop")
	// closing stdin ends cat
	s.mu.Lock()
	_ = s.stdin.Close()
	s.mu.Unlock()

	select {
	case <-s.WaitDone():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Equal(t, "say hello\nstop\n", string(data))
}

func TestSendCommandOnDeadProcessOnlyLogs(t *testing.T) {
	s, _, interp := newFakeServer(t, echoServer)
	require.NoError(t, s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"}))
	s.SendCommand("stop")
	select {
	case <-s.WaitDone():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	require.NoError(t, s.Clear())

	// must not panic or error out
	s.SendCommand("anyone there")
}

func TestGracefulStopViaConsoleCommand(t *testing.T) {
	s, _, interp := newFakeServer(t, echoServer)
	require.NoError(t, s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"}))
	require.True(t, s.Running())
	assert.Greater(t, s.PID(), 0)

	s.RequestStop()
	select {
	case <-s.WaitDone():
	case <-time.After(5 * time.Second):
		t.Fatal("graceful stop did not take effect")
	}
	code, exited := s.Poll()
	require.True(t, exited)
	assert.Equal(t, 0, code)
	require.NoError(t, s.Clear())
	assert.False(t, s.Running())
}

func TestPollReportsNonzeroExit(t *testing.T) {
	s, _, interp := newFakeServer(t, "#!/bin/sh\nexit 3\n")
	require.NoError(t, s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"}))
	select {
	case <-s.WaitDone():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	code, exited := s.Poll()
	require.True(t, exited)
	assert.Equal(t, 3, code)
}

func TestSecondLaunchWhileRunningRejected(t *testing.T) {
	s, _, interp := newFakeServer(t, echoServer)
	require.NoError(t, s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"}))
	err := s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"})
	require.ErrorIs(t, err, ErrLaunchFailed)

	s.RequestStop()
	<-s.WaitDone()
	require.NoError(t, s.Clear())
}

func TestClearRefusesLiveChild(t *testing.T) {
	s, _, interp := newFakeServer(t, echoServer)
	require.NoError(t, s.Launch(LaunchSpec{Interpreter: interp, Memory: "1G"}))
	require.Error(t, s.Clear())
	s.RequestStop()
	<-s.WaitDone()
	require.NoError(t, s.Clear())
}
