package supervise

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayPreservesPerStreamOrder(t *testing.T) {
	stdout := strings.NewReader("A\nB\nC\n")
	stderr := strings.NewReader("X\nY\n")

	var mu sync.Mutex
	var outLines, errLines []string
	r := StartRelay(stdout, stderr, func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		switch e.Source {
		case "stdout":
			outLines = append(outLines, e.Line)
		case "stderr":
			errLines = append(errLines, e.Line)
		}
	})
	r.Wait()

	assert.Equal(t, []string{"A", "B", "C"}, outLines)
	assert.Equal(t, []string{"X", "Y"}, errLines)
}

func TestRelaySkipsEmptyLinesAndStampsEntries(t *testing.T) {
	stdout := strings.NewReader("one\n\ntwo\n")
	var mu sync.Mutex
	var got []Entry
	r := StartRelay(stdout, strings.NewReader(""), func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	r.Wait()

	require.Len(t, got, 2)
	for _, e := range got {
		assert.False(t, e.Time.IsZero())
		assert.Equal(t, "stdout", e.Source)
	}
}

func TestRelayTerminatesOnStreamClose(t *testing.T) {
	or, ow := io.Pipe()
	er, ew := io.Pipe()
	var mu sync.Mutex
	var lines []string
	r := StartRelay(or, er, func(e Entry) {
		mu.Lock()
		lines = append(lines, e.Line)
		mu.Unlock()
	})

	_, _ = io.WriteString(ow, "live line\n")
	_ = ow.Close()
	_ = ew.Close()

	done := make(chan struct{})
	go func() { r.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not terminate on stream close")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"live line"}, lines)
}
