package supervise

import (
	"bufio"
	"io"
	"sync"
	"time"
)

// Entry is one console line from the child, tagged with its source
// stream for downstream presentation.
type Entry struct {
	Time   time.Time
	Source string // "stdout" or "stderr"
	Line   string
}

// Relay drains both output streams of the child concurrently and
// forwards each line to a single sink. Order is preserved within one
// stream; interleaving across the two is best-effort since the readers
// are independent. Reader I/O errors are swallowed: the monitor loop
// detects process exit on its own.
type Relay struct {
	wg sync.WaitGroup
}

// StartRelay attaches one reader per stream. The sink must be safe for
// concurrent calls from both readers.
func StartRelay(stdout, stderr io.Reader, sink func(Entry)) *Relay {
	r := &Relay{}
	r.wg.Add(2)
	go r.drain(stdout, "stdout", sink)
	go r.drain(stderr, "stderr", sink)
	return r
}

func (r *Relay) drain(stream io.Reader, tag string, sink func(Entry)) {
	defer r.wg.Done()
	sc := bufio.NewScanner(stream)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		sink(Entry{Time: time.Now(), Source: tag, Line: line})
	}
	// EOF or read error: either way the stream is done.
}

// Wait blocks until both readers have hit end-of-stream.
func (r *Relay) Wait() { r.wg.Wait() }
