package agent

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const outputLogFileName = "output.log"

// OutputLine is one line of agent output, tagged with the lane it came from.
type OutputLine struct {
	Lane string
	Text string
}

// OutputCapture fans agent output from concurrent lanes into output.log and
// an optional echo writer. Each complete line is prefixed with its lane so
// interleaved output stays attributable.
type OutputCapture struct {
	mu      sync.Mutex
	logFile *os.File
	echo    io.Writer
	onLine  func(OutputLine)
}

// NewOutputCapture opens <stateDir>/output.log in append mode. echo may be nil
// (TUI mode writes only to the log and the line callback).
func NewOutputCapture(stateDir string, echo io.Writer) (*OutputCapture, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(stateDir, outputLogFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &OutputCapture{logFile: f, echo: echo}, nil
}

// OnLine registers a callback for every captured line. Must be set before
// any writer is in use.
func (oc *OutputCapture) OnLine(fn func(OutputLine)) {
	oc.onLine = fn
}

// Writer returns a writer for one lane. Call Flush on it when the process
// exits to emit a trailing partial line.
func (oc *OutputCapture) Writer(lane string) *LaneWriter {
	return &LaneWriter{oc: oc, lane: lane}
}

// Path returns the log file path, or "" for a nil capture.
func (oc *OutputCapture) Path() string {
	if oc == nil || oc.logFile == nil {
		return ""
	}
	return oc.logFile.Name()
}

// Close closes the log file. Safe on nil.
func (oc *OutputCapture) Close() error {
	if oc == nil || oc.logFile == nil {
		return nil
	}
	return oc.logFile.Close()
}

// WriteTaskHeader marks the start of an attempt in the log.
func (oc *OutputCapture) WriteTaskHeader(lane, taskID string, attempt int) {
	oc.writeRaw(fmt.Sprintf("\n=== [%s] Task %s, Attempt %d ===\nStarted: %s\n\n",
		lane, taskID, attempt, time.Now().Format(time.RFC3339)))
}

// WriteTaskFooter marks the end of an attempt in the log.
func (oc *OutputCapture) WriteTaskFooter(lane, taskID string, success bool) {
	result := "SUCCESS"
	if !success {
		result = "FAILED"
	}
	oc.writeRaw(fmt.Sprintf("\n=== [%s] Task %s: %s ===\n\n", lane, taskID, result))
}

func (oc *OutputCapture) writeRaw(s string) {
	if oc == nil || oc.logFile == nil {
		return
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.logFile.WriteString(s)
}

func (oc *OutputCapture) writeLine(lane string, line []byte) {
	if oc == nil {
		return
	}
	prefixed := fmt.Sprintf("[%s] %s\n", lane, line)

	oc.mu.Lock()
	if oc.logFile != nil {
		oc.logFile.WriteString(prefixed)
	}
	if oc.echo != nil {
		io.WriteString(oc.echo, prefixed)
	}
	oc.mu.Unlock()

	if oc.onLine != nil {
		oc.onLine(OutputLine{Lane: lane, Text: string(line)})
	}
}

// LaneWriter buffers partial lines for one lane. It is used by a single
// process at a time; stdout and stderr may share it because exec.Cmd
// serializes writes when both point at the same writer.
type LaneWriter struct {
	oc   *OutputCapture
	lane string
	buf  []byte
}

func (w *LaneWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		w.oc.writeLine(w.lane, bytes.TrimRight(w.buf[:idx], "\r"))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LaneWriter) Flush() {
	if len(w.buf) == 0 {
		return
	}
	w.oc.writeLine(w.lane, w.buf)
	w.buf = nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
