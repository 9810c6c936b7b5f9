package runner

import (
	"strings"
	"sync"
)

// Stream identifies a worker output stream.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Tag is the prefix applied to lines captured from the stream.
func (s Stream) Tag() string {
	if s == Stderr {
		return "[STDERR]"
	}
	return "[STDOUT]"
}

// LogSink accumulates the tagged diagnostic lines of one invocation.
// It is safe for concurrent use.
type LogSink struct {
	mu    sync.Mutex
	lines []string
}

// NewLogSink creates an empty sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Append tags line with its stream, stores it and returns the tagged line.
func (s *LogSink) Append(stream Stream, line string) string {
	tagged := stream.Tag() + " " + strings.TrimRight(line, "\r\n")

	s.mu.Lock()
	s.lines = append(s.lines, tagged)
	s.mu.Unlock()
	return tagged
}

// Lines returns a copy of the captured lines in arrival order.
func (s *LogSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Len returns the number of captured lines.
func (s *LogSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Text returns the whole log, one line per captured line.
func (s *LogSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return ""
	}
	return strings.Join(s.lines, "\n") + "\n"
}
