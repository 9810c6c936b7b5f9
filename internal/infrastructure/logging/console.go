package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Console is a line logger for people watching an audit run.
//
// Every line is kept so callers can print the whole transcript afterwards,
// and is echoed to the wrapped zap logger when one is set.
type Console struct {
	mu     sync.Mutex
	lines  []string
	logger *Logger
}

// NewConsole creates a console. logger may be nil.
func NewConsole(logger *Logger) *Console {
	return &Console{logger: logger}
}

// Log records one line.
func (c *Console) Log(line string) {
	line = strings.TrimRight(line, "\r\n")

	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info(line, zap.String("source", "worker"))
	}
}

// Lines returns a copy of all recorded lines.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Text returns the recorded lines joined by newlines.
func (c *Console) Text() string {
	return strings.Join(c.Lines(), "\n")
}
