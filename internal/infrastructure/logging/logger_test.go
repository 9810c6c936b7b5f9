package logging

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"verbose", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewStreamsSingleWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStreams(&buf, &buf, "info")

	logger.Debug("hidden")
	logger.Info("launching browser")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "launching browser")
	assert.Contains(t, out, "INFO")
	assert.NotContains(t, out, "hidden")
}

func TestNewStreamsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStreams(&buf, io.Discard, "verbose")

	logger.Debug("trace event")
	assert.Contains(t, buf.String(), "trace event")
}

func TestNew(t *testing.T) {
	logger, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = New(Config{Level: "nope", OutputPaths: []string{"stderr"}})
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	c := NewConsole(NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Log("line\n")
		}()
	}
	wg.Wait()

	lines := c.Lines()
	assert.Len(t, lines, 10)
	for _, l := range lines {
		assert.Equal(t, "line", l)
	}

	lines[0] = "mutated"
	assert.Equal(t, "line", c.Lines()[0])
}

func TestNewStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewStreams(&stdout, &stderr, "info")

	logger.Debug("dropped")
	logger.Info("navigating")
	logger.Warn("slow response")
	logger.Error("audit failed")

	assert.Contains(t, stdout.String(), "navigating")
	assert.NotContains(t, stdout.String(), "slow response")
	assert.NotContains(t, stdout.String(), "dropped")
	assert.Contains(t, stderr.String(), "slow response")
	assert.Contains(t, stderr.String(), "audit failed")
	assert.NotContains(t, stderr.String(), "navigating")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStreams(&buf, &buf, "info").With(zap.String("run_id", "run_01"))

	logger.Info("worker started")
	assert.Contains(t, buf.String(), "worker started")
	assert.Contains(t, buf.String(), `"run_id": "run_01"`)
}
