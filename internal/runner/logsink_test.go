package runner

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/auditrunner/internal/protocol"
)

func TestLogSink(t *testing.T) {
	sink := NewLogSink()
	assert.Equal(t, "", sink.Text())

	assert.Equal(t, "[STDOUT] hello", sink.Append(Stdout, "hello\n"))
	assert.Equal(t, "[STDERR] oops", sink.Append(Stderr, "oops\r\n"))

	assert.Equal(t, []string{"[STDOUT] hello", "[STDERR] oops"}, sink.Lines())
	assert.Equal(t, "[STDOUT] hello\n[STDERR] oops\n", sink.Text())
	assert.Equal(t, 2, sink.Len())
}

func TestLogSinkConcurrentAppend(t *testing.T) {
	sink := NewLogSink()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream := Stdout
			if i%2 == 1 {
				stream = Stderr
			}
			sink.Append(stream, fmt.Sprintf("line %d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, sink.Len())
	assert.Equal(t, 25, strings.Count(sink.Text(), "[STDERR]"))
}

func TestStream(t *testing.T) {
	assert.Equal(t, "stdout", Stdout.String())
	assert.Equal(t, "stderr", Stderr.String())
	assert.Equal(t, "[STDOUT]", Stdout.Tag())
	assert.Equal(t, "[STDERR]", Stderr.Tag())
}

func TestErrorMessages(t *testing.T) {
	log := "[STDOUT] a\n[STDERR] b\n"

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "worker failure",
			err:  &WorkerFailure{Detail: "boom", Log: log},
			want: "worker returned an error: boom\nLog:\n" + log,
		},
		{
			name: "worker failure without log",
			err:  &WorkerFailure{Detail: "boom"},
			want: "worker returned an error: boom",
		},
		{
			name: "protocol",
			err:  &ProtocolError{Reason: "result message without assetsDir", Raw: `{"type":"result"}`},
			want: "invalid response from worker (result message without assetsDir):\n{\"type\":\"result\"}",
		},
		{
			name: "timeout",
			err:  &TimeoutError{After: 3 * time.Second, Log: log},
			want: "worker timed out after 3s\nLog:\n" + log,
		},
		{
			name: "canceled",
			err:  &TimeoutError{Err: errors.New("context canceled")},
			want: "worker canceled: context canceled",
		},
		{
			name: "exit",
			err:  &ExitError{Err: errors.New("signal: killed")},
			want: "worker exited without a message: signal: killed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestReadDelivery(t *testing.T) {
	t.Run("first non-empty line", func(t *testing.T) {
		d, ok := readDelivery(strings.NewReader("\n\n{\"type\":\"error\",\"detail\":\"boom\"}\n{\"type\":\"result\"}\n"))
		require.True(t, ok)
		require.NoError(t, d.Err)
		assert.True(t, d.Message.IsFailure())
		assert.Equal(t, "boom", d.Message.Detail)
		assert.Equal(t, `{"type":"error","detail":"boom"}`, string(d.Raw))
	})

	t.Run("no trailing newline", func(t *testing.T) {
		d, ok := readDelivery(strings.NewReader(`{"type":"error","detail":"x"}`))
		require.True(t, ok)
		assert.NoError(t, d.Err)
	})

	t.Run("garbage", func(t *testing.T) {
		d, ok := readDelivery(strings.NewReader("not json\n"))
		require.True(t, ok)
		assert.Error(t, d.Err)
		assert.Equal(t, "not json", string(d.Raw))
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := readDelivery(strings.NewReader(""))
		assert.False(t, ok)
	})

	t.Run("oversized", func(t *testing.T) {
		line := strings.Repeat("x", protocol.MaxMessageSize+1) + "\n"
		d, ok := readDelivery(strings.NewReader(line))
		require.True(t, ok)
		require.Error(t, d.Err)
		assert.Contains(t, d.Err.Error(), "exceeds")
		assert.Nil(t, d.Raw)
	})
}
