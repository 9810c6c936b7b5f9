// Package protocol defines the messages exchanged across the worker isolation
// boundary.
//
// Only plain data crosses the boundary. A worker receives one Request and
// sends back exactly one Message: a result carrying the report and the path of
// the directory holding its artifacts, or a failure carrying the flattened
// error text. Large artifact payloads never travel through the message channel.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Message types.
const (
	TypeResult = "result"
	TypeError  = "error"
)

// MaxMessageSize bounds a single encoded message.
const MaxMessageSize = 64 << 20

// ErrNoMessage is returned by ReadLine when the stream ends before a message.
var ErrNoMessage = errors.New("no message from worker")

// Options toggles how a worker drives the browser.
type Options struct {
	Headless bool `json:"headless"`
	Verbose  bool `json:"verbose"`
}

// Request is the audit job handed to a worker. It is not mutated after it
// has been sent.
type Request struct {
	Target     string          `json:"target"`
	Config     json.RawMessage `json:"config,omitempty"`
	Options    Options         `json:"options"`
	EntryPoint string          `json:"entryPoint,omitempty"`
	TempDir    string          `json:"tempDir,omitempty"`
}

// ResultValue is the payload of a successful run.
type ResultValue struct {
	LHR       json.RawMessage `json:"lhr,omitempty"`
	AssetsDir string          `json:"assetsDir,omitempty"`
}

// Message is the single terminal message of a worker.
//
// Exactly one of Result and Detail is meaningful, selected by Type.
type Message struct {
	Type   string       `json:"type"`
	Result *ResultValue `json:"result,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

// NewResult builds a result message.
func NewResult(lhr json.RawMessage, assetsDir string) Message {
	return Message{Type: TypeResult, Result: &ResultValue{LHR: lhr, AssetsDir: assetsDir}}
}

// NewFailure builds a failure message from any error.
func NewFailure(err error) Message {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return Message{Type: TypeError, Detail: detail}
}

// IsFailure reports whether m carries a failure.
func (m Message) IsFailure() bool {
	return m.Type == TypeError
}

// Validate checks that a result message has the expected shape.
func (m Message) Validate() error {
	switch m.Type {
	case TypeError:
		return nil
	case TypeResult:
		if m.Result == nil {
			return errors.New("result message without value")
		}
		if !HasReport(m.Result.LHR) {
			return errors.New("result message without lhr")
		}
		if m.Result.AssetsDir == "" {
			return errors.New("result message without assetsDir")
		}
		return nil
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
}

// HasReport reports whether raw holds a non-null JSON value.
func HasReport(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// String renders the message as indented JSON for error reports.
func (m Message) String() string {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", struct {
			Type   string
			Detail string
		}{m.Type, m.Detail})
	}
	return string(data)
}

// Encode writes v as a single JSON line.
func Encode(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// DecodeRequest reads a Request from r.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	if err := DecodeInto(r, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeInto reads the first non-empty line of r and unmarshals it into v.
func DecodeInto(r io.Reader, v interface{}) error {
	line, err := ReadLine(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// ReadLine returns the first non-empty line of r, trimmed. Lines longer than
// MaxMessageSize are rejected without being buffered whole.
func ReadLine(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("message exceeds %d bytes", MaxMessageSize)
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	return nil, ErrNoMessage
}
