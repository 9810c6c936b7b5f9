package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/auditrunner/internal/artifacts"
	"github.com/GriffinCanCode/auditrunner/internal/audit"
	"github.com/GriffinCanCode/auditrunner/internal/browser"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/protocol"
)

type stubProcess struct {
	port   int
	killed atomic.Int32
}

func (p *stubProcess) Port() int { return p.port }
func (p *stubProcess) Kill() error {
	p.killed.Add(1)
	return nil
}

type stubLauncher struct {
	proc  *stubProcess
	err   error
	opts  browser.LaunchOptions
	calls int
}

func (l *stubLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Process, error) {
	l.calls++
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	return l.proc, nil
}

type stubPage struct{}

func (stubPage) Run(actions ...chromedp.Action) error { return nil }
func (stubPage) Listen(fn func(ev interface{}))       {}
func (stubPage) Close() error                         { return nil }

type stubBrowser struct{ closed bool }

func (b *stubBrowser) NewPage(ctx context.Context) (browser.Page, error) { return stubPage{}, nil }
func (b *stubBrowser) Close() error {
	b.closed = true
	return nil
}

type stubConnector struct {
	browser  *stubBrowser
	err      error
	endpoint string
}

func (c *stubConnector) Connect(ctx context.Context, endpoint string) (browser.Browser, error) {
	c.endpoint = endpoint
	if c.err != nil {
		return nil, c.err
	}
	return c.browser, nil
}

type failingStore struct{ dir string }

func (s *failingStore) Save(a *audit.Artifacts, dir string) error {
	s.dir = dir
	return errors.New("disk full")
}

func (s *failingStore) Load(dir string) (*audit.Artifacts, error) { return nil, errors.New("unused") }

type fixture struct {
	proc      *stubProcess
	launcher  *stubLauncher
	connector *stubConnector
	registry  *audit.Registry
	tempDir   string
	got       audit.Options
}

func newFixture(t *testing.T, entry audit.EntryPoint) *fixture {
	t.Helper()
	f := &fixture{
		proc:      &stubProcess{port: 9333},
		connector: &stubConnector{browser: &stubBrowser{}},
		registry:  audit.NewRegistry(),
		tempDir:   t.TempDir(),
	}
	f.launcher = &stubLauncher{proc: f.proc}
	f.registry.Register(audit.DefaultEntryPoint, func(ctx context.Context, page browser.Page, target string, opts audit.Options) (*audit.RunnerResult, error) {
		f.got = opts
		return entry(ctx, page, target, opts)
	})
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Launcher:  f.launcher,
		Connector: f.connector,
		Registry:  f.registry,
		Store:     artifacts.NewDiskStore(),
		Logger:    logging.NewNop(),
	}
}

func (f *fixture) request() protocol.Request {
	return protocol.Request{
		Target:  "http://localhost:10200/online-only.html",
		Config:  json.RawMessage(`{"extends":"lighthouse:default"}`),
		Options: protocol.Options{Headless: true},
		TempDir: f.tempDir,
	}
}

func succeed(ctx context.Context, page browser.Page, target string, opts audit.Options) (*audit.RunnerResult, error) {
	return &audit.RunnerResult{
		LHR: json.RawMessage(`{"requestedUrl":"` + target + `"}`),
		Artifacts: &audit.Artifacts{
			RequestedURL: target,
			FinalURL:     target,
			Gathered:     map[string]json.RawMessage{"ConsoleMessages": json.RawMessage(`[]`)},
			Blobs:        map[string][]byte{"MainDocumentContent": []byte("<html></html>")},
		},
	}, nil
}

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	return list
}

func TestExecuteRequiresWorkerContext(t *testing.T) {
	f := newFixture(t, succeed)

	_, err := Execute(context.Background(), f.request(), f.deps())
	assert.ErrorIs(t, err, ErrContext)
	assert.Equal(t, "must be called in worker", err.Error())
	assert.Zero(t, f.launcher.calls)
}

func TestExecute(t *testing.T) {
	f := newFixture(t, succeed)
	req := f.request()
	req.Options.Verbose = true

	result, err := Execute(WithinWorker(context.Background()), req, f.deps())
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestedUrl":"http://localhost:10200/online-only.html"}`, string(result.LHR))

	assert.True(t, f.launcher.opts.Headless)
	assert.Equal(t, "http://127.0.0.1:9333", f.connector.endpoint)
	assert.Equal(t, 9333, f.got.Flags.Port)
	assert.Equal(t, audit.LogLevelVerbose, f.got.Flags.LogLevel)
	assert.JSONEq(t, `{"extends":"lighthouse:default"}`, string(f.got.Config))
	assert.EqualValues(t, 1, f.proc.killed.Load())
	assert.True(t, f.connector.browser.closed)
}

func TestExecuteInfoLogLevel(t *testing.T) {
	f := newFixture(t, succeed)

	_, err := Execute(WithinWorker(context.Background()), f.request(), f.deps())
	require.NoError(t, err)
	assert.Equal(t, audit.LogLevelInfo, f.got.Flags.LogLevel)
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name       string
		entry      audit.EntryPoint
		launchErr  error
		connectErr error
		entryPoint string
		wantErr    error
		wantText   string
		wantKills  int32
	}{
		{
			name:      "launch fails",
			entry:     succeed,
			launchErr: errors.New("no chrome"),
			wantText:  "browser launch failed: no chrome",
		},
		{
			name:       "connect fails",
			entry:      succeed,
			connectErr: errors.New("refused"),
			wantText:   "browser connect failed: refused",
			wantKills:  1,
		},
		{
			name: "entry point fails",
			entry: func(context.Context, browser.Page, string, audit.Options) (*audit.RunnerResult, error) {
				return nil, errors.New("boom")
			},
			wantText:  "audit navigation failed: boom",
			wantKills: 1,
		},
		{
			name: "null result",
			entry: func(context.Context, browser.Page, string, audit.Options) (*audit.RunnerResult, error) {
				return nil, nil
			},
			wantErr:   ErrNoResult,
			wantKills: 1,
		},
		{
			name: "null report",
			entry: func(context.Context, browser.Page, string, audit.Options) (*audit.RunnerResult, error) {
				return &audit.RunnerResult{LHR: json.RawMessage("null"), Artifacts: &audit.Artifacts{}}, nil
			},
			wantErr:   ErrNoResult,
			wantKills: 1,
		},
		{
			name:       "unknown entry point",
			entry:      succeed,
			entryPoint: "timespan",
			wantErr:    audit.ErrUnknownEntryPoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.entry)
			f.launcher.err = tt.launchErr
			f.connector.err = tt.connectErr
			req := f.request()
			req.EntryPoint = tt.entryPoint

			_, err := Execute(WithinWorker(context.Background()), req, f.deps())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, err.Error())
			}
			assert.Equal(t, tt.wantKills, f.proc.killed.Load())
		})
	}
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t, succeed)

	msg := Run(WithinWorker(context.Background()), f.request(), f.deps())
	require.NoError(t, msg.Validate())
	require.False(t, msg.IsFailure(), msg.Detail)

	dir := msg.Result.AssetsDir
	assert.True(t, strings.HasPrefix(dir, f.tempDir))
	assert.Contains(t, dir, AssetsDirPattern)

	loaded, err := artifacts.NewDiskStore().Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:10200/online-only.html", loaded.FinalURL)
	assert.Equal(t, []byte("<html></html>"), loaded.Blobs["MainDocumentContent"])
}

func TestRunNullResult(t *testing.T) {
	f := newFixture(t, func(context.Context, browser.Page, string, audit.Options) (*audit.RunnerResult, error) {
		return nil, nil
	})

	msg := Run(WithinWorker(context.Background()), f.request(), f.deps())
	assert.True(t, msg.IsFailure())
	assert.Equal(t, "no runner result", msg.Detail)
	assert.Empty(t, entries(t, f.tempDir))
}

func TestRunOutsideWorker(t *testing.T) {
	f := newFixture(t, succeed)

	msg := Run(context.Background(), f.request(), f.deps())
	assert.True(t, msg.IsFailure())
	assert.Equal(t, "must be called in worker", msg.Detail)
}

func TestRunPanic(t *testing.T) {
	f := newFixture(t, func(context.Context, browser.Page, string, audit.Options) (*audit.RunnerResult, error) {
		panic("gatherer exploded")
	})

	msg := Run(WithinWorker(context.Background()), f.request(), f.deps())
	assert.True(t, msg.IsFailure())
	assert.Contains(t, msg.Detail, "gatherer exploded")
	assert.EqualValues(t, 1, f.proc.killed.Load())
}

func TestRunSaveFailureRemovesDir(t *testing.T) {
	f := newFixture(t, succeed)
	store := &failingStore{}
	deps := f.deps()
	deps.Store = store

	msg := Run(WithinWorker(context.Background()), f.request(), deps)
	assert.True(t, msg.IsFailure())
	assert.Contains(t, msg.Detail, "disk full")
	require.NotEmpty(t, store.dir)
	assert.NoDirExists(t, store.dir)
	assert.Empty(t, entries(t, f.tempDir))
}

func TestRunLogsFailure(t *testing.T) {
	f := newFixture(t, func(context.Context, browser.Page, string, audit.Options) (*audit.RunnerResult, error) {
		return nil, errors.New("boom")
	})
	var stdout, stderr bytes.Buffer
	deps := f.deps()
	deps.Logger = logging.NewStreams(&stdout, &stderr, "info")

	Run(WithinWorker(context.Background()), f.request(), deps)
	assert.Contains(t, stdout.String(), "Running audit")
	assert.Contains(t, stderr.String(), "Audit failed")
	assert.Contains(t, stderr.String(), "boom")
}

func TestWorkerMain(t *testing.T) {
	f := newFixture(t, succeed)
	build := func(stdout, stderr io.Writer, req protocol.Request) Deps {
		deps := f.deps()
		deps.Logger = logging.NewStreams(stdout, stderr, "info")
		return deps
	}

	t.Run("not a worker process", func(t *testing.T) {
		t.Setenv(EnvWorker, "")
		var stderr, out bytes.Buffer
		code := Main(context.Background(), strings.NewReader(""), io.Discard, &stderr, &out, build)
		assert.Equal(t, ExitNotWorker, code)
		assert.Empty(t, out.String())
		assert.Contains(t, stderr.String(), "must be called in worker")
	})

	t.Run("bad request", func(t *testing.T) {
		t.Setenv(EnvWorker, "1")
		var stderr, out bytes.Buffer
		code := Main(context.Background(), strings.NewReader("{nope\n"), io.Discard, &stderr, &out, build)
		assert.Equal(t, ExitFailure, code)

		var msg protocol.Message
		require.NoError(t, protocol.DecodeInto(&out, &msg))
		assert.True(t, msg.IsFailure())
		assert.Contains(t, msg.Detail, "read request")
	})

	t.Run("success", func(t *testing.T) {
		t.Setenv(EnvWorker, "1")
		var in, stdout, out bytes.Buffer
		require.NoError(t, protocol.Encode(&in, f.request()))

		code := Main(context.Background(), &in, &stdout, io.Discard, &out, build)
		assert.Equal(t, ExitOK, code)
		assert.Equal(t, 1, strings.Count(out.String(), "\n"))
		assert.Contains(t, stdout.String(), "Audit complete")

		var msg protocol.Message
		require.NoError(t, protocol.DecodeInto(&out, &msg))
		require.NoError(t, msg.Validate())
		assert.DirExists(t, msg.Result.AssetsDir)
	})
}

func TestFunc(t *testing.T) {
	f := newFixture(t, succeed)
	body := Func(func(stdout, stderr io.Writer, req protocol.Request) Deps { return f.deps() })

	msg := body(context.Background(), f.request(), io.Discard, io.Discard)
	require.False(t, msg.IsFailure(), msg.Detail)
	assert.DirExists(t, msg.Result.AssetsDir)
}
