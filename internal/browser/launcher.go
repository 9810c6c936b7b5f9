package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
)

var (
	ErrChromeNotFound = errors.New("no chrome installation found")
	ErrNotReady       = errors.New("browser did not expose its debugging endpoint")
)

// Binaries probed on PATH when no explicit path is configured.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// Flags passed to every launched browser, besides the port and profile.
var defaultFlags = []string{
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-background-networking",
	"--disable-component-update",
	"--disable-default-apps",
	"--disable-sync",
	"--metrics-recording-only",
	"--mute-audio",
	"about:blank",
}

// VersionInfo is the payload of the DevTools /json/version endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// ChromeLauncher starts a local Chrome with remote debugging enabled.
type ChromeLauncher struct {
	// Path to the browser binary. Empty means probing PATH.
	Path string
	// Extra command line flags.
	Flags []string
	// StartupTimeout bounds the wait for the debugging endpoint.
	StartupTimeout time.Duration
	Logger         *logging.Logger

	lookPath func(string) (string, error)
}

// NewChromeLauncher creates a launcher for the given binary path.
func NewChromeLauncher(path string, logger *logging.Logger) *ChromeLauncher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ChromeLauncher{
		Path:           path,
		StartupTimeout: 30 * time.Second,
		Logger:         logger,
	}
}

// Launch starts the browser and waits until its DevTools endpoint answers.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Process, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	bin, err := l.resolve()
	if err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("reserve debugging port: %w", err)
	}

	profile, err := os.MkdirTemp("", "auditrunner-profile-")
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--user-data-dir=" + profile,
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, l.Flags...)
	args = append(args, defaultFlags...)

	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(profile)
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	p := &chromeProcess{
		cmd:     cmd,
		port:    port,
		profile: profile,
		exited:  make(chan struct{}),
		logger:  logger,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	logger.Info("Browser started",
		zap.String("binary", bin),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("port", port),
		zap.Bool("headless", opts.Headless),
	)

	timeout := l.StartupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-p.exited:
			cancel()
		case <-readyCtx.Done():
		}
	}()

	info, err := WaitReady(readyCtx, Endpoint(port))
	if err != nil {
		select {
		case <-p.exited:
			err = fmt.Errorf("browser exited during startup: %v", p.waitErr)
		default:
		}
		p.Kill()
		return nil, err
	}

	logger.Debug("Browser ready",
		zap.String("version", info.Browser),
		zap.String("ws", info.WebSocketDebuggerURL),
	)
	return p, nil
}

func (l *ChromeLauncher) resolve() (string, error) {
	lookPath := l.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if l.Path != "" {
		if path, err := lookPath(l.Path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrChromeNotFound, l.Path)
	}
	if env := os.Getenv("CHROME_PATH"); env != "" {
		if path, err := lookPath(env); err == nil {
			return path, nil
		}
	}
	for _, name := range chromeCandidates {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrChromeNotFound
}

// WaitReady polls the /json/version endpoint until the browser answers or ctx
// is done.
func WaitReady(ctx context.Context, endpoint string) (*VersionInfo, error) {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(2 * time.Second).
		SetRetryCount(1000).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return ctx.Err() == nil && (err != nil || !r.IsSuccess())
		})

	var info VersionInfo
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/json/version")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d", ErrNotReady, resp.StatusCode())
	}
	return &info, nil
}

type chromeProcess struct {
	cmd     *exec.Cmd
	port    int
	profile string
	exited  chan struct{}
	waitErr error
	logger  *logging.Logger

	once    sync.Once
	killErr error
}

func (p *chromeProcess) Port() int { return p.port }

func (p *chromeProcess) Kill() error {
	p.once.Do(func() {
		select {
		case <-p.exited:
		default:
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.killErr = fmt.Errorf("kill browser: %w", err)
			}
			<-p.exited
		}
		if err := os.RemoveAll(p.profile); err != nil {
			p.logger.Warn("Failed to remove browser profile", zap.String("dir", p.profile), zap.Error(err))
		}
		p.logger.Debug("Browser terminated", zap.Int("pid", p.cmd.Process.Pid))
	})
	return p.killErr
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
