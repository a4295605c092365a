package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/shared/id"
	"go.uber.org/zap"
)

// Options configures a launch.
type Options struct {
	// Executable is resolved with ResolveExecutable when empty.
	Executable  string
	ExtraGlobs  []string
	Flags       *Flags
	UserDataDir string
	Env         map[string]string

	// Prefix is the announcement prefix, "DevTools" by default.
	Prefix         string
	StartupTimeout time.Duration

	Spawner Spawner
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// DefaultOptions uses the automation defaults and a 30s startup gate.
func DefaultOptions() Options {
	return Options{
		Flags:          NewFlags().UseDefaultArgs(),
		StartupTimeout: 30 * time.Second,
		Spawner:        ExecSpawner{},
	}
}

// OptionsFromConfig builds launch options from browser configuration.
func OptionsFromConfig(cfg config.BrowserConfig) Options {
	opts := DefaultOptions()
	opts.Executable = cfg.ExecutablePath
	opts.UserDataDir = cfg.UserDataDir
	if cfg.StartupTimeout > 0 {
		opts.StartupTimeout = cfg.StartupTimeout
	}
	if cfg.Headless {
		opts.Flags.Headless()
	}
	opts.Flags.SetRemoteDebuggingPort(cfg.RemoteDebuggingPort)
	opts.Flags.Add(cfg.Flags...)
	opts.Flags.Remove(cfg.RemoveFlags...)
	if cfg.UsePTY {
		opts.Spawner = PTYSpawner{}
	}
	return opts
}

// DefaultUserDataDir is <user cache dir>/devbridge/profile.
func DefaultUserDataDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "devbridge", "profile")
}

// Browser is a launched process and its discovered endpoint.
type Browser struct {
	ID          id.LaunchID
	Executable  string
	UserDataDir string
	URL         string

	proc Process
	log  *logging.Logger
}

// Pid returns the process id.
func (b *Browser) Pid() int {
	return b.proc.Pid()
}

// Done is closed when the process exits.
func (b *Browser) Done() <-chan struct{} {
	return b.proc.Done()
}

// Close kills the process and waits up to five seconds for it to exit.
func (b *Browser) Close() error {
	if err := b.proc.Kill(); err != nil {
		return fmt.Errorf("kill browser %s: %w", b.ID, err)
	}
	select {
	case <-b.proc.Done():
	case <-time.After(5 * time.Second):
		b.log.Warn("browser did not exit after kill", zap.Int("pid", b.proc.Pid()))
	}
	return nil
}

// Connector opens a transport against a discovered endpoint.
type Connector interface {
	Connect(ctx context.Context, url string) error
}

// Launcher spawns the browser and performs the endpoint handshake.
type Launcher struct {
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a launcher, filling in defaults for unset options.
func New(opts Options) *Launcher {
	defaults := DefaultOptions()
	if opts.Flags == nil {
		opts.Flags = defaults.Flags
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = defaults.StartupTimeout
	}
	if opts.Spawner == nil {
		opts.Spawner = defaults.Spawner
	}
	return &Launcher{
		opts:    opts,
		log:     opts.Logger.Named("launcher"),
		metrics: opts.Metrics,
	}
}

// Flags exposes the switches used for the next launch.
func (l *Launcher) Flags() *Flags {
	return l.opts.Flags
}

// Launch starts the browser and waits for its endpoint. On failure the
// process is killed.
func (l *Launcher) Launch(ctx context.Context) (*Browser, error) {
	start := time.Now()
	b, err := l.launch(ctx)
	if err != nil {
		status := monitoring.Status(err)
		if errors.Is(err, ErrHandshakeTimeout) {
			status = monitoring.StatusTimeout
		}
		l.metrics.RecordLaunch(status, 0)
		return nil, err
	}
	l.metrics.RecordLaunch(monitoring.StatusOK, time.Since(start))
	return b, nil
}

func (l *Launcher) launch(ctx context.Context) (*Browser, error) {
	exe, err := ResolveExecutable(l.opts.Executable, l.opts.ExtraGlobs...)
	if err != nil {
		return nil, err
	}

	flags := l.opts.Flags
	dir := l.opts.UserDataDir
	if dir == "" {
		dir = flags.UserDataDir()
	}
	if dir == "" {
		dir = DefaultUserDataDir()
	}
	flags.SetUserDataDir(dir)
	dir = flags.UserDataDir()
	if !flags.Has(flagRemoteDebuggingPort) {
		flags.SetRemoteDebuggingPort(0)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create user data dir: %w", err)
	}

	launchID := id.NewLaunchID()
	log := l.log.With(zap.String("launch_id", launchID.String()))
	log.Info("launching browser", zap.String("cmd", flags.CommandLine(exe)))

	proc, err := l.opts.Spawner.Spawn(ctx, Command{
		Path: exe,
		Args: flags.Args(),
		Env:  l.opts.Env,
	})
	if err != nil {
		return nil, err
	}

	hs := NewHandshake(l.opts.Prefix, dir, l.opts.StartupTimeout)
	hs.observe = func(line string) { log.Debug("browser output", zap.String("line", line)) }

	url, err := hs.Await(ctx, proc)
	if err != nil && url == "" {
		log.Error("handshake failed", zap.Error(err))
		if kerr := proc.Kill(); kerr != nil {
			log.Warn("failed to kill browser", zap.Error(kerr))
		}
		return nil, err
	}
	if err != nil {
		log.Warn("endpoint discovered but not cached", zap.Error(err))
	}

	go drain(proc, log)

	log.Info("browser endpoint discovered", zap.String("url", url), zap.Int("pid", proc.Pid()))
	return &Browser{
		ID:          launchID,
		Executable:  exe,
		UserDataDir: dir,
		URL:         url,
		proc:        proc,
		log:         log,
	}, nil
}

// LaunchAndConnect launches and opens conn against the endpoint. The process
// is killed when the connection cannot be established.
func (l *Launcher) LaunchAndConnect(ctx context.Context, conn Connector) (*Browser, error) {
	b, err := l.Launch(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx, b.URL); err != nil {
		if cerr := b.Close(); cerr != nil {
			l.log.Warn("failed to close browser", zap.Error(cerr))
		}
		return nil, fmt.Errorf("connect %s: %w", b.URL, err)
	}
	return b, nil
}

// drain keeps reading output so the process never blocks on a full pipe.
func drain(proc Process, log *logging.Logger) {
	for line := range proc.Lines() {
		log.Debug("browser output", zap.String("line", line))
	}
}
