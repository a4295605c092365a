package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/resilience"
	"github.com/charlievieth/fastwalk"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrNotInstalled is returned by Locate when no browser binary is found.
var ErrNotInstalled = errors.New("browser not installed")

// Options configures a Fetcher.
type Options struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	UserAgent  string

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// DefaultOptions allows ten minutes per download with three retries.
func DefaultOptions() Options {
	return Options{
		Timeout:    10 * time.Minute,
		RetryCount: 3,
		RetryWait:  time.Second,
		UserAgent:  "devbridge-fetcher/1.0",
	}
}

// Fetcher downloads and installs browser snapshots.
type Fetcher struct {
	client  *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics

	// one install per directory at a time
	locks sync.Map
}

// New creates a fetcher whose transport comes from a retryable HTTP client.
func New(opts Options) *Fetcher {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaults.RetryWait
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryCount
	retryClient.RetryWaitMin = opts.RetryWait
	retryClient.RetryWaitMax = 30 * opts.RetryWait
	retryClient.Logger = nil

	client := resty.New()
	client.
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(30*opts.RetryWait).
		SetHeader("User-Agent", opts.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	client.SetTransport(retryClient.HTTPClient.Transport)

	log := opts.Logger.Named("fetcher")
	breaker := resilience.New("fetcher", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Fetcher{
		client:  client,
		breaker: breaker,
		log:     log,
		metrics: opts.Metrics,
	}
}

// RevisionFromConfig resolves the configured revision for this platform.
func RevisionFromConfig(cfg config.FetcherConfig) (*Revision, error) {
	platform, err := CurrentPlatform()
	if err != nil {
		return nil, err
	}
	return NewRevision(cfg.Folder, cfg.Host, Chrome, platform, cfg.Revision)
}

// Installed reports whether rev's executable exists.
func Installed(rev *Revision) bool {
	exe, err := rev.ExecutablePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(exe)
	return err == nil
}

// EnsureInstalled downloads rev unless it is already installed and returns
// the executable path.
func (f *Fetcher) EnsureInstalled(ctx context.Context, rev *Revision) (string, error) {
	if Installed(rev) {
		return rev.ExecutablePath()
	}
	return f.Download(ctx, rev)
}

// Download fetches and installs rev, returning the executable path. An
// existing install is left untouched. The archive is removed afterwards.
func (f *Fetcher) Download(ctx context.Context, rev *Revision) (string, error) {
	exe, err := rev.ExecutablePath()
	if err != nil {
		return "", err
	}

	dir := rev.InstallDir()
	mu, _ := f.locks.LoadOrStore(dir, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	if _, err := os.Stat(exe); err == nil {
		return exe, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create install dir: %w", err)
	}
	archive := filepath.Join(dir, path.Base(rev.URL))
	defer os.Remove(archive)

	log := f.log.With(zap.String("revision", rev.Revision), zap.String("platform", string(rev.Platform)))
	log.Info("downloading browser", zap.String("url", rev.URL))

	size, err := f.fetch(ctx, rev.URL, archive, log)
	if err != nil {
		f.metrics.RecordDownload(monitoring.Status(err), size)
		return "", err
	}
	f.metrics.RecordDownload(monitoring.StatusOK, size)
	log.Info("download complete", zap.Int64("bytes", size))

	log.Info("installing browser", zap.String("archive", archive), zap.String("dest", dir))
	n, err := Extract(ctx, archive, dir)
	if err != nil {
		return "", fmt.Errorf("install %s: %w", archive, err)
	}

	if _, err := os.Stat(exe); err != nil {
		found, lerr := Locate(ctx, dir, filepath.Base(exe))
		if lerr != nil {
			return "", fmt.Errorf("install %s: executable missing after extracting %d files: %w", archive, n, lerr)
		}
		exe = found
	}
	if err := os.Chmod(exe, 0o755); err != nil {
		return "", fmt.Errorf("mark executable: %w", err)
	}

	log.Info("browser installed", zap.String("executable", exe), zap.Int("files", n))
	return exe, nil
}

func (f *Fetcher) fetch(ctx context.Context, url, dest string, log *logging.Logger) (int64, error) {
	var written int64
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := f.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(url)
		if err != nil {
			return fmt.Errorf("download %s: %w", url, err)
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.IsError() {
			return fmt.Errorf("download %s: %s", url, resp.Status())
		}

		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		progress := &progressWriter{total: resp.RawResponse.ContentLength, log: log}
		written, err = io.Copy(out, io.TeeReader(body, progress))
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("download %s: %w", url, err)
		}
		return nil
	})
	return written, err
}

// progressWriter logs download progress every ten percent.
type progressWriter struct {
	total   int64
	written int64
	next    int64
	log     *logging.Logger
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total <= 0 {
		return len(b), nil
	}
	pct := p.written * 100 / p.total
	if pct >= p.next {
		p.log.Info("download progress",
			zap.Int64("percent", pct),
			zap.Float64("total_mb", float64(p.total)/(1<<20)),
		)
		p.next = pct - pct%10 + 10
	}
	return len(b), nil
}

// Locate searches dir for a regular file with one of names and returns the
// shallowest match.
func Locate(ctx context.Context, dir string, names ...string) (string, error) {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	var (
		mu   sync.Mutex
		best string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := want[d.Name()]; !ok {
			return nil
		}
		mu.Lock()
		if best == "" || len(p) < len(best) || (len(p) == len(best) && p < best) {
			best = p
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", dir, err)
	}
	if best == "" {
		return "", fmt.Errorf("%w: %v under %s", ErrNotInstalled, names, dir)
	}
	return best, nil
}
