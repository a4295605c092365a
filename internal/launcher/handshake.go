package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// EndpointCacheFile holds the last announced endpoint inside the user data dir.
const EndpointCacheFile = "ws-endpoint.txt"

var (
	// ErrHandshakeTimeout is returned when no endpoint is discovered in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")
	// ErrNoEndpoint is returned when output ends without an announcement and
	// no cached endpoint can be recovered.
	ErrNoEndpoint = errors.New("no endpoint announced")
)

// ExistingSessionMarkers are printed instead of an announcement when the
// browser hands the launch to an instance already using the profile.
var ExistingSessionMarkers = []string{
	"Opening in existing browser session.",
	"正在现有的浏览器会话中打开",
}

// Handshake discovers the endpoint from process output.
type Handshake struct {
	pattern   *regexp.Regexp
	markers   []string
	cachePath string
	timeout   time.Duration

	// observe, when set, sees every line read during the handshake.
	observe func(string)
}

// NewHandshake matches "^<prefix> listening on (ws://.*)$". The cache file is
// kept in dir.
func NewHandshake(prefix, dir string, timeout time.Duration) *Handshake {
	if prefix == "" {
		prefix = "DevTools"
	}
	return &Handshake{
		pattern:   regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + ` listening on (ws://.*)$`),
		markers:   ExistingSessionMarkers,
		cachePath: filepath.Join(dir, EndpointCacheFile),
		timeout:   timeout,
	}
}

// CachePath returns the endpoint cache location.
func (h *Handshake) CachePath() string {
	return h.cachePath
}

// Match extracts the endpoint from an announcement line.
func (h *Handshake) Match(line string) (string, bool) {
	m := h.pattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (h *Handshake) isExistingSession(line string) bool {
	for _, marker := range h.markers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// Await reads proc output until an endpoint is found. A fresh announcement is
// persisted to the cache file; an existing-session marker, or the end of
// output, recovers the cached endpoint instead.
func (h *Handshake) Await(ctx context.Context, proc Process) (string, error) {
	var timeoutC <-chan time.Time
	if h.timeout > 0 {
		timer := time.NewTimer(h.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var last string
	handedOff := false
	lines := proc.Lines()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				if url, err := h.readCache(); err == nil {
					return url, nil
				}
				return "", h.exitError(proc, last, handedOff)
			}

			if h.observe != nil {
				h.observe(line)
			}
			if strings.TrimSpace(line) != "" {
				last = line
			}

			if url, ok := h.Match(line); ok {
				if err := h.writeCache(url); err != nil {
					return url, fmt.Errorf("persist endpoint: %w", err)
				}
				return url, nil
			}
			if h.isExistingSession(line) {
				handedOff = true
				if url, err := h.readCache(); err == nil {
					return url, nil
				}
			}

		case <-timeoutC:
			return "", fmt.Errorf("%w: %s", ErrHandshakeTimeout, last)

		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (h *Handshake) exitError(proc Process, last string, handedOff bool) error {
	detail := last
	select {
	case <-proc.Done():
		if err := proc.ExitErr(); err != nil {
			detail = fmt.Sprintf("%s (%v)", last, err)
		}
	default:
	}
	if handedOff {
		return fmt.Errorf("%w: existing session without cached endpoint at %s: %s", ErrNoEndpoint, h.cachePath, detail)
	}
	return fmt.Errorf("%w: %s", ErrNoEndpoint, detail)
}

func (h *Handshake) readCache() (string, error) {
	data, err := os.ReadFile(h.cachePath)
	if err != nil {
		return "", err
	}
	url := strings.TrimSpace(string(data))
	if url == "" {
		return "", fmt.Errorf("empty endpoint cache %s", h.cachePath)
	}
	return url, nil
}

func (h *Handshake) writeCache(url string) error {
	if err := os.MkdirAll(filepath.Dir(h.cachePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(h.cachePath, []byte(url), 0o644)
}
