package launcher

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultArgs are the automation defaults applied by UseDefaultArgs.
var DefaultArgs = []string{
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-breakpad",
	"--disable-browser-side-navigation",
	"--disable-client-side-phishing-detection",
	"--disable-default-apps",
	"--disable-dev-shm-usage",
	"--disable-extensions",
	"--disable-features=site-per-process",
	"--disable-hang-monitor",
	"--disable-popup-blocking",
	"--disable-prompt-on-repost",
	"--disable-sync",
	"--disable-translate",
	"--metrics-recording-only",
	"--no-first-run",
	"--safebrowsing-disable-auto-update",
	"--enable-automation",
	"--password-store=basic",
	"--use-mock-keychain",
}

const (
	flagUserDataDir         = "--user-data-dir"
	flagRemoteDebuggingPort = "--remote-debugging-port"
	flagHeadless            = "--headless"
)

// Flags is an ordered set of command line switches. Each switch appears once;
// re-adding a switch replaces its value in place.
type Flags struct {
	keys   []string
	values map[string]string
}

// NewFlags creates a flag set from args such as "--lang=en-US".
func NewFlags(args ...string) *Flags {
	f := &Flags{values: make(map[string]string)}
	return f.Add(args...)
}

func splitArg(arg string) (key, value string, ok bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", false
	}
	key, value, _ = strings.Cut(arg, "=")
	return key, value, true
}

func (f *Flags) put(key, value string, ifAbsent bool) {
	if _, exists := f.values[key]; exists {
		if !ifAbsent {
			f.values[key] = value
		}
		return
	}
	f.keys = append(f.keys, key)
	f.values[key] = value
}

// Add sets switches, replacing existing values.
func (f *Flags) Add(args ...string) *Flags {
	for _, arg := range args {
		if key, value, ok := splitArg(arg); ok {
			f.put(key, value, false)
		}
	}
	return f
}

// AddIfAbsent sets switches that are not already present.
func (f *Flags) AddIfAbsent(args ...string) *Flags {
	for _, arg := range args {
		if key, value, ok := splitArg(arg); ok {
			f.put(key, value, true)
		}
	}
	return f
}

// Remove drops switches. Any "=value" suffix is ignored.
func (f *Flags) Remove(args ...string) *Flags {
	for _, arg := range args {
		key, _, ok := splitArg(arg)
		if !ok {
			continue
		}
		if _, exists := f.values[key]; !exists {
			continue
		}
		delete(f.values, key)
		for i, k := range f.keys {
			if k == key {
				f.keys = append(f.keys[:i], f.keys[i+1:]...)
				break
			}
		}
	}
	return f
}

// UseDefaultArgs adds DefaultArgs without overriding switches already set.
func (f *Flags) UseDefaultArgs() *Flags {
	return f.AddIfAbsent(DefaultArgs...)
}

// Headless switches to the new headless mode.
func (f *Flags) Headless() *Flags {
	return f.Add(flagHeadless + "=new")
}

func (f *Flags) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f *Flags) Value(key string) string {
	return f.values[key]
}

func (f *Flags) Len() int {
	return len(f.keys)
}

func (f *Flags) SetUserDataDir(dir string) *Flags {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return f.Add(flagUserDataDir + "=" + filepath.ToSlash(dir))
}

func (f *Flags) UserDataDir() string {
	return f.Value(flagUserDataDir)
}

func (f *Flags) SetRemoteDebuggingPort(port int) *Flags {
	return f.Add(flagRemoteDebuggingPort + "=" + strconv.Itoa(port))
}

// RemoteDebuggingPort returns the configured port, or 0 when unset or invalid.
func (f *Flags) RemoteDebuggingPort() int {
	port, err := strconv.Atoi(f.Value(flagRemoteDebuggingPort))
	if err != nil {
		return 0
	}
	return port
}

// Args renders the switches in insertion order. Empty values render as a bare
// switch.
func (f *Flags) Args() []string {
	args := make([]string, 0, len(f.keys))
	for _, key := range f.keys {
		if v := f.values[key]; v != "" {
			args = append(args, key+"="+v)
		} else {
			args = append(args, key)
		}
	}
	return args
}

// CommandLine joins executable and Args for logging.
func (f *Flags) CommandLine(executable string) string {
	return strings.Join(append([]string{executable}, f.Args()...), " ")
}
