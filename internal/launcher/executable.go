package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrExecutableNotFound is returned when no browser binary can be located.
var ErrExecutableNotFound = errors.New("browser executable not found")

// ProbableExecutables are well known install locations checked in order.
var ProbableExecutables = []string{
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
	"C:/Program Files (x86)/Google/Chrome/Application/chrome.exe",
	"C:/Program Files/Google/Chrome/Application/chrome.exe",
}

var pathNames = []string{"chromium", "chromium-browser", "google-chrome-stable", "google-chrome", "chrome"}

// cacheGlobs match browsers installed by common automation tools, relative to
// the user's home directory.
var cacheGlobs = []string{
	".cache/ms-playwright/chromium-*/chrome-linux/chrome",
	".cache/ms-playwright/chromium-*/chrome-mac/Chromium.app/Contents/MacOS/Chromium",
	".cache/puppeteer/chrome/**/chrome-linux64/chrome",
	".cache/puppeteer/chrome/**/Google Chrome for Testing",
	"Library/Caches/ms-playwright/chromium-*/chrome-mac/Chromium.app/Contents/MacOS/Chromium",
}

// ResolveExecutable returns explicit when it exists. Otherwise it searches the
// probable install locations, PATH, extra glob patterns and the automation
// tool caches, in that order.
func ResolveExecutable(explicit string, extraGlobs ...string) (string, error) {
	if explicit != "" {
		if isExecutableFile(explicit) {
			return explicit, nil
		}
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, explicit)
	}

	for _, path := range ProbableExecutables {
		if isExecutableFile(path) {
			return path, nil
		}
	}

	for _, name := range pathNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	patterns := append([]string(nil), extraGlobs...)
	if home, err := os.UserHomeDir(); err == nil {
		for _, g := range cacheGlobs {
			patterns = append(patterns, filepath.Join(home, g))
		}
	}
	if path, ok := globNewest(patterns); ok {
		return path, nil
	}

	return "", ErrExecutableNotFound
}

// globNewest returns the lexically greatest match of the first pattern that
// matches anything, so higher revisions win.
func globNewest(patterns []string) (string, bool) {
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, m := range matches {
			if isExecutableFile(m) {
				return m, true
			}
		}
	}
	return "", false
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0 || filepath.Ext(path) == ".exe"
}
