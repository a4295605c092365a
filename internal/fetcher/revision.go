package fetcher

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

// DefaultRevision is the snapshot revision installed when none is configured.
const DefaultRevision = "1132420"

// Product is a downloadable browser.
type Product string

const (
	Chrome  Product = "chrome"
	Firefox Product = "firefox"
)

// Platform is a snapshot platform.
type Platform string

const (
	Linux Platform = "linux"
	Mac   Platform = "mac"
	Win32 Platform = "win32"
	Win64 Platform = "win64"
)

// lastWin32Revision is the last snapshot whose Windows archive was named
// chrome-win32.
const lastWin32Revision = 591479

var defaultHosts = map[Product]string{
	Chrome:  "https://storage.googleapis.com",
	Firefox: "https://github.com/puppeteer/juggler/releases",
}

var urlFormats = map[Product]map[Platform]string{
	Chrome: {
		Linux: "%s/chromium-browser-snapshots/Linux_x64/%s/%s.zip",
		Mac:   "%s/chromium-browser-snapshots/Mac/%s/%s.zip",
		Win32: "%s/chromium-browser-snapshots/Win/%s/%s.zip",
		Win64: "%s/chromium-browser-snapshots/Win_x64/%s/%s.zip",
	},
	Firefox: {
		Linux: "%s/download/%s/%s.zip",
		Mac:   "%s/download/%s/%s.zip",
		Win32: "%s/download/%s/%s.zip",
		Win64: "%s/download/%s/%s.zip",
	},
}

// CurrentPlatform maps the running OS to a snapshot platform.
func CurrentPlatform() (Platform, error) {
	switch runtime.GOOS {
	case "linux":
		return Linux, nil
	case "darwin":
		return Mac, nil
	case "windows":
		if runtime.GOARCH == "386" {
			return Win32, nil
		}
		return Win64, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}

// ArchiveName returns the archive base name, which is also the top level
// directory inside the archive.
func ArchiveName(product Product, platform Platform, revision string) (string, error) {
	switch product {
	case Chrome:
		switch platform {
		case Linux:
			return "chrome-linux", nil
		case Mac:
			return "chrome-mac", nil
		case Win32, Win64:
			rev, err := strconv.Atoi(revision)
			if err != nil {
				return "", fmt.Errorf("invalid revision %q: %w", revision, err)
			}
			if rev > lastWin32Revision {
				return "chrome-win", nil
			}
			return "chrome-win32", nil
		}
	case Firefox:
		switch platform {
		case Linux:
			return "firefox-linux", nil
		case Mac:
			return "firefox-mac", nil
		case Win32, Win64:
			return "firefox-" + string(platform), nil
		}
	default:
		return "", fmt.Errorf("unsupported product: %s", product)
	}
	return "", fmt.Errorf("unsupported platform: %s", platform)
}

// DownloadURL builds the archive URL. An empty host selects the product's
// default.
func DownloadURL(host string, product Product, platform Platform, revision string) (string, error) {
	formats, ok := urlFormats[product]
	if !ok {
		return "", fmt.Errorf("unsupported product: %s", product)
	}
	format, ok := formats[platform]
	if !ok {
		return "", fmt.Errorf("unsupported platform: %s", platform)
	}
	name, err := ArchiveName(product, platform, revision)
	if err != nil {
		return "", err
	}
	if host == "" {
		host = defaultHosts[product]
	}
	return fmt.Sprintf(format, host, revision, name), nil
}

// Revision describes one installable browser build.
type Revision struct {
	Folder   string
	Product  Product
	Platform Platform
	Revision string
	URL      string
}

// NewRevision resolves the download URL for a build installed under folder.
func NewRevision(folder, host string, product Product, platform Platform, revision string) (*Revision, error) {
	if revision == "" {
		revision = DefaultRevision
	}
	url, err := DownloadURL(host, product, platform, revision)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolve folder %s: %w", folder, err)
	}
	return &Revision{
		Folder:   abs,
		Product:  product,
		Platform: platform,
		Revision: revision,
		URL:      url,
	}, nil
}

// InstallDir is <folder>/<platform>-<revision>.
func (r *Revision) InstallDir() string {
	return filepath.Join(r.Folder, string(r.Platform)+"-"+r.Revision)
}

// ExecutablePath returns where the browser binary lives once installed.
func (r *Revision) ExecutablePath() (string, error) {
	dir := r.InstallDir()
	switch r.Product {
	case Chrome:
		name, err := ArchiveName(r.Product, r.Platform, r.Revision)
		if err != nil {
			return "", err
		}
		switch r.Platform {
		case Mac:
			return filepath.Join(dir, name, "Chromium.app", "Contents", "MacOS", "Chromium"), nil
		case Linux:
			return filepath.Join(dir, name, "chrome"), nil
		case Win32, Win64:
			return filepath.Join(dir, name, "chrome.exe"), nil
		}
	case Firefox:
		switch r.Platform {
		case Mac:
			return filepath.Join(dir, "Firefox Nightly.app", "Contents", "MacOS", "firefox"), nil
		case Linux:
			return filepath.Join(dir, "firefox", "firefox"), nil
		case Win32, Win64:
			return filepath.Join(dir, "firefox", "firefox.exe"), nil
		}
	default:
		return "", fmt.Errorf("unsupported product: %s", r.Product)
	}
	return "", fmt.Errorf("unsupported platform: %s", r.Platform)
}
