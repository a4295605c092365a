package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Profile is a reusable launch profile stored as TOML:
//
//	executable = "/usr/bin/chromium"
//	user_data_dir = "/var/lib/devbridge/profile"
//	startup_timeout = "45s"
//	flags = ["--start-maximized", "--lang=en-US"]
//	remove_flags = ["--disable-extensions"]
type Profile struct {
	Executable     string   `toml:"executable"`
	UserDataDir    string   `toml:"user_data_dir"`
	StartupTimeout string   `toml:"startup_timeout"`
	Headless       *bool    `toml:"headless"`
	Flags          []string `toml:"flags"`
	RemoveFlags    []string `toml:"remove_flags"`

	startupTimeout time.Duration
}

// LoadProfile reads and validates a TOML launch profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a TOML launch profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	if p.StartupTimeout != "" {
		d, err := time.ParseDuration(p.StartupTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse profile: startup_timeout: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("parse profile: startup_timeout must be positive, got %s", d)
		}
		p.startupTimeout = d
	}

	return &p, nil
}

// Apply overrides browser settings with the non-empty profile values. Flag
// lists are appended.
func (p *Profile) Apply(b *BrowserConfig) {
	if p.Executable != "" {
		b.ExecutablePath = p.Executable
	}
	if p.UserDataDir != "" {
		b.UserDataDir = p.UserDataDir
	}
	if p.startupTimeout > 0 {
		b.StartupTimeout = p.startupTimeout
	}
	if p.Headless != nil {
		b.Headless = *p.Headless
	}
	b.Flags = append(b.Flags, p.Flags...)
	b.RemoveFlags = append(b.RemoveFlags, p.RemoveFlags...)
}
