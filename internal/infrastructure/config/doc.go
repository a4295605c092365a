// Package config loads bridge configuration from environment variables via
// envconfig, with an optional TOML launch profile layered over the browser
// settings.
package config
