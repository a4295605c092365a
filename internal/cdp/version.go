package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionInfo is the result of Browser.getVersion.
type VersionInfo struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

// Version parses the product version, e.g. "HeadlessChrome/120.0.6099.109"
// becomes 120.0.6099. Only the first three segments are kept.
func (v VersionInfo) Version() (*semver.Version, error) {
	product := v.Product
	if i := strings.LastIndexByte(product, '/'); i >= 0 {
		product = product[i+1:]
	}
	parts := strings.Split(product, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	ver, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil, fmt.Errorf("parse product %q: %w", v.Product, err)
	}
	return ver, nil
}

// GetVersion asks the browser for its version.
func (c *Client) GetVersion(ctx context.Context) (VersionInfo, error) {
	d, err := c.Domain("Browser")
	if err != nil {
		return VersionInfo{}, err
	}
	return CallAs[VersionInfo](ctx, d, "getVersion", nil)
}

// CheckVersion fails with ErrUnsupportedVersion when the connected browser
// does not satisfy constraint (e.g. ">= 115"). An empty constraint only
// reports the version.
func CheckVersion(ctx context.Context, c *Client, constraint string) (*semver.Version, error) {
	info, err := c.GetVersion(ctx)
	if err != nil {
		return nil, err
	}
	ver, err := info.Version()
	if err != nil {
		return nil, err
	}
	if constraint == "" {
		return ver, nil
	}

	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("parse version constraint %q: %w", constraint, err)
	}
	if !cons.Check(ver) {
		return ver, fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, ver, constraint)
	}
	return ver, nil
}
