package cdp

import (
	"context"
	"fmt"
	"testing"

	"github.com/GriffinCanCode/devbridge/internal/session"
	"github.com/GriffinCanCode/devbridge/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, []string{"Browser", "Target", "Page", "Runtime", "Network", "DOM", "Emulation", "Input", "Log"}, c.Domains())

	page, ok := c.Domain("Page")
	require.True(t, ok)

	nav, ok := page.Method("navigate")
	require.True(t, ok)
	assert.Equal(t, ReturnsObject, nav.Returns)
	assert.Equal(t, "url", nav.Params[0])

	enable, ok := page.Method("enable")
	require.True(t, ok)
	assert.Equal(t, ReturnsNone, enable.Returns)

	assert.True(t, page.IsEvent("loadEventFired"))
	assert.False(t, page.IsEvent("navigate"))

	browser, _ := c.Domain("Browser")
	closeSpec, _ := browser.Method("close")
	assert.True(t, closeSpec.FireAndForget)
}

func TestParseCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate domain",
			yaml: "domains:\n  - name: A\n  - name: A\n",
		},
		{
			name: "duplicate method",
			yaml: "domains:\n  - name: A\n    methods:\n      - name: m\n      - name: m\n",
		},
		{
			name: "method and event clash",
			yaml: "domains:\n  - name: A\n    methods:\n      - name: m\n    events: [m]\n",
		},
		{
			name: "field without name",
			yaml: "domains:\n  - name: A\n    methods:\n      - name: m\n        returns: field\n",
		},
		{
			name: "unknown shape",
			yaml: "domains:\n  - name: A\n    methods:\n      - name: m\n        returns: list\n",
		},
		{
			name: "fire and forget with result",
			yaml: "domains:\n  - name: A\n    methods:\n      - name: m\n        fireAndForget: true\n        returns: object\n",
		},
		{
			name: "unnamed domain",
			yaml: "domains:\n  - methods: []\n",
		},
		{
			name: "not yaml",
			yaml: "domains: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
	assert.Panics(t, func() { MustLoadCatalog([]byte("domains: [")) })
}

func TestRegisterDomain(t *testing.T) {
	c := NewCatalog()
	spec := DomainSpec{
		Name:    "Custom",
		Methods: []MethodSpec{{Name: "ping", Params: []string{"payload"}, Returns: ReturnsField, Field: "pong"}},
		Events:  []string{"pinged"},
	}
	require.NoError(t, c.Register(spec))
	assert.ErrorIs(t, c.Register(spec), ErrDuplicateDomain)

	// The registered copy is independent of the caller's slices.
	spec.Methods[0].Name = "changed"
	got, ok := c.Domain("Custom")
	require.True(t, ok)
	_, ok = got.Method("ping")
	assert.True(t, ok)
}

func TestCustomCatalogClient(t *testing.T) {
	cat := NewCatalog()
	require.NoError(t, cat.Register(DomainSpec{
		Name:    "Custom",
		Methods: []MethodSpec{{Name: "ping", Params: []string{"payload"}, Returns: ReturnsField, Field: "pong"}},
	}))

	opts := DefaultOptions()
	opts.Catalog = cat
	c, fake := newTestClient(t, opts)
	fake.Respond(func(req transporttest.Request) []string {
		return []string{fmt.Sprintf(`{"id":%d,"result":{"pong":%q}}`, req.ID, req.Param("payload"))}
	})

	got, err := c.MustDomain("Custom").Call(context.Background(), "ping", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = c.Domain("Page")
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestCheckVersion(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"protocolVersion":"1.3","product":"HeadlessChrome/120.0.6099.109","revision":"@abc","userAgent":"Mozilla/5.0","jsVersion":"12.0"}`))

	ctx := context.Background()

	ver, err := CheckVersion(ctx, c, ">= 100")
	require.NoError(t, err)
	assert.Equal(t, "120.0.6099", ver.String())

	ver, err = CheckVersion(ctx, c, ">= 200")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	require.NotNil(t, ver)
	assert.Equal(t, uint64(120), ver.Major())

	_, err = CheckVersion(ctx, c, "not a constraint")
	assert.Error(t, err)

	ver, err = CheckVersion(ctx, c, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(6099), ver.Patch())
}

func TestVersionParse(t *testing.T) {
	tests := []struct {
		product string
		want    string
		wantErr bool
	}{
		{product: "Chrome/119.0.6045.105", want: "119.0.6045"},
		{product: "HeadlessChrome/120.0.6099.109", want: "120.0.6099"},
		{product: "121.0.1", want: "121.0.1"},
		{product: "Chrome/unknown", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			ver, err := VersionInfo{Product: tt.product}.Version()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ver.String())
		})
	}
}

func TestTargetsAttachNavigate(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(func(req transporttest.Request) []string {
		var result string
		switch req.Method {
		case "Target.getTargets":
			result = `{"targetInfos":[{"targetId":"B","type":"browser"},{"targetId":"T1","type":"page","url":"about:blank"}]}`
		case "Target.attachToTarget":
			result = `{"sessionId":"S1"}`
		case "Page.navigate":
			if req.SessionID != "S1" {
				return []string{fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"wrong session"}}`, req.ID)}
			}
			result = `{"frameId":"F1","loaderId":"L1"}`
		}
		return []string{fmt.Sprintf(`{"id":%d,"result":%s}`, req.ID, result)}
	})

	ctx := context.Background()

	page, err := c.FirstPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", page.TargetID)

	sid, err := c.Attach(ctx, page.TargetID)
	require.NoError(t, err)

	res, err := c.Navigate(session.WithID(ctx, sid), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "F1", res.FrameID)
	assert.Equal(t, "L1", res.LoaderID)
}

func TestNavigateErrorText(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"frameId":"F1","errorText":"net::ERR_NAME_NOT_RESOLVED"}`))

	res, err := c.Navigate(context.Background(), "https://nope.invalid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, "F1", res.FrameID)
}

func TestFirstPageWithoutPage(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"targetInfos":[{"targetId":"B","type":"browser"}]}`))

	_, err := c.FirstPage(context.Background())
	assert.Error(t, err)
}
