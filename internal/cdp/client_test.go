package cdp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/events"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/protocol"
	"github.com/GriffinCanCode/devbridge/internal/session"
	"github.com/GriffinCanCode/devbridge/internal/transport"
	"github.com/GriffinCanCode/devbridge/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "ws://127.0.0.1:9222/devtools/browser/test"

func newTestClient(t *testing.T, opts Options) (*Client, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.Connected(testURL)
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	c := New(fake, opts)
	t.Cleanup(func() { c.Close() })
	return c, fake
}

// answer replies to every request with result, echoing its id and session.
func answer(result string) transporttest.Responder {
	return func(req transporttest.Request) []string {
		if req.SessionID != "" {
			return []string{fmt.Sprintf(`{"id":%d,"result":%s,"sessionId":%q}`, req.ID, result, req.SessionID)}
		}
		return []string{fmt.Sprintf(`{"id":%d,"result":%s}`, req.ID, result)}
	}
}

func TestNavigateRoundTrip(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"frameId":"F1"}`))

	got, err := c.MustDomain("Page").Call(context.Background(), "navigate", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"frameId": "F1"}, got)
	assert.Zero(t, c.Pending())

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Page.navigate", sent[0].Method)
	assert.Equal(t, "https://example.com", sent[0].Param("url"))
	assert.Empty(t, sent[0].SessionID)
}

func TestReorderedResponsesPairById(t *testing.T) {
	const n = 20
	c, fake := newTestClient(t, DefaultOptions())

	var mu sync.Mutex
	var held []transporttest.Request
	fake.Respond(func(req transporttest.Request) []string {
		mu.Lock()
		defer mu.Unlock()
		held = append(held, req)
		if len(held) < n {
			return nil
		}
		frames := make([]string, 0, n)
		for i := len(held) - 1; i >= 0; i-- {
			r := held[i]
			frames = append(frames, fmt.Sprintf(`{"id":%d,"result":{"result":{"value":%q}}}`, r.ID, r.Param("expression")))
		}
		return frames
	})

	runtime := c.MustDomain("Runtime")
	results := make([]any, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = runtime.Call(context.Background(), "evaluate", fmt.Sprintf("expr-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		want := map[string]any{"result": map[string]any{"value": fmt.Sprintf("expr-%d", i)}}
		assert.Equal(t, want, results[i])
	}
	assert.Zero(t, c.Pending())
}

func TestDuplicateResponseIsIgnored(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())

	unmatched := make(chan *events.Event, 4)
	c.Router().Match(func(ev *events.Event) bool { return ev.IsResponse() }, events.ListenerFunc(func(ev *events.Event) error {
		unmatched <- ev
		return nil
	}))

	fake.Respond(func(req transporttest.Request) []string {
		return []string{
			fmt.Sprintf(`{"id":%d,"result":{"frameId":"F1"}}`, req.ID),
			fmt.Sprintf(`{"id":%d,"result":{"frameId":"F2"}}`, req.ID),
		}
	})

	got, err := c.MustDomain("Page").Call(context.Background(), "navigate", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"frameId": "F1"}, got)

	select {
	case ev := <-unmatched:
		assert.JSONEq(t, `{"frameId":"F2"}`, string(ev.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("second response never reached the router")
	}
	assert.Zero(t, c.Pending())
}

func TestUnmatchedIdReachesWildcard(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())

	got := make(chan *events.Event, 1)
	c.Router().Register(events.Wildcard, events.ListenerFunc(func(ev *events.Event) error {
		got <- ev
		return nil
	}))

	fake.Emit(`{"id":999,"result":{}}`)

	select {
	case ev := <-got:
		require.True(t, ev.IsResponse())
		assert.Equal(t, int64(999), *ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("unmatched response was dropped")
	}
}

func TestFireAndForgetReturnsImmediately(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(func(req transporttest.Request) []string {
		fake.EmitAfter(500*time.Millisecond, fmt.Sprintf(`{"id":%d,"result":{}}`, req.ID))
		return nil
	})

	start := time.Now()
	got, err := c.MustDomain("Browser").Call(context.Background(), "close")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Less(t, elapsed, 250*time.Millisecond)

	// The late response still reclaims the entry.
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFireAndForgetReclaimedWithoutResponse(t *testing.T) {
	tests := []struct {
		name        string
		callTimeout time.Duration
	}{
		{"with call timeout", 30 * time.Second},
		{"without call timeout", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.CallTimeout = tt.callTimeout
			opts.ReclaimAfter = 50 * time.Millisecond
			c, _ := newTestClient(t, opts)

			_, err := c.MustDomain("Runtime").Call(context.Background(), "runIfWaitingForDebugger")
			require.NoError(t, err)
			assert.Equal(t, 1, c.Pending())

			assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 10*time.Millisecond)
		})
	}
}

func TestOnceListenerThroughDomain(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())

	var mu sync.Mutex
	count := 0
	_, err := c.MustDomain("Page").Once("loadEventFired", events.ListenerFunc(func(*events.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	fake.Emit(`{"method":"Page.loadEventFired","params":{"timestamp":1}}`)
	fake.Emit(`{"method":"Page.loadEventFired","params":{"timestamp":2}}`)
	fake.Sync()

	assert.Eventually(t, func() bool {
		return c.Router().Count("Page.loadEventFired") == 0
	}, time.Second, 5*time.Millisecond)

	// Let the second event drain through the dispatch goroutine.
	done := make(chan struct{})
	c.Router().Once("sync.marker", events.ListenerFunc(func(*events.Event) error {
		close(done)
		return nil
	}))
	fake.Emit(`{"method":"sync.marker"}`)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestOnceInSessionIgnoresOtherSessions(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())

	fired := make(chan string, 2)
	_, err := c.MustDomain("Page").OnceInSession("loadEventFired", "S1", events.ListenerFunc(func(ev *events.Event) error {
		fired <- ev.SessionID
		return nil
	}))
	require.NoError(t, err)

	fake.Emit(`{"method":"Page.loadEventFired","params":{"timestamp":1},"sessionId":"S2"}`)
	fake.Emit(`{"method":"Page.frameNavigated","params":{},"sessionId":"S1"}`)
	fake.Emit(`{"method":"Page.loadEventFired","params":{"timestamp":2},"sessionId":"S1"}`)
	fake.Emit(`{"method":"Page.loadEventFired","params":{"timestamp":3},"sessionId":"S1"}`)

	select {
	case got := <-fired:
		assert.Equal(t, "S1", got)
	case <-time.After(time.Second):
		t.Fatal("listener not fired for its own session")
	}
	assert.Never(t, func() bool { return len(fired) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	_, err = c.MustDomain("Page").OnceInSession("navigate", "S1", events.ListenerFunc(func(*events.Event) error { return nil }))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestSessionSelectorScopedPerChain(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{}`))
	page := c.MustDomain("Page")

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx := session.Begin(context.Background())
		session.SetCurrent(ctx, "S1")
		<-start
		_, err := page.Call(ctx, "reload", true)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		ctx := session.Begin(context.Background())
		<-start
		_, err := page.Call(ctx, "reload", false)
		assert.NoError(t, err)
	}()
	close(start)
	wg.Wait()

	sent := fake.Sent()
	require.Len(t, sent, 2)
	for _, req := range sent {
		if req.Param("ignoreCache") == true {
			assert.Equal(t, "S1", req.SessionID)
		} else {
			assert.Empty(t, req.SessionID)
		}
	}
}

func TestSessionSelectorClearedAfterCall(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{}`))
	page := c.MustDomain("Page")

	ctx := session.Begin(context.Background())
	session.SetCurrent(ctx, "S1")

	_, err := page.Call(ctx, "enable")
	require.NoError(t, err)
	_, err = page.Call(ctx, "enable")
	require.NoError(t, err)

	sent := fake.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "S1", sent[0].SessionID)
	assert.Empty(t, sent[1].SessionID)
}

func TestSessionBindingPersists(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{}`))
	page := c.MustDomain("Page")

	ctx := session.WithID(context.Background(), "S7")
	for i := 0; i < 2; i++ {
		_, err := page.Call(ctx, "enable")
		require.NoError(t, err)
	}

	for _, req := range fake.Sent() {
		assert.Equal(t, "S7", req.SessionID)
	}
	assert.True(t, c.Sessions().Has("S7"))
}

func TestAttachRecordsSession(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"sessionId":"A1"}`))

	id, err := c.Attach(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "A1", id)
	assert.Equal(t, []string{"A1"}, c.Sessions().Known())

	req := fake.Sent()[0]
	assert.Equal(t, "T1", req.Param("targetId"))
	assert.Equal(t, true, req.Param("flatten"))
}

func TestEventSessionsRecorded(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())

	fake.Emit(`{"method":"Target.attachedToTarget","params":{"sessionId":"E1","targetInfo":{}}}`)
	fake.Emit(`{"method":"Page.loadEventFired","params":{},"sessionId":"E2"}`)
	fake.Sync()

	assert.Equal(t, []string{"E1", "E2"}, c.Sessions().Known())
}

func TestProtocolErrorSurfaces(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(func(req transporttest.Request) []string {
		return []string{fmt.Sprintf(
			`{"id":%d,"result":{"frameId":"ignored"},"error":{"code":-32602,"message":"Invalid parameters","data":"url: string value expected"}}`,
			req.ID,
		)}
	})

	_, err := c.MustDomain("Page").Call(context.Background(), "navigate", 42)
	require.Error(t, err)

	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -32602, perr.Code)
	assert.Equal(t, "Invalid parameters, url: string value expected", err.Error())
}

func TestUnexpectedResultIsNotAnError(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"surprise":true}`))

	got, err := c.MustDomain("Page").Call(context.Background(), "enable")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFieldResult(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"outerHTML":"<html></html>"}`))

	got, err := c.MustDomain("DOM").Call(context.Background(), "getOuterHTML", 1)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", got)
}

func TestUsageErrors(t *testing.T) {
	c, _ := newTestClient(t, DefaultOptions())
	page := c.MustDomain("Page")
	ctx := context.Background()

	_, err := page.Call(ctx, "loadEventFired")
	assert.ErrorIs(t, err, ErrEventNotCallable)

	_, err = page.Call(ctx, "teleport")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = page.Call(ctx, "reload", true, "x", "extra")
	assert.ErrorIs(t, err, ErrTooManyArgs)

	_, err = page.On("navigate", events.ListenerFunc(func(*events.Event) error { return nil }))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = c.Domain("Teleport")
	assert.ErrorIs(t, err, ErrUnknownDomain)
	assert.Panics(t, func() { c.MustDomain("Teleport") })

	assert.Same(t, page, c.MustDomain("Page"))
}

func TestCallTimeoutRemovesEntry(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 50 * time.Millisecond
	c, fake := newTestClient(t, opts)

	late := make(chan *events.Event, 1)
	c.Router().Register(events.Wildcard, events.ListenerFunc(func(ev *events.Event) error {
		late <- ev
		return nil
	}))

	_, err := c.MustDomain("Page").Call(context.Background(), "reload")
	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.Zero(t, c.Pending())

	req := fake.Sent()[0]
	fake.Emit(fmt.Sprintf(`{"id":%d,"result":{}}`, req.ID))

	select {
	case ev := <-late:
		assert.Equal(t, req.ID, *ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("late response was not routed")
	}
}

func TestCallerCancellation(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 0
	c, _ := newTestClient(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.MustDomain("Page").Call(ctx, "reload")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrCallTimeout)
	assert.Zero(t, c.Pending())
}

func TestTransportCloseFailsPending(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 0
	c, fake := newTestClient(t, opts)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.MustDomain("Page").Call(context.Background(), "reload")
		errCh <- err
	}()

	_, err := fake.NextRequest(time.Second)
	require.NoError(t, err)
	fake.Drop(1006, "target crashed")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed on close")
	}
	assert.Zero(t, c.Pending())
}

func TestReconnectBeforeCall(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{}`))
	fake.SetOpen(false)

	_, err := c.MustDomain("Page").Call(context.Background(), "enable")
	require.NoError(t, err)

	assert.Equal(t, []string{testURL}, fake.Connects())
	assert.True(t, c.IsConnected())
}

func TestNotConnectedAfterWindow(t *testing.T) {
	opts := DefaultOptions()
	opts.ReconnectWindow = 50 * time.Millisecond
	c, fake := newTestClient(t, opts)
	fake.ConnectErr = errors.New("connection refused")
	fake.SetOpen(false)

	start := time.Now()
	_, err := c.MustDomain("Page").Call(context.Background(), "enable")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, fake.Sent())
}

func TestListenerMayCallBack(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())
	fake.Respond(answer(`{"result":{"type":"number","value":2}}`))

	got := make(chan any, 1)
	_, err := c.MustDomain("Page").On("loadEventFired", events.ListenerFunc(func(*events.Event) error {
		v, err := c.MustDomain("Runtime").Call(context.Background(), "evaluate", "1+1")
		got <- v
		return err
	}))
	require.NoError(t, err)

	fake.Emit(`{"method":"Page.loadEventFired","params":{}}`)

	select {
	case v := <-got:
		assert.Equal(t, map[string]any{"result": map[string]any{"type": "number", "value": float64(2)}}, v)
	case <-time.After(2 * time.Second):
		t.Fatal("listener call deadlocked")
	}
}

func TestCloseFailsPendingAndRejectsCalls(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 0
	c, fake := newTestClient(t, opts)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.MustDomain("Page").Call(context.Background(), "reload")
		errCh <- err
	}()
	_, err := fake.NextRequest(time.Second)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed on close")
	}

	_, err = c.MustDomain("Page").Call(context.Background(), "enable")
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.False(t, c.IsConnected())
}

func TestPendingIDs(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 0
	c, fake := newTestClient(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		go c.MustDomain("Page").Call(ctx, "reload")
	}
	var ids []int64
	for i := 0; i < 3; i++ {
		req, err := fake.NextRequest(time.Second)
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	assert.Eventually(t, func() bool { return len(c.PendingIDs()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ids, c.PendingIDs())
}

func TestCloseFromListener(t *testing.T) {
	c, fake := newTestClient(t, DefaultOptions())

	closed := make(chan error, 1)
	_, err := c.MustDomain("Target").On("targetCrashed", events.ListenerFunc(func(*events.Event) error {
		closed <- c.Close()
		return nil
	}))
	require.NoError(t, err)

	fake.Emit(`{"method":"Target.targetCrashed","params":{"targetId":"T1"}}`)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close from a listener did not return")
	}
	assert.False(t, c.IsConnected())

	_, err = c.MustDomain("Page").Call(context.Background(), "enable")
	assert.ErrorIs(t, err, ErrClientClosed)
}
