// Package cdp is the call surface of the bridge.
//
// A Client owns one transport, the correlation registry, the event router and
// the session directory. Capability groups ("Page", "Network", ...) are
// declared in a Catalog, by default the embedded protocol.yaml, and each
// group is exposed as a Domain that turns Call and Invoke into request
// frames:
//
//	client := cdp.New(ws, cdp.DefaultOptions())
//	if err := client.Connect(ctx, url); err != nil { ... }
//
//	page := client.MustDomain("Page")
//	result, err := page.Call(ctx, "navigate", "https://example.com")
//
//	page.On("loadEventFired", events.ListenerFunc(func(ev *events.Event) error {
//		return nil
//	}))
//
// Awaited calls are bounded by Options.CallTimeout (zero waits forever) and
// by the caller's context. Either way the pending entry is dropped and a late
// response reaches the wildcard listeners as an unmatched response.
//
// Fire-and-forget calls keep their pending entry for Options.ReclaimAfter
// unless a response arrives first.
//
// Responses are resolved on the transport's receive goroutine. Events are
// queued to a separate dispatch goroutine, so a listener may itself make
// awaited calls or Close the client.
package cdp
