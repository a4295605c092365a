/*
Package tracing provides lightweight spans for protocol commands and
diagnostics requests.

Every command sent through the bridge runs inside a span tagged with the
method, message id and target session. Spans are buffered and written to the
structured log by a collector goroutine, so tracing never blocks a call.

# Usage

	tracer := tracing.New("devbridge", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "Page.navigate")
	span.SetTag("cdp.id", "7")
	// ...
	span.Finish()
	tracer.Submit(span)

	router.Use(tracing.HTTPMiddleware(tracer))

Trace context propagates over HTTP through the X-Trace-ID and X-Span-ID
headers.
*/
package tracing
