package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpanCreatesTrace(t *testing.T) {
	tracer := New("test", logging.NewNop())
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "Page.navigate")

	require.True(t, strings.HasPrefix(span.TraceID.String(), id.TracePrefix+"_"))
	assert.True(t, id.IsValid(strings.TrimPrefix(span.TraceID.String(), id.TracePrefix+"_")))
	assert.Empty(t, span.ParentID)
	assert.Equal(t, span.TraceID, GetTraceID(ctx))
	assert.Equal(t, span.SpanID, GetSpanID(ctx))
}

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer := New("test", logging.NewNop())
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "launch")
	child, _ := tracer.StartSpan(ctx, "Target.attachToTarget")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	span, _ := tracer.StartSpan(context.Background(), "Runtime.evaluate")
	require.NotNil(t, span)

	span.SetError(errors.New("boom"))
	span.Finish()
	assert.NotPanics(t, func() {
		tracer.Submit(span)
		tracer.Close()
	})
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New("test", logging.NewNop())
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Submit(span) })
}

func TestInjectExtractRoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), "trace_a", "span_b")

	headers := map[string]string{}
	InjectTraceContext(ctx, headers)

	traceID, spanID := ExtractTraceContext(headers)
	assert.Equal(t, TraceID("trace_a"), traceID)
	assert.Equal(t, SpanID("span_b"), spanID)
}

func TestHTTPMiddlewareSetsHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("test", logging.NewNop())
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/health", func(c *gin.Context) {
		assert.Equal(t, TraceID("trace_x"), GetTraceID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderTraceID, "trace_x")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace_x", rec.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, rec.Header().Get(HeaderSpanID))
}
