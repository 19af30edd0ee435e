package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/finora/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(t.Context()) })

	r := gin.New()
	r.Use(ginMiddleware(provider.Tracer(httpTracerName)))
	return r, recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareRecordsLifecycleAttributes(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.POST("/api/subscriptions/cancel", func(c *gin.Context) {
		ctx := obscontext.WithAccountID(c.Request.Context(), "10")
		ctx = obscontext.WithSubscription(ctx, "1900", "pro")
		c.Request = c.Request.WithContext(ctx)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/subscriptions/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /api/subscriptions/cancel", spans[0].Name())

	attrs := spanAttributes(spans[0])
	assert.Equal(t, "10", attrs["account.id"].AsString())
	assert.Equal(t, "1900", attrs["subscription.id"].AsString())
	assert.Equal(t, "pro", attrs["subscription.plan"].AsString())
	assert.Equal(t, int64(200), attrs["http.status_code"].AsInt64())
	_, hasErr := attrs["error.kind"]
	assert.False(t, hasErr)
}

func TestGinMiddlewareTagsProviderFromRoute(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.POST("/api/payments/webhooks/:provider", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/Stripe", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "stripe", spanAttributes(spans[0])["payment.provider"].AsString())
}

func TestGinMiddlewareMarksProviderFailures(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.POST("/api/subscriptions", func(c *gin.Context) {
		_ = c.Error(errors.New("card_declined"))
		c.AbortWithStatus(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/subscriptions", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "provider", spanAttributes(spans[0])["error.kind"].AsString())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "auth", errorKind(http.StatusForbidden))
	assert.Equal(t, "client", errorKind(http.StatusConflict))
	assert.Equal(t, "server", errorKind(http.StatusInternalServerError))
}
