package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/finora/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const httpTracerName = "finora/http"

// GinMiddleware opens a server span per request. Account, provider and
// subscription attributes are read after the handler chain, since auth and
// the handlers attach them to the request context.
func GinMiddleware() gin.HandlerFunc {
	return ginMiddleware(otel.Tracer(httpTracerName))
}

func ginMiddleware(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		attrs = append(attrs, lifecycleAttributes(c.Request.Context(), c.Param("provider"))...)
		span.SetAttributes(SafeAttributes(attrs...)...)

		if lastErr := c.Errors.Last(); lastErr != nil && status >= http.StatusBadRequest {
			span.SetAttributes(attribute.String("error.kind", errorKind(status)))
			if status >= http.StatusInternalServerError {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
				span.SetStatus(codes.Error, "request error")
			}
		}
	}
}

func lifecycleAttributes(ctx context.Context, providerParam string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if accountID := obscontext.AccountIDFromContext(ctx); accountID != "" {
		attrs = append(attrs, attribute.String("account.id", accountID))
	}
	provider := obscontext.ProviderFromContext(ctx)
	if provider == "" {
		provider = strings.ToLower(strings.TrimSpace(providerParam))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String("payment.provider", provider))
	}
	if subscriptionID := obscontext.SubscriptionIDFromContext(ctx); subscriptionID != "" {
		attrs = append(attrs, attribute.String("subscription.id", subscriptionID))
	}
	if plan := obscontext.PlanFromContext(ctx); plan != "" {
		attrs = append(attrs, attribute.String("subscription.plan", plan))
	}
	return attrs
}

func errorKind(status int) string {
	switch {
	case status == http.StatusBadGateway:
		return "provider"
	case status >= http.StatusInternalServerError:
		return "server"
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "auth"
	default:
		return "client"
	}
}
