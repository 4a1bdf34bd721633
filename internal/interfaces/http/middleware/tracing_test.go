package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(t.Context())
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestTracing_EnrichesServerSpan(t *testing.T) {
	recorder := recordSpans(t)
	tenantID := uuid.New()

	router := gin.New()
	router.Use(Tracing(TracingConfig{ServiceName: "firmledger", Enabled: true}))
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-42")
		c.Set(JWTTenantIDKey, tenantID)
		c.Set(JWTClientIDKey, "client-a")
	})
	router.Use(SpanEnricher())
	router.GET("/api/v1/ledger/invoices/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/invoices/inv_1", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /api/v1/ledger/invoices/:id", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := attrMap(span.Attributes())
	assert.Equal(t, "req-42", attrs["request_id"])
	assert.Equal(t, tenantID.String(), attrs[telemetry.SpanAttrTenantID])
	assert.Equal(t, "client-a", attrs[telemetry.SpanAttrClientID])
}

func TestTracing_Disabled(t *testing.T) {
	recorder := recordSpans(t)

	router := gin.New()
	router.Use(Tracing(TracingConfig{Enabled: false}), SpanEnricher())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.Ended())
}
