package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/corrowatch-backend/internal/platform/ctxutil"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext carries trace and request ids, plus the site and asset
// a route addresses, into the request context. Incoming ids are honoured;
// otherwise the trace id comes from the active span or is generated. The
// site and asset also tag the active span.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		span := trace.SpanFromContext(c.Request.Context())
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		td := &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
			SiteID:    storage.NormalizeSiteID(c.Param("site")),
			AssetCode: strings.TrimSpace(c.Param("asset")),
		}
		if td.SiteID != "" {
			span.SetAttributes(attribute.String("corrowatch.site", td.SiteID))
		}
		if td.AssetCode != "" {
			span.SetAttributes(attribute.String("corrowatch.asset", td.AssetCode))
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}
