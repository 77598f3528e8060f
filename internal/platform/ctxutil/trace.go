package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies a request and, for site routes, the site and asset
// it addresses.
type TraceData struct {
	TraceID   string
	RequestID string
	SiteID    string
	AssetCode string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns the non-empty trace data as key/value pairs for
// structured logging.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 8)
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.SiteID != "" {
		out = append(out, "site", td.SiteID)
	}
	if td.AssetCode != "" {
		out = append(out, "asset_code", td.AssetCode)
	}
	return out
}
