// internal/logging/context.go
package logging

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxIDLen bounds client-supplied identifiers in log lines.
const maxIDLen = 128

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session.id", sessionID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if variant := VariantFromContext(ctx); variant != "" {
		fields = append(fields, zap.String("assistant.variant", variant))
	}

	return fields
}

type sessionCtxKey struct{}
type requestCtxKey struct{}
type variantCtxKey struct{}

// SanitizeID makes a client-supplied identifier safe to log: control and
// non-printable characters are dropped, invalid UTF-8 is replaced and the
// result is truncated. It never fails.
func SanitizeID(id string) string {
	if !utf8.ValidString(id) {
		id = strings.ToValidUTF8(id, "?")
	}
	var b strings.Builder
	for _, r := range id {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' {
			continue
		}
		if b.Len()+utf8.RuneLen(r) > maxIDLen {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WithSessionID adds a sanitized session ID to context. Empty IDs leave
// the context unchanged.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	sessionID = SanitizeID(sessionID)
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext extracts session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = SanitizeID(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithVariant records which assistant variant is serving the request.
func WithVariant(ctx context.Context, variant string) context.Context {
	return context.WithValue(ctx, variantCtxKey{}, variant)
}

// VariantFromContext extracts the assistant variant from context.
func VariantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(variantCtxKey{}).(string); ok {
		return v
	}
	return ""
}
