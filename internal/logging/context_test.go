package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abc-123", "abc-123"},
		{"control chars dropped", "a\nb\r\tc", "abc"},
		{"quotes dropped", `a"b\c`, "abc"},
		{"invalid utf8 replaced", "ok\xffok", "ok?ok"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeID(tt.in))
		})
	}
}

func TestSanitizeID_Truncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Len(t, SanitizeID(long), maxIDLen)
}

func TestWithSessionID_EmptyLeavesContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithSessionID(ctx, ""))
	assert.Equal(t, ctx, WithSessionID(ctx, "\n\t"))
	assert.Empty(t, SessionIDFromContext(ctx))
}

func TestContextFields_Trace(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "trace_id")
	assert.Contains(t, keys, "span_id")
	assert.Contains(t, keys, "trace_sampled")
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}
