// Package logging provides structured logging for assistd on top of Zap.
//
// # Overview
//
// The Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Context field injection (trace_id, session.id, request.id, assistant.variant)
//   - Field-name and pattern redaction for provider credentials
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg, err := logging.FromSettings("info", "json")
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, req.SessionID)
//	ctx = logging.WithVariant(ctx, "greeter")
//	logger.Info(ctx, "reply assembled", zap.Bool("directive", true))
//
// Session ids come from browsers and carry no authority. They are sanitized
// and truncated before they reach a log line, never rejected.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	pipeline := assistant.NewPipeline(cfg, fake, tl.Logger)
//	tl.AssertLogged(t, zapcore.WarnLevel, "completion failed")
package logging
