// Package telemetry provides OpenTelemetry tracing and metrics for assistd.
//
// Spans and metrics export over OTLP (gRPC or HTTP) to a collector. When
// export is disabled the package hands out the global no-op providers, so
// instrumented code never has to check.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	tracer := tel.Tracer("assistd/assistant")
//	ctx, span := tracer.Start(ctx, "assistant.respond")
//	defer span.End()
//
// Failures while building exporters leave the instance degraded, never
// fatal. Tests use NewTestTelemetry for in-memory spans and metrics.
package telemetry
