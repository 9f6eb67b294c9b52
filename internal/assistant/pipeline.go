package assistant

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistd/internal/completion"
	"github.com/fyrsmithlabs/assistd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultCompletionTimeout = 20 * time.Second

// Pipeline serves one assistant variant: guardrail, router, completion
// call and tag extraction. It holds no per-conversation state and is safe
// for concurrent use.
type Pipeline struct {
	cfg       Config
	completer completion.Completer
	router    *Router
	extractor *Extractor
	sink      EventSink
	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink sets the event sink. Defaults to NopSink.
func WithSink(s EventSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithMetrics sets the metrics. Defaults to the process-wide set.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithCompletionTimeout bounds each provider call.
func WithCompletionTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// NewPipeline builds a pipeline for cfg backed by c.
func NewPipeline(cfg Config, c completion.Completer, opts ...Option) (*Pipeline, error) {
	if c == nil {
		return nil, fmt.Errorf("variant %s: completer is required", cfg.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		completer: c,
		extractor: NewExtractor(),
		sink:      NopSink{},
		logger:    logging.NewNop(),
		timeout:   defaultCompletionTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("assistd/assistant")
	}
	if p.metrics == nil {
		p.metrics = NewMetrics()
	}
	p.logger = p.logger.Named("assistant")

	if cfg.Strategy == StrategyHeuristic && len(cfg.Rules) > 0 {
		router, err := NewRouter(cfg.Rules)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", cfg.Name, err)
		}
		p.router = router
	}
	return p, nil
}

// Name returns the variant name.
func (p *Pipeline) Name() string { return p.cfg.Name }

// Config returns the variant configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Respond answers one conversation turn. It never fails: every path ends
// in a Result whose Response is safe to show. Result.Err explains
// fallbacks.
func (p *Pipeline) Respond(ctx context.Context, req ConversationRequest) (res Result) {
	ctx = logging.WithVariant(logging.WithSessionID(ctx, req.SessionID), p.cfg.Name)
	ctx, span := p.tracer.Start(ctx, "assistant.respond", trace.WithAttributes(
		attribute.String("assistant.variant", p.cfg.Name),
		attribute.Int("assistant.turns", len(req.Turns)),
	))

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Response: Response{Reply: p.cfg.ErrorReply},
				Outcome:  OutcomeInternalError,
				Err:      &PanicError{Value: r, Stack: debug.Stack()},
			}
		}
		p.finish(ctx, span, res)
		span.End()
	}()

	return p.respond(ctx, req)
}

func (p *Pipeline) respond(ctx context.Context, req ConversationRequest) Result {
	if err := checkTurns(req.Turns, p.cfg.TurnCap); err != nil {
		outcome := OutcomeOverflow
		if errors.Is(err, ErrNoTurns) {
			outcome = OutcomeInvalid
		}
		return Result{Response: Response{Reply: p.cfg.FallbackReply}, Outcome: outcome, Err: err}
	}

	history, prompt, err := translateHistory(req.Turns)
	if err != nil {
		return Result{Response: Response{Reply: p.cfg.FallbackReply}, Outcome: OutcomeInvalid, Err: err}
	}

	var stages []Stage
	advance := func(s Stage) {
		stages = append(stages, s)
		p.logger.Debug(ctx, "assistant stage", zap.Stringer("stage", s))
	}

	advance(StageAwaitingModelReply)
	start := p.now()
	raw, err := safeComplete(ctx, p.completer, completion.Request{
		System:          p.cfg.SystemPrompt,
		History:         history,
		Prompt:          prompt,
		MaxOutputTokens: p.cfg.Generation.MaxOutputTokens,
		Temperature:     p.cfg.Generation.Temperature,
	}, p.timeout)
	p.metrics.CompletionDuration.WithLabelValues(p.cfg.Name).Observe(p.now().Sub(start).Seconds())
	if err != nil {
		outcome := OutcomeProviderError
		var pe *PanicError
		if errors.As(err, &pe) {
			outcome = OutcomeInternalError
		}
		return Result{
			Response: Response{Reply: p.cfg.ErrorReply},
			Outcome:  outcome,
			Stages:   stages,
			Err:      fmt.Errorf("completion: %w", err),
		}
	}
	advance(StageReplyReceived)

	advance(StageTagScan)
	directive, visible := p.extractor.Extract(raw, p.cfg.Families...)
	resp := Response{Reply: visible}

	switch directive.Kind {
	case DirectiveNone:
		advance(StagePassthrough)
		// a reply made only of discarded tags
		if resp.Reply == "" && strings.TrimSpace(raw) != "" {
			resp.Reply = p.cfg.FallbackReply
		}
	case DirectiveRoute:
		advance(StageStripAndEnrich)
		resp.Link, resp.FollowUp = enrichRoute(*directive.Route)
		resp.Redirect = resp.Link.Href
		if resp.Reply == "" {
			resp.Reply = routeOnlyReply(*directive.Route)
		}
	case DirectiveUpgrade:
		advance(StageStripAndEnrich)
		if resp.Reply == "" {
			resp.Reply = upgradeOnlyReply()
		}
	}
	if directive.Kind != DirectiveNone {
		p.metrics.DirectivesTotal.WithLabelValues(p.cfg.Name, directive.Kind.String()).Inc()
	}

	res := Result{Outcome: OutcomeAnswered, Directive: directive}
	if rule, ok := p.router.Route(prompt); ok {
		resp.Redirect = rule.Target
		res.Rule = rule.Name
		p.metrics.RedirectsTotal.WithLabelValues(p.cfg.Name, rule.Name).Inc()
	}

	advance(StageResponseReady)
	res.Response = resp
	res.Stages = stages

	p.emit(ctx, req, res)
	return res
}

// finish records the outcome on metrics, the span and the log.
func (p *Pipeline) finish(ctx context.Context, span trace.Span, res Result) {
	p.metrics.RequestsTotal.WithLabelValues(p.cfg.Name, string(res.Outcome)).Inc()

	span.SetAttributes(
		attribute.String("assistant.outcome", string(res.Outcome)),
		attribute.String("assistant.directive", res.Directive.Kind.String()),
	)
	if res.Rule != "" {
		span.SetAttributes(attribute.String("assistant.rule", res.Rule))
	}

	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.String("directive", res.Directive.Kind.String()),
	}
	if res.Response.Redirect != "" {
		fields = append(fields, zap.String("redirect", res.Response.Redirect))
	}

	switch res.Outcome {
	case OutcomeAnswered:
		span.SetStatus(codes.Ok, "")
		p.logger.Info(ctx, "assistant replied", fields...)
	case OutcomeOverflow, OutcomeInvalid:
		p.logger.Warn(ctx, "assistant fallback", append(fields, zap.Error(res.Err))...)
	default:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Outcome))
		var pe *PanicError
		if errors.As(res.Err, &pe) {
			fields = append(fields, zap.ByteString("stack", pe.Stack))
		}
		p.logger.Error(ctx, "assistant failed", append(fields, zap.Error(res.Err))...)
	}
}

// emit fires events for notable turns only: the first turn of a
// conversation and detected upgrade intent.
func (p *Pipeline) emit(ctx context.Context, req ConversationRequest, res Result) {
	base := Event{
		Variant:       p.cfg.Name,
		SessionID:     req.SessionID,
		SourceContext: req.SourceContext,
		Turns:         len(req.Turns),
		Redirect:      res.Response.Redirect,
		Time:          p.now().UTC(),
	}

	if len(req.Turns) == 1 {
		ev := base
		ev.Kind = EventFirstTurn
		p.record(ctx, ev)
	}
	if res.Directive.Kind == DirectiveUpgrade {
		ev := base
		ev.Kind = EventUpgradeIntent
		ev.Reason = res.Directive.Upgrade.Reason
		p.record(ctx, ev)
	}
}

// record hands ev to the sink without waiting. The request's cancellation
// does not reach the sink.
func (p *Pipeline) record(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.metrics.EventErrorsTotal.WithLabelValues(p.cfg.Name).Inc()
				p.logger.Error(ctx, "event sink panicked", zap.Any("panic", r))
			}
		}()
		if err := p.sink.Record(ctx, ev); err != nil {
			p.metrics.EventErrorsTotal.WithLabelValues(p.cfg.Name).Inc()
			p.logger.Warn(ctx, "event sink failed", zap.String("event", string(ev.Kind)), zap.Error(err))
		}
	}()
}
