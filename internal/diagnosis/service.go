package diagnosis

import (
	"context"
	"encoding/json"
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

var (
	// ErrInvalidRequest means the vehicle or symptom description is unusable.
	ErrInvalidRequest = errors.New("invalid diagnosis request")
	// ErrProviderPanic means the completion provider panicked.
	ErrProviderPanic = errors.New("diagnosis provider panicked")
)

// FallbackReply is shown when no report could be produced.
const FallbackReply = "Sorry, we couldn't diagnose that right now. " +
	"Please try again in a moment, or browse repair guides at /guides."

const (
	maxFieldLen    = 64
	maxSymptomsLen = 2000
	maxMileage     = 2_000_000

	defaultTimeout = 30 * time.Second
)

// Request describes the vehicle and its symptoms.
type Request struct {
	Year     int    `json:"year"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Symptoms string `json:"symptoms"`
	Mileage  int    `json:"mileage,omitempty"`
}

// Validate checks the request against the current model year.
func (r Request) Validate(now time.Time) error {
	if r.Year < 1900 || r.Year > now.Year()+1 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidRequest, r.Year)
	}
	for field, v := range map[string]string{"make": r.Make, "model": r.Model} {
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
		}
		if len(v) > maxFieldLen {
			return fmt.Errorf("%w: %s is too long", ErrInvalidRequest, field)
		}
	}
	symptoms := strings.TrimSpace(r.Symptoms)
	if symptoms == "" {
		return fmt.Errorf("%w: symptoms are required", ErrInvalidRequest)
	}
	if len(symptoms) > maxSymptomsLen {
		return fmt.Errorf("%w: symptoms exceed %d characters", ErrInvalidRequest, maxSymptomsLen)
	}
	if r.Mileage < 0 || r.Mileage > maxMileage {
		return fmt.Errorf("%w: mileage %d out of range", ErrInvalidRequest, r.Mileage)
	}
	return nil
}

// Service produces structured diagnoses with a completion provider.
type Service struct {
	completer completion.Completer
	system    string
	logger    *logging.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithTimeout bounds the provider call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService creates a diagnosis service backed by c.
func NewService(c completion.Completer, opts ...Option) (*Service, error) {
	if c == nil {
		return nil, errors.New("diagnosis: completer is required")
	}
	schema, err := json.Marshal(Schema())
	if err != nil {
		return nil, fmt.Errorf("diagnosis: marshal schema: %w", err)
	}

	s := &Service{
		completer: c,
		system:    systemPrompt + "\n\nJSON schema:\n" + string(schema),
		logger:    logging.NewNop(),
		timeout:   defaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("assistd/diagnosis")
	}
	s.logger = s.logger.Named("diagnosis")
	return s, nil
}

const systemPrompt = `You are an experienced automotive technician helping a DIY mechanic.
Diagnose the described symptoms for the given vehicle.
Reply with a single JSON object that follows the schema below and nothing else.
List at most five causes, most likely first. Use "critical" urgency only when the vehicle is unsafe to drive.`

// Diagnose validates req and asks the provider for a report.
func (s *Service) Diagnose(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "diagnosis.diagnose", trace.WithAttributes(
		attribute.Int("vehicle.year", req.Year),
		attribute.String("vehicle.make", strings.ToLower(strings.TrimSpace(req.Make))),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		s.logger.Error(ctx, "diagnosis completion failed", zap.Error(err))
		return nil, fmt.Errorf("completion: %w", err)
	}

	report, err := ParseReport(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable report")
		s.logger.Warn(ctx, "diagnosis reply unusable", zap.Int("reply_len", len(raw)), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("diagnosis.urgency", string(report.Urgency)),
		attribute.Int("diagnosis.causes", len(report.Causes)),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Info(ctx, "diagnosis complete",
		zap.String("urgency", string(report.Urgency)),
		zap.String("difficulty", string(report.Difficulty)),
		zap.Int("causes", len(report.Causes)),
	)
	return report, nil
}

// complete calls the provider, converting a panic into ErrProviderPanic.
func (s *Service) complete(ctx context.Context, req Request) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "diagnosis provider panicked",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
	}()
	return s.completer.Complete(ctx, completion.Request{
		System:          s.system,
		Prompt:          prompt(req),
		MaxOutputTokens: 900,
		Temperature:     0.2,
		JSON:            true,
	})
}

func prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vehicle: %d %s %s\n", req.Year, strings.TrimSpace(req.Make), strings.TrimSpace(req.Model))
	if req.Mileage > 0 {
		fmt.Fprintf(&b, "Mileage: %d\n", req.Mileage)
	}
	fmt.Fprintf(&b, "Symptoms: %s", strings.TrimSpace(req.Symptoms))
	return b.String()
}
