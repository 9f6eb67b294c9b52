package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/assistd/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventKind names a notable conversation event.
type EventKind string

const (
	EventFirstTurn     EventKind = "first_turn"
	EventUpgradeIntent EventKind = "upgrade_intent"
)

// Event is emitted after a response is assembled. It never carries
// conversation text.
type Event struct {
	Kind          EventKind     `json:"kind"`
	Variant       string        `json:"variant"`
	SessionID     string        `json:"session_id,omitempty"`
	SourceContext string        `json:"source_context,omitempty"`
	Turns         int           `json:"turns"`
	Reason        UpgradeReason `json:"reason,omitempty"`
	Redirect      string        `json:"redirect,omitempty"`
	Time          time.Time     `json:"time"`
}

// EventSink receives events off the request path. Errors are logged by the
// caller and never affect the response.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

// NopSink drops every event.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(context.Context, Event) error { return nil }

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

// Record logs the event at info.
func (s *LogSink) Record(ctx context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("event", string(ev.Kind)),
		zap.String("variant", ev.Variant),
		zap.Int("turns", ev.Turns),
	}
	if ev.SourceContext != "" {
		fields = append(fields, zap.String("source_context", logging.SanitizeID(ev.SourceContext)))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", string(ev.Reason)))
	}
	if ev.Redirect != "" {
		fields = append(fields, zap.String("redirect", ev.Redirect))
	}
	s.logger.Info(logging.WithSessionID(ctx, ev.SessionID), "assistant event", fields...)
	return nil
}

// NATSSink publishes events as JSON to {prefix}.{variant}.{kind}.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink creates a sink publishing on nc.
func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "assistd.events"
	}
	return &NATSSink{nc: nc, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, ev.Variant, ev.Kind)
}

// Record publishes the event. Delivery is at most once.
func (s *NATSSink) Record(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.nc.Publish(s.Subject(ev), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// MultiSink fans an event out to several sinks. Every sink is tried.
type MultiSink []EventSink

// Record forwards to each sink and joins their errors.
func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ EventSink = NopSink{}
	_ EventSink = (*LogSink)(nil)
	_ EventSink = (*NATSSink)(nil)
	_ EventSink = MultiSink(nil)
)
