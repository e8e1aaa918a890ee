package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each event to the service log.
type LogSink struct {
	Logger interface {
		Info(msg string, keysAndValues ...interface{})
	}
}

func (s LogSink) Deliver(_ context.Context, event Event) error {
	s.Logger.Info("progress",
		"request_id", event.RequestID,
		"seq", event.Seq,
		"attempt", event.AttemptIndex,
		"remaining", event.RemainingAttempts,
		"percent", event.Percent,
		"final", event.Final,
		"message", event.Message,
	)
	return nil
}

type NATSConfig struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
}

// NATSSink publishes events as JSON on <subject>.<request id>.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "mcp_openai.progress"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("mcp-openai"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSSink{conn: conn, subject: cfg.Subject}, nil
}

func (s *NATSSink) Deliver(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	return s.conn.Publish(Subject(s.subject, event.RequestID), data)
}

func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}

// Subject builds the per-request subject. Request ids are ULIDs, so they
// never contain the NATS token separator.
func Subject(base, requestID string) string {
	return base + "." + requestID
}
