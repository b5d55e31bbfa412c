// Package notify publishes run summaries over NATS JetStream so downstream
// consumers (the publish step, dashboards) can react to completed runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/reportbal/internal/build"
	"git.home.luguber.info/inful/reportbal/internal/config"
)

// NATSPublisher implements build.Notifier over a JetStream stream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	stream  string
}

// NewNATSPublisher connects to NATS and makes sure the run stream exists.
func NewNATSPublisher(cfg config.NotifyConfig) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("run notifications are disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &NATSPublisher{conn: conn, js: js, subject: cfg.Subject, stream: cfg.Stream}
	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure run stream: %w", err)
	}

	slog.Info("NATS run publisher initialized",
		"url", cfg.URL, "subject", cfg.Subject, "stream", cfg.Stream)
	return p, nil
}

func (p *NATSPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, p.stream); err == nil {
		return nil
	}
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     p.stream,
		Subjects: []string{p.subject},
		Storage:  jetstream.FileStorage,
	})
	return err
}

// PublishRun sends one run report. Implements build.Notifier.
func (p *NATSPublisher) PublishRun(ctx context.Context, report build.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, payload); err != nil {
		return fmt.Errorf("publish run report: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
