// Package events publishes conversation lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/pkg/logger"
)

const subjectPrefix = "codechat.events."

// Publisher emits best-effort JSON events. A nil Publisher is valid and
// publishes nothing, so the service runs without a broker.
type Publisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// Connect establishes a NATS connection for event publishing.
func Connect(url, token string, log *logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("codechat-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("connected to NATS", zap.String("url", url))
	return &Publisher{conn: conn, logger: log}, nil
}

// Publish emits the event on codechat.events.<type>. Failures are
// logged, never propagated: the database is the system of record.
func (p *Publisher) Publish(ctx context.Context, event *model.Event) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}

	if err := p.conn.Publish(subjectPrefix+string(event.Type), data); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// IsConnected reports broker connectivity for readiness checks.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
