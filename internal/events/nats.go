// Package events publishes completion and selection events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
)

const (
	publisherName         = "EventPublisher"
	defaultConnectTimeout = 5 * time.Second
)

type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	ConnectTimeout time.Duration
}

type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

func NewNATSPublisher(cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	const op = "NewNATSPublisher"

	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	logger = logger.With(zap.String(logg.Layer, publisherName))

	conn, err := nats.Connect(cfg.URL,
		nats.Name("pagepilot"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String(logg.URL, c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "nats_connect_failed",
			apperr.MetaURL:    cfg.URL,
		})
	}

	logger.Info("Connected to NATS", zap.String(logg.URL, cfg.URL))

	return &NATSPublisher{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event entity.Event) error {
	const op = "Publish"

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(event)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "encode_failed",
		})
	}

	subject := Subject(p.prefix, event.Type)

	if err := p.conn.Publish(subject, data); err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "nats_publish_failed",
		})
	}

	p.logger.Debug("Event published", zap.String("subject", subject), zap.String(logg.RunID, event.ID))

	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Subject joins the configured prefix and the event type with a dot.
func Subject(prefix string, eventType entity.EventType) string {
	if prefix == "" {
		return string(eventType)
	}

	return fmt.Sprintf("%s.%s", prefix, eventType)
}

func Encode(event entity.Event) ([]byte, error) {
	return json.Marshal(event)
}
