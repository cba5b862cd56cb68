package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/metrics"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSPublisher publishes sync events for external consumers. Publication
// is fire-and-forget: a failed publish is logged and counted but never
// fails the sync operation that produced the event.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	connectTimeout := 10 * time.Second
	reconnectWait := 5 * time.Second
	maxReconnects := -1
	if config.AppConfig != nil {
		if config.AppConfig.NATS.Timeout > 0 {
			connectTimeout = time.Duration(config.AppConfig.NATS.Timeout) * time.Second
		}
		if config.AppConfig.NATS.ReconnectWait > 0 {
			reconnectWait = time.Duration(config.AppConfig.NATS.ReconnectWait) * time.Second
		}
		if config.AppConfig.NATS.MaxReconnects != 0 {
			maxReconnects = config.AppConfig.NATS.MaxReconnects
		}
	}

	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS connection lost")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	return &NATSPublisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}, nil
}

// PublishSyncEvent publishes one sync event under
// <prefix>.<direction>.<wordpress_object>.
func (p *NATSPublisher) PublishSyncEvent(event *models.SyncEvent) error {
	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, event.Direction, event.WordpressObject)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	metrics.NATSMessagesPublished.WithLabelValues(subject).Inc()
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		metrics.NATSConnectionStatus.Set(0)
	}
}
