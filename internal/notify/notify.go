// Package notify publishes run outcomes to NATS for external consumers.
// Notification failures are logged warnings; they never affect the run.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/cachesync/internal/config"
)

// Notifier publishes run outcome messages to a NATS subject.
type Notifier struct {
	conn    *nats.Conn
	subject string
}

// New connects to the configured NATS server. Returns nil (no notifier)
// when notification is disabled.
func New(cfg config.NotifyConfig) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.URL, nats.Name("cachesync"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Notifier{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends the payload as JSON. Safe on a nil notifier.
func (n *Notifier) Publish(payload any) error {
	if n == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	slog.Debug("Published run outcome", slog.String("subject", n.subject))
	return nil
}

// Close drains the connection. Safe on a nil notifier.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
