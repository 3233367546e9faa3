package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cachesync/internal/config"
)

func TestNewDisabledReturnsNilNotifier(t *testing.T) {
	n, err := New(config.NotifyConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	require.NoError(t, n.Publish(map[string]string{"outcome": "published"}))
	n.Close()
}

func TestNewUnreachableServerFails(t *testing.T) {
	_, err := New(config.NotifyConfig{Enabled: true, URL: "nats://127.0.0.1:1", Subject: "cachesync.runs"})
	require.Error(t, err)
}
