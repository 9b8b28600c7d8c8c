package slack

import (
	"context"

	"github.com/pulsekit/pulsekit/internal/channels"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// PlatformID is the registry key for the Slack adapter.
const PlatformID = "slack"

// Adapter is the Slack channel adapter. Delivery is fire-and-forget from the
// conversation engine's point of view.
type Adapter struct {
	client *Client
	logger *logging.Logger
}

var _ channels.Adapter = (*Adapter)(nil)

// NewAdapter creates a Slack adapter around a Web API client.
func NewAdapter(client *Client, logger *logging.Logger) *Adapter {
	if client == nil {
		panic("slack: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{client: client, logger: logger}
}

// Platform identifies this adapter in the registry.
func (a *Adapter) Platform() string {
	return PlatformID
}

// SendMessage posts a message, threading it when the conversation has a thread.
func (a *Adapter) SendMessage(ctx context.Context, msg channels.Message) error {
	_, err := a.client.PostMessage(ctx, msg.ChannelID, msg.ThreadID, msg.Text)
	if err != nil {
		a.logger.Error("slack: failed to send message",
			"channel_id", msg.ChannelID,
			"error", err,
		)
	}
	return err
}
