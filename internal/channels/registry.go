// Package channels delivers outbound conversation messages to chat
// platforms through a registry of per-platform adapters.
package channels

import (
	"context"

	"github.com/pulsekit/pulsekit/pkg/logging"
)

// Message is one outbound chat message.
type Message struct {
	Platform  string
	ChannelID string
	ThreadID  string
	Text      string
}

// Adapter sends messages on one chat platform.
type Adapter interface {
	Platform() string
	SendMessage(ctx context.Context, msg Message) error
}

// Registry routes outbound messages to the adapter registered for the
// message's platform. Delivery to an unregistered platform is skipped
// without error.
type Registry struct {
	adapters map[string]Adapter
	logger   *logging.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds an adapter, replacing any previous one for the same platform.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.adapters[a.Platform()] = a
}

// SendMessage delivers msg via the adapter for its platform.
func (r *Registry) SendMessage(ctx context.Context, msg Message) error {
	adapter, ok := r.adapters[msg.Platform]
	if !ok {
		r.logger.Debug("no adapter registered for platform, skipping delivery",
			"platform", msg.Platform, "channel_id", msg.ChannelID)
		return nil
	}
	return adapter.SendMessage(ctx, msg)
}
