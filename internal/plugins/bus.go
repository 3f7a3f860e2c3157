package plugins

import (
	"context"
	"fmt"
	"log/slog"

	"vpo/internal/logging"
)

// Bus dispatches events to subscribed plugins synchronously.
type Bus struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBus builds a bus over a registry.
func NewBus(registry *Registry, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "plugins"),
	}
}

// Registry exposes the underlying registry.
func (b *Bus) Registry() *Registry { return b.registry }

// Dispatch delivers the event to every enabled subscriber in turn. A failing
// or panicking plugin is logged and does not stop the remaining subscribers;
// the error count is returned for callers that surface warnings.
func (b *Bus) Dispatch(ctx context.Context, name string, payload any) int {
	if b == nil || b.registry == nil {
		return 0
	}
	event := Event{Name: name, Payload: payload}
	failures := 0
	for _, plugin := range b.registry.subscribers(name) {
		if err := b.deliver(plugin, event); err != nil {
			failures++
			b.logger.WarnContext(ctx, "plugin event handler failed",
				logging.String("plugin", plugin.Manifest.Name),
				logging.String("event", name),
				logging.Error(err))
		}
	}
	return failures
}

// deliver invokes one handler with panic recovery.
func (b *Bus) deliver(plugin *LoadedPlugin, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return plugin.Handler.HandleEvent(event)
}
