package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to load, repair and persist events emitted without
// one.
const DefaultChannel = "editorstate"

// Config controls emission for an engine. Channel usually comes from
// EDITORSTATE_ACTIVITY_CHANNEL.
type Config struct {
	Enabled bool
	Channel string
}

// Emitter fans editor state events out to hooks. An engine built without hooks
// keeps a disabled emitter and loads skip the fan-out.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	normalized := hooks.Clone()
	return &Emitter{
		hooks:   normalized,
		enabled: cfg.Enabled && len(normalized) > 0,
		channel: channel,
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emit forwards the event to all hooks, applying default channel when missing.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}
