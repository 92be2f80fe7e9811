package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// EventPublisher is implemented by Publisher and LocalBus.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// LocalBus delivers events in-process to registered handlers. It stands in
// for RabbitMQ when the broker is disabled, so producers and consumers are
// wired the same way in both modes.
type LocalBus struct {
	source   string
	logger   *logger.Logger
	mu       sync.RWMutex
	handlers map[string][]MessageHandler
}

// NewLocalBus creates an in-process bus
func NewLocalBus(source string, log *logger.Logger) *LocalBus {
	return &LocalBus{
		source:   source,
		logger:   log,
		handlers: make(map[string][]MessageHandler),
	}
}

// RegisterHandler adds a handler for eventType. Several handlers may share a type.
func (b *LocalBus) RegisterHandler(eventType string, handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish wraps data in an Event and runs every handler for its type
// synchronously. Handler errors are logged, not returned: a failing
// subscriber must not fail the producer, matching broker semantics.
func (b *LocalBus) Publish(ctx context.Context, eventType string, data interface{}) error {
	event, err := NewEvent(eventType, b.source, getCorrelationID(ctx), data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	b.mu.RLock()
	handlers := append([]MessageHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event_type", eventType).
				Str("event_id", event.ID).
				Msg("failed to process event")
		}
	}
	return nil
}
