// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"quickcheck-service/internal/model"
)

// topicAll receives every event regardless of type.
const topicAll = "*"

// EventBus manages device event distribution
type EventBus struct {
	subscribers map[string][]chan model.DeviceEvent
	events      chan model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan model.DeviceEvent),
		events:      make(chan model.DeviceEvent, 1000),
		logger:      logger,
	}
}

// Start starts the event bus
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.distributeEvent(event)
	}
}

// Publish publishes an event. Never blocks the caller.
func (eb *EventBus) Publish(event model.DeviceEvent) {
	select {
	case eb.events <- event:
	default:
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.EventType)),
				zap.String("device_id", event.DeviceID),
			)
		}
	}
}

// Subscribe subscribes to events of a specific type, or every event
// when the topic is "*".
func (eb *EventBus) Subscribe(topic string) <-chan model.DeviceEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.DeviceEvent, 100)
	eb.subscribers[topic] = append(eb.subscribers[topic], subscriber)
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.DeviceEvent) {
	eb.mutex.RLock()
	subscribers := append([]chan model.DeviceEvent{},
		eb.subscribers[string(event.EventType)]...)
	subscribers = append(subscribers, eb.subscribers[topicAll]...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
