// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected   EventType = "DEVICE_CONNECTED"
	EventDeviceUnreachable EventType = "DEVICE_UNREACHABLE"
	EventDeviceError       EventType = "DEVICE_ERROR"
	EventHarvestStarted    EventType = "HARVEST_STARTED"
	EventHarvestProgress   EventType = "HARVEST_PROGRESS"
	EventHarvestCompleted  EventType = "HARVEST_COMPLETED"
	EventHarvestFailed     EventType = "HARVEST_FAILED"
	EventStatusChange      EventType = "STATUS_CHANGE"
)

// DeviceEvent represents an event in the system. DeviceID is the
// external device identifier, not the row ID.
type DeviceEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	DeviceID  string     `json:"device_id"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// HarvestProgressEventData reports progress of a running harvest
type HarvestProgressEventData struct {
	HarvestID uuid.UUID `json:"harvest_id"`
	Index     int       `json:"index"`
	Reported  int       `json:"reported"`
	Retrieved int       `json:"retrieved"`
	Skipped   int       `json:"skipped"`
}
