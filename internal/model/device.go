// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeviceStatus represents the current status of a QuickCheck device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusError      DeviceStatus = "ERROR"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
	DeviceStatusHarvesting DeviceStatus = "HARVESTING"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringArray type for PostgreSQL JSONB string arrays
type StringArray []string

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, a)
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Device represents a registered QuickCheck device
type Device struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	DeviceID     string       `json:"device_id" db:"device_id"`
	Name         string       `json:"name" db:"name"`
	Host         string       `json:"host" db:"host"`
	Port         int          `json:"port" db:"port"`
	SerialNumber string       `json:"serial_number" db:"serial_number"`
	Capabilities StringArray  `json:"capabilities" db:"capabilities"`
	Location     string       `json:"location" db:"location"`
	Status       DeviceStatus `json:"status" db:"status"`
	LastSeen     *time.Time   `json:"last_seen" db:"last_seen"`
	ErrorInfo    *string      `json:"error_info" db:"error_info"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Addr returns the host:port endpoint of the device
func (d *Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// IsReachable reports whether the device answered its last identify exchange
func (d *Device) IsReachable() bool {
	return d.Status == DeviceStatusOnline || d.Status == DeviceStatusHarvesting
}
