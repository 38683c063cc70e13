// internal/model/harvest.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// HarvestStatus represents the status of a harvest run
type HarvestStatus string

const (
	HarvestStatusRunning HarvestStatus = "RUNNING"
	HarvestStatusSuccess HarvestStatus = "SUCCESS"
	HarvestStatusPartial HarvestStatus = "PARTIAL"
	HarvestStatusFailed  HarvestStatus = "FAILED"
)

// HarvestRun records one count-then-fetch-each-index retrieval against a
// device. Reported is the device's MEASCNT at the start of the run;
// Retrieved is the number of records that parsed; Skipped counts indexes
// lost to exhausted retries or parse failures.
type HarvestRun struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	DeviceID     uuid.UUID     `json:"device_id" db:"device_id"`
	Status       HarvestStatus `json:"status" db:"status"`
	Reported     int           `json:"reported" db:"reported"`
	Retrieved    int           `json:"retrieved" db:"retrieved"`
	Skipped      int           `json:"skipped" db:"skipped"`
	TriggeredBy  string        `json:"triggered_by" db:"triggered_by"` // api, poller, cli
	StartedAt    time.Time     `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at" db:"completed_at"`
	DurationMs   *int          `json:"duration_ms" db:"duration_ms"`
	ErrorMessage *string       `json:"error_message" db:"error_message"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// IsCompleted checks if the run reached a terminal status
func (h *HarvestRun) IsCompleted() bool {
	return h.Status == HarvestStatusSuccess ||
		h.Status == HarvestStatusPartial ||
		h.Status == HarvestStatusFailed
}
