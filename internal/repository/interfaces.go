// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"quickcheck-service/internal/model"
)

// DeviceRepository defines device data access operations
type DeviceRepository interface {
	Create(ctx context.Context, device *model.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	List(ctx context.Context) ([]*model.Device, error)
	Update(ctx context.Context, device *model.Device) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeviceStatus, errorInfo *string) error
	UpdateIdentity(ctx context.Context, id uuid.UUID, serialNumber string, capabilities model.StringArray) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MeasurementFilter narrows measurement queries
type MeasurementFilter struct {
	DeviceID      *uuid.UUID
	TreatmentUnit string
	From          *time.Time
	To            *time.Time
	Limit         int
}

// MeasurementRepository defines measurement data access operations
type MeasurementRepository interface {
	// Upsert stores a measurement, replacing an earlier copy of the same
	// device record. Harvests re-read the device's whole store, so replays
	// of already-known records are the normal case.
	Upsert(ctx context.Context, m *model.StoredMeasurement) error
	List(ctx context.Context, filter MeasurementFilter) ([]*model.StoredMeasurement, error)
	CountByDevice(ctx context.Context, deviceID uuid.UUID) (int, error)
}

// HarvestRepository defines harvest run data access operations
type HarvestRepository interface {
	Create(ctx context.Context, run *model.HarvestRun) error
	Finish(ctx context.Context, run *model.HarvestRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.HarvestRun, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*model.HarvestRun, error)
	ListRecent(ctx context.Context, limit int) ([]*model.HarvestRun, error)
}
