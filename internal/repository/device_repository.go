// internal/repository/device_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcheck-service/internal/database"
	"quickcheck-service/internal/model"
)

// deviceRepository implements DeviceRepository
type deviceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *database.DB, logger *zap.Logger) DeviceRepository {
	return &deviceRepository{db: db, logger: logger}
}

const deviceColumns = `id, device_id, name, host, port, serial_number, capabilities,
	location, status, last_seen, error_info, created_at, updated_at`

// Create creates a new device
func (r *deviceRepository) Create(ctx context.Context, device *model.Device) error {
	query := `
		INSERT INTO devices (
			id, device_id, name, host, port, serial_number, capabilities,
			location, status, error_info, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.DeviceID, device.Name, device.Host, device.Port,
		device.SerialNumber, device.Capabilities, device.Location,
		device.Status, device.ErrorInfo, device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create device", zap.Error(err), zap.String("device_id", device.DeviceID))
		return fmt.Errorf("failed to create device: %w", err)
	}

	r.logger.Info("Device created", zap.String("device_id", device.DeviceID))
	return nil
}

func (r *deviceRepository) scanDevice(row interface{ Scan(...interface{}) error }) (*model.Device, error) {
	device := &model.Device{}
	err := row.Scan(
		&device.ID, &device.DeviceID, &device.Name, &device.Host, &device.Port,
		&device.SerialNumber, &device.Capabilities, &device.Location,
		&device.Status, &device.LastSeen, &device.ErrorInfo,
		&device.CreatedAt, &device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return device, nil
}

// GetByID retrieves a device by its UUID
func (r *deviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE id = $1`, deviceColumns)

	device, err := r.scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("device not found with id: %s", id)
		}
		r.logger.Error("Failed to get device by ID", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// GetByDeviceID retrieves a device by its device ID
func (r *deviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE device_id = $1`, deviceColumns)

	device, err := r.scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("device not found with device_id: %s", deviceID)
		}
		r.logger.Error("Failed to get device by device_id", zap.Error(err), zap.String("device_id", deviceID))
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// List retrieves all registered devices
func (r *deviceRepository) List(ctx context.Context) ([]*model.Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices ORDER BY device_id`, deviceColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list devices", zap.Error(err))
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		device, err := r.scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// Update updates an existing device
func (r *deviceRepository) Update(ctx context.Context, device *model.Device) error {
	query := `
		UPDATE devices SET
			name = $2, host = $3, port = $4, location = $5, updated_at = $6
		WHERE id = $1
	`

	device.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		device.ID, device.Name, device.Host, device.Port, device.Location, device.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update device", zap.Error(err), zap.String("device_id", device.DeviceID))
		return fmt.Errorf("failed to update device: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("device not found with id: %s", device.ID)
	}
	return nil
}

// UpdateStatus updates a device's status and error info
func (r *deviceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeviceStatus, errorInfo *string) error {
	query := `UPDATE devices SET status = $2, error_info = $3, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, status, errorInfo); err != nil {
		r.logger.Error("Failed to update device status", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to update device status: %w", err)
	}
	return nil
}

// UpdateIdentity stores what the device reported about itself
func (r *deviceRepository) UpdateIdentity(ctx context.Context, id uuid.UUID, serialNumber string, capabilities model.StringArray) error {
	query := `UPDATE devices SET serial_number = $2, capabilities = $3, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, serialNumber, capabilities); err != nil {
		r.logger.Error("Failed to update device identity", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to update device identity: %w", err)
	}
	return nil
}

// UpdateLastSeen records the last successful exchange time
func (r *deviceRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := `UPDATE devices SET last_seen = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, seenAt); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// Delete removes a device and its measurements
func (r *deviceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete device", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to delete device: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("device not found with id: %s", id)
	}

	r.logger.Info("Device deleted", zap.String("id", id.String()))
	return nil
}
