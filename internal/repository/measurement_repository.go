// internal/repository/measurement_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcheck-service/internal/database"
	"quickcheck-service/internal/model"
)

// measurementRepository implements MeasurementRepository
type measurementRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewMeasurementRepository creates a new measurement repository
func NewMeasurementRepository(db *database.DB, logger *zap.Logger) MeasurementRepository {
	return &measurementRepository{db: db, logger: logger}
}

// Upsert stores a measurement keyed by device and device-side record id
func (r *measurementRepository) Upsert(ctx context.Context, m *model.StoredMeasurement) error {
	query := `
		INSERT INTO measurements (
			id, device_id, record_id, measured_at, treatment_unit, energy, fields, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_id, record_id) DO UPDATE SET
			measured_at = EXCLUDED.measured_at,
			treatment_unit = EXCLUDED.treatment_unit,
			energy = EXCLUDED.energy,
			fields = EXCLUDED.fields
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.DeviceID, m.RecordID, m.MeasuredAt,
		m.TreatmentUnit, m.Energy, m.Fields, m.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert measurement",
			zap.Error(err),
			zap.String("device_id", m.DeviceID.String()),
			zap.Int("record_id", m.RecordID),
		)
		return fmt.Errorf("failed to upsert measurement: %w", err)
	}
	return nil
}

// List retrieves measurements matching the filter, oldest first
func (r *measurementRepository) List(ctx context.Context, filter MeasurementFilter) ([]*model.StoredMeasurement, error) {
	var (
		conditions []string
		args       []interface{}
	)

	addArg := func(condition string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.DeviceID != nil {
		addArg("device_id = $%d", *filter.DeviceID)
	}
	if filter.TreatmentUnit != "" {
		addArg("treatment_unit = $%d", filter.TreatmentUnit)
	}
	if filter.From != nil {
		addArg("measured_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		addArg("measured_at < $%d", *filter.To)
	}

	query := `
		SELECT id, device_id, record_id, measured_at, treatment_unit, energy, fields, created_at
		FROM measurements
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY treatment_unit, energy, measured_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list measurements", zap.Error(err))
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*model.StoredMeasurement
	for rows.Next() {
		m := &model.StoredMeasurement{}
		err := rows.Scan(
			&m.ID, &m.DeviceID, &m.RecordID, &m.MeasuredAt,
			&m.TreatmentUnit, &m.Energy, &m.Fields, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

// CountByDevice counts stored measurements for a device
func (r *measurementRepository) CountByDevice(ctx context.Context, deviceID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurements WHERE device_id = $1`, deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return count, nil
}
