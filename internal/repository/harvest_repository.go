// internal/repository/harvest_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcheck-service/internal/database"
	"quickcheck-service/internal/model"
)

// harvestRepository implements HarvestRepository
type harvestRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewHarvestRepository creates a new harvest repository
func NewHarvestRepository(db *database.DB, logger *zap.Logger) HarvestRepository {
	return &harvestRepository{db: db, logger: logger}
}

const harvestColumns = `id, device_id, status, reported, retrieved, skipped,
	triggered_by, started_at, completed_at, duration_ms, error_message, created_at`

// Create records a newly started harvest run
func (r *harvestRepository) Create(ctx context.Context, run *model.HarvestRun) error {
	query := `
		INSERT INTO harvest_runs (
			id, device_id, status, reported, retrieved, skipped,
			triggered_by, started_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.DeviceID, run.Status, run.Reported, run.Retrieved,
		run.Skipped, run.TriggeredBy, run.StartedAt, run.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create harvest run", zap.Error(err), zap.String("id", run.ID.String()))
		return fmt.Errorf("failed to create harvest run: %w", err)
	}
	return nil
}

// Finish stores the terminal state of a harvest run
func (r *harvestRepository) Finish(ctx context.Context, run *model.HarvestRun) error {
	query := `
		UPDATE harvest_runs SET
			status = $2, reported = $3, retrieved = $4, skipped = $5,
			completed_at = $6, duration_ms = $7, error_message = $8
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Status, run.Reported, run.Retrieved, run.Skipped,
		run.CompletedAt, run.DurationMs, run.ErrorMessage,
	)
	if err != nil {
		r.logger.Error("Failed to finish harvest run", zap.Error(err), zap.String("id", run.ID.String()))
		return fmt.Errorf("failed to finish harvest run: %w", err)
	}
	return nil
}

func (r *harvestRepository) scanRun(row interface{ Scan(...interface{}) error }) (*model.HarvestRun, error) {
	run := &model.HarvestRun{}
	err := row.Scan(
		&run.ID, &run.DeviceID, &run.Status, &run.Reported, &run.Retrieved,
		&run.Skipped, &run.TriggeredBy, &run.StartedAt, &run.CompletedAt,
		&run.DurationMs, &run.ErrorMessage, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetByID retrieves one harvest run
func (r *harvestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.HarvestRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM harvest_runs WHERE id = $1`, harvestColumns)

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("harvest run not found with id: %s", id)
		}
		return nil, fmt.Errorf("failed to get harvest run: %w", err)
	}
	return run, nil
}

// ListByDevice retrieves recent runs for one device, newest first
func (r *harvestRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*model.HarvestRun, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM harvest_runs WHERE device_id = $1 ORDER BY started_at DESC LIMIT $2`,
		harvestColumns,
	)
	return r.listRuns(ctx, query, deviceID, limit)
}

// ListRecent retrieves recent runs across devices, newest first
func (r *harvestRepository) ListRecent(ctx context.Context, limit int) ([]*model.HarvestRun, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM harvest_runs ORDER BY started_at DESC LIMIT $1`,
		harvestColumns,
	)
	return r.listRuns(ctx, query, limit)
}

func (r *harvestRepository) listRuns(ctx context.Context, query string, args ...interface{}) ([]*model.HarvestRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list harvest runs", zap.Error(err))
		return nil, fmt.Errorf("failed to list harvest runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.HarvestRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan harvest run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
