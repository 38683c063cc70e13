// internal/service/harvest_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcheck-service/internal/config"
	"quickcheck-service/internal/metrics"
	"quickcheck-service/internal/model"
	"quickcheck-service/internal/protocol"
	"quickcheck-service/internal/quickcheck"
	"quickcheck-service/internal/repository"
	"quickcheck-service/internal/utils"
)

// HarvestService orchestrates measurement retrieval from QuickCheck devices
type HarvestService struct {
	deviceRepo  repository.DeviceRepository
	measRepo    repository.MeasurementRepository
	harvestRepo repository.HarvestRepository
	config      *config.Config
	logger      *utils.ServiceLogger
	base        *zap.Logger
	publisher   EventPublisher
	metrics     *metrics.AppMetrics
	newSession  SessionFactory
}

// NewHarvestService creates a new harvest service instance
func NewHarvestService(
	deviceRepo repository.DeviceRepository,
	measRepo repository.MeasurementRepository,
	harvestRepo repository.HarvestRepository,
	cfg *config.Config,
	logger *zap.Logger,
	publisher EventPublisher,
	appMetrics *metrics.AppMetrics,
) *HarvestService {
	return &HarvestService{
		deviceRepo:  deviceRepo,
		measRepo:    measRepo,
		harvestRepo: harvestRepo,
		config:      cfg,
		logger:      utils.NewServiceLogger(logger, "harvest-service"),
		base:        logger,
		publisher:   publisher,
		metrics:     appMetrics,
		newSession:  defaultSessionFactory,
	}
}

// HarvestDevice retrieves every measurement the device reports and stores
// new records. Indices the device never answered for are recorded as
// skipped rather than failing the whole run.
func (hs *HarvestService) HarvestDevice(ctx context.Context, deviceID string, triggeredBy string) (*model.HarvestRun, error) {
	device, err := hs.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	run := &model.HarvestRun{
		ID:          uuid.New(),
		DeviceID:    device.ID,
		Status:      model.HarvestStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now(),
		CreatedAt:   time.Now(),
	}
	if err := hs.harvestRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create harvest run: %w", err)
	}

	harvestLogger := utils.NewHarvestLogger(hs.base, run.ID.String(), device.DeviceID)
	harvestLogger.Start(zap.String("addr", device.Addr()))
	hs.publish(model.EventHarvestStarted, device, map[string]interface{}{
		"harvest_id": run.ID.String(),
	})

	hs.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusConnecting, nil)

	result, harvestErr := hs.runHarvest(ctx, device, run, harvestLogger)
	if harvestErr != nil {
		hs.finishFailed(ctx, device, run, harvestErr, harvestLogger)
		return run, harvestErr
	}

	retrieved := hs.persist(ctx, device, result)

	now := time.Now()
	durationMs := int(now.Sub(run.StartedAt).Milliseconds())
	run.Status = model.HarvestStatusSuccess
	if len(result.Skipped) > 0 {
		run.Status = model.HarvestStatusPartial
	}
	run.Reported = result.Reported
	run.Retrieved = retrieved
	run.Skipped = len(result.Skipped)
	run.CompletedAt = &now
	run.DurationMs = &durationMs

	if err := hs.harvestRepo.Finish(ctx, run); err != nil {
		hs.logger.Error("Failed to record harvest result", zap.Error(err))
	}

	hs.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusOnline, nil)
	hs.deviceRepo.UpdateLastSeen(ctx, device.ID, now)

	harvestLogger.Success(
		zap.Int("reported", run.Reported),
		zap.Int("retrieved", run.Retrieved),
		zap.Int("skipped", run.Skipped),
	)
	hs.publish(model.EventHarvestCompleted, device, map[string]interface{}{
		"harvest_id": run.ID.String(),
		"status":     string(run.Status),
		"reported":   run.Reported,
		"retrieved":  run.Retrieved,
		"skipped":    run.Skipped,
	})
	if hs.metrics != nil {
		hs.metrics.HarvestsTotal.WithLabelValues(string(run.Status)).Inc()
		hs.metrics.RecordsRetrieved.Add(float64(run.Retrieved))
		hs.metrics.RecordsSkipped.Add(float64(run.Skipped))
		hs.metrics.HarvestDuration.Observe(now.Sub(run.StartedAt).Seconds())
	}

	return run, nil
}

func (hs *HarvestService) runHarvest(
	ctx context.Context,
	device *model.Device,
	run *model.HarvestRun,
	harvestLogger *utils.HarvestLogger,
) (*quickcheck.HarvestResult, error) {
	deviceLogger := utils.NewDeviceLogger(hs.base, device.DeviceID, device.Addr())
	session := hs.newSession(&protocol.UDPConfig{
		Host:       device.Host,
		Port:       device.Port,
		Timeout:    hs.config.Device.ExchangeTimeout,
		BufferSize: hs.config.Device.BufferSize,
	}, deviceLogger.Logger)

	if err := session.Open(ctx); err != nil {
		deviceLogger.LogConnection("open", false, err)
		return nil, fmt.Errorf("failed to open session to %s: %w", device.Addr(), err)
	}
	deviceLogger.LogConnection("open", true, nil)
	defer hs.observeSession(session)

	client := quickcheck.NewClient(session, quickcheck.RetryPolicy{
		MaxRetries: hs.config.Device.MaxRetries,
		Delay:      hs.config.Device.RetryDelay,
	}, deviceLogger.Logger)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("identify exchange failed: %w", err)
	}
	if !client.Connected() {
		hs.publish(model.EventDeviceUnreachable, device, nil)
		return nil, fmt.Errorf("device %s did not identify itself", device.DeviceID)
	}

	hs.publish(model.EventDeviceConnected, device, map[string]interface{}{
		"serial": client.Serial(),
	})
	if caps, err := client.Capabilities(ctx); err == nil {
		hs.deviceRepo.UpdateIdentity(ctx, device.ID, strings.Join(client.Serial(), ";"), caps)
	}

	hs.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusHarvesting, nil)

	return client.Harvest(ctx, func(p quickcheck.HarvestProgress) {
		harvestLogger.Progress(p.Index, p.Reported)
		hs.publish(model.EventHarvestProgress, device, map[string]interface{}{
			"harvest_id": run.ID.String(),
			"index":      p.Index,
			"reported":   p.Reported,
			"retrieved":  p.Retrieved,
			"skipped":    p.Skipped,
		})
	})
}

// persist stores each harvested record, keyed by device and record ID so
// re-harvesting the device history is idempotent.
func (hs *HarvestService) persist(ctx context.Context, device *model.Device, result *quickcheck.HarvestResult) int {
	retrieved := 0
	for _, m := range result.Records {
		stored := &model.StoredMeasurement{
			ID:            uuid.New(),
			DeviceID:      device.ID,
			RecordID:      m.MD.ID,
			MeasuredAt:    m.MD.DateTime,
			TreatmentUnit: m.Task.TreatmentUnit,
			Energy:        m.Task.Energy,
			Fields:        model.JSONObject(m.Fields()),
			CreatedAt:     time.Now(),
		}
		if err := hs.measRepo.Upsert(ctx, stored); err != nil {
			hs.logger.Error("Failed to store measurement",
				zap.String("device_id", device.DeviceID),
				zap.Int("record_id", m.MD.ID),
				zap.Error(err),
			)
			continue
		}
		retrieved++
	}
	return retrieved
}

func (hs *HarvestService) finishFailed(
	ctx context.Context,
	device *model.Device,
	run *model.HarvestRun,
	harvestErr error,
	harvestLogger *utils.HarvestLogger,
) {
	now := time.Now()
	durationMs := int(now.Sub(run.StartedAt).Milliseconds())
	msg := harvestErr.Error()
	run.Status = model.HarvestStatusFailed
	run.CompletedAt = &now
	run.DurationMs = &durationMs
	run.ErrorMessage = &msg

	if err := hs.harvestRepo.Finish(ctx, run); err != nil {
		hs.logger.Error("Failed to record harvest failure", zap.Error(err))
	}
	hs.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusError, &msg)

	harvestLogger.Error(harvestErr)
	hs.publish(model.EventHarvestFailed, device, map[string]interface{}{
		"harvest_id": run.ID.String(),
		"error":      msg,
	})
	if hs.metrics != nil {
		hs.metrics.HarvestsTotal.WithLabelValues(string(model.HarvestStatusFailed)).Inc()
		hs.metrics.HarvestDuration.Observe(now.Sub(run.StartedAt).Seconds())
	}
}

// observeSession folds one session's transfer counters into the exchange
// metrics. Sessions are per-harvest, so their stats are deltas.
func (hs *HarvestService) observeSession(session protocol.Session) {
	if hs.metrics == nil {
		return
	}
	stats := session.Stats()
	hs.metrics.DeviceExchanges.Add(float64(stats.ExchangeCount))
	hs.metrics.DeviceTimeouts.Add(float64(stats.TimeoutCount))
	hs.metrics.DeviceErrors.Add(float64(stats.ErrorCount))
}

// HarvestAll harvests every registered device in sequence. Used by the
// background poller; per-device failures are logged and do not stop the
// sweep.
func (hs *HarvestService) HarvestAll(ctx context.Context, triggeredBy string) {
	devices, err := hs.deviceRepo.List(ctx)
	if err != nil {
		hs.logger.Error("Failed to list devices for harvest sweep", zap.Error(err))
		return
	}
	for _, device := range devices {
		if ctx.Err() != nil {
			return
		}
		if _, err := hs.HarvestDevice(ctx, device.DeviceID, triggeredBy); err != nil {
			hs.logger.Warn("Harvest sweep device failed",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}
}

// GetHarvest retrieves a harvest run by ID
func (hs *HarvestService) GetHarvest(ctx context.Context, id uuid.UUID) (*model.HarvestRun, error) {
	return hs.harvestRepo.GetByID(ctx, id)
}

// ListRecentHarvests retrieves the most recent harvest runs
func (hs *HarvestService) ListRecentHarvests(ctx context.Context, limit int) ([]*model.HarvestRun, error) {
	return hs.harvestRepo.ListRecent(ctx, limit)
}

// ListDeviceHarvests retrieves harvest runs for a single device
func (hs *HarvestService) ListDeviceHarvests(ctx context.Context, deviceID string, limit int) ([]*model.HarvestRun, error) {
	device, err := hs.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return hs.harvestRepo.ListByDevice(ctx, device.ID, limit)
}

// ListMeasurements retrieves stored measurements matching the filter
func (hs *HarvestService) ListMeasurements(ctx context.Context, filter repository.MeasurementFilter) ([]*model.StoredMeasurement, error) {
	return hs.measRepo.List(ctx, filter)
}

func (hs *HarvestService) publish(eventType model.EventType, device *model.Device, data map[string]interface{}) {
	if hs.publisher == nil {
		return
	}
	severity := "INFO"
	switch eventType {
	case model.EventDeviceUnreachable:
		severity = "WARNING"
	case model.EventDeviceError, model.EventHarvestFailed:
		severity = "ERROR"
	}
	hs.publisher.Publish(model.DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		DeviceID:  device.DeviceID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "harvest-service",
		Severity:  severity,
	})
}
