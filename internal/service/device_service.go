// internal/service/device_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcheck-service/internal/config"
	"quickcheck-service/internal/model"
	"quickcheck-service/internal/protocol"
	"quickcheck-service/internal/quickcheck"
	"quickcheck-service/internal/repository"
	"quickcheck-service/internal/utils"
)

// SessionFactory creates a transport session for a device endpoint.
// Swapped out in tests for a scripted session.
type SessionFactory func(cfg *protocol.UDPConfig, logger *zap.Logger) protocol.Session

func defaultSessionFactory(cfg *protocol.UDPConfig, logger *zap.Logger) protocol.Session {
	return protocol.NewUDPSession(cfg, logger)
}

// EventPublisher publishes device events to interested subscribers
type EventPublisher interface {
	Publish(event model.DeviceEvent)
}

// DeviceService handles QuickCheck device registry business logic
type DeviceService struct {
	deviceRepo repository.DeviceRepository
	config     *config.Config
	logger     *utils.ServiceLogger
	base       *zap.Logger
	newSession SessionFactory
}

// NewDeviceService creates a new device service instance
func NewDeviceService(
	deviceRepo repository.DeviceRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		deviceRepo: deviceRepo,
		config:     cfg,
		logger:     utils.NewServiceLogger(logger, "device-service"),
		base:       logger,
		newSession: defaultSessionFactory,
	}
}

// RegisterDeviceRequest is the payload for registering a device
type RegisterDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Name     string `json:"name"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
	Location string `json:"location"`
}

// RegisterDevice registers a new QuickCheck device
func (ds *DeviceService) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*model.Device, error) {
	if req.Port == 0 {
		req.Port = ds.config.Device.DefaultPort
	}
	if req.Port < 1 || req.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", req.Port)
	}

	existing, err := ds.deviceRepo.GetByDeviceID(ctx, req.DeviceID)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("device with ID %s already exists", req.DeviceID)
	}

	now := time.Now()
	device := &model.Device{
		ID:        uuid.New(),
		DeviceID:  req.DeviceID,
		Name:      req.Name,
		Host:      req.Host,
		Port:      req.Port,
		Location:  req.Location,
		Status:    model.DeviceStatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := ds.deviceRepo.Create(ctx, device); err != nil {
		ds.logger.Error("Failed to create device", zap.Error(err))
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	ds.logger.Info("Device registered",
		zap.String("device_id", device.DeviceID),
		zap.String("addr", device.Addr()),
	)
	return device, nil
}

// GetDevice retrieves a device by its device ID
func (ds *DeviceService) GetDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	return ds.deviceRepo.GetByDeviceID(ctx, deviceID)
}

// ListDevices retrieves all registered devices
func (ds *DeviceService) ListDevices(ctx context.Context) ([]*model.Device, error) {
	return ds.deviceRepo.List(ctx)
}

// DeleteDevice removes a device and its stored measurements
func (ds *DeviceService) DeleteDevice(ctx context.Context, deviceID string) error {
	device, err := ds.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return err
	}
	return ds.deviceRepo.Delete(ctx, device.ID)
}

// ConnectionTestResult reports the outcome of an identify round-trip
type ConnectionTestResult struct {
	Connected    bool     `json:"connected"`
	Serial       []string `json:"serial,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// TestDevice performs an identify round-trip against the device and
// refreshes its stored status and identity.
func (ds *DeviceService) TestDevice(ctx context.Context, deviceID string) (*ConnectionTestResult, error) {
	device, err := ds.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	deviceLogger := utils.NewDeviceLogger(ds.base, device.DeviceID, device.Addr())
	session := ds.newSession(&protocol.UDPConfig{
		Host:       device.Host,
		Port:       device.Port,
		Timeout:    ds.config.Device.ExchangeTimeout,
		BufferSize: ds.config.Device.BufferSize,
	}, deviceLogger.Logger)

	if err := session.Open(ctx); err != nil {
		deviceLogger.LogConnection("open", false, err)
		ds.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusError, errText(err))
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	deviceLogger.LogConnection("open", true, nil)

	client := quickcheck.NewClient(session, ds.retryPolicy(), deviceLogger.Logger)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		ds.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusError, errText(err))
		return nil, fmt.Errorf("identify exchange failed: %w", err)
	}

	result := &ConnectionTestResult{Connected: client.Connected()}
	if !client.Connected() {
		ds.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusOffline, nil)
		return result, nil
	}

	result.Serial = client.Serial()
	if caps, err := client.Capabilities(ctx); err == nil {
		result.Capabilities = caps
	}

	ds.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusOnline, nil)
	ds.deviceRepo.UpdateIdentity(ctx, device.ID, strings.Join(result.Serial, ";"), result.Capabilities)
	ds.deviceRepo.UpdateLastSeen(ctx, device.ID, time.Now())

	return result, nil
}

func (ds *DeviceService) retryPolicy() quickcheck.RetryPolicy {
	return quickcheck.RetryPolicy{
		MaxRetries: ds.config.Device.MaxRetries,
		Delay:      ds.config.Device.RetryDelay,
	}
}

func errText(err error) *string {
	s := err.Error()
	return &s
}
