// internal/service/device_service_test.go
package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"quickcheck-service/internal/model"
	"quickcheck-service/internal/protocol"
	"quickcheck-service/internal/quickcheck"
)

func newDeviceServiceForTest(t *testing.T, repo *fakeDeviceRepo, session protocol.Session) *DeviceService {
	t.Helper()
	ds := NewDeviceService(repo, testConfig(), zaptest.NewLogger(t))
	ds.newSession = func(cfg *protocol.UDPConfig, logger *zap.Logger) protocol.Session {
		return session
	}
	return ds
}

func TestRegisterDeviceDefaultsPort(t *testing.T) {
	repo := newFakeDeviceRepo()
	ds := newDeviceServiceForTest(t, repo, nil)

	device, err := ds.RegisterDevice(context.Background(), &RegisterDeviceRequest{
		DeviceID: "qc-bunker-1",
		Name:     "QuickCheck bunker 1",
		Host:     "192.0.2.10",
	})
	require.NoError(t, err)

	assert.Equal(t, 8123, device.Port)
	assert.Equal(t, model.DeviceStatusOffline, device.Status)
	assert.NotEqual(t, "", device.ID.String())

	stored, err := repo.GetByDeviceID(context.Background(), "qc-bunker-1")
	require.NoError(t, err)
	assert.Equal(t, device.ID, stored.ID)
}

func TestRegisterDeviceRejectsInvalidPort(t *testing.T) {
	ds := newDeviceServiceForTest(t, newFakeDeviceRepo(), nil)

	_, err := ds.RegisterDevice(context.Background(), &RegisterDeviceRequest{
		DeviceID: "qc-bunker-1",
		Host:     "192.0.2.10",
		Port:     70000,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestRegisterDeviceRejectsDuplicate(t *testing.T) {
	repo := newFakeDeviceRepo(testDevice())
	ds := newDeviceServiceForTest(t, repo, nil)

	_, err := ds.RegisterDevice(context.Background(), &RegisterDeviceRequest{
		DeviceID: "qc-bunker-1",
		Host:     "192.0.2.99",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestDeleteDeviceByExternalID(t *testing.T) {
	device := testDevice()
	repo := newFakeDeviceRepo(device)
	ds := newDeviceServiceForTest(t, repo, nil)

	require.NoError(t, ds.DeleteDevice(context.Background(), device.DeviceID))

	_, err := repo.GetByID(context.Background(), device.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.ErrorIs(t, ds.DeleteDevice(context.Background(), "qc-missing"), sql.ErrNoRows)
}

func TestTestDeviceOnline(t *testing.T) {
	device := testDevice()
	repo := newFakeDeviceRepo(device)
	session := newFakeSession(map[string]string{
		quickcheck.CmdSerial: "SER;123456",
		quickcheck.CmdKey:    "KEY;MEAS;ADMIN",
	})
	ds := newDeviceServiceForTest(t, repo, session)

	result, err := ds.TestDevice(context.Background(), device.DeviceID)
	require.NoError(t, err)

	assert.True(t, result.Connected)
	assert.Equal(t, []string{"123456"}, result.Serial)
	assert.Equal(t, []string{"MEAS", "ADMIN"}, result.Capabilities)

	assert.Equal(t, model.DeviceStatusOnline, device.Status)
	assert.Equal(t, "123456", device.SerialNumber)
	assert.Equal(t, model.StringArray{"MEAS", "ADMIN"}, device.Capabilities)
	require.NotNil(t, device.LastSeen)
	assert.True(t, session.closed)
}

func TestTestDeviceUnreachable(t *testing.T) {
	device := testDevice()
	device.Status = model.DeviceStatusOnline
	repo := newFakeDeviceRepo(device)
	// Nothing scripted, so every exchange times out.
	session := newFakeSession(nil)
	ds := newDeviceServiceForTest(t, repo, session)

	result, err := ds.TestDevice(context.Background(), device.DeviceID)
	require.NoError(t, err)

	assert.False(t, result.Connected)
	assert.Empty(t, result.Serial)
	assert.Equal(t, model.DeviceStatusOffline, device.Status)
}

func TestTestDeviceUnknown(t *testing.T) {
	ds := newDeviceServiceForTest(t, newFakeDeviceRepo(), newFakeSession(nil))

	_, err := ds.TestDevice(context.Background(), "qc-missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
