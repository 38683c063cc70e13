// internal/handler/device_handler.go
package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quickcheck-service/internal/service"
	"quickcheck-service/internal/utils"
)

// DeviceHandler handles device-related HTTP requests
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.POST("", h.RegisterDevice)
		devices.GET("", h.ListDevices)

		deviceRoutes := devices.Group("/:device_id")
		{
			deviceRoutes.GET("", h.GetDevice)
			deviceRoutes.DELETE("", h.DeleteDevice)
			deviceRoutes.POST("/test", h.TestDevice)
		}
	}
}

// RegisterDevice registers a new device
// @Summary Register a new device
// @Description Register a QuickCheck device endpoint for harvesting
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body service.RegisterDeviceRequest true "Device registration request"
// @Success 201 {object} utils.APIResponse{data=model.Device} "Device registered successfully"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Device already exists"
// @Router /devices [post]
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req service.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	device, err := h.deviceService.RegisterDevice(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to register device", zap.Error(err))
		utils.ErrorResponse(c, http.StatusConflict, "Failed to register device", err)
		return
	}

	h.logger.Info("Device registered successfully", zap.String("device_id", device.DeviceID))
	utils.SuccessResponse(c, http.StatusCreated, "Device registered successfully", device)
}

// ListDevices lists all registered devices
// @Summary List devices
// @Description Get all registered QuickCheck devices
// @Tags Devices
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.Device} "Devices retrieved successfully"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.deviceService.ListDevices(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list devices", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list devices", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", devices)
}

// GetDevice retrieves a single device
// @Summary Get device
// @Description Get a registered device by its device ID
// @Tags Devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.Device} "Device retrieved successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{device_id} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	deviceID := c.Param("device_id")

	device, err := h.deviceService.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sql.ErrNoRows) {
			status = http.StatusNotFound
		}
		utils.ErrorResponse(c, status, "Device not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", device)
}

// DeleteDevice removes a device
// @Summary Delete device
// @Description Remove a device and its stored measurements
// @Tags Devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Device deleted successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{device_id} [delete]
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	deviceID := c.Param("device_id")

	if err := h.deviceService.DeleteDevice(c.Request.Context(), deviceID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sql.ErrNoRows) {
			status = http.StatusNotFound
		}
		utils.ErrorResponse(c, status, "Failed to delete device", err)
		return
	}

	h.logger.Info("Device deleted", zap.String("device_id", deviceID))
	utils.SuccessResponse(c, http.StatusOK, "Device deleted successfully", nil)
}

// TestDevice performs an identify round-trip against the device
// @Summary Test device connection
// @Description Send an identify request to the device and report the outcome
// @Tags Devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=service.ConnectionTestResult} "Connection test completed"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Failure 502 {object} utils.APIResponse "Device unreachable"
// @Router /devices/{device_id}/test [post]
func (h *DeviceHandler) TestDevice(c *gin.Context) {
	deviceID := c.Param("device_id")

	result, err := h.deviceService.TestDevice(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
			return
		}
		utils.ErrorResponse(c, http.StatusBadGateway, "Connection test failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Connection test completed", result)
}
