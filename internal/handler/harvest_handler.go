// internal/handler/harvest_handler.go
package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcheck-service/internal/repository"
	"quickcheck-service/internal/service"
	"quickcheck-service/internal/utils"
)

// HarvestHandler handles harvest and measurement HTTP requests
type HarvestHandler struct {
	harvestService *service.HarvestService
	logger         *utils.ServiceLogger
}

// NewHarvestHandler creates a new harvest handler
func NewHarvestHandler(harvestService *service.HarvestService, logger *zap.Logger) *HarvestHandler {
	return &HarvestHandler{
		harvestService: harvestService,
		logger:         utils.NewServiceLogger(logger, "harvest-handler"),
	}
}

// RegisterRoutes registers harvest-related routes
func (h *HarvestHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/devices/:device_id/harvest", h.TriggerHarvest)
	router.GET("/devices/:device_id/harvests", h.ListDeviceHarvests)

	harvests := router.Group("/harvests")
	{
		harvests.GET("", h.ListRecentHarvests)
		harvests.GET("/:id", h.GetHarvest)
	}

	router.GET("/measurements", h.ListMeasurements)
}

// TriggerHarvest runs a harvest against the device
// @Summary Trigger a harvest
// @Description Retrieve every measurement the device reports and store new records
// @Tags Harvests
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.HarvestRun} "Harvest completed"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Failure 502 {object} utils.APIResponse "Device unreachable"
// @Router /devices/{device_id}/harvest [post]
func (h *HarvestHandler) TriggerHarvest(c *gin.Context) {
	deviceID := c.Param("device_id")

	run, err := h.harvestService.HarvestDevice(c.Request.Context(), deviceID, "api")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
			return
		}
		h.logger.Error("Harvest failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		// The failed run record is still returned so the caller can
		// inspect it.
		c.JSON(http.StatusBadGateway, utils.APIResponse{
			Success:   false,
			Message:   "Harvest failed",
			Data:      run,
			Timestamp: time.Now(),
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Harvest completed", run)
}

// ListDeviceHarvests lists harvest runs for one device
// @Summary List device harvests
// @Description Get harvest runs for a device, most recent first
// @Tags Harvests
// @Produce json
// @Param device_id path string true "Device ID"
// @Param limit query int false "Maximum runs to return" default(20)
// @Success 200 {object} utils.APIResponse{data=[]model.HarvestRun} "Harvest runs retrieved"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{device_id}/harvests [get]
func (h *HarvestHandler) ListDeviceHarvests(c *gin.Context) {
	deviceID := c.Param("device_id")
	limit := parseLimit(c, 20)

	runs, err := h.harvestService.ListDeviceHarvests(c.Request.Context(), deviceID, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sql.ErrNoRows) {
			status = http.StatusNotFound
		}
		utils.ErrorResponse(c, status, "Failed to list harvests", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Harvest runs retrieved", runs)
}

// ListRecentHarvests lists the most recent harvest runs
// @Summary List recent harvests
// @Description Get the most recent harvest runs across all devices
// @Tags Harvests
// @Produce json
// @Param limit query int false "Maximum runs to return" default(20)
// @Success 200 {object} utils.APIResponse{data=[]model.HarvestRun} "Harvest runs retrieved"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /harvests [get]
func (h *HarvestHandler) ListRecentHarvests(c *gin.Context) {
	limit := parseLimit(c, 20)

	runs, err := h.harvestService.ListRecentHarvests(c.Request.Context(), limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list harvests", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Harvest runs retrieved", runs)
}

// GetHarvest retrieves a single harvest run
// @Summary Get harvest run
// @Description Get a harvest run by ID
// @Tags Harvests
// @Produce json
// @Param id path string true "Harvest run ID"
// @Success 200 {object} utils.APIResponse{data=model.HarvestRun} "Harvest run retrieved"
// @Failure 404 {object} utils.APIResponse "Harvest run not found"
// @Router /harvests/{id} [get]
func (h *HarvestHandler) GetHarvest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid harvest ID", err)
		return
	}

	run, err := h.harvestService.GetHarvest(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sql.ErrNoRows) {
			status = http.StatusNotFound
		}
		utils.ErrorResponse(c, status, "Harvest run not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Harvest run retrieved", run)
}

// ListMeasurements lists stored measurements
// @Summary List measurements
// @Description Get stored measurements filtered by device, treatment unit and time window
// @Tags Measurements
// @Produce json
// @Param device_id query string false "Filter by device row ID"
// @Param unit query string false "Filter by treatment unit"
// @Param from query string false "Start of time window (RFC 3339)"
// @Param to query string false "End of time window (RFC 3339)"
// @Param limit query int false "Maximum rows to return" default(100)
// @Success 200 {object} utils.APIResponse{data=[]model.StoredMeasurement} "Measurements retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /measurements [get]
func (h *HarvestHandler) ListMeasurements(c *gin.Context) {
	filter := repository.MeasurementFilter{
		TreatmentUnit: c.Query("unit"),
		Limit:         parseLimit(c, 100),
	}

	if deviceID := c.Query("device_id"); deviceID != "" {
		id, err := uuid.Parse(deviceID)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device_id", err)
			return
		}
		filter.DeviceID = &id
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid from timestamp", err)
			return
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid to timestamp", err)
			return
		}
		filter.To = &t
	}

	measurements, err := h.harvestService.ListMeasurements(c.Request.Context(), filter)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list measurements", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Measurements retrieved", measurements)
}

func parseLimit(c *gin.Context, fallback int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return fallback
}
