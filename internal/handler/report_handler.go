// internal/handler/report_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quickcheck-service/internal/service"
	"quickcheck-service/internal/utils"
)

// ReportHandler handles report generation HTTP requests
type ReportHandler struct {
	reportService *service.ReportService
	logger        *utils.ServiceLogger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        utils.NewServiceLogger(logger, "report-handler"),
	}
}

// RegisterRoutes registers report-related routes
func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	{
		reports.POST("/units", h.GenerateUnitReports)
		reports.GET("/daily", h.DailyReport)
	}
}

// GenerateUnitReports writes per-unit CSV exports
// @Summary Generate unit reports
// @Description Write one CSV per treatment unit of interest, sorted by energy and measurement time
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body service.UnitReportRequest false "Report parameters, defaults from configuration"
// @Success 200 {object} utils.APIResponse{data=[]service.ReportFile} "Reports generated"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 500 {object} utils.APIResponse "Report generation failed"
// @Router /reports/units [post]
func (h *ReportHandler) GenerateUnitReports(c *gin.Context) {
	var req service.UnitReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	files, err := h.reportService.GenerateUnitReports(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Unit report generation failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Report generation failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reports generated", files)
}

// DailyReport returns the reduced daily constancy view
// @Summary Daily constancy report
// @Description Get the reduced constancy columns for each treatment unit on a given day
// @Tags Reports
// @Produce json
// @Param date query string false "Day to report on (2006-01-02), defaults to today"
// @Param unit query []string false "Treatment units, defaults from configuration"
// @Success 200 {object} utils.APIResponse{data=[]service.DailyUnitReport} "Daily report retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid date"
// @Router /reports/daily [get]
func (h *ReportHandler) DailyReport(c *gin.Context) {
	req := &service.DailyReportRequest{
		Units: c.QueryArray("unit"),
	}

	if raw := c.Query("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid date", err)
			return
		}
		req.Date = day
	}

	reports, err := h.reportService.DailyReport(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Daily report failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Daily report failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Daily report retrieved", reports)
}
