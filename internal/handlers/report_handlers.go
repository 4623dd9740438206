package handlers

import (
	"errors"
	"net/http"
	"time"

	"cafe_inventory/internal/services"
	"cafe_inventory/pkg/utils"

	"github.com/gin-gonic/gin"
)

const DefaultReportDateLayout = "2006-01-02"

// ReportHandler serves ingredient usage and cost reports.
type ReportHandler struct {
	reportService services.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(rs services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: rs}
}

func parseReportDate(c *gin.Context, name string) (time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Missing "+name+" parameter.", name+" is required (YYYY-MM-DD)"))
		return time.Time{}, false
	}
	t, err := time.Parse(DefaultReportDateLayout, value)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+name+" format. Use YYYY-MM-DD.", err.Error()))
		return time.Time{}, false
	}
	return t, true
}

// GetUsageReport sums ingredient usage and cost of goods between two dates.
func (h *ReportHandler) GetUsageReport(c *gin.Context) {
	start, ok := parseReportDate(c, "start")
	if !ok {
		return
	}
	end, ok := parseReportDate(c, "end")
	if !ok {
		return
	}
	var source *string
	if s := c.Query("source"); s != "" {
		source = &s
	}

	report, err := h.reportService.Usage(start, end, source)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRange) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "start must not be after end.", err.Error()))
			return
		}
		utils.LogError(err, "GetUsageReport: Error from reportService.Usage")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to build usage report.", "Internal error"))
		return
	}
	c.JSON(http.StatusOK, report)
}
