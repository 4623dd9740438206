package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cafe_inventory/internal/importer"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/services"
	"cafe_inventory/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ImportRunner starts import runs from uploaded or fetched input.
type ImportRunner interface {
	ImportSquare(ctx context.Context, filename string, data []byte, dryRun bool) (*services.ImportSummary, error)
	ImportShopify(ctx context.Context, from, to time.Time, dryRun bool) (*services.ImportSummary, error)
}

// ImportHandler starts imports and lists past runs.
type ImportHandler struct {
	runner         ImportRunner
	importService  services.ImportService
	maxUploadBytes int64
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(runner ImportRunner, is services.ImportService, maxUploadBytes int64) *ImportHandler {
	return &ImportHandler{runner: runner, importService: is, maxUploadBytes: maxUploadBytes}
}

// RunImport handles POST /imports/:source.
// Square takes a multipart "file"; Shopify takes "start" and "end" dates.
// Both accept "dry_run".
func (h *ImportHandler) RunImport(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var summary *services.ImportSummary
	var err error
	switch models.Source(c.Param("source")) {
	case models.SourceSquare:
		filename, data, ok := h.readUpload(c)
		if !ok {
			return
		}
		dryRun, ok := parseDryRun(c)
		if !ok {
			return
		}
		summary, err = h.runner.ImportSquare(c.Request.Context(), filename, data, dryRun)
	case models.SourceShopify:
		from, errFrom := utils.ParseDate(c.Query("start"))
		to, errTo := utils.ParseDate(c.Query("end"))
		if errFrom != nil || errTo != nil || from == nil || to == nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "start and end dates are required (YYYY-MM-DD).", ""))
			return
		}
		dryRun, ok := parseDryRun(c)
		if !ok {
			return
		}
		summary, err = h.runner.ImportShopify(c.Request.Context(), *from, *to, dryRun)
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Unsupported import source.", c.Param("source")))
		return
	}

	if err != nil {
		utils.LogError(err, "RunImport: import failed")
		switch {
		case errors.Is(err, services.ErrRunFailed):
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeImportFailed, "Import aborted, no changes were kept.", err.Error()),
				"summary": summary,
			})
		case errors.Is(err, importer.ErrInvalidInput), errors.Is(err, importer.ErrInvalidWindow), errors.Is(err, services.ErrUnsupportedSource):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid import input.", err.Error()))
		case errors.Is(err, importer.ErrShopifyDisabled):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Shopify is not configured.", err.Error()))
		default:
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeImportFailed, "Failed to fetch import input.", err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

// parseDryRun reads dry_run from the query string or the form.
func parseDryRun(c *gin.Context) (bool, bool) {
	v := c.Query("dry_run")
	if v == "" {
		v = c.PostForm("dry_run")
	}
	if v == "" {
		return false, true
	}
	dryRun, err := strconv.ParseBool(v)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid dry_run value.", err.Error()))
		return false, false
	}
	return dryRun, true
}

func (h *ImportHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusRequestEntityTooLarge, utils.ErrCodePayloadTooLarge, "Upload is too large.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "A CSV file is required in the \"file\" field.", err.Error()))
		}
		return "", nil, false
	}
	f, err := header.Open()
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Could not open the uploaded file.", err.Error()))
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Could not read the uploaded file.", err.Error()))
		return "", nil, false
	}
	return header.Filename, data, true
}

// ListImportLogs handles GET /import-logs
func (h *ImportHandler) ListImportLogs(c *gin.Context) {
	var filters models.ImportLogFilters
	if source := c.Query("source"); source != "" {
		filters.Source = &source
	}
	if runType := c.Query("run_type"); runType != "" {
		filters.RunType = &runType
	}
	var ok bool
	if filters.Page, filters.PageSize, ok = parsePagination(c); !ok {
		return
	}

	logs, total, err := h.importService.ListLogs(filters)
	if err != nil {
		utils.LogError(err, "ListImportLogs: Error from importService.ListLogs")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch import logs.", "Internal error"))
		return
	}
	if logs == nil {
		logs = []models.ImportLog{}
	}
	respondPage(c, logs, total, filters.Page, filters.PageSize)
}
