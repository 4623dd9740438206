package handlers

import (
	"errors"
	"net/http"
	"time"

	"cafe_inventory/internal/middleware"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"
	"cafe_inventory/internal/services"
	"cafe_inventory/pkg/utils"

	"github.com/gin-gonic/gin"
)

// UnmappedItemHandler exposes the unmapped-item ledger for review.
type UnmappedItemHandler struct {
	ledger services.UnmappedItemService
}

// NewUnmappedItemHandler creates a new UnmappedItemHandler.
func NewUnmappedItemHandler(ls services.UnmappedItemService) *UnmappedItemHandler {
	return &UnmappedItemHandler{ledger: ls}
}

// respondLedgerError maps ledger sentinels onto HTTP statuses.
func respondLedgerError(c *gin.Context, err error, action string) {
	utils.LogError(err, action+": ledger error")
	switch {
	case errors.Is(err, services.ErrUnmappedItemNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Unmapped item not found.", err.Error()))
	case errors.Is(err, services.ErrInvalidTransition):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInvalidTransition, "Action not allowed in the item's current state.", err.Error()))
	case errors.Is(err, repositories.ErrDuplicateKey):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "A catalog entry with that name already exists.", err.Error()))
	case errors.Is(err, services.ErrInvalidResolution), errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request.", err.Error()))
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to "+action+".", "Internal error"))
	}
}

func parseItemID(c *gin.Context) (int64, bool) {
	id, err := utils.StrToInt64(c.Param("id"))
	if err != nil || id <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid unmapped item ID format.", c.Param("id")))
		return 0, false
	}
	return id, true
}

// ListUnmappedItems handles GET /unmapped-items
func (h *UnmappedItemHandler) ListUnmappedItems(c *gin.Context) {
	var filters models.UnmappedFilters
	for key, dst := range map[string]**string{"source": &filters.Source, "item_type": &filters.ItemType, "state": &filters.State, "q": &filters.Search} {
		if v := c.Query(key); v != "" {
			v := v
			*dst = &v
		}
	}
	for key, dst := range map[string]**time.Time{"from": &filters.From, "to": &filters.To} {
		t, err := utils.ParseDate(c.Query(key))
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+key+" date. Use YYYY-MM-DD.", err.Error()))
			return
		}
		*dst = t
	}
	var ok bool
	if filters.Page, filters.PageSize, ok = parsePagination(c); !ok {
		return
	}

	items, total, err := h.ledger.List(filters)
	if err != nil {
		respondLedgerError(c, err, "list unmapped items")
		return
	}
	if items == nil {
		items = []models.UnmappedItem{}
	}
	respondPage(c, items, total, filters.Page, filters.PageSize)
}

// GetUnmappedItem handles GET /unmapped-items/:id
func (h *UnmappedItemHandler) GetUnmappedItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	item, err := h.ledger.Get(id)
	if err != nil {
		respondLedgerError(c, err, "fetch unmapped item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// LinkUnmappedItem handles POST /unmapped-items/:id/link
func (h *UnmappedItemHandler) LinkUnmappedItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	var req services.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, utils.ValidationDetails(err))
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = middleware.Operator(c)
	}
	item, err := h.ledger.Link(id, req)
	if err != nil {
		respondLedgerError(c, err, "link unmapped item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateFromUnmappedItem handles POST /unmapped-items/:id/create
func (h *UnmappedItemHandler) CreateFromUnmappedItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	var req services.CreateEntityRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondValidationFailed(c, utils.ValidationDetails(err))
			return
		}
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = middleware.Operator(c)
	}
	item, err := h.ledger.Create(id, req)
	if err != nil {
		respondLedgerError(c, err, "create catalog entry")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// IgnoreUnmappedItem handles POST /unmapped-items/:id/ignore
func (h *UnmappedItemHandler) IgnoreUnmappedItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	var req services.IgnoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondValidationFailed(c, utils.ValidationDetails(err))
			return
		}
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = middleware.Operator(c)
	}
	item, err := h.ledger.Ignore(id, req)
	if err != nil {
		respondLedgerError(c, err, "ignore unmapped item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// BulkUnmappedItems handles POST /unmapped-items/bulk
func (h *UnmappedItemHandler) BulkUnmappedItems(c *gin.Context) {
	var req services.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, utils.ValidationDetails(err))
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = middleware.Operator(c)
	}
	result, err := h.ledger.Bulk(req)
	if err != nil {
		respondLedgerError(c, err, "apply bulk action")
		return
	}
	c.JSON(http.StatusOK, result)
}
