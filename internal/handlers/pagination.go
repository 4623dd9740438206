package handlers

import (
	"net/http"
	"strconv"

	"cafe_inventory/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// parsePagination reads page and page_size, responding with 400 and
// returning false when either is malformed.
func parsePagination(c *gin.Context) (int, int, bool) {
	page, pageSize := 1, defaultPageSize
	if pageStr := c.Query("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid page format.", "page must be a positive integer"))
			return 0, 0, false
		}
		page = p
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid page_size format.", "page_size must be between 1 and "+strconv.Itoa(maxPageSize)))
			return 0, 0, false
		}
		pageSize = ps
	}
	return page, pageSize, true
}

func respondPage(c *gin.Context, data interface{}, total, page, pageSize int) {
	c.JSON(http.StatusOK, gin.H{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
