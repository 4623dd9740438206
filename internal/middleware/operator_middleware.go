package middleware

import (
	"net/http"
	"strings"
	"unicode"

	"cafe_inventory/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	OperatorHeader  = "X-Operator"
	operatorKey     = "operator"
	defaultOperator = "api"
	maxOperatorLen  = 100
)

// OperatorMiddleware records who is acting on the ledger. The name comes from
// the X-Operator header and defaults to "api".
func OperatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(OperatorHeader))
		if name == "" {
			name = defaultOperator
		}
		if len(name) > maxOperatorLen || strings.IndexFunc(name, unicode.IsControl) >= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Invalid "+OperatorHeader+" header.", "operator names are at most 100 printable characters"))
			return
		}
		c.Set(operatorKey, name)
		c.Next()
	}
}

// Operator returns the name set by OperatorMiddleware.
func Operator(c *gin.Context) string {
	if v, ok := c.Get(operatorKey); ok {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return defaultOperator
}
