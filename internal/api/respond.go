package api

import (
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorBody returns the status and JSON payload for err. Details of unclassified
// errors are logged and never sent to the caller.
func errorBody(c *gin.Context, err error) (int, gin.H) {
	e, ok := apperr.As(err)
	if !ok {
		util.GetLogger().Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		return http.StatusInternalServerError, gin.H{
			"error": apperr.PublicMessage(err),
		}
	}

	status := apperr.HTTPStatus(e.Kind)
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(e.Code)),
			zap.Error(err),
		)
	}

	body := gin.H{
		"error": apperr.PublicMessage(err),
		"code":  e.Code,
	}
	if e.InvoiceID != "" {
		body["invoiceId"] = e.InvoiceID
	}
	return status, body
}

func respondError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  apperr.CodeValidation,
		})
		return false
	}
	return true
}
