package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/rentpay/errs"
)

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindConfiguration:
		return http.StatusBadRequest
	case errs.KindInvariant:
		return http.StatusUnprocessableEntity
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status its kind maps to. Unclassified
// errors are not echoed to the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	body := gin.H{"error": err.Error()}
	if kind := errs.KindOf(err); kind != errs.KindUnknown {
		body["kind"] = kind
	}
	c.JSON(status, body)
}
