// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quickbite/internal/modules/driver"
	"quickbite/internal/modules/notification"
	"quickbite/internal/modules/order"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// takenResponse is the structured rejection for a lost accept race. Driver
// apps key off the code and use taken_by to render who got the order.
type takenResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TakenBy string `json:"taken_by"`
}

// isValidID ensures IDs are alphanumeric and at most 32 chars (matches the
// ID generator and Firebase UIDs).
func isValidID(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDomainError(c *gin.Context, err error) {
	var taken *order.TakenError
	if errors.As(err, &taken) {
		writeJSON(c, http.StatusConflict, takenResponse{
			Error:   taken.Error(),
			Code:    "order_taken",
			TakenBy: string(taken.Winner),
		})
		return
	}
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, driver.ErrNotFound), errors.Is(err, notification.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden), errors.Is(err, driver.ErrNotEligible):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
