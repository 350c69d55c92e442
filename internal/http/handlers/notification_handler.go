// README: Notification feed handlers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quickbite/internal/http/middleware"
	"quickbite/internal/modules/notification"
	"quickbite/internal/types"
)

type NotificationHandler struct {
	fanout *notification.Fanout
}

func NewNotificationHandler(f *notification.Fanout) *NotificationHandler {
	return &NotificationHandler{fanout: f}
}

// callerRecipient maps the auth role to the notification recipient kind.
func callerRecipient(c *gin.Context) (notification.RecipientKind, types.ID) {
	kind := notification.RecipientUser
	if middleware.CallerRole(c) == "driver" {
		kind = notification.RecipientDriver
	}
	return kind, types.ID(middleware.CallerUID(c))
}

func (h *NotificationHandler) List(c *gin.Context) {
	kind, id := callerRecipient(c)
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	items, err := h.fanout.List(c.Request.Context(), kind, id, limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"notifications": items})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing notification id")
		return
	}
	kind, recipient := callerRecipient(c)
	if err := h.fanout.MarkRead(c.Request.Context(), types.ID(id), kind, recipient); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
