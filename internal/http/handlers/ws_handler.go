// README: WebSocket upgrade handler for the driver realtime feed.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickbite/internal/modules/driver"
	"quickbite/internal/realtime"
)

type WSHandler struct {
	gateway *realtime.Gateway
	drivers *driver.Service
}

func NewWSHandler(gw *realtime.Gateway, drivers *driver.Service) *WSHandler {
	return &WSHandler{gateway: gw, drivers: drivers}
}

// Serve upgrades the connection and streams the caller's offer and withdraw
// events. The city subscription follows the driver's stored city token.
func (h *WSHandler) Serve(c *gin.Context) {
	id, ok := callerDriver(c)
	if !ok {
		return
	}
	d, err := h.drivers.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusNotFound, "driver not found")
		return
	}
	h.gateway.ServeDriver(c.Writer, c.Request, d.ID, d.CityToken)
}
