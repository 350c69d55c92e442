// README: Driver-facing handlers: presence, location, push token, available orders.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickbite/internal/http/middleware"
	"quickbite/internal/modules/dispatch"
	"quickbite/internal/modules/driver"
	"quickbite/internal/types"
)

type DriverHandler struct {
	drivers  *driver.Service
	dispatch *dispatch.Coordinator
}

func NewDriverHandler(drivers *driver.Service, coord *dispatch.Coordinator) *DriverHandler {
	return &DriverHandler{drivers: drivers, dispatch: coord}
}

// callerDriver enforces the driver role and returns the caller's driver ID.
func callerDriver(c *gin.Context) (types.ID, bool) {
	if middleware.CallerRole(c) != "driver" {
		writeError(c, http.StatusForbidden, "driver role required")
		return "", false
	}
	return types.ID(middleware.CallerUID(c)), true
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) GoOnline(c *gin.Context) {
	id, ok := callerDriver(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.drivers.GoOnline(c.Request.Context(), id, types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"online": true})
}

func (h *DriverHandler) GoOffline(c *gin.Context) {
	id, ok := callerDriver(c)
	if !ok {
		return
	}
	if err := h.drivers.GoOffline(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"online": false})
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	id, ok := callerDriver(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.drivers.UpdateLocation(c.Request.Context(), id, types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type pushTokenReq struct {
	Token string `json:"token"`
}

func (h *DriverHandler) UpdatePushToken(c *gin.Context) {
	id, ok := callerDriver(c)
	if !ok {
		return
	}
	var req pushTokenReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		writeError(c, http.StatusBadRequest, "missing token")
		return
	}
	if err := h.drivers.UpdatePushToken(c.Request.Context(), id, req.Token); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAvailable returns the orders the calling driver could accept right now.
// The set is re-derived per request; it is not a replay of past offers.
func (h *DriverHandler) ListAvailable(c *gin.Context) {
	id, ok := callerDriver(c)
	if !ok {
		return
	}
	orders, err := h.dispatch.ListAvailable(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o))
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": views})
}
