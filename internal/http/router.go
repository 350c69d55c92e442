// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quickbite/internal/http/handlers"
	"quickbite/internal/http/middleware"
	"quickbite/internal/infra"
	"quickbite/internal/modules/dispatch"
	"quickbite/internal/modules/driver"
	"quickbite/internal/modules/notification"
	"quickbite/internal/modules/order"
	"quickbite/internal/realtime"
)

type RouterDeps struct {
	Dispatch      *dispatch.Coordinator
	Orders        *order.Service
	Drivers       *driver.Service
	Notifications *notification.Fanout
	Gateway       *realtime.Gateway
	Verifier      infra.TokenVerifier
	Log           *logrus.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	orderHandler := handlers.NewOrderHandler(deps.Dispatch, deps.Orders)
	driverHandler := handlers.NewDriverHandler(deps.Drivers, deps.Dispatch)
	notifHandler := handlers.NewNotificationHandler(deps.Notifications)
	wsHandler := handlers.NewWSHandler(deps.Gateway, deps.Drivers)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/available", driverHandler.ListAvailable)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/accept", orderHandler.Accept)
	api.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	api.PUT("/orders/:id/cancel", orderHandler.Cancel)

	api.POST("/drivers/online", driverHandler.GoOnline)
	api.POST("/drivers/offline", driverHandler.GoOffline)
	api.PUT("/drivers/location", driverHandler.UpdateLocation)
	api.PUT("/drivers/push-token", driverHandler.UpdatePushToken)

	api.GET("/notifications", notifHandler.List)
	api.PUT("/notifications/:id/read", notifHandler.MarkRead)

	r.GET("/ws", middleware.Auth(deps.Verifier), wsHandler.Serve)

	return r
}
