// README: Order handlers: place, read, accept, advance status, cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quickbite/internal/http/middleware"
	"quickbite/internal/modules/dispatch"
	"quickbite/internal/modules/order"
	"quickbite/internal/types"
)

type OrderHandler struct {
	dispatch *dispatch.Coordinator
	orders   *order.Service
}

func NewOrderHandler(coord *dispatch.Coordinator, orders *order.Service) *OrderHandler {
	return &OrderHandler{dispatch: coord, orders: orders}
}

type orderItemReq struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type createOrderReq struct {
	MerchantID    string         `json:"merchant_id"`
	MerchantCity  string         `json:"merchant_city"`
	PickupLat     float64        `json:"pickup_lat"`
	PickupLng     float64        `json:"pickup_lng"`
	Items         []orderItemReq `json:"items"`
	AddressLine   string         `json:"address_line"`
	AddressCity   string         `json:"address_city"`
	DropLat       float64        `json:"drop_lat"`
	DropLng       float64        `json:"drop_lng"`
	PaymentMethod string         `json:"payment_method"`
}

type orderView struct {
	OrderID    string                `json:"order_id"`
	Status     order.Status          `json:"status"`
	MerchantID string                `json:"merchant_id"`
	City       string                `json:"city"`
	Items      []order.Item          `json:"items"`
	Bill       order.Bill            `json:"bill"`
	Address    order.Address         `json:"address"`
	DriverID   string                `json:"driver_id,omitempty"`
	Driver     *order.DriverDetails  `json:"driver,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	Timeline   []order.TimelineEntry `json:"timeline,omitempty"`
}

func viewOf(o *order.Order) orderView {
	v := orderView{
		OrderID:    string(o.ID),
		Status:     o.Status,
		MerchantID: string(o.MerchantID),
		City:       o.MerchantCity,
		Items:      o.Items,
		Bill:       o.Bill,
		Address:    o.Address,
		Driver:     o.DriverDetails,
		CreatedAt:  o.CreatedAt,
	}
	if o.DriverID != nil {
		v.DriverID = string(*o.DriverID)
	}
	return v
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.MerchantID == "" || len(req.Items) == 0 {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.Item{
			ProductID: types.ID(it.ProductID),
			Name:      it.Name,
			UnitPrice: types.Rupees(it.UnitPrice),
			Quantity:  it.Quantity,
		})
	}
	o, err := h.dispatch.PlaceOrder(c.Request.Context(), order.CreateCommand{
		CustomerID:   types.ID(middleware.CallerUID(c)),
		MerchantID:   types.ID(req.MerchantID),
		MerchantCity: req.MerchantCity,
		Pickup:       types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Items:        items,
		Address: order.Address{
			Line:     req.AddressLine,
			City:     req.AddressCity,
			Position: types.Point{Lat: req.DropLat, Lng: req.DropLng},
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewOf(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.dispatch.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	v := viewOf(o)
	if entries, err := h.orders.Timeline(c.Request.Context(), o.ID); err == nil {
		v.Timeline = entries
	}
	writeJSON(c, http.StatusOK, v)
}

// Accept is the driver's claim on an unassigned order. Exactly one caller
// wins; losers get a 409 with code order_taken naming the winner.
func (h *OrderHandler) Accept(c *gin.Context) {
	if middleware.CallerRole(c) != "driver" {
		writeError(c, http.StatusForbidden, "driver role required")
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.dispatch.Accept(c.Request.Context(), types.ID(id), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing status")
		return
	}
	o, err := h.dispatch.Advance(c.Request.Context(), order.AdvanceCommand{
		OrderID: types.ID(id),
		ActorID: types.ID(middleware.CallerUID(c)),
		To:      order.Status(req.Status),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.dispatch.Cancel(c.Request.Context(), types.ID(id), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}
