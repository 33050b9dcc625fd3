package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/orders"
)

type RefundRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type DeliveryRequest struct {
	Status  string `json:"status" binding:"required,oneof=pending delivered hold cancelled"`
	Message string `json:"message" binding:"max=500"`
}

type AdminHandler struct {
	orders *orders.Manager
}

func NewAdminHandler(manager *orders.Manager) *AdminHandler {
	return &AdminHandler{orders: manager}
}

func (h *AdminHandler) ApproveOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Approve(c.Request.Context(), actor, orderID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, newOrderView(order, actor))
}

func (h *AdminHandler) RefundOrder(c *gin.Context) {
	var req RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.RespondWithBindingError(c, err)
			return
		}
	}

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Refund(c.Request.Context(), actor, orderID, req.Reason)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, newOrderView(order, actor))
}

func (h *AdminHandler) UpdateDelivery(c *gin.Context) {
	var req DeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.UpdateDelivery(c.Request.Context(), actor, orderID, orders.DeliveryUpdate{
		Status:  models.DeliveryStatus(req.Status),
		Message: req.Message,
	})
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, newOrderView(order, actor))
}

func (h *AdminHandler) FulfillOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.RetryFulfillment(c.Request.Context(), actor, orderID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, newOrderView(order, actor))
}
