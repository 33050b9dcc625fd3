package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/orders"
)

type OrderRequest struct {
	ProductID  uuid.UUID `json:"product_id" binding:"required"`
	PlayerID   string    `json:"player_id" binding:"required,min=6"`
	PlayerName string    `json:"player_name" binding:"required"`
}

type OrderView struct {
	ID           uuid.UUID              `json:"id"`
	ProductID    uuid.UUID              `json:"product_id"`
	ProductTitle string                 `json:"product_title"`
	UCAmount     int                    `json:"uc_amount"`
	Amount       decimal.Decimal        `json:"amount"`
	PlayerID     string                 `json:"player_id"`
	PlayerName   string                 `json:"player_name"`
	Status       models.OrderStatus     `json:"status"`
	Delivery     models.DeliveryState   `json:"delivery"`
	Risk         *models.RiskAssessment `json:"risk,omitempty"`
	PaymentURL   string                 `json:"payment_url,omitempty"`
	PaidAt       *time.Time             `json:"paid_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func newOrderView(order *models.Order, actor models.Actor) OrderView {
	view := OrderView{
		ID:           order.ID,
		ProductID:    order.ProductID,
		ProductTitle: order.ProductTitle,
		UCAmount:     order.UCAmount,
		Amount:       order.Amount,
		PlayerID:     order.PlayerID,
		PlayerName:   order.PlayerName,
		Status:       order.Status,
		Delivery:     order.DeliveryState(),
		PaymentURL:   order.PaymentURL,
		PaidAt:       order.PaidAt,
		CreatedAt:    order.CreatedAt,
	}
	if actor.IsAdmin() {
		risk := order.RiskAssessment()
		view.Risk = &risk
	}
	return view
}

type OrderHandler struct {
	orders *orders.Manager
}

func NewOrderHandler(manager *orders.Manager) *OrderHandler {
	return &OrderHandler{orders: manager}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		return
	}

	result, err := h.orders.Create(c.Request.Context(), actor, orders.CreateInput{
		ProductID:  req.ProductID,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusCreated, result)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Get(c.Request.Context(), actor, orderID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, newOrderView(order, actor))
}

func (h *OrderHandler) RegeneratePaymentLink(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.orders.RegeneratePaymentLink(c.Request.Context(), actor, orderID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, result)
}

// GenerateCodeQR renders one delivered code of the caller's order as a PNG.
func (h *OrderHandler) GenerateCodeQR(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	item, err := strconv.Atoi(c.DefaultQuery("item", "0"))
	if err != nil || item < 0 {
		helpers.RespondWithAppError(c, apperrors.Validation("item", "must be a non-negative integer"))
		return
	}

	order, err := h.orders.Get(c.Request.Context(), actor, orderID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	if order.UserID != actor.ID {
		helpers.RespondWithAppError(c, apperrors.New(apperrors.CodeForbidden,
			"You don't have permission to view codes of this order."))
		return
	}

	delivery := order.DeliveryState()
	if delivery.Status != models.DeliveryDelivered || item >= len(delivery.Items) {
		helpers.RespondWithAppError(c, apperrors.New(apperrors.CodeNotFound, "Code not delivered."))
		return
	}

	qrImage, err := qrcode.Encode(delivery.Items[item], qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", qrImage)
}
