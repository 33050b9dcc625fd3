package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/models"
)

type CreateInput struct {
	ProductID  uuid.UUID
	PlayerID   string
	PlayerName string
	IP         string
	UserAgent  string
}

type CreateResult struct {
	OrderID    uuid.UUID             `json:"order_id"`
	PaymentURL string                `json:"payment_url"`
	Status     models.OrderStatus    `json:"status"`
	Delivery   models.DeliveryStatus `json:"delivery_status"`
}

func (in *CreateInput) validate() error {
	in.PlayerID = strings.TrimSpace(in.PlayerID)
	in.PlayerName = strings.TrimSpace(in.PlayerName)

	var appErr *apperrors.Error
	if len(in.PlayerID) < MinPlayerIDLength {
		appErr = apperrors.Validation("player_id", "must be at least 6 characters")
	}
	if in.PlayerName == "" {
		if appErr == nil {
			appErr = apperrors.Validation("player_name", "is required")
		} else {
			appErr.WithField("player_name", "is required")
		}
	}
	if in.ProductID == uuid.Nil {
		if appErr == nil {
			appErr = apperrors.Validation("product_id", "is required")
		} else {
			appErr.WithField("product_id", "is required")
		}
	}
	if appErr != nil {
		return appErr
	}
	return nil
}

// Create persists a pending order priced from the product, scores it and asks
// the gateway for a payment link. Nothing is persisted when input is invalid
// or the gateway is not configured.
//
// If the gateway call fails the order stays pending without a payment URL and
// the returned GATEWAY_UNAVAILABLE error carries the order id; the owner can
// call RegeneratePaymentLink later.
func (m *Manager) Create(ctx context.Context, actor models.Actor, in CreateInput) (*CreateResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := m.gateway.Configured(ctx); err != nil {
		return nil, err
	}

	var product models.Product
	if err := m.db.WithContext(ctx).First(&product, "id = ? AND is_active = ?", in.ProductID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Product not found.")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to load product", err)
	}

	user, err := m.loadUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:           uuid.New(),
		UserID:       user.ID,
		ProductID:    product.ID,
		ProductTitle: product.Title,
		UCAmount:     product.UCAmount,
		Amount:       product.DiscountPrice,
		PlayerID:     in.PlayerID,
		PlayerName:   in.PlayerName,
		Status:       models.OrderPending,
		ClientIP:     in.IP,
		Meta:         datatypes.NewJSONType(models.RequestMeta{IP: in.IP, UserAgent: in.UserAgent}),
	}

	assessment, err := m.risk.Assess(ctx, order, user, in.IP)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to assess order risk", err)
	}
	order.Risk = datatypes.NewJSONType(assessment)

	delivery := models.DeliveryState{Status: models.DeliveryPending}
	if assessment.Flagged() {
		delivery.Status = models.DeliveryHold
		delivery.Message = models.MessagePendingReview
	}
	order.SetDelivery(delivery)

	if err := m.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to create order", err)
	}

	m.logger.Info("order created",
		zap.String("orderId", order.ID.String()),
		zap.String("userId", user.ID.String()),
		zap.Int("riskScore", assessment.Score))

	m.recordOrder(ctx, audit.ActionOrderCreated, &actor.ID, order.ID, map[string]interface{}{
		"product_id": product.ID.String(),
		"amount":     order.Amount.StringFixed(2),
		"player_id":  order.PlayerID,
		"risk_score": assessment.Score,
	})
	if assessment.Flagged() {
		m.recordOrder(ctx, audit.ActionOrderRiskFlagged, nil, order.ID, map[string]interface{}{
			"score":   assessment.Score,
			"reasons": assessment.Reasons,
		})
		m.notifyRiskFlag(ctx, order)
	}

	result := &CreateResult{
		OrderID:  order.ID,
		Status:   order.Status,
		Delivery: delivery.Status,
	}

	url, err := m.issuePaymentLink(ctx, &actor.ID, order, user)
	if err != nil {
		return nil, err
	}
	result.PaymentURL = url
	return result, nil
}

// RegeneratePaymentLink issues a fresh link for a pending order of the caller.
func (m *Manager) RegeneratePaymentLink(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*CreateResult, error) {
	order, err := m.Get(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		return nil, apperrors.New(apperrors.CodeForbidden, "Only the buyer can request a payment link.")
	}
	if order.Status != models.OrderPending {
		return nil, illegal("Payment links can only be issued for pending orders.")
	}
	if err := m.gateway.Configured(ctx); err != nil {
		return nil, err
	}

	user, err := m.loadUser(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	url, err := m.issuePaymentLink(ctx, &actor.ID, order, user)
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		OrderID:    order.ID,
		PaymentURL: url,
		Status:     order.Status,
		Delivery:   order.DeliveryState().Status,
	}, nil
}

func (m *Manager) issuePaymentLink(ctx context.Context, actorID *uuid.UUID, order *models.Order, user *models.User) (string, error) {
	product := &models.Product{ID: order.ProductID, Title: order.ProductTitle, UCAmount: order.UCAmount}

	link, err := m.gateway.CreatePayment(ctx, order, product, user)
	if err != nil {
		m.logger.Error("failed to create payment link",
			zap.Error(err),
			zap.String("orderId", order.ID.String()))
		m.recordOrder(ctx, audit.ActionPaymentLinkFailed, actorID, order.ID, map[string]interface{}{
			"error": err.Error(),
		})

		var appErr *apperrors.Error
		if !errors.As(err, &appErr) {
			appErr = apperrors.Wrap(apperrors.CodeGatewayUnavailable, "Payment link generation failed.", err)
		}
		return "", appErr.WithField("order_id", order.ID.String())
	}

	if err := m.db.WithContext(ctx).Model(order).Update("payment_url", link.PaymentURL).Error; err != nil {
		return "", apperrors.Wrap(apperrors.CodeDatabase, "failed to store payment link", err)
	}

	m.recordOrder(ctx, audit.ActionPaymentLinkIssued, actorID, order.ID, nil)
	return link.PaymentURL, nil
}
