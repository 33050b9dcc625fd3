// Package risk scores prospective orders for fraud before payment.
//
// Rules are additive and capped at 100. Every rule that fires contributes a
// human-readable reason. An order scoring FlagThreshold or more is FLAGGED
// and must be released by an admin before fulfillment.
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farellandr/ucshop/internal/models"
)

const (
	FlagThreshold = 40
	MaxScore      = 100
)

var (
	highAmount   = decimal.NewFromInt(500)
	mediumAmount = decimal.NewFromInt(250)

	disposableDomains = []string{"tempmail", "guerrilla", "10minute", "throwaway", "mailinator"}
)

// History answers read-only questions about past orders.
type History interface {
	CompletedOrders(ctx context.Context, userID uuid.UUID) (int64, error)
	OrdersFromIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
	PlayerIDs(ctx context.Context, userID uuid.UUID) ([]string, error)
	FailedOrdersSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
}

// Signals are the inputs of Score, gathered from the order, the user and History.
type Signals struct {
	AccountAge         time.Duration
	CompletedOrders    int64
	Amount             decimal.Decimal
	RecentOrdersFromIP int64
	DistinctPlayerIDs  int
	OAuthUnverified    bool
	EmailDomain        string
	RecentFailedOrders int64
}

// Score applies the rules to the signals. It has no side effects.
func Score(s Signals) models.RiskAssessment {
	score := 0
	reasons := []string{}
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	switch {
	case s.AccountAge < time.Hour:
		add(25, "account created less than 1 hour ago")
	case s.AccountAge < 24*time.Hour:
		add(10, "account created less than 24 hours ago")
	}

	if s.CompletedOrders == 0 {
		add(10, "first order for this account")
	}

	switch {
	case s.Amount.GreaterThan(highAmount):
		add(15, fmt.Sprintf("high order amount (%s)", s.Amount.StringFixed(2)))
	case s.Amount.GreaterThan(mediumAmount):
		add(5, fmt.Sprintf("elevated order amount (%s)", s.Amount.StringFixed(2)))
	}

	if s.RecentOrdersFromIP > 3 {
		add(20, fmt.Sprintf("%d orders from the same IP in the last hour", s.RecentOrdersFromIP))
	}

	if s.DistinctPlayerIDs > 3 {
		add(15, fmt.Sprintf("%d different player IDs used", s.DistinctPlayerIDs))
	}

	if s.OAuthUnverified {
		add(5, "OAuth account without verified phone")
	}

	for _, marker := range disposableDomains {
		if strings.Contains(s.EmailDomain, marker) {
			add(30, "disposable email domain ("+s.EmailDomain+")")
			break
		}
	}

	if s.RecentFailedOrders >= 2 {
		add(15, fmt.Sprintf("%d failed orders in the last 24 hours", s.RecentFailedOrders))
	}

	if score > MaxScore {
		score = MaxScore
	}

	return models.RiskAssessment{
		Score:   score,
		Status:  StatusFor(score),
		Reasons: reasons,
	}
}

func StatusFor(score int) models.RiskStatus {
	if score >= FlagThreshold {
		return models.RiskFlagged
	}
	return models.RiskClear
}

type Scorer struct {
	history History
	now     func() time.Time
}

func NewScorer(history History) *Scorer {
	return &Scorer{history: history, now: time.Now}
}

// Assess gathers signals for a not-yet-persisted order and scores it.
func (s *Scorer) Assess(ctx context.Context, order *models.Order, user *models.User, requestIP string) (models.RiskAssessment, error) {
	now := s.now()

	completed, err := s.history.CompletedOrders(ctx, user.ID)
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("count completed orders: %w", err)
	}

	var fromIP int64
	if requestIP != "" {
		fromIP, err = s.history.OrdersFromIPSince(ctx, requestIP, now.Add(-time.Hour))
		if err != nil {
			return models.RiskAssessment{}, fmt.Errorf("count orders by ip: %w", err)
		}
	}

	playerIDs, err := s.history.PlayerIDs(ctx, user.ID)
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("list player ids: %w", err)
	}

	failed, err := s.history.FailedOrdersSince(ctx, user.ID, now.Add(-24*time.Hour))
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("count failed orders: %w", err)
	}

	return Score(Signals{
		AccountAge:         now.Sub(user.CreatedAt),
		CompletedOrders:    completed,
		Amount:             order.Amount,
		RecentOrdersFromIP: fromIP,
		DistinctPlayerIDs:  distinct(playerIDs),
		OAuthUnverified:    user.UsesOAuth() && !user.PhoneVerified,
		EmailDomain:        user.EmailDomain(),
		RecentFailedOrders: failed,
	}), nil
}

// distinct counts player ids from earlier orders only. The id on the order
// being scored does not count until that order exists.
func distinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
