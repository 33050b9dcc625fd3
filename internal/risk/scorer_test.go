package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/testutil"
)

type mockHistory struct {
	completedFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	fromIPFn    func(ctx context.Context, ip string, since time.Time) (int64, error)
	playerIDsFn func(ctx context.Context, userID uuid.UUID) ([]string, error)
	failedFn    func(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
}

func (m *mockHistory) CompletedOrders(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.completedFn == nil {
		return 0, nil
	}
	return m.completedFn(ctx, userID)
}
func (m *mockHistory) OrdersFromIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	if m.fromIPFn == nil {
		return 0, nil
	}
	return m.fromIPFn(ctx, ip, since)
}
func (m *mockHistory) PlayerIDs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if m.playerIDsFn == nil {
		return nil, nil
	}
	return m.playerIDsFn(ctx, userID)
}
func (m *mockHistory) FailedOrdersSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	if m.failedFn == nil {
		return 0, nil
	}
	return m.failedFn(ctx, userID, since)
}

func veteran() Signals {
	return Signals{
		AccountAge:      90 * 24 * time.Hour,
		CompletedOrders: 5,
		Amount:          decimal.NewFromInt(100),
		EmailDomain:     "example.com",
	}
}

func TestScoreCleanAccount(t *testing.T) {
	got := Score(veteran())

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, models.RiskClear, got.Status)
	assert.Empty(t, got.Reasons)
}

func TestScoreNewAccountFirstLargeOrder(t *testing.T) {
	s := veteran()
	s.AccountAge = 10 * time.Minute
	s.CompletedOrders = 0
	s.Amount = decimal.NewFromInt(600)

	got := Score(s)

	assert.Equal(t, 50, got.Score)
	assert.Equal(t, models.RiskFlagged, got.Status)
	assert.Len(t, got.Reasons, 3)
}

func TestScoreAgeBands(t *testing.T) {
	s := veteran()
	s.AccountAge = 59 * time.Minute
	assert.Equal(t, 25, Score(s).Score)

	s.AccountAge = time.Hour
	assert.Equal(t, 10, Score(s).Score)

	s.AccountAge = 24 * time.Hour
	assert.Equal(t, 0, Score(s).Score)
}

func TestScoreAmountBands(t *testing.T) {
	s := veteran()
	s.Amount = decimal.NewFromInt(250)
	assert.Equal(t, 0, Score(s).Score)

	s.Amount = decimal.RequireFromString("250.01")
	assert.Equal(t, 5, Score(s).Score)

	s.Amount = decimal.NewFromInt(500)
	assert.Equal(t, 5, Score(s).Score)

	s.Amount = decimal.RequireFromString("500.01")
	assert.Equal(t, 15, Score(s).Score)
}

func TestScoreThresholdIsInclusive(t *testing.T) {
	assert.Equal(t, models.RiskClear, StatusFor(39))
	assert.Equal(t, models.RiskFlagged, StatusFor(40))

	s := veteran()
	s.AccountAge = 30 * time.Minute
	s.Amount = decimal.NewFromInt(501)
	got := Score(s)
	assert.Equal(t, 40, got.Score)
	assert.Equal(t, models.RiskFlagged, got.Status)

	s.Amount = decimal.NewFromInt(100)
	s.CompletedOrders = 0
	got = Score(s)
	assert.Equal(t, 35, got.Score)
	assert.Equal(t, models.RiskClear, got.Status)
}

func TestScoreDisposableDomainCountsOnce(t *testing.T) {
	s := veteran()
	s.EmailDomain = "tempmail-mailinator.com"

	got := Score(s)

	assert.Equal(t, 30, got.Score)
	assert.Len(t, got.Reasons, 1)
}

func TestScoreIsCapped(t *testing.T) {
	got := Score(Signals{
		AccountAge:         time.Minute,
		Amount:             decimal.NewFromInt(1000),
		RecentOrdersFromIP: 10,
		DistinctPlayerIDs:  6,
		OAuthUnverified:    true,
		EmailDomain:        "guerrillamail.com",
		RecentFailedOrders: 3,
	})

	assert.Equal(t, MaxScore, got.Score)
	assert.Len(t, got.Reasons, 8)
}

func TestScoreVelocityRules(t *testing.T) {
	s := veteran()
	s.RecentOrdersFromIP = 3
	s.DistinctPlayerIDs = 3
	s.RecentFailedOrders = 1
	assert.Equal(t, 0, Score(s).Score)

	s.RecentOrdersFromIP = 4
	s.DistinctPlayerIDs = 4
	s.RecentFailedOrders = 2
	assert.Equal(t, 50, Score(s).Score)
}

func TestAssessGathersSignals(t *testing.T) {
	var sinceIP, sinceFailed time.Time
	history := &mockHistory{
		completedFn: func(ctx context.Context, userID uuid.UUID) (int64, error) { return 0, nil },
		fromIPFn: func(ctx context.Context, ip string, since time.Time) (int64, error) {
			assert.Equal(t, "10.0.0.1", ip)
			sinceIP = since
			return 4, nil
		},
		playerIDsFn: func(ctx context.Context, userID uuid.UUID) ([]string, error) {
			return []string{"1111111", "2222222", "3333333", "4444444"}, nil
		},
		failedFn: func(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
			sinceFailed = since
			return 0, nil
		},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scorer := NewScorer(history)
	scorer.now = func() time.Time { return now }

	user := &models.User{
		ID:           uuid.New(),
		Email:        "someone@example.com",
		AuthProvider: "google",
		CreatedAt:    now.Add(-48 * time.Hour),
	}
	order := &models.Order{PlayerID: "5555555", Amount: decimal.NewFromInt(300)}

	got, err := scorer.Assess(context.Background(), order, user, "10.0.0.1")
	require.NoError(t, err)

	// first order 10 + amount 5 + ip 20 + player ids 15 + oauth 5
	assert.Equal(t, 55, got.Score)
	assert.Equal(t, models.RiskFlagged, got.Status)
	assert.Equal(t, now.Add(-time.Hour), sinceIP)
	assert.Equal(t, now.Add(-24*time.Hour), sinceFailed)
}

func TestAssessKnownPlayerIDIsNotCountedTwice(t *testing.T) {
	history := &mockHistory{
		completedFn: func(ctx context.Context, userID uuid.UUID) (int64, error) { return 2, nil },
		playerIDsFn: func(ctx context.Context, userID uuid.UUID) ([]string, error) {
			return []string{"1111111", "2222222", "3333333"}, nil
		},
	}
	user := &models.User{ID: uuid.New(), Email: "a@example.com", CreatedAt: time.Now().Add(-72 * time.Hour)}
	order := &models.Order{PlayerID: "2222222", Amount: decimal.NewFromInt(50)}

	got, err := NewScorer(history).Assess(context.Background(), order, user, "")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)
}

func TestAssessCountsOnlyEarlierPlayerIDs(t *testing.T) {
	history := &mockHistory{
		completedFn: func(ctx context.Context, userID uuid.UUID) (int64, error) { return 2, nil },
		playerIDsFn: func(ctx context.Context, userID uuid.UUID) ([]string, error) {
			return []string{"1111111", "2222222", "3333333"}, nil
		},
	}
	user := &models.User{ID: uuid.New(), Email: "a@example.com", CreatedAt: time.Now().Add(-72 * time.Hour)}
	order := &models.Order{PlayerID: "4444444", Amount: decimal.NewFromInt(50)}

	got, err := NewScorer(history).Assess(context.Background(), order, user, "")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)
	assert.Empty(t, got.Reasons)
}

func TestAssessPropagatesHistoryError(t *testing.T) {
	history := &mockHistory{
		completedFn: func(ctx context.Context, userID uuid.UUID) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	user := &models.User{ID: uuid.New(), CreatedAt: time.Now()}

	_, err := NewScorer(history).Assess(context.Background(), &models.Order{}, user, "")
	assert.Error(t, err)
}

func TestGormHistory(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, 48*time.Hour)
	product := testutil.CreateProduct(t, db, "100")
	now := time.Now()

	statuses := []models.OrderStatus{models.OrderPaid, models.OrderFailed, models.OrderFailed, models.OrderPending, models.OrderRefunded}
	for i, status := range statuses {
		order := &models.Order{
			UserID:       user.ID,
			ProductID:    product.ID,
			ProductTitle: product.Title,
			Amount:       product.DiscountPrice,
			PlayerID:     []string{"1111111", "2222222", "2222222", "3333333", "3333333"}[i],
			PlayerName:   "p",
			Status:       status,
			ClientIP:     "10.0.0.9",
		}
		order.SetDelivery(models.DeliveryState{Status: models.DeliveryPending})
		require.NoError(t, db.Create(order).Error)
	}

	h := NewGormHistory(db)
	ctx := context.Background()

	completed, err := h.CompletedOrders(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, completed)

	fromIP, err := h.OrdersFromIPSince(ctx, "10.0.0.9", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 5, fromIP)

	ids, err := h.PlayerIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1111111", "2222222", "3333333"}, ids)

	failed, err := h.FailedOrdersSince(ctx, user.ID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, failed)
}
