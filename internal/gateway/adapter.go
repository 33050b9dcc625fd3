package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/models"
)

const CheckoutPath = "/checkout/v1/payment"

// Credentials are decrypted gateway secrets. They must not outlive the
// operation that loaded them.
type Credentials struct {
	Provider     string
	BaseURL      string
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
	TestMode     bool
}

// ConfigProvider loads the active gateway credentials. Implementations return
// an apperrors CodeGatewayNotConfigured error when none are usable.
type ConfigProvider interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

type Options struct {
	CallbackURL string
	ReturnURL   string
	Currency    string
	Locale      string
	Timeout     time.Duration
}

// PaymentRequest is what the buyer needs to reach the hosted payment page.
type PaymentRequest struct {
	PaymentURL  string `json:"payment_url"`
	PaymentData string `json:"payment_data"`
	Signature   string `json:"signature"`
}

// CallbackResult is a normalized inbound callback.
type CallbackResult struct {
	OrderID       string
	Status        models.PaymentStatus
	TransactionID string
	Amount        decimal.Decimal
	HashValid     bool
}

type Adapter struct {
	config ConfigProvider
	client *http.Client
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewAdapter(config ConfigProvider, opts Options, logger *zap.Logger) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Adapter{
		config: config,
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Configured returns nil when usable credentials exist.
func (a *Adapter) Configured(ctx context.Context) error {
	_, err := a.config.Credentials(ctx)
	return err
}

type checkoutBuyer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	IP      string `json:"ip,omitempty"`
}

type checkoutItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type checkoutRequest struct {
	MerchantID  string         `json:"merchant_id"`
	OrderID     string         `json:"merchant_oid"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	Locale      string         `json:"locale"`
	Nonce       string         `json:"random_nr"`
	TestMode    bool           `json:"test_mode"`
	CallbackURL string         `json:"callback_url,omitempty"`
	ReturnURL   string         `json:"return_url,omitempty"`
	Buyer       checkoutBuyer  `json:"buyer"`
	Items       []checkoutItem `json:"items"`
}

type checkoutResponse struct {
	Response struct {
		Payment struct {
			URL string `json:"url"`
		} `json:"payment"`
	} `json:"response"`
}

// CreatePayment signs a checkout request for the order and asks the gateway
// for a hosted payment page. Card data never passes through this system.
func (a *Adapter) CreatePayment(ctx context.Context, order *models.Order, product *models.Product, user *models.User) (*PaymentRequest, error) {
	creds, err := a.config.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	amount := order.Amount.StringFixed(2)
	body, err := json.Marshal(checkoutRequest{
		MerchantID:  creds.MerchantID,
		OrderID:     order.ID.String(),
		Amount:      amount,
		Currency:    a.opts.Currency,
		Locale:      a.opts.Locale,
		Nonce:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		TestMode:    creds.TestMode,
		CallbackURL: a.opts.CallbackURL,
		ReturnURL:   a.opts.ReturnURL,
		Buyer: checkoutBuyer{
			ID:      user.ID.String(),
			Name:    user.FirstName,
			Surname: user.LastName,
			Email:   user.Email,
			Phone:   user.PhoneNumber,
			IP:      order.ClientIP,
		},
		Items: []checkoutItem{{
			Name:     fmt.Sprintf("%s - %s", product.Title, order.PlayerID),
			Quantity: 1,
			Price:    amount,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(creds.BaseURL, "/")+CheckoutPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGatewayUnavailable, "Failed to create payment request.", err)
	}
	signature := signRequest(httpReq, creds, body, a.now())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGatewayUnavailable, "Failed to send payment request.", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGatewayUnavailable, "Failed to read payment response.", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		a.logger.Warn("payment link generation failed",
			zap.String("orderId", order.ID.String()),
			zap.Int("status", resp.StatusCode))
		return nil, apperrors.Wrap(apperrors.CodeGatewayUnavailable, "Payment link generation failed.",
			fmt.Errorf("gateway responded with status %d", resp.StatusCode))
	}

	var parsed checkoutResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGatewayUnavailable, "Failed to parse payment response.", err)
	}
	if parsed.Response.Payment.URL == "" {
		return nil, apperrors.New(apperrors.CodeGatewayUnavailable, "Failed to extract payment URL.")
	}

	return &PaymentRequest{
		PaymentURL:  parsed.Response.Payment.URL,
		PaymentData: string(body),
		Signature:   signature,
	}, nil
}

var callbackAliases = map[string][]string{
	"order_id":       {"order_id", "merchant_oid"},
	"status":         {"status"},
	"transaction_id": {"transaction_id", "payment_id"},
	"amount":         {"amount", "total_amount"},
	"hash":           {"hash"},
}

// ProcessCallback normalizes a callback payload and verifies its hash. An
// invalid or missing hash is reported through HashValid, not as an error, so
// the caller can record the security event. Only the order id is needed for
// that; the remaining fields are validated once a hash is present.
func (a *Adapter) ProcessCallback(ctx context.Context, payload map[string]string) (*CallbackResult, error) {
	fields := make(map[string]string, len(callbackAliases))
	for name, aliases := range callbackAliases {
		for _, alias := range aliases {
			if v := strings.TrimSpace(payload[alias]); v != "" {
				fields[name] = v
				break
			}
		}
	}

	if fields["order_id"] == "" {
		return nil, apperrors.Validation("order_id", "is required")
	}
	if fields["hash"] == "" {
		unsigned := &CallbackResult{
			OrderID:       fields["order_id"],
			TransactionID: fields["transaction_id"],
		}
		unsigned.Status, _ = normalizeStatus(fields["status"])
		unsigned.Amount, _ = decimal.NewFromString(fields["amount"])
		return unsigned, nil
	}

	var missing *apperrors.Error
	for _, name := range []string{"status", "transaction_id", "amount"} {
		if fields[name] != "" {
			continue
		}
		if missing == nil {
			missing = apperrors.New(apperrors.CodeValidation, "Callback payload is incomplete.")
		}
		missing.WithField(name, "is required")
	}
	if missing != nil {
		return nil, missing
	}

	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return nil, apperrors.Validation("amount", "must be a decimal number")
	}

	status, err := normalizeStatus(fields["status"])
	if err != nil {
		return nil, err
	}

	creds, err := a.config.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	expected := CallbackHash(fields["order_id"], fields["amount"], creds.MerchantSalt)
	received := strings.ToLower(fields["hash"])

	return &CallbackResult{
		OrderID:       fields["order_id"],
		Status:        status,
		TransactionID: fields["transaction_id"],
		Amount:        amount,
		HashValid:     subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1,
	}, nil
}

// CallbackHash is hex(sha256(orderID + amount + secret)) over the values as sent.
func CallbackHash(orderID, amount, secret string) string {
	sum := sha256.Sum256([]byte(orderID + amount + secret))
	return hex.EncodeToString(sum[:])
}

var errUnknownStatus = errors.New("unknown payment status")

func normalizeStatus(raw string) (models.PaymentStatus, error) {
	switch strings.ToLower(raw) {
	case "success", "succeeded", "paid", "completed", "1", "true":
		return models.PaymentSuccess, nil
	case "failed", "failure", "cancelled", "canceled", "declined", "0", "false":
		return models.PaymentFailed, nil
	}
	return "", apperrors.Wrap(apperrors.CodeValidation, "Invalid input. Please check your fields.", errUnknownStatus).
		WithField("status", "unknown payment status")
}
