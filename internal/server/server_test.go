package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/ucshop/config"
	"github.com/farellandr/ucshop/internal/gateway"
	"github.com/farellandr/ucshop/internal/logger"
	"github.com/farellandr/ucshop/internal/middleware"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/testutil"
)

const merchantSalt = "salt-value-123"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func (s *testServer) do(method, path, token, contentType string, body []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) json(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(s.t, err)
	}
	return s.do(method, path, token, "application/json", raw)
}

func newRouter(t *testing.T, app *App) *gin.Engine {
	t.Helper()
	router, err := NewRouter(app)
	require.NoError(t, err)
	return router
}

func token(t *testing.T, user *models.User) string {
	t.Helper()
	tok, err := middleware.IssueToken("jwt-secret", models.Actor{ID: user.ID, Role: user.Role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestOrderFlowOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"payment":{"url":"https://pay.example.com/p/xyz"}}}`))
	}))
	defer gatewaySrv.Close()

	app, err := NewApp(&config.Config{
		JWTSecret:       "jwt-secret",
		SettingsKey:     "settings-key",
		GatewayCurrency: "TL",
		GatewayLocale:   "tr",
		GatewayTimeout:  5 * time.Second,
		CallbackLockTTL: 30 * time.Second,
	}, db, logger.NewTestLogger())
	require.NoError(t, err)
	defer app.Close()

	s := &testServer{t: t, router: newRouter(t, app)}
	admin := testutil.CreateUser(t, db, 30*24*time.Hour, func(u *models.User) { u.Role = models.RoleAdmin })
	buyer := testutil.CreateUser(t, db, 48*time.Hour)
	adminToken, buyerToken := token(t, admin), token(t, buyer)
	product := testutil.CreateProduct(t, db, "100")

	orderBody := map[string]string{
		"product_id":  product.ID.String(),
		"player_id":   "5123456789",
		"player_name": "ada",
	}

	w, env := s.json(http.MethodPost, "/v1/orders", buyerToken, orderBody)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "GATEWAY_NOT_CONFIGURED", env.Error.Code)

	settingsBody := map[string]interface{}{
		"provider":      "hosted",
		"base_url":      gatewaySrv.URL,
		"merchant_id":   "M-1",
		"merchant_key":  "merchant-key-0001",
		"merchant_salt": merchantSalt,
	}
	w, _ = s.json(http.MethodPut, "/v1/admin/settings/gateway", buyerToken, settingsBody)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.json(http.MethodPut, "/v1/admin/settings/gateway", adminToken, settingsBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, string(env.Data), "merchant-key-0001")
	assert.Contains(t, string(env.Data), "merc*********0001")

	w, env = s.json(http.MethodPost, "/v1/admin/products/"+product.ID.String()+"/stock", adminToken,
		map[string][]string{"codes": {"A1", "A2", "A1"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var imported struct {
		Created    int      `json:"created"`
		Duplicates []string `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &imported))
	assert.Equal(t, 2, imported.Created)
	assert.Equal(t, []string{"A1"}, imported.Duplicates)

	w, env = s.json(http.MethodPost, "/v1/orders", buyerToken, map[string]string{
		"product_id": product.ID.String(), "player_id": "123", "player_name": "ada",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Error.Fields, "player_id")

	w, env = s.json(http.MethodPost, "/v1/orders", buyerToken, orderBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		OrderID    string `json:"order_id"`
		PaymentURL string `json:"payment_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "https://pay.example.com/p/xyz", created.PaymentURL)

	forged := url.Values{
		"merchant_oid":   {created.OrderID},
		"status":         {"success"},
		"transaction_id": {"TX-100"},
		"total_amount":   {"100.00"},
		"hash":           {gateway.CallbackHash(created.OrderID, "100.00", "guessed")},
	}
	w, env = s.do(http.MethodPost, "/v1/payments/callback", "", "application/x-www-form-urlencoded", []byte(forged.Encode()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)

	callback := url.Values{
		"merchant_oid":   {created.OrderID},
		"status":         {"success"},
		"transaction_id": {"TX-100"},
		"total_amount":   {"100.00"},
		"hash":           {gateway.CallbackHash(created.OrderID, "100.00", merchantSalt)},
	}
	w, env = s.do(http.MethodPost, "/v1/payments/callback", "", "application/x-www-form-urlencoded", []byte(callback.Encode()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"status":"paid"`)

	w, env = s.json(http.MethodGet, "/v1/orders/"+created.OrderID, buyerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Status   string `json:"status"`
		Delivery struct {
			Status string   `json:"status"`
			Items  []string `json:"items"`
		} `json:"delivery"`
		Risk json.RawMessage `json:"risk"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "paid", view.Status)
	assert.Equal(t, "delivered", view.Delivery.Status)
	assert.Len(t, view.Delivery.Items, 1)
	assert.Empty(t, view.Risk)

	w, _ = s.do(http.MethodGet, "/v1/orders/"+created.OrderID+"/qr", buyerToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w, _ = s.do(http.MethodGet, "/v1/orders/"+created.OrderID+"/qr?item=5", buyerToken, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.json(http.MethodPost, "/v1/admin/orders/"+created.OrderID+"/refund", adminToken, map[string]string{"reason": "customer request"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"status":"refunded"`)
	assert.Contains(t, string(env.Data), `"risk"`)
}

func TestCallbackAcceptsJSONNumbers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	app, err := NewApp(&config.Config{JWTSecret: "jwt-secret", SettingsKey: "settings-key"}, db, logger.NewTestLogger())
	require.NoError(t, err)
	s := &testServer{t: t, router: newRouter(t, app)}

	w, env := s.do(http.MethodPost, "/v1/payments/callback", "", "application/json",
		[]byte(`{"order_id":"not-a-uuid","status":"success","transaction_id":"T","amount":100.50,"hash":"x"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "GATEWAY_NOT_CONFIGURED", env.Error.Code)

	w, env = s.do(http.MethodPost, "/v1/payments/callback", "", "application/json", []byte(`{"order_id":`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestStockImportFromFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	app, err := NewApp(&config.Config{JWTSecret: "jwt-secret", SettingsKey: "settings-key"}, db, logger.NewTestLogger())
	require.NoError(t, err)
	s := &testServer{t: t, router: newRouter(t, app)}
	admin := testutil.CreateUser(t, db, time.Hour, func(u *models.User) { u.Role = models.RoleAdmin })
	product := testutil.CreateProduct(t, db, "100")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "codes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("CODE-1\n\nCODE-2\r\nCODE-3\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	path := "/v1/admin/products/" + product.ID.String() + "/stock"
	w, env := s.do(http.MethodPost, path, token(t, admin), mw.FormDataContentType(), body.Bytes())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"created":3`)

	w, env = s.json(http.MethodGet, path, token(t, admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"available":3`)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := NewApp(&config.Config{JWTSecret: "jwt-secret", SettingsKey: "settings-key"}, testutil.NewDB(t), logger.NewTestLogger())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(t, app).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCallbackSourceIPHonorsTrustedProxies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]struct {
		proxies []string
		want    string
	}{
		"untrusted peer": {proxies: nil, want: "192.0.2.1"},
		"trusted proxy":  {proxies: []string{"192.0.2.1"}, want: "198.51.100.9"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			db := testutil.NewDB(t)
			app, err := NewApp(&config.Config{
				JWTSecret:      "jwt-secret",
				SettingsKey:    "settings-key",
				TrustedProxies: tc.proxies,
			}, db, logger.NewTestLogger())
			require.NoError(t, err)
			defer app.Close()

			user := testutil.CreateUser(t, db, 48*time.Hour)
			product := testutil.CreateProduct(t, db, "100")
			order := &models.Order{
				UserID:       user.ID,
				ProductID:    product.ID,
				ProductTitle: product.Title,
				Amount:       product.DiscountPrice,
				PlayerID:     "5123456789",
				PlayerName:   "ada",
				Status:       models.OrderPending,
			}
			order.SetDelivery(models.DeliveryState{Status: models.DeliveryPending})
			require.NoError(t, db.Create(order).Error)

			unsigned := url.Values{
				"order_id":       {order.ID.String()},
				"status":         {"success"},
				"transaction_id": {"TX-1"},
				"amount":         {"100.00"},
			}
			req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(unsigned.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("X-Forwarded-For", "198.51.100.9")
			w := httptest.NewRecorder()
			newRouter(t, app).ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var logged models.SecurityLog
			require.NoError(t, db.First(&logged).Error)
			assert.Equal(t, tc.want, logged.SourceIP)
		})
	}
}

func TestNewRouterRejectsInvalidProxy(t *testing.T) {
	app, err := NewApp(&config.Config{JWTSecret: "jwt-secret", SettingsKey: "settings-key"}, testutil.NewDB(t), logger.NewTestLogger())
	require.NoError(t, err)
	app.TrustedProxies = []string{"not-an-ip"}

	_, err = NewRouter(app)
	assert.Error(t, err)
}
