package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeflow/internal/app"
	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/auth"
	v1 "storeflow/internal/infrastructure/http/v1"
	"storeflow/internal/infrastructure/http/v1/middleware"
	"storeflow/pkg/logger"
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newTestAPI(t *testing.T, mutate func(cfg *v1.RouterConfig)) *testAPI {
	t.Helper()
	svc, store, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	cfg := v1.RouterConfig{
		Services:    svc,
		Logger:      logger.Nop(),
		Idempotency: store.Idempotency(time.Hour),
		StorageName: "memory",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testAPI{t: t, router: v1.NewRouter(cfg)}
}

func (a *testAPI) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func orderBody(storeID, itemID id.ID, qty string) map[string]any {
	return map[string]any{
		"storeId": storeID,
		"lines": []map[string]any{
			{"itemId": itemID, "quantity": qty, "uom": "kg", "unitPrice": "12.5"},
		},
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestOrderToShipmentFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	kitchenID, storeID, itemID := id.New(), id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/adjust", map[string]any{
		"locationId": kitchenID, "itemId": itemID, "quantity": "20", "uom": "kg", "reason": "opening stock",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(http.MethodPost, "/api/v1/orders", orderBody(storeID, itemID, "8"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	orderID := order["id"].(string)
	assert.Equal(t, "DRAFT", order["status"])
	assert.NotEmpty(t, order["number"])

	w = api.do(http.MethodPost, "/api/v1/orders/"+orderID+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SUBMITTED", decode(t, w)["status"])

	w = api.do(http.MethodPost, "/api/v1/orders/"+orderID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "APPROVED", decode(t, w)["status"])

	w = api.do(http.MethodPost, "/api/v1/shipments", map[string]any{
		"orderId":        orderID,
		"fromLocationId": kitchenID,
		"lines":          []map[string]any{{"itemId": itemID, "quantity": "8", "uom": "kg"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	shipmentID := decode(t, w)["id"].(string)

	w = api.do(http.MethodPost, "/api/v1/shipments/"+shipmentID+"/dispatch", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SHIPPED", decode(t, w)["status"])

	w = api.do(http.MethodGet, "/api/v1/inventory/balances?locationId="+kitchenID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balances []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balances))
	require.Len(t, balances, 1)
	assert.InDelta(t, 12.0, balances[0]["onHand"], 0.0001)

	w = api.do(http.MethodGet, "/api/v1/inventory/transactions?refType=SHIPMENT&refId="+shipmentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	items := page["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "TRANSFER_OUT", items[0].(map[string]any)["kind"])
}

func TestDispatchWithoutStockReturnsConflict(t *testing.T) {
	api := newTestAPI(t, nil)
	kitchenID, storeID, itemID := id.New(), id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/orders", orderBody(storeID, itemID, "5"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decode(t, w)["id"].(string)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/v1/orders/"+orderID+"/submit", nil).Code)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/v1/orders/"+orderID+"/approve", nil).Code)

	w = api.do(http.MethodPost, "/api/v1/shipments", map[string]any{
		"orderId":        orderID,
		"fromLocationId": kitchenID,
		"lines":          []map[string]any{{"itemId": itemID, "quantity": "5"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	shipmentID := decode(t, w)["id"].(string)

	w = api.do(http.MethodPost, "/api/v1/shipments/"+shipmentID+"/dispatch", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, apperror.CodeInsufficientStock, body["code"])

	w = api.do(http.MethodGet, "/api/v1/shipments/"+shipmentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DRAFT", decode(t, w)["status"])
}

func TestErrorBodies(t *testing.T) {
	api := newTestAPI(t, nil)

	t.Run("invalid id", func(t *testing.T) {
		w := api.do(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, apperror.CodeValidation, body["code"])
	})

	t.Run("unknown order", func(t *testing.T) {
		w := api.do(http.MethodGet, "/api/v1/orders/"+id.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apperror.CodeNotFound, decode(t, w)["code"])
	})

	t.Run("invalid transition", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/v1/orders", orderBody(id.New(), id.New(), "1"))
		require.Equal(t, http.StatusCreated, w.Code)
		orderID := decode(t, w)["id"].(string)

		w = api.do(http.MethodPost, "/api/v1/orders/"+orderID+"/approve", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperror.CodeInvalidTransition, decode(t, w)["code"])
	})

	t.Run("missing lines", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/v1/orders", map[string]any{"storeId": id.New()})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperror.CodeValidation, decode(t, w)["code"])
	})

	t.Run("bad severity", func(t *testing.T) {
		w := api.do(http.MethodGet, "/api/v1/alerts/low-stock?severity=LOUD", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIdempotentCreateReplays(t *testing.T) {
	api := newTestAPI(t, nil)
	storeID, itemID := id.New(), id.New()
	body := orderBody(storeID, itemID, "3")

	first := api.do(http.MethodPost, "/api/v1/orders", body, middleware.HeaderIdempotencyKey, "order-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(http.MethodPost, "/api/v1/orders", body, middleware.HeaderIdempotencyKey, "order-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := api.do(http.MethodGet, "/api/v1/orders?storeId="+storeID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["totalCount"])

	other := api.do(http.MethodPost, "/api/v1/orders", orderBody(storeID, itemID, "4"), middleware.HeaderIdempotencyKey, "order-1")
	assert.Equal(t, http.StatusConflict, other.Code)
	assert.Equal(t, apperror.CodeIdempotency, decode(t, other)["code"])
}

func TestAuthAndRoles(t *testing.T) {
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	api := newTestAPI(t, func(cfg *v1.RouterConfig) {
		cfg.JWTValidator = jwtSvc
		cfg.AuthRequired = true
	})

	token := func(roles ...string) string {
		tok, _, err := jwtSvc.Issue(auth.Identity{UserID: "user-1", Email: "user@example.com", Roles: roles})
		require.NoError(t, err)
		return tok
	}

	t.Run("missing token", func(t *testing.T) {
		api.token = ""
		w := api.do(http.MethodGet, "/api/v1/orders", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, apperror.CodeUnauthorized, body["code"])
	})

	t.Run("garbage token", func(t *testing.T) {
		api.token = "not.a.jwt"
		w := api.do(http.MethodGet, "/api/v1/orders", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("store cannot consolidate", func(t *testing.T) {
		api.token = token(middleware.RoleStore)
		w := api.do(http.MethodPost, "/api/v1/consolidation/generate", map[string]any{"deliveryDate": "2025-03-01"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, apperror.CodeForbidden, decode(t, w)["code"])
	})

	t.Run("kitchen consolidates", func(t *testing.T) {
		api.token = token(middleware.RoleKitchen)
		w := api.do(http.MethodPost, "/api/v1/consolidation/generate", map[string]any{"deliveryDate": "2025-03-01"})
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("store orders", func(t *testing.T) {
		api.token = token(middleware.RoleStore)
		w := api.do(http.MethodPost, "/api/v1/orders", orderBody(id.New(), id.New(), "2"))
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "user-1", decode(t, w)["createdBy"])
	})

	t.Run("admin passes every guard", func(t *testing.T) {
		api.token = token(middleware.RoleAdmin)
		w := api.do(http.MethodPost, "/api/v1/inventory/adjust", map[string]any{
			"locationId": id.New(), "itemId": id.New(), "quantity": "1", "reason": "count",
		})
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})
}
