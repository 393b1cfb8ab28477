package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cinema_pos/catalog"
	"cinema_pos/config"
	"cinema_pos/constants"
	"cinema_pos/dashboard"
	"cinema_pos/database"
	"cinema_pos/events"
	"cinema_pos/gateway"
	"cinema_pos/handler"
	"cinema_pos/helper"
	"cinema_pos/ledger"
	"cinema_pos/lifecycle"
	"cinema_pos/model"
	"cinema_pos/orderstore"
	"cinema_pos/receipt"
	"cinema_pos/router"
	"cinema_pos/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app     *fiber.App
	theater *model.Theater
	other   *model.Theater
	popcorn *model.Product
	cola    *model.Product
	staff   string
	manager string
	admin   string
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	helper.SetJWTSecret("test-secret")

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cat := catalog.New(db)
	theater, err := cat.CreateTheater(ctx, model.CreateTheaterInput{Name: "Galaxy Andheri", Code: "GAL"})
	require.NoError(t, err)
	other, err := cat.CreateTheater(ctx, model.CreateTheaterInput{Name: "Regal Colaba", Code: "REG"})
	require.NoError(t, err)

	inventory := ledger.New(db, 15*time.Minute)
	popcorn, err := cat.CreateProduct(ctx, model.CreateProductInput{
		TheaterId: theater.ID, Name: "Salted Popcorn", BasePrice: 10000, TaxRate: 5, GSTType: model.GSTExclude, Category: "food",
	})
	require.NoError(t, err)
	cola, err := cat.CreateProduct(ctx, model.CreateProductInput{
		TheaterId: theater.ID, Name: "Cola", BasePrice: 10500, TaxRate: 5, GSTType: model.GSTInclude, Category: "beverages",
	})
	require.NoError(t, err)
	require.NoError(t, inventory.Init(ctx, theater.ID, popcorn.ID, 5))
	require.NoError(t, inventory.Init(ctx, theater.ID, cola.ID, 5))

	password, err := helper.HashPassword("secret123")
	require.NoError(t, err)
	theaterID := theater.ID
	require.NoError(t, db.Create(&model.Account{Username: "counter1", Password: password, Active: true, Role: constants.ROLE_STAFF, TheaterId: &theaterID}).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	orders := orderstore.New(db)
	resolver := gateway.NewConfigResolver(db, rdb, time.Minute, gateway.NewFactory(config.Gateway{}, nil))
	coord := lifecycle.New(cat, inventory, orders, resolver, lifecycle.Options{})
	renderer, err := receipt.NewRenderer("")
	require.NoError(t, err)

	handler.Init(handler.Deps{
		Settings: &config.Settings{
			PublicAppURL: "https://order.example.com",
			JWT:          config.JWT{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour, GuestTTL: time.Hour},
		},
		DB:          db,
		Catalog:     cat,
		Ledger:      inventory,
		Orders:      orders,
		Coordinator: coord,
		Gateways:    resolver,
		Dashboard:   dashboard.NewCache(rdb, dashboard.NewService(db, orders), time.Minute),
		Receipts:    receipt.NewService(renderer, cat, nil, nil),
		Hub:         events.NewHub(),
	})

	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	router.SetupRoutes(app)

	token := func(role string, theater *uint) string {
		tok, err := helper.GenerateAccessToken(model.TokenClaim{Username: strings.ToLower(role), Role: role, TheaterId: theater}, time.Hour)
		require.NoError(t, err)
		return tok
	}
	return &testApp{
		app:     app,
		theater: theater,
		other:   other,
		popcorn: popcorn,
		cola:    cola,
		staff:   token(constants.ROLE_STAFF, &theaterID),
		manager: token(constants.ROLE_MANAGER, &theaterID),
		admin:   token(constants.ROLE_ADMIN, nil),
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &env))
	} else {
		env.Data = raw
	}
	return resp, env
}

func (a *testApp) cashOrder(key string, qty int64) map[string]any {
	return map[string]any{
		"theaterId":      a.theater.ID,
		"items":          []map[string]any{{"productId": a.popcorn.ID, "quantity": qty}},
		"customerName":   "Walk-in",
		"paymentMethod":  "cash",
		"source":         "pos",
		"idempotencyKey": key,
	}
}

func TestLogin(t *testing.T) {
	a := setupApp(t)

	resp, env := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "counter1", "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.AccessToken)

	resp, env = a.do(t, http.MethodGet, "/api/v1/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claim model.TokenClaim
	require.NoError(t, json.Unmarshal(env.Data, &claim))
	assert.Equal(t, constants.ROLE_STAFF, claim.Role)
	assert.Equal(t, a.theater.ID, *claim.TheaterId)

	resp, _ = a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "counter1", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/auth/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAcceptListAndReceipt(t *testing.T) {
	a := setupApp(t)

	resp, env := a.do(t, http.MethodPost, "/api/v1/orders", a.staff, a.cashOrder("k-1", 2))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(env.Data))
	var accepted model.AcceptResult
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	order := accepted.Order
	assert.Equal(t, model.OrderPaid, order.Status)
	assert.Equal(t, int64(21000), order.Pricing.Total)
	assert.Regexp(t, `^GAL-\d{8}-0001$`, order.OrderNumber)

	first := string(env.Data)
	assert.Empty(t, resp.Header.Get("Idempotent-Replayed"))
	resp, env = a.do(t, http.MethodPost, "/api/v1/orders", a.staff, a.cashOrder("k-1", 2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, first, string(env.Data))

	resp, env = a.do(t, http.MethodGet, "/api/v1/orders?source=pos,kiosk", a.staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list model.OrderListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, int64(21000), list.Summary.TotalRevenue)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/orders?source=drive-in", a.staff, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = a.do(t, http.MethodGet, "/api/v1/orders/"+order.ID+"/receipt", a.staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(env.Data), order.OrderNumber)

	resp, _ = a.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/complete", a.staff, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = a.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/complete", a.staff, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", env.Kind)
}

func TestAcceptErrors(t *testing.T) {
	a := setupApp(t)

	resp, env := a.do(t, http.MethodPost, "/api/v1/orders", a.staff, a.cashOrder("big", 6))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Kind)

	empty := a.cashOrder("empty", 1)
	empty["items"] = []any{}
	resp, env = a.do(t, http.MethodPost, "/api/v1/orders", a.staff, empty)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", env.Kind)

	upi := a.cashOrder("upi", 1)
	upi["paymentMethod"] = "upi"
	resp, env = a.do(t, http.MethodPost, "/api/v1/orders", a.staff, upi)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "PAYMENT_METHOD_NOT_ALLOWED", env.Kind)

	resp, _ = a.do(t, http.MethodPost, "/api/v1/orders", "", a.cashOrder("anon", 1))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTheaterScoping(t *testing.T) {
	a := setupApp(t)

	resp, _ := a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/products", a.other.ID), a.staff, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	foreign := a.cashOrder("foreign", 1)
	foreign["theaterId"] = a.other.ID
	resp, _ = a.do(t, http.MethodPost, "/api/v1/orders", a.staff, foreign)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env := a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/products", a.theater.ID), a.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var products []model.ProductView
	require.NoError(t, json.Unmarshal(env.Data, &products))
	require.Len(t, products, 2)
	for _, p := range products {
		assert.Equal(t, int64(5), p.Stock)
	}

	resp, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/dashboard", a.theater.ID), a.staff, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/dashboard", a.theater.ID), a.manager, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuestOrdering(t *testing.T) {
	a := setupApp(t)

	resp, env := a.do(t, http.MethodPost, "/api/v1/auth/guest", "", map[string]string{"theaterSlug": a.theater.Slug, "qrName": "Screen-1-A5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var guest struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &guest))

	resp, _ = a.do(t, http.MethodPost, "/api/v1/orders", guest.AccessToken, a.cashOrder("g-1", 1))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	online := a.cashOrder("g-2", 1)
	online["source"] = "qr_code"
	online["paymentMethod"] = "upi"
	resp, env = a.do(t, http.MethodPost, "/api/v1/orders", guest.AccessToken, online)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "PAYMENT_METHOD_NOT_ALLOWED", env.Kind)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/orders", guest.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/api/v1/auth/guest", "", map[string]string{"theaterSlug": "nowhere"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatewayConfigAdmin(t *testing.T) {
	a := setupApp(t)
	path := fmt.Sprintf("/api/v1/theaters/%d/gateway/kiosk", a.theater.ID)

	resp, _ := a.do(t, http.MethodGet, path, a.manager, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, env := a.do(t, http.MethodPut, path, a.manager, map[string]any{
		"provider":        "razorpay",
		"enabled":         true,
		"acceptedMethods": []string{"cash", "upi"},
		"keyId":           "rzp_test",
		"keySecret":       "shh",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(env.Data), "shh")

	resp, env = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/payment-methods?source=kiosk", a.theater.ID), a.staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view model.PaymentMethodsView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.ProviderRazorpay, view.Provider)
	assert.Equal(t, []model.PaymentMethod{model.MethodCash, model.MethodUPI}, view.Methods)

	resp, env = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/payment-methods?source=offline-pos", a.theater.ID), a.staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, []model.PaymentMethod{model.MethodCash}, view.Methods)

	resp, _ = a.do(t, http.MethodPut, path, a.staff, map[string]any{"provider": "none"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = a.do(t, http.MethodPut, fmt.Sprintf("/api/v1/theaters/%d/gateway/drive-in", a.theater.ID), a.manager, map[string]any{"provider": "none"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProductAdminAndQR(t *testing.T) {
	a := setupApp(t)

	resp, env := a.do(t, http.MethodPost, "/api/v1/products", a.manager, map[string]any{
		"theaterId":    a.theater.ID,
		"name":         "Nachos",
		"basePrice":    15000,
		"taxRate":      5,
		"gstType":      "INCLUDE",
		"category":     "food",
		"initialStock": 20,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.ProductView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, int64(20), created.Stock)

	resp, env = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/restock", created.ID), a.staff, map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var level model.StockLevel
	require.NoError(t, json.Unmarshal(env.Data, &level))
	assert.Equal(t, int64(25), level.Available)
	assert.Equal(t, int64(5), level.Restocked)

	resp, env = a.do(t, http.MethodPut, fmt.Sprintf("/api/v1/products/%d", created.ID), a.manager, map[string]any{"offerPrice": 12000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var edited model.ProductView
	require.NoError(t, json.Unmarshal(env.Data, &edited))
	assert.Equal(t, int64(12000), edited.OfferPrice)
	assert.Equal(t, "Nachos", edited.Name)

	resp, _ = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/restock", created.ID), a.staff, map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/theaters/%d/qr.png?name=Screen-1-A5", a.theater.ID), a.manager, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "\x89PNG", string(env.Data[:4]))
}
