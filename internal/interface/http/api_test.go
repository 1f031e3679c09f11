package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"golang.org/x/crypto/bcrypt"

	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
	stripegw "example.com/pod-fulfillment/internal/infra/gateway/stripe"
	"example.com/pod-fulfillment/internal/infra/persistence/memory"
	"example.com/pod-fulfillment/internal/infra/security"
	authuc "example.com/pod-fulfillment/internal/usecase/auth"
	cartuc "example.com/pod-fulfillment/internal/usecase/cart"
	checkoutuc "example.com/pod-fulfillment/internal/usecase/checkout"
	orderuc "example.com/pod-fulfillment/internal/usecase/order"
	paymentuc "example.com/pod-fulfillment/internal/usecase/payment"
)

const testWebhookSecret = "whsec_test_secret"

// fakeGateway signs nothing itself: webhook verification goes through the
// real Stripe adapter, intent and session creation are canned.
type fakeGateway struct {
	*stripegw.Gateway
	intentErr   error
	sessionErr  error
	lastIntent  dompayment.IntentRequest
	lastSession dompayment.SessionRequest
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req dompayment.IntentRequest) (*dompayment.Intent, error) {
	g.lastIntent = req
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return &dompayment.Intent{
		ID:           fmt.Sprintf("pi_%d", req.OrderID),
		ClientSecret: fmt.Sprintf("pi_%d_secret", req.OrderID),
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
	}, nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req dompayment.SessionRequest) (*dompayment.Session, error) {
	g.lastSession = req
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	return &dompayment.Session{
		ID:  fmt.Sprintf("cs_%d", req.OrderID),
		URL: fmt.Sprintf("https://checkout.stripe.com/c/pay/cs_%d", req.OrderID),
	}, nil
}

type testEnv struct {
	t        *testing.T
	store    *memory.Store
	router   http.Handler
	tokens   *security.JWTService
	gateway  *fakeGateway
	health   error
	customer domuser.User
	other    domuser.User
	seller   domuser.User
	admin    domuser.User
	productA domproduct.Product
	productB domproduct.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	hasher := security.NewBcryptService(bcrypt.MinCost)
	hash, err := hasher.Hash("secret123")
	require.NoError(t, err)

	e := &testEnv{
		t:       t,
		store:   store,
		tokens:  security.NewJWTService("test-secret", time.Hour),
		gateway: &fakeGateway{Gateway: stripegw.New(stripegw.Config{WebhookSecret: testWebhookSecret}, logger)},
	}
	e.customer = store.AddUser(domuser.User{Name: "Buyer", Email: "buyer@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeCustomer})
	e.other = store.AddUser(domuser.User{Name: "Other", Email: "other@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeCustomer})
	e.seller = store.AddUser(domuser.User{Name: "Seller", Email: "seller@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeSeller})
	e.admin = store.AddUser(domuser.User{Name: "Admin", Email: "admin@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeAdmin})
	e.productA = store.AddProduct(domproduct.Product{SellerID: e.seller.ID, Name: "Mug", Price: decimal.RequireFromString("10.00"), IsActive: true})
	e.productB = store.AddProduct(domproduct.Product{SellerID: e.admin.ID, Name: "Poster", Price: decimal.RequireFromString("25.00"), IsActive: true})

	api := NewAPI(Dependencies{
		AuthService:     authuc.NewService(store.Users(), hasher, e.tokens),
		CartService:     cartuc.NewService(store.Carts(), store.Products(), nil, logger),
		CheckoutService: checkoutuc.NewService(store, nil, nil, logger),
		OrderService:    orderuc.NewService(store.Orders(), store, store.Products(), logger),
		PaymentService: paymentuc.NewService(store, store.Orders(), e.gateway, paymentuc.Config{
			Currency:       "usd",
			PublishableKey: "pk_test_123",
			SuccessURL:     "https://shop.example.com/done",
			CancelURL:      "https://shop.example.com/cart",
		}, nil, logger),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		HealthCheck: func(context.Context) error { return e.health },
		Logger:      logger,
	})
	e.router = api.Handler()
	return e
}

func (e *testEnv) token(u domuser.User) string {
	e.t.Helper()
	token, err := e.tokens.GenerateToken(&u)
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) do(method, path string, u *domuser.User, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(*u))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) webhook(payload, signature string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sign(payload string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	}).Header
}

func intentSucceeded(eventID, intentID string, orderRef string, amountMinor int64) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"payment_intent.succeeded","data":{"object":{"id":%q,"object":"payment_intent","amount_received":%d,"currency":"usd","metadata":{"order_id":%q}}}}`,
		eventID, intentID, amountMinor, orderRef)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func requireKind(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, kind, decode(t, rec)["kind"])
}

// placeOrder fills the user's cart with 2 x A and 1 x B and checks out.
func (e *testEnv) placeOrder(u domuser.User) int64 {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/cart", &u, map[string]any{"product_id": e.productA.ID, "quantity": 2})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = e.do(http.MethodPost, "/api/v1/cart", &u, map[string]any{"product_id": e.productB.ID, "quantity": 1})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/v1/cart/checkout", &u, map[string]any{"shipping_address": "1 Main St, Springfield"})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(decode(e.t, rec)["id"].(float64))
}

func (e *testEnv) order(id int64) *domorder.Order {
	e.t.Helper()
	o, err := e.store.Orders().GetByID(context.Background(), id, domorder.IncludeAll)
	require.NoError(e.t, err)
	return o
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	e.health = errors.New("db down")
	rec = e.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/auth/login", nil, map[string]string{"email": "Buyer@Example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.NotEmpty(t, body["token"])

	// The issued token opens the protected routes.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+body["token"].(string))
	cartRec := httptest.NewRecorder()
	e.router.ServeHTTP(cartRec, req)
	require.Equal(t, http.StatusOK, cartRec.Code, cartRec.Body.String())

	require.Equal(t, "Bearer", body["token_type"])
	require.Equal(t, "buyer@example.com", body["user"].(map[string]any)["email"])
}

func TestLogin_Rejections(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{name: "wrong password", body: map[string]string{"email": "buyer@example.com", "password": "wrong-password"}, status: http.StatusUnauthorized, kind: kindUnauthorized},
		{name: "unknown email", body: map[string]string{"email": "nobody@example.com", "password": "secret123"}, status: http.StatusUnauthorized, kind: kindUnauthorized},
		{name: "not an email", body: map[string]string{"email": "not-an-email", "password": "secret123"}, status: http.StatusUnprocessableEntity, kind: kindInvalidCredential},
		{name: "short password", body: map[string]string{"email": "buyer@example.com", "password": "123"}, status: http.StatusUnprocessableEntity, kind: kindInvalidCredential},
		{name: "missing password", body: map[string]string{"email": "buyer@example.com"}, status: http.StatusUnprocessableEntity, kind: kindInvalidCredential},
		{name: "not an object", body: "buyer@example.com", status: http.StatusBadRequest, kind: kindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/v1/auth/login", nil, tt.body)

			requireKind(t, rec, tt.status, tt.kind)
			require.NotContains(t, decode(t, rec), "token")
		})
	}
}

func TestAuth_MissingOrInvalidToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/v1/cart", nil, nil)
	requireKind(t, rec, http.StatusUnauthorized, kindUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	requireKind(t, rec, http.StatusUnauthorized, kindUnauthorized)
}
