package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
	authuc "example.com/pod-fulfillment/internal/usecase/auth"
	cartuc "example.com/pod-fulfillment/internal/usecase/cart"
	checkoutuc "example.com/pod-fulfillment/internal/usecase/checkout"
	orderuc "example.com/pod-fulfillment/internal/usecase/order"
	paymentuc "example.com/pod-fulfillment/internal/usecase/payment"
)

// RequestObserver records per-route request metrics.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

type API struct {
	authSvc     *authuc.Service
	cartSvc     *cartuc.Service
	checkoutSvc *checkoutuc.Service
	orderSvc    *orderuc.Service
	paymentSvc  *paymentuc.Service
	validator   *validator.Validate
	metrics     RequestObserver
	metricsHTTP http.Handler
	healthCheck func(ctx context.Context) error
	logger      *slog.Logger
}

type Dependencies struct {
	AuthService     *authuc.Service
	CartService     *cartuc.Service
	CheckoutService *checkoutuc.Service
	OrderService    *orderuc.Service
	PaymentService  *paymentuc.Service
	Metrics         RequestObserver
	MetricsHandler  http.Handler
	// HealthCheck pings storage. Nil reports healthy.
	HealthCheck func(ctx context.Context) error
	Logger      *slog.Logger
}

func NewAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		authSvc:     deps.AuthService,
		cartSvc:     deps.CartService,
		checkoutSvc: deps.CheckoutService,
		orderSvc:    deps.OrderService,
		paymentSvc:  deps.PaymentService,
		validator:   validator.New(),
		metrics:     deps.Metrics,
		metricsHTTP: deps.MetricsHandler,
		healthCheck: deps.HealthCheck,
		logger:      logger,
	}
}

// Handler is the router wrapped with OpenTelemetry server instrumentation.
func (a *API) Handler() http.Handler {
	return otelhttp.NewHandler(a.Router(), "pod-fulfillment")
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(a.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.AllowContentType("application/json", "text/plain"))

	r.Get("/health", a.handleHealth)
	if a.metricsHTTP != nil {
		r.Method(http.MethodGet, "/metrics", a.metricsHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/payments/webhook", a.handlePaymentWebhook)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware)

			pr.Get("/cart", a.handleGetCart)
			pr.Post("/cart", a.handleAddCartItem)
			pr.Put("/cart/{id}", a.handleUpdateCartItem)
			pr.Delete("/cart/{id}", a.handleRemoveCartItem)
			pr.Post("/cart/checkout", a.handleCheckout)

			pr.Get("/orders", a.handleListOrders)
			pr.Route("/orders/{id}", func(or chi.Router) {
				or.Get("/", a.handleGetOrder)
				or.Post("/payments", a.handleRecordPayment)
				or.Get("/payments/{paymentId}", a.handleGetPayment)
				or.Post("/payment-intent", a.handleCreateIntent)
				or.Post("/checkout-session", a.handleCreateCheckoutSession)
			})
		})

		r.Group(func(ar chi.Router) {
			ar.Use(a.authMiddleware)
			ar.Use(a.requireRoles(domuser.RoleCodeAdmin))

			ar.Patch("/admin/orders/{id}/status", a.handleUpdateOrderStatus)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.healthCheck(ctx); err != nil {
			a.logger.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return a.validator.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error kinds reported in error bodies.
const (
	kindBadRequest              = "BadRequest"
	kindUnauthorized            = "Unauthorized"
	kindForbidden               = "Forbidden"
	kindNotFound                = "NotFound"
	kindInvalidProduct          = "InvalidProduct"
	kindInvalidQuantity         = "InvalidQuantity"
	kindEmptyCart               = "EmptyCart"
	kindInvalidShippingAddress  = "InvalidShippingAddress"
	kindInvalidCredential       = "InvalidCredential"
	kindInvalidStatus           = "InvalidStatus"
	kindInvalidStatusTransition = "InvalidStatusTransition"
	kindOrderNotPayable         = "OrderNotPayable"
	kindInvalidAmount           = "InvalidAmount"
	kindInvalidMethod           = "InvalidMethod"
	kindTransactionIDRequired   = "TransactionIDRequired"
	kindDuplicateTransaction    = "DuplicateTransaction"
	kindGatewayRejected         = "GatewayRejected"
	kindTransient               = "Transient"
	kindInternal                = "Internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func parseIDParam(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

var (
	errInvalidID = errors.New("invalid id")
	errInternal  = errors.New("internal server error")
)

// retryAfter is the Retry-After hint, in seconds, sent with transient
// failures.
const retryAfter = "5"

func (a *API) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domproduct.ErrInvalidProduct):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidProduct, err)
	case errors.Is(err, domcart.ErrInvalidQuantity):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidQuantity, err)
	case errors.Is(err, domorder.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, kindEmptyCart, err)
	case errors.Is(err, domorder.ErrInvalidShippingAddress):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidShippingAddress, err)
	case errors.Is(err, domuser.ErrInvalidCredential):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidCredential, err)
	case errors.Is(err, domorder.ErrInvalidStatus):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidStatus, err)
	case errors.Is(err, dompayment.ErrInvalidAmount):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidAmount, err)
	case errors.Is(err, dompayment.ErrInvalidMethod):
		respondError(w, http.StatusUnprocessableEntity, kindInvalidMethod, err)
	case errors.Is(err, dompayment.ErrTransactionIDRequired):
		respondError(w, http.StatusUnprocessableEntity, kindTransactionIDRequired, err)
	case errors.Is(err, domcart.ErrCartItemNotFound),
		errors.Is(err, domorder.ErrOrderNotFound),
		errors.Is(err, dompayment.ErrPaymentNotFound),
		errors.Is(err, domproduct.ErrProductNotFound):
		respondError(w, http.StatusNotFound, kindNotFound, err)
	case errors.Is(err, domuser.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, kindUnauthorized, err)
	case errors.Is(err, fault.ErrForbidden):
		respondError(w, http.StatusForbidden, kindForbidden, err)
	case errors.Is(err, domorder.ErrInvalidStatusTransition):
		respondError(w, http.StatusConflict, kindInvalidStatusTransition, err)
	case errors.Is(err, domorder.ErrOrderNotPayable):
		respondError(w, http.StatusConflict, kindOrderNotPayable, err)
	case errors.Is(err, dompayment.ErrDuplicateTransaction):
		respondError(w, http.StatusConflict, kindDuplicateTransaction, err)
	case errors.Is(err, dompayment.ErrGatewayRejected):
		respondError(w, http.StatusBadGateway, kindGatewayRejected, dompayment.ErrGatewayRejected)
	case fault.IsTransient(err):
		a.logger.WarnContext(r.Context(), "transient failure", slog.String("path", r.URL.Path), slog.Any("error", err))
		w.Header().Set("Retry-After", retryAfter)
		respondError(w, http.StatusServiceUnavailable, kindTransient, fault.ErrTransient)
	default:
		a.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, kindInternal, errInternal)
	}
}
