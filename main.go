package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
	"example.com/pod-fulfillment/internal/config"
	rediscache "example.com/pod-fulfillment/internal/infra/cache/redis"
	stripegw "example.com/pod-fulfillment/internal/infra/gateway/stripe"
	"example.com/pod-fulfillment/internal/infra/messaging/kafka"
	"example.com/pod-fulfillment/internal/infra/metrics"
	"example.com/pod-fulfillment/internal/infra/persistence/memory"
	"example.com/pod-fulfillment/internal/infra/persistence/mysql"
	"example.com/pod-fulfillment/internal/infra/persistence/postgres"
	"example.com/pod-fulfillment/internal/infra/security"
	httpapi "example.com/pod-fulfillment/internal/interface/http"
	"example.com/pod-fulfillment/internal/platform/logging"
	authuc "example.com/pod-fulfillment/internal/usecase/auth"
	cartuc "example.com/pod-fulfillment/internal/usecase/cart"
	checkoutuc "example.com/pod-fulfillment/internal/usecase/checkout"
	orderuc "example.com/pod-fulfillment/internal/usecase/order"
	paymentuc "example.com/pod-fulfillment/internal/usecase/payment"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// backend is one storage driver's implementation of every repository.
type backend struct {
	store    domorder.Store
	orders   domorder.Repository
	carts    domcart.Repository
	products domproduct.Repository
	users    domuser.Repository
	outbox   domoutbox.Repository
	ping     func(ctx context.Context) error
	close    func()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher := security.NewBcryptService(0)
	be, err := openBackend(ctx, cfg, hasher, logger)
	if err != nil {
		return err
	}
	defer be.close()

	var cache domcart.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The cache is optional; carts are served from storage.
			logger.Warn("redis unreachable, cart cache degraded", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		}
		cache = rediscache.NewCartCache(rdb, cfg.CartCacheTTL)
	}

	m := metrics.New()
	tokens := security.NewJWTService(cfg.JWTSecret, cfg.JWTExpiration)
	gateway := stripegw.New(stripegw.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		APIURL:        cfg.Stripe.APIURL,
		Timeout:       cfg.Payments.GatewayTimeout,
	}, logger)

	api := httpapi.NewAPI(httpapi.Dependencies{
		AuthService:     authuc.NewService(be.users, hasher, tokens),
		CartService:     cartuc.NewService(be.carts, be.products, cache, logger),
		CheckoutService: checkoutuc.NewService(be.store, cache, m, logger),
		OrderService:    orderuc.NewService(be.orders, be.store, be.products, logger),
		PaymentService: paymentuc.NewService(be.store, be.orders, gateway, paymentuc.Config{
			Currency:       cfg.Payments.Currency,
			PublishableKey: cfg.Stripe.PublishableKey,
			SuccessURL:     cfg.Payments.SuccessURL,
			CancelURL:      cfg.Payments.CancelURL,
			GatewayTimeout: cfg.Payments.GatewayTimeout,
		}, m, logger),
		Metrics:        m,
		MetricsHandler: m.Handler(),
		HealthCheck:    be.ping,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer := kafka.NewWriter(brokers)
		defer writer.Close()
		relay := kafka.NewRelay(be.outbox, writer, kafka.Config{
			Interval:  cfg.OutboxInterval,
			BatchSize: cfg.OutboxBatch,
		}, m, logger)
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})
	} else {
		logger.Info("outbox relay disabled, KAFKA_BROKERS is empty")
	}

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", srv.Addr), slog.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, hasher *security.BcryptService, logger *slog.Logger) (*backend, error) {
	switch cfg.StorageDriver {
	case config.DriverMySQL:
		if cfg.RunMigrations {
			if err := mysql.Migrate(cfg.MySQLDSN); err != nil {
				return nil, err
			}
		}
		db, err := mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    mysql.NewStore(db),
			orders:   mysql.NewOrderRepository(db),
			carts:    mysql.NewCartRepository(db),
			products: mysql.NewProductRepository(db),
			users:    mysql.NewUserRepository(db),
			outbox:   mysql.NewOutboxRepository(db),
			ping:     db.PingContext,
			close:    func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    postgres.NewStore(pool),
			orders:   postgres.NewOrderRepository(pool),
			carts:    postgres.NewCartRepository(pool),
			products: postgres.NewProductRepository(pool),
			users:    postgres.NewUserRepository(pool),
			outbox:   postgres.NewOutboxRepository(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	default:
		store := memory.NewStore()
		if err := seedDemo(store, hasher); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory storage, data is lost on exit")
		return &backend{
			store:    store,
			orders:   store.Orders(),
			carts:    store.Carts(),
			products: store.Products(),
			users:    store.Users(),
			outbox:   store.Outbox(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}
}

// seedDemo gives the in-memory backend one account per role and a small
// catalog. Every account uses the password "password123".
func seedDemo(store *memory.Store, hasher *security.BcryptService) error {
	hash, err := hasher.Hash("password123")
	if err != nil {
		return err
	}
	store.AddUser(domuser.User{Name: "Admin", Email: "admin@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeAdmin})
	seller := store.AddUser(domuser.User{Name: "Seller", Email: "seller@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeSeller})
	store.AddUser(domuser.User{Name: "Customer", Email: "customer@example.com", PasswordHash: hash, RoleCode: domuser.RoleCodeCustomer})

	for _, p := range []struct {
		name  string
		price string
	}{
		{"Custom Mug", "10.00"},
		{"Printed Poster", "25.00"},
		{"Graphic T-Shirt", "19.99"},
	} {
		store.AddProduct(domproduct.Product{
			SellerID: seller.ID,
			Name:     p.name,
			Price:    decimal.RequireFromString(p.price),
			IsActive: true,
		})
	}
	return nil
}
