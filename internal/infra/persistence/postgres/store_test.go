package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	domuser "example.com/pod-fulfillment/internal/domain/user"
	"example.com/pod-fulfillment/internal/infra/persistence/storetest"
)

func setupTestDB(t *testing.T) (*pgxpool.Pool, string) {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("fulfillment"),
		tcpostgres.WithUsername("tester"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(dsn))

	pool, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, dsn
}

func TestStore(t *testing.T) {
	pool, _ := setupTestDB(t)
	ctx := context.Background()

	storetest.Run(t, &storetest.Fixture{
		Store:    NewStore(pool),
		Orders:   NewOrderRepository(pool),
		Carts:    NewCartRepository(pool),
		Products: NewProductRepository(pool),
		Outbox:   NewOutboxRepository(pool),
		Users:    NewUserRepository(pool),
		SeedUser: func(t *testing.T, email string, role domuser.RoleCode) int64 {
			var id int64
			err := pool.QueryRow(ctx, `
				INSERT INTO users (name, email, password_hash, user_role_id)
				SELECT $1, $1, 'x', id FROM user_roles WHERE code = $2
				RETURNING id`, email, string(role)).Scan(&id)
			require.NoError(t, err)
			return id
		},
		SeedProduct: func(t *testing.T, sellerID int64, name, price string, active bool) int64 {
			var id int64
			err := pool.QueryRow(ctx, `
				INSERT INTO products (seller_id, name, price, is_active)
				VALUES ($1, $2, $3::numeric, $4)
				RETURNING id`, sellerID, name, price, active).Scan(&id)
			require.NoError(t, err)
			return id
		},
	})
}

func TestMigrate_IsIdempotent(t *testing.T) {
	_, dsn := setupTestDB(t)
	require.NoError(t, Migrate(dsn))
}
