package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	require.NoError(t, database.RunMigrations(db, "../../migrations"))

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func mustProduct(t *testing.T, db *sql.DB, slug string, price int64, stock int) *models.Product {
	t.Helper()
	p, err := CreateProduct(context.Background(), db, NewProduct{
		Name:   "Product " + slug,
		Slug:   slug,
		Price:  price,
		Stock:  stock,
		Images: []string{"https://img.test/" + slug + ".jpg"},
		Sizes:  []string{"S", "M", "L"},
	})
	require.NoError(t, err)
	return p
}

func mustCheckoutOrder(t *testing.T, db *sql.DB, sessionID, email string, items ...CheckoutOrderItem) *models.Order {
	t.Helper()
	order, err := CreateOrderFromCheckout(context.Background(), db, CheckoutOrder{
		SessionID:     sessionID,
		CustomerEmail: email,
		CustomerName:  "Ana",
		ShippingAddress: models.Address{
			Line1: "Calle Mayor 1", City: "Madrid", PostalCode: "28013", Country: "ES",
		},
		Items:        items,
		ShippingCost: 499,
		Total:        10000,
	})
	require.NoError(t, err)
	return order
}

func setStatus(t *testing.T, db *sql.DB, orderID, status string) {
	t.Helper()
	_, err := db.Exec(`UPDATE orders SET status = $1 WHERE id = $2`, status, orderID)
	require.NoError(t, err)
}
