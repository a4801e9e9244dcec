package fulfillment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/payment"
	"github.com/safar/fashion-store/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *sql.DB {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("fashion_store_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(db, "../../migrations"))
	return db
}

func signedDelivery(t *testing.T, secret, sessionID, productID string, qty int) ([]byte, string) {
	items, err := json.Marshal([]map[string]any{{"id": productID, "quantity": qty}})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"id":     "evt_" + sessionID,
		"object": "event",
		"type":   payment.EventCheckoutSessionCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":               sessionID,
			"object":           "checkout.session",
			"amount_total":     5900 * qty,
			"customer_details": map[string]any{"email": "ana@example.com", "name": "Ana"},
			"metadata":         map[string]string{"items": string(items)},
		}},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookDeliveredTwiceCreatesOneOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p, err := store.CreateProduct(ctx, db, store.NewProduct{Name: "Camisa", Slug: "camisa", Price: 5900, Stock: 10})
	require.NoError(t, err)

	verifier, err := payment.NewVerifier("whsec_it")
	require.NoError(t, err)

	q := &captureQueue{}
	svc := NewService(verifier,
		func(ctx context.Context, req store.CheckoutOrder) (*models.Order, error) {
			return store.CreateOrderFromCheckout(ctx, db, req)
		},
		func(ctx context.Context, id string) (*models.Order, error) {
			return store.GetOrderBySessionID(ctx, db, id)
		},
		q)

	payload, sig := signedDelivery(t, "whsec_it", "cs_twice", p.ID, 3)

	first, err := svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first.Status)

	second, err := svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Status)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var orders int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE checkout_session_id = 'cs_twice'`).Scan(&orders))
	assert.Equal(t, 1, orders)

	got, err := store.GetProduct(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)

	assert.Len(t, q.tasks, 2)
}

func TestWebhookBadSignatureHasNoSideEffects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p, err := store.CreateProduct(ctx, db, store.NewProduct{Name: "Camisa", Slug: "camisa-2", Price: 5900, Stock: 10})
	require.NoError(t, err)

	verifier, err := payment.NewVerifier("whsec_it")
	require.NoError(t, err)
	svc := NewService(verifier,
		func(ctx context.Context, req store.CheckoutOrder) (*models.Order, error) {
			return store.CreateOrderFromCheckout(ctx, db, req)
		}, nil, &captureQueue{})

	payload, forged := signedDelivery(t, "whsec_other", "cs_forged", p.ID, 1)

	_, err = svc.HandleWebhook(ctx, payload, forged)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	got, err := store.GetProduct(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
}
