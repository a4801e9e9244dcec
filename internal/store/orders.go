package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
)

const orderColumns = `id, order_number, checkout_session_id, customer_email, customer_name, customer_phone,
	shipping_address, subtotal, shipping_cost, tax, discount_amount, discount_code, total,
	status, payment_status, payment_intent_id, notes, created_at, updated_at`

const missingProductName = "Unavailable product"

// CheckoutOrder is everything a completed payment session tells us about an order.
type CheckoutOrder struct {
	SessionID       string
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	ShippingAddress models.Address
	Items           []CheckoutOrderItem
	ShippingCost    int64
	Tax             int64
	DiscountAmount  int64
	DiscountCode    string
	Total           int64
	PaymentIntentID string
}

type CheckoutOrderItem struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

func GenerateOrderNumber(now time.Time) string {
	return newDocumentNumber("FS", now)
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CheckoutSessionID,
		&o.CustomerEmail,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.ShippingAddress,
		&o.Subtotal,
		&o.ShippingCost,
		&o.Tax,
		&o.DiscountAmount,
		&o.DiscountCode,
		&o.Total,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentIntentID,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOrderFromCheckout records a paid checkout session in one serializable
// transaction: order row, item snapshots, stock decrement and the paid state.
// The session id is the idempotency key; a second call for the same session
// returns database.ErrDuplicateCheckout and changes nothing.
func CreateOrderFromCheckout(ctx context.Context, db *sql.DB, req CheckoutOrder) (*models.Order, error) {
	if req.SessionID == "" {
		return nil, errors.New("create order: empty checkout session id")
	}
	if len(req.Items) == 0 {
		return nil, errors.New("create order: no items")
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		ids := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			if item.Quantity <= 0 {
				return fmt.Errorf("create order: invalid quantity %d for product %s", item.Quantity, item.ProductID)
			}
			if _, err := uuid.Parse(item.ProductID); err == nil {
				ids = append(ids, item.ProductID)
			}
		}

		products, err := LockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		var subtotal int64
		for _, item := range req.Items {
			if p, ok := products[item.ProductID]; ok {
				subtotal += p.Price * int64(item.Quantity)
			}
		}

		var orderID string
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, checkout_session_id, customer_email, customer_name, customer_phone,
				shipping_address, subtotal, shipping_cost, tax, discount_amount, discount_code, total,
				status, payment_status, payment_intent_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 ON CONFLICT (checkout_session_id) DO NOTHING
			 RETURNING id`,
			GenerateOrderNumber(time.Now()), req.SessionID, strings.ToLower(req.CustomerEmail), req.CustomerName,
			nullString(req.CustomerPhone), req.ShippingAddress, subtotal, req.ShippingCost, req.Tax,
			req.DiscountAmount, nullString(strings.ToUpper(req.DiscountCode)), req.Total,
			models.OrderStatusPending, models.PaymentStatusPending, nullString(req.PaymentIntentID),
		).Scan(&orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrDuplicateCheckout
			}
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			p, ok := products[item.ProductID]
			if err := insertOrderItem(ctx, tx, orderID, item, p, ok); err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := DecrementStockFloored(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, payment_status = $2, updated_at = NOW()
			 WHERE id = $3`,
			models.OrderStatusProcessing, models.PaymentStatusPaid, orderID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, orderID string, item CheckoutOrderItem, p models.Product, found bool) error {
	var (
		productID *string
		name      = missingProductName
		image     *string
		unitPrice int64
	)
	if found {
		productID = &p.ID
		name = p.Name
		image = nullString(p.FirstImage())
		unitPrice = p.Price
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_items (order_id, product_id, product_name, product_image, quantity, size, color, unit_price, total_price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		orderID, productID, name, image, item.Quantity, nullString(item.Size), nullString(item.Color),
		unitPrice, unitPrice*int64(item.Quantity))
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func GetOrder(ctx context.Context, q Querier, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items, err = GetOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrderBySessionID(ctx context.Context, q Querier, sessionID string) (*models.Order, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE checkout_session_id = $1`, sessionID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by session: %w", err)
	}
	return GetOrder(ctx, q, id)
}

func GetOrderItems(ctx context.Context, q Querier, orderID string) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, product_image, quantity, size, color,
		       unit_price, total_price, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductImage,
			&item.Quantity,
			&item.Size,
			&item.Color,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// lockOrderNoWait fails fast when another admin action holds the order.
func lockOrderNoWait(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE NOWAIT`, id))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
			return nil, database.ErrLockTimeout
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order (nowait): %w", err)
	}
	return order, nil
}

func setOrderStatus(ctx context.Context, tx *sql.Tx, id, status, paymentStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     payment_status = COALESCE(NULLIF($2, ''), payment_status),
		     updated_at = NOW()
		 WHERE id = $3`,
		status, paymentStatus, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// restoreOrderStock puts every snapshotted quantity back on its product.
// Items whose product was deleted are skipped.
func restoreOrderStock(ctx context.Context, tx *sql.Tx, items []models.OrderItem) error {
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		err := RestoreStock(ctx, tx, *item.ProductID, item.Quantity)
		if err != nil && !errors.Is(err, database.ErrProductNotFound) {
			return err
		}
	}
	return nil
}

// UpdateOrderStatus applies an admin status change. Refunds go through
// ProcessRefund so that a credit note is always issued.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id, status string) (*models.Order, error) {
	if !models.IsOrderStatus(status) || status == models.OrderStatusRefunded {
		return nil, database.ErrInvalidTransition
	}

	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", database.ErrInvalidTransition, current.Status, status)
		}

		paymentStatus := ""
		if status == models.OrderStatusPaid {
			paymentStatus = models.PaymentStatusPaid
		}
		if err := setOrderStatus(ctx, tx, id, status, paymentStatus); err != nil {
			return err
		}

		if status == models.OrderStatusCancelled {
			items, err := GetOrderItems(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := restoreOrderStock(ctx, tx, items); err != nil {
				return err
			}
		}

		order, err = GetOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CancelOrder lets a customer cancel their own order before it ships,
// restoring stock in the same transaction.
func CancelOrder(ctx context.Context, db *sql.DB, id, customerEmail string) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(current.CustomerEmail, customerEmail) {
			return database.ErrNotOrderOwner
		}
		if !models.IsCancellable(current.Status) {
			return database.ErrNotCancellable
		}

		if err := setOrderStatus(ctx, tx, id, models.OrderStatusCancelled, ""); err != nil {
			return err
		}

		items, err := GetOrderItems(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := restoreOrderStock(ctx, tx, items); err != nil {
			return err
		}

		order, err = GetOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func ListOrdersByEmail(ctx context.Context, db *sql.DB, email, cursor string, limit int) (*CursorPage, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_email = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3::uuid))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	var createdAt, lastID any
	if !cursorData.IsZero() {
		createdAt, lastID = cursorData.CreatedAt, cursorData.ID
	}

	rows, err := db.QueryContext(ctx, query, strings.ToLower(email), createdAt, lastID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func ListOrders(ctx context.Context, db *sql.DB, status string, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE $1 = '' OR status = $1`, status).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}
