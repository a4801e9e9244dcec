package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
)

const returnColumns = `id, order_id, ticket_number, reason, status, refund_number, refund_amount,
	admin_notes, created_at, updated_at`

const DefaultReturnReason = "Not specified"

func scanReturn(row rowScanner) (*models.ReturnRequest, error) {
	r := &models.ReturnRequest{}
	err := row.Scan(
		&r.ID,
		&r.OrderID,
		&r.TicketNumber,
		&r.Reason,
		&r.Status,
		&r.RefundNumber,
		&r.RefundAmount,
		&r.AdminNotes,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CheckReturnable applies the customer-facing return rules to an order.
func CheckReturnable(order *models.Order, customerEmail string) error {
	if !strings.EqualFold(order.CustomerEmail, customerEmail) {
		return database.ErrNotOrderOwner
	}
	if order.Status != models.OrderStatusDelivered {
		return database.ErrNotReturnable
	}
	return nil
}

func GenerateTicketNumber(now time.Time) string {
	return newDocumentNumber("DEV", now)
}

func GenerateRefundNumber(now time.Time) string {
	return newDocumentNumber("REF", now)
}

// CreateReturnRequest opens a return for a delivered order owned by the
// customer. The order row lock plus the unique order_id index keep it to one
// request per order.
func CreateReturnRequest(ctx context.Context, db *sql.DB, orderID, customerEmail, reason string) (*models.ReturnRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReturnReason
	}

	var rr *models.ReturnRequest
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := CheckReturnable(order, customerEmail); err != nil {
			return err
		}

		rr, err = scanReturn(tx.QueryRowContext(ctx, `
			INSERT INTO return_requests (order_id, ticket_number, reason, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (order_id) DO NOTHING
			RETURNING `+returnColumns,
			orderID, GenerateTicketNumber(time.Now()), reason, models.ReturnStatusPending))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrReturnExists
			}
			return fmt.Errorf("create return request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rr, nil
}

func GetReturnRequest(ctx context.Context, q Querier, id string) (*models.ReturnRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrReturnNotFound
	}

	rr, err := scanReturn(q.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrReturnNotFound
		}
		return nil, fmt.Errorf("get return request: %w", err)
	}
	return rr, nil
}

func ListReturnRequests(ctx context.Context, db *sql.DB, status string, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM return_requests WHERE $1 = '' OR status = $1`, status).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count return requests: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+returnColumns+`
		FROM return_requests
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	out := []models.ReturnRequest{}
	for rows.Next() {
		rr, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		out = append(out, *rr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(out, total, page, pageSize), nil
}

type RefundRequest struct {
	OrderID         string
	ReturnRequestID string
	AdminNotes      string
}

type RefundResult struct {
	RefundNumber  string                `json:"refund_number"`
	RefundAmount  int64                 `json:"refund_amount"`
	Order         *models.Order         `json:"order"`
	CreditNote    *models.Invoice       `json:"credit_note"`
	ReturnRequest *models.ReturnRequest `json:"return_request,omitempty"`
}

// ProcessRefund refunds an order in one transaction: order and payment
// status, stock restored, credit note against the invoice, and the return
// request closed as refunded.
func ProcessRefund(ctx context.Context, db *sql.DB, req RefundRequest) (*RefundResult, error) {
	var result *RefundResult

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrderNoWait(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusRefunded {
			return database.ErrAlreadyRefunded
		}
		if !models.CanTransition(order.Status, models.OrderStatusRefunded) {
			return fmt.Errorf("%w: %s -> %s", database.ErrInvalidTransition, order.Status, models.OrderStatusRefunded)
		}

		rr, err := lockReturnForOrder(ctx, tx, req.OrderID, req.ReturnRequestID)
		if err != nil {
			return err
		}

		if err := setOrderStatus(ctx, tx, order.ID, models.OrderStatusRefunded, models.PaymentStatusRefunded); err != nil {
			return err
		}

		items, err := GetOrderItems(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if err := restoreOrderStock(ctx, tx, items); err != nil {
			return err
		}

		invoice, err := IssueInvoice(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		note, err := issueCreditNote(ctx, tx, invoice, order.Total)
		if err != nil {
			return err
		}

		result = &RefundResult{
			RefundNumber: GenerateRefundNumber(time.Now()),
			RefundAmount: order.Total,
			CreditNote:   note,
		}

		if rr != nil {
			rr, err = scanReturn(tx.QueryRowContext(ctx, `
				UPDATE return_requests
				SET status = $1, refund_number = $2, refund_amount = $3,
				    admin_notes = COALESCE($4, admin_notes), updated_at = NOW()
				WHERE id = $5
				RETURNING `+returnColumns,
				models.ReturnStatusRefunded, result.RefundNumber, result.RefundAmount, nullString(req.AdminNotes), rr.ID))
			if err != nil {
				return fmt.Errorf("close return request: %w", err)
			}
			result.ReturnRequest = rr
		}

		result.Order, err = GetOrder(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// lockReturnForOrder finds the return being refunded. With no explicit id it
// falls back to whatever request exists for the order, which may be none.
func lockReturnForOrder(ctx context.Context, tx *sql.Tx, orderID, returnID string) (*models.ReturnRequest, error) {
	var (
		rr  *models.ReturnRequest
		err error
	)
	if returnID != "" {
		if _, perr := uuid.Parse(returnID); perr != nil {
			return nil, database.ErrReturnNotFound
		}
		rr, err = scanReturn(tx.QueryRowContext(ctx,
			`SELECT `+returnColumns+` FROM return_requests WHERE id = $1 AND order_id = $2 FOR UPDATE`, returnID, orderID))
	} else {
		rr, err = scanReturn(tx.QueryRowContext(ctx,
			`SELECT `+returnColumns+` FROM return_requests WHERE order_id = $1 FOR UPDATE`, orderID))
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if returnID != "" {
				return nil, database.ErrReturnNotFound
			}
			return nil, nil
		}
		return nil, fmt.Errorf("lock return request: %w", err)
	}

	if rr.Status == models.ReturnStatusRefunded || rr.Status == models.ReturnStatusRejected {
		return nil, database.ErrReturnClosed
	}
	return rr, nil
}
