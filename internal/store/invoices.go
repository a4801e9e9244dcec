package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/fashion-store/internal/models"
)

const invoiceColumns = `id, order_id, invoice_number, kind, amount, original_invoice_id, issued_at`

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &inv.Kind, &inv.Amount, &inv.OriginalInvoiceID, &inv.IssuedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// IssueInvoice creates the order's invoice for its total, or returns the
// existing one. Safe to call repeatedly.
func IssueInvoice(ctx context.Context, q Querier, orderID string) (*models.Invoice, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoices (order_id, invoice_number, kind, amount)
		SELECT id, $2, $3, total FROM orders WHERE id = $1
		ON CONFLICT (order_id) WHERE kind = 'invoice' DO NOTHING`,
		orderID, newDocumentNumber("INV", time.Now()), models.InvoiceKindInvoice)
	if err != nil {
		return nil, fmt.Errorf("issue invoice: %w", err)
	}

	inv, err := scanInvoice(q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 AND kind = $2`,
		orderID, models.InvoiceKindInvoice))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issue invoice: order %s not found", orderID)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// issueCreditNote reverses amount against original. Amount is stored negative.
func issueCreditNote(ctx context.Context, tx *sql.Tx, original *models.Invoice, amount int64) (*models.Invoice, error) {
	if amount < 0 {
		amount = -amount
	}

	note, err := scanInvoice(tx.QueryRowContext(ctx, `
		INSERT INTO invoices (order_id, invoice_number, kind, amount, original_invoice_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+invoiceColumns,
		original.OrderID, newDocumentNumber("CN", time.Now()), models.InvoiceKindCreditNote, -amount, original.ID))
	if err != nil {
		return nil, fmt.Errorf("issue credit note: %w", err)
	}
	return note, nil
}

func ListInvoicesForOrder(ctx context.Context, q Querier, orderID string) ([]models.Invoice, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 ORDER BY issued_at, kind DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return invoices, nil
}
