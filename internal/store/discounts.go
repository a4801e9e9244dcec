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

const discountColumns = `id, code, description, discount_type, discount_value, min_purchase, max_uses,
	current_uses, is_active, starts_at, expires_at, created_at, updated_at`

type DiscountInput struct {
	Code          string     `json:"code"`
	Description   string     `json:"description"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	MinPurchase   int64      `json:"min_purchase"`
	MaxUses       *int       `json:"max_uses"`
	IsActive      *bool      `json:"is_active"`
	StartsAt      *time.Time `json:"starts_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (in DiscountInput) Validate() error {
	if NormalizeCode(in.Code) == "" {
		return errors.New("code is required")
	}
	if in.DiscountType != models.DiscountPercentage && in.DiscountType != models.DiscountFixed {
		return errors.New("discount_type must be percentage or fixed")
	}
	if in.DiscountValue <= 0 {
		return errors.New("discount_value must be positive")
	}
	if in.DiscountType == models.DiscountPercentage && in.DiscountValue > 100 {
		return errors.New("percentage discount cannot exceed 100")
	}
	if in.MinPurchase < 0 {
		return errors.New("min_purchase cannot be negative")
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return errors.New("max_uses must be positive")
	}
	if in.StartsAt != nil && in.ExpiresAt != nil && in.ExpiresAt.Before(*in.StartsAt) {
		return errors.New("expires_at is before starts_at")
	}
	return nil
}

func (in DiscountInput) active() bool {
	return in.IsActive == nil || *in.IsActive
}

func scanDiscount(row rowScanner) (*models.DiscountCode, error) {
	d := &models.DiscountCode{}
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Description,
		&d.DiscountType,
		&d.DiscountValue,
		&d.MinPurchase,
		&d.MaxUses,
		&d.CurrentUses,
		&d.IsActive,
		&d.StartsAt,
		&d.ExpiresAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func ListDiscountCodes(ctx context.Context, db *sql.DB) ([]models.DiscountCode, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+discountColumns+` FROM discount_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("list discount codes: %w", err)
	}
	defer rows.Close()

	codes := []models.DiscountCode{}
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount code: %w", err)
		}
		codes = append(codes, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return codes, nil
}

func GetDiscountCode(ctx context.Context, db *sql.DB, id string) (*models.DiscountCode, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrDiscountNotFound
	}

	d, err := scanDiscount(db.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discount_codes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount code: %w", err)
	}
	return d, nil
}

// GetDiscountCodeByCode matches case-insensitively.
func GetDiscountCodeByCode(ctx context.Context, q Querier, code string) (*models.DiscountCode, error) {
	d, err := scanDiscount(q.QueryRowContext(ctx,
		`SELECT `+discountColumns+` FROM discount_codes WHERE code = $1`, NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount code: %w", err)
	}
	return d, nil
}

func CreateDiscountCode(ctx context.Context, db *sql.DB, in DiscountInput) (*models.DiscountCode, error) {
	d, err := scanDiscount(db.QueryRowContext(ctx, `
		INSERT INTO discount_codes (code, description, discount_type, discount_value, min_purchase,
			max_uses, is_active, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+discountColumns,
		NormalizeCode(in.Code), nullString(in.Description), in.DiscountType, in.DiscountValue, in.MinPurchase,
		in.MaxUses, in.active(), in.StartsAt, in.ExpiresAt))
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrDuplicateCode
		}
		return nil, fmt.Errorf("create discount code: %w", err)
	}
	return d, nil
}

func UpdateDiscountCode(ctx context.Context, db *sql.DB, id string, in DiscountInput) (*models.DiscountCode, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrDiscountNotFound
	}

	d, err := scanDiscount(db.QueryRowContext(ctx, `
		UPDATE discount_codes
		SET code = $1, description = $2, discount_type = $3, discount_value = $4, min_purchase = $5,
		    max_uses = $6, is_active = $7, starts_at = $8, expires_at = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING `+discountColumns,
		NormalizeCode(in.Code), nullString(in.Description), in.DiscountType, in.DiscountValue, in.MinPurchase,
		in.MaxUses, in.active(), in.StartsAt, in.ExpiresAt, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrDiscountNotFound
		}
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrDuplicateCode
		}
		return nil, fmt.Errorf("update discount code: %w", err)
	}
	return d, nil
}

func DeleteDiscountCode(ctx context.Context, db *sql.DB, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return database.ErrDiscountNotFound
	}

	result, err := db.ExecContext(ctx, `DELETE FROM discount_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete discount code: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrDiscountNotFound
	}
	return nil
}

// RedeemDiscountCode bumps current_uses unless the cap is already reached.
// It runs when a checkout session is created, before payment.
func RedeemDiscountCode(ctx context.Context, db *sql.DB, code string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE discount_codes
		SET current_uses = current_uses + 1, updated_at = NOW()
		WHERE code = $1
		  AND (max_uses IS NULL OR current_uses < max_uses)`,
		NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("redeem discount code: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		if _, err := GetDiscountCodeByCode(ctx, db, code); err != nil {
			return err
		}
		return database.ErrDiscountExhausted
	}
	return nil
}
