package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
)

const customerColumns = `id, email, name, password_hash, created_at, updated_at`

func scanCustomer(row rowScanner) (*models.Customer, error) {
	c := &models.Customer{}
	if err := row.Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCustomer expects an already hashed password.
func CreateCustomer(ctx context.Context, db *sql.DB, email, name, passwordHash string) (*models.Customer, error) {
	c, err := scanCustomer(db.QueryRowContext(ctx, `
		INSERT INTO customers (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+customerColumns,
		strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(name), passwordHash))
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrEmailTaken
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func GetCustomerByEmail(ctx context.Context, db *sql.DB, email string) (*models.Customer, error) {
	c, err := scanCustomer(db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func GetCustomer(ctx context.Context, db *sql.DB, id string) (*models.Customer, error) {
	c, err := scanCustomer(db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id::text = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func UpdateCustomerPassword(ctx context.Context, db *sql.DB, id, passwordHash string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE customers SET password_hash = $1, updated_at = NOW() WHERE id::text = $2`,
		passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrCustomerNotFound
	}
	return nil
}
