package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrWrongPassword      = errors.New("current password is incorrect")
)

// Accounts handles customer registration and credentials.
type Accounts struct {
	db   *sql.DB
	cost int
}

func NewAccounts(db *sql.DB) *Accounts {
	return &Accounts{db: db, cost: bcrypt.DefaultCost}
}

func ValidateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (a *Accounts) Register(ctx context.Context, email, name, password string) (*models.Customer, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return store.CreateCustomer(ctx, a.db, email, strings.TrimSpace(name), string(hash))
}

func (a *Accounts) Login(ctx context.Context, email, password string) (*models.Customer, error) {
	c, err := store.GetCustomerByEmail(ctx, a.db, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, database.ErrCustomerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

func (a *Accounts) ChangePassword(ctx context.Context, customerID, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	c, err := store.GetCustomer(ctx, a.db, customerID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), a.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return store.UpdateCustomerPassword(ctx, a.db, c.ID, string(hash))
}
