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

// Subscribe stores a newsletter subscription. The bool reports whether the
// email was already subscribed, in which case the existing row is returned.
func Subscribe(ctx context.Context, db *sql.DB, email, firstName, source, welcomeCode string) (*models.NewsletterSubscription, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if source == "" {
		source = "popup"
	}

	existing, err := getSubscription(ctx, db, email)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("get subscription: %w", err)
	}

	s := &models.NewsletterSubscription{}
	err = db.QueryRowContext(ctx, `
		INSERT INTO newsletter_subscriptions (email, first_name, discount_code_used, source)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, first_name, discount_code_used, source, created_at`,
		email, nullString(strings.TrimSpace(firstName)), welcomeCode, source).
		Scan(&s.ID, &s.Email, &s.FirstName, &s.DiscountCodeUsed, &s.Source, &s.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			existing, gerr := getSubscription(ctx, db, email)
			if gerr != nil {
				return nil, false, fmt.Errorf("get subscription: %w", gerr)
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("subscribe: %w", err)
	}

	return s, false, nil
}

func getSubscription(ctx context.Context, db *sql.DB, email string) (*models.NewsletterSubscription, error) {
	s := &models.NewsletterSubscription{}
	err := db.QueryRowContext(ctx, `
		SELECT id, email, first_name, discount_code_used, source, created_at
		FROM newsletter_subscriptions
		WHERE email = $1`, email).
		Scan(&s.ID, &s.Email, &s.FirstName, &s.DiscountCodeUsed, &s.Source, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
