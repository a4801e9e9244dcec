package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
)

func ListCategories(ctx context.Context, db *sql.DB) ([]models.Category, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, slug, description, image_url, parent_id, created_at, updated_at
		FROM categories
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ImageURL, &c.ParentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

func CreateCategory(ctx context.Context, db *sql.DB, name, slug string, parentID *string) (*models.Category, error) {
	c := &models.Category{}
	err := db.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, slug, description, image_url, parent_id, created_at, updated_at`,
		name, slug, parentID).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ImageURL, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// DeleteCategory detaches products and subcategories (ON DELETE SET NULL).
func DeleteCategory(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM categories WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrCategoryNotFound
	}
	return nil
}

func GetSetting(ctx context.Context, db *sql.DB, key string) (*models.SiteSetting, error) {
	s := &models.SiteSetting{}
	err := db.QueryRowContext(ctx,
		`SELECT key, value, description, updated_at FROM site_settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.Description, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSettingNotFound
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return s, nil
}

// PutSetting upserts a JSON value.
func PutSetting(ctx context.Context, db *sql.DB, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO site_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
