package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
)

const productColumns = `id, name, slug, description, price, compare_at_price, stock, category_id,
	images, sizes, colors, is_featured, is_flash_offer, is_active, created_at, updated_at`

type NewProduct struct {
	Name           string
	Slug           string
	Description    string
	Price          int64
	CompareAtPrice *int64
	Stock          int
	CategoryID     *string
	Images         []string
	Sizes          []string
	Colors         []string
	IsFeatured     bool
	IsFlashOffer   bool
	Inactive       bool
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&p.Price,
		&p.CompareAtPrice,
		&p.Stock,
		&p.CategoryID,
		pq.Array(&p.Images),
		pq.Array(&p.Sizes),
		pq.Array(&p.Colors),
		&p.IsFeatured,
		&p.IsFlashOffer,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func CreateProduct(ctx context.Context, q Querier, np NewProduct) (*models.Product, error) {
	query := `
		INSERT INTO products (name, slug, description, price, compare_at_price, stock, category_id,
			images, sizes, colors, is_featured, is_flash_offer, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		np.Name, np.Slug, nullString(np.Description), np.Price, np.CompareAtPrice, np.Stock, np.CategoryID,
		pq.Array(np.Images), pq.Array(np.Sizes), pq.Array(np.Colors),
		np.IsFeatured, np.IsFlashOffer, !np.Inactive))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q Querier, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductsByIDs returns the found products keyed by id. Missing ids are
// simply absent from the map.
func GetProductsByIDs(ctx context.Context, q Querier, ids []string) (map[string]models.Product, error) {
	return queryProductMap(ctx, q,
		`SELECT `+productColumns+` FROM products WHERE id::text = ANY($1)`, ids)
}

// LockProducts takes row locks in id order so concurrent webhooks cannot
// deadlock on the same pair of products.
func LockProducts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]models.Product, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	return queryProductMap(ctx, tx,
		`SELECT `+productColumns+` FROM products WHERE id::text = ANY($1) ORDER BY id FOR UPDATE`, sorted)
}

func queryProductMap(ctx context.Context, q Querier, query string, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = *p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// DecrementStockFloored subtracts quantity and clamps at zero, returning the
// stock left. Stock never goes up here.
func DecrementStockFloored(ctx context.Context, tx *sql.Tx, productID string, quantity int) (int, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("decrement stock: negative quantity %d", quantity)
	}

	var stock int
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = GREATEST(stock - $1, 0),
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING stock`,
		quantity, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrProductNotFound
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	return stock, nil
}

func RestoreStock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func SearchProducts(ctx context.Context, db *sql.DB, term string, limit int) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_active
		  AND name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2`

	rows, err := db.QueryContext(ctx, query, escapeLike(term), limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

type ProductFilter struct {
	CategoryID string
	FlashOnly  bool
}

func ListProducts(ctx context.Context, db *sql.DB, filter ProductFilter, page, pageSize int) (*OffsetPage, error) {
	where := `WHERE is_active AND ($1 = '' OR category_id::text = $1) AND (NOT $2 OR is_flash_offer)`

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products `+where,
		filter.CategoryID, filter.FlashOnly).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products ` + where + `
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	rows, err := db.QueryContext(ctx, query, filter.CategoryID, filter.FlashOnly, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
