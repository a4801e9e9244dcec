package catalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/safar/fashion-store/internal/models"
)

const (
	MinSearchLength = 2
	SearchLimit     = 5
)

// SearchResult is the compact shape returned by the storefront search box.
type SearchResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

type ProductSearcher func(ctx context.Context, term string, limit int) ([]models.Product, error)

// Search returns an empty result for terms shorter than MinSearchLength.
func Search(ctx context.Context, search ProductSearcher, term string) ([]SearchResult, error) {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinSearchLength {
		return []SearchResult{}, nil
	}

	products, err := search(ctx, term, SearchLimit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(products))
	for _, p := range products {
		results = append(results, SearchResult{
			ID:    p.ID,
			Name:  p.Name,
			Slug:  p.Slug,
			Price: p.Price,
			Image: p.FirstImage(),
		})
	}
	return results, nil
}
