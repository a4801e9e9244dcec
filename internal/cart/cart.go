package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrExceedsStock    = errors.New("quantity exceeds available stock")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrMissingProduct  = errors.New("product is required")
)

// Item is one product variant in the cart. Price is in minor units.
type Item struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	MaxStock  int    `json:"maxStock"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Image     string `json:"image,omitempty"`
}

// ProductRef is the catalog data needed to put a product in the cart.
type ProductRef struct {
	ID    string
	Name  string
	Price int64
	Stock int
	Image string
}

type Cart struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckoutItem is the minimal payload sent to checkout.
type CheckoutItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
}

// Add merges with an existing line of the same variant, capping at stock.
func (c *Cart) Add(p ProductRef, quantity int, size, color string) (*Item, error) {
	if p.ID == "" {
		return nil, ErrMissingProduct
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return nil, ErrExceedsStock
	}

	c.UpdatedAt = time.Now()

	for i := range c.Items {
		item := &c.Items[i]
		if item.ProductID == p.ID && item.Size == size && item.Color == color {
			item.Quantity = min(item.Quantity+quantity, p.Stock)
			item.MaxStock = p.Stock
			item.Price = p.Price
			return item, nil
		}
	}

	c.Items = append(c.Items, Item{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  quantity,
		MaxStock:  p.Stock,
		Size:      size,
		Color:     color,
		Image:     p.Image,
	})
	return &c.Items[len(c.Items)-1], nil
}

func (c *Cart) Remove(itemID string) error {
	for i, item := range c.Items {
		if item.ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrItemNotFound
}

// UpdateQuantity clamps to [1, MaxStock].
func (c *Cart) UpdateQuantity(itemID string, quantity int) (*Item, error) {
	for i := range c.Items {
		item := &c.Items[i]
		if item.ID != itemID {
			continue
		}
		quantity = max(quantity, 1)
		if item.MaxStock > 0 {
			quantity = min(quantity, item.MaxStock)
		}
		item.Quantity = quantity
		c.UpdatedAt = time.Now()
		return item, nil
	}
	return nil, ErrItemNotFound
}

func (c *Cart) Clear() {
	c.Items = nil
	c.UpdatedAt = time.Now()
}

func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

func (c *Cart) CheckoutItems() []CheckoutItem {
	out := make([]CheckoutItem, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, CheckoutItem{
			ID:       item.ProductID,
			Quantity: item.Quantity,
			Size:     item.Size,
			Color:    item.Color,
		})
	}
	return out
}
