package cart

import (
	"context"
	"errors"
)

type Store interface {
	Get(ctx context.Context, cartID string) (*Cart, error)
	Save(ctx context.Context, cartID string, c *Cart) error
	Delete(ctx context.Context, cartID string) error
}

// ProductLookup loads live catalog data for a product id.
type ProductLookup func(ctx context.Context, productID string) (ProductRef, error)

type Service struct {
	store  Store
	lookup ProductLookup
}

func NewService(store Store, lookup ProductLookup) *Service {
	return &Service{store: store, lookup: lookup}
}

// Load returns an empty cart when none is stored yet.
func (s *Service) Load(ctx context.Context, cartID string) (*Cart, error) {
	c, err := s.store.Get(ctx, cartID)
	if errors.Is(err, ErrCartNotFound) {
		return &Cart{}, nil
	}
	return c, err
}

func (s *Service) AddItem(ctx context.Context, cartID, productID string, quantity int, size, color string) (*Cart, error) {
	c, err := s.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}

	p, err := s.lookup(ctx, productID)
	if err != nil {
		return nil, err
	}

	if _, err := c.Add(p, quantity, size, color); err != nil {
		return nil, err
	}
	return c, s.store.Save(ctx, cartID, c)
}

func (s *Service) UpdateItem(ctx context.Context, cartID, itemID string, quantity int) (*Cart, error) {
	c, err := s.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if _, err := c.UpdateQuantity(itemID, quantity); err != nil {
		return nil, err
	}
	return c, s.store.Save(ctx, cartID, c)
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (*Cart, error) {
	c, err := s.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := c.Remove(itemID); err != nil {
		return nil, err
	}
	return c, s.store.Save(ctx, cartID, c)
}

func (s *Service) Clear(ctx context.Context, cartID string) error {
	return s.store.Delete(ctx, cartID)
}
