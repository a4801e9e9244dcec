package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/safar/fashion-store/internal/cart"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/discount"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/payment"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidItem        = errors.New("invalid cart item")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("not enough stock for product")
)

// Metadata keys carried on the hosted session and read back by the webhook.
const (
	MetaCustomerName = "customerName"
	MetaDiscountCode = "discountCode"
	MetaItems        = "items"
)

// ShippingCost is free at or above threshold, otherwise a flat fee.
func ShippingCost(subtotal, threshold, fee int64) int64 {
	if subtotal >= threshold {
		return 0
	}
	return fee
}

type Request struct {
	Items         []cart.CheckoutItem `json:"items"`
	CustomerEmail string              `json:"customerEmail"`
	CustomerName  string              `json:"customerName"`
	DiscountCode  string              `json:"discountCode"`
}

type Result struct {
	SessionID      string `json:"sessionId"`
	URL            string `json:"url"`
	Subtotal       int64  `json:"subtotal"`
	ShippingCost   int64  `json:"shippingCost"`
	DiscountAmount int64  `json:"discountAmount"`
	DiscountCode   string `json:"discountCode,omitempty"`
}

type ProductSource func(ctx context.Context, ids []string) (map[string]models.Product, error)

type DiscountValidator interface {
	Validate(ctx context.Context, code string, subtotal int64) (discount.Result, error)
}

type Redeemer func(ctx context.Context, code string) error

type Options struct {
	SiteURL               string
	Currency              string
	FreeShippingThreshold int64
	ShippingFee           int64
	AllowedCountries      []string
	PaymentMethods        []string
}

type Service struct {
	products  ProductSource
	discounts DiscountValidator
	redeem    Redeemer
	provider  payment.Provider
	opts      Options
}

func NewService(products ProductSource, discounts DiscountValidator, redeem Redeemer, provider payment.Provider, opts Options) *Service {
	return &Service{
		products:  products,
		discounts: discounts,
		redeem:    redeem,
		provider:  provider,
		opts:      opts,
	}
}

// EncodeManifest produces the minimal item payload stored in session metadata.
func EncodeManifest(items []cart.CheckoutItem) (string, error) {
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeManifest(raw string) ([]cart.CheckoutItem, error) {
	var items []cart.CheckoutItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode item manifest: %w", err)
	}
	return items, nil
}

// CreateSession prices the cart from the catalog and opens a hosted checkout.
// Client-sent prices are never trusted.
func (s *Service) CreateSession(ctx context.Context, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ID == "" || item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
		}
		ids = append(ids, item.ID)
	}

	products, err := s.products(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	requested := map[string]int{}
	for _, item := range req.Items {
		requested[item.ID] += item.Quantity
	}

	var subtotal int64
	lineItems := make([]payment.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := products[item.ID]
		if !ok || !p.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, item.ID)
		}
		if requested[item.ID] > p.Stock {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, p.Name)
		}

		lineItems = append(lineItems, payment.LineItem{
			Name:       lineName(p.Name, item.Size, item.Color),
			Image:      p.FirstImage(),
			UnitAmount: p.Price,
			Quantity:   int64(item.Quantity),
		})
		subtotal += p.Price * int64(item.Quantity)
	}

	result := &Result{
		Subtotal:     subtotal,
		ShippingCost: ShippingCost(subtotal, s.opts.FreeShippingThreshold, s.opts.ShippingFee),
	}

	couponID := s.applyDiscount(ctx, req.DiscountCode, subtotal, result)

	manifest, err := EncodeManifest(req.Items)
	if err != nil {
		return nil, fmt.Errorf("encode item manifest: %w", err)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payment.SessionRequest{
		LineItems:      lineItems,
		Currency:       s.opts.Currency,
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		ShippingAmount: result.ShippingCost,
		ShippingLabel:  shippingLabel(result.ShippingCost),
		CouponID:       couponID,
		Metadata: map[string]string{
			MetaCustomerName: req.CustomerName,
			MetaDiscountCode: result.DiscountCode,
			MetaItems:        manifest,
		},
		SuccessURL:       s.opts.SiteURL + "/pedido/exito?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:        s.opts.SiteURL + "/pedido/cancelado",
		AllowedCountries: s.opts.AllowedCountries,
		PaymentMethods:   s.opts.PaymentMethods,
	})
	if err != nil {
		return nil, err
	}

	result.SessionID = session.ID
	result.URL = session.URL
	return result, nil
}

// applyDiscount mints a provider coupon for a valid code. Any failure along the
// way drops the discount and checkout continues at full price.
func (s *Service) applyDiscount(ctx context.Context, code string, subtotal int64, result *Result) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	res, err := s.discounts.Validate(ctx, code, subtotal)
	if err != nil {
		log.Printf("checkout: validate discount %q: %v", code, err)
		return ""
	}
	if !res.Valid {
		return ""
	}

	couponID, err := s.provider.CreateCoupon(ctx, payment.CouponRequest{
		Code:         res.Code,
		DiscountType: res.DiscountType,
		Value:        res.DiscountValue,
		Currency:     s.opts.Currency,
	})
	if err != nil {
		log.Printf("checkout: create coupon for %q, continuing without discount: %v", res.Code, err)
		return ""
	}

	if err := s.redeem(ctx, res.Code); err != nil {
		if errors.Is(err, database.ErrDiscountExhausted) {
			return ""
		}
		log.Printf("checkout: redeem discount %q: %v", res.Code, err)
	}

	result.DiscountAmount = res.DiscountAmount
	result.DiscountCode = res.Code
	return couponID
}

func lineName(name, size, color string) string {
	var variant []string
	if size != "" {
		variant = append(variant, "Size "+size)
	}
	if color != "" {
		variant = append(variant, color)
	}
	if len(variant) == 0 {
		return name
	}
	return name + " (" + strings.Join(variant, ", ") + ")"
}

func shippingLabel(cost int64) string {
	if cost == 0 {
		return "Free shipping"
	}
	return "Standard shipping"
}
