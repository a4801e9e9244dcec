package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"image_url"`
	ParentID    *string   `json:"parent_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Prices are minor currency units.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Description    *string   `json:"description"`
	Price          int64     `json:"price"`
	CompareAtPrice *int64    `json:"compare_at_price"`
	Stock          int       `json:"stock"`
	CategoryID     *string   `json:"category_id"`
	Images         []string  `json:"images"`
	Sizes          []string  `json:"sizes"`
	Colors         []string  `json:"colors"`
	IsFeatured     bool      `json:"is_featured"`
	IsFlashOffer   bool      `json:"is_flash_offer"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Customer struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Address struct {
	Line1      string `json:"street"`
	Line2      string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("scan address: unsupported type %T", src)
	}
}

type Order struct {
	ID                string      `json:"id"`
	OrderNumber       string      `json:"order_number"`
	CheckoutSessionID *string     `json:"checkout_session_id,omitempty"`
	CustomerEmail     string      `json:"customer_email"`
	CustomerName      string      `json:"customer_name"`
	CustomerPhone     *string     `json:"customer_phone"`
	ShippingAddress   Address     `json:"shipping_address"`
	Subtotal          int64       `json:"subtotal"`
	ShippingCost      int64       `json:"shipping_cost"`
	Tax               int64       `json:"tax"`
	DiscountAmount    int64       `json:"discount_amount"`
	DiscountCode      *string     `json:"discount_code"`
	Total             int64       `json:"total"`
	Status            string      `json:"status"`
	PaymentStatus     string      `json:"payment_status"`
	PaymentIntentID   *string     `json:"payment_intent_id"`
	Notes             *string     `json:"notes"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Items             []OrderItem `json:"items,omitempty"`
}

// OrderItem is a snapshot taken at purchase time. ProductID is nil when the
// product has since been deleted.
type OrderItem struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	ProductID    *string   `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ProductImage *string   `json:"product_image"`
	Quantity     int       `json:"quantity"`
	Size         *string   `json:"size"`
	Color        *string   `json:"color"`
	UnitPrice    int64     `json:"unit_price"`
	TotalPrice   int64     `json:"total_price"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

func IsOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Customers may cancel until the parcel ships.
func IsCancellable(status string) bool {
	return status == OrderStatusPending || status == OrderStatusPaid || status == OrderStatusProcessing
}

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

type DiscountCode struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Description   *string    `json:"description"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	MinPurchase   int64      `json:"min_purchase"`
	MaxUses       *int       `json:"max_uses"`
	CurrentUses   int        `json:"current_uses"`
	IsActive      bool       `json:"is_active"`
	StartsAt      *time.Time `json:"starts_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const (
	ReturnStatusPending  = "pending"
	ReturnStatusApproved = "approved"
	ReturnStatusRejected = "rejected"
	ReturnStatusRefunded = "refunded"
)

type ReturnRequest struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	TicketNumber string    `json:"ticket_number"`
	Reason       string    `json:"reason"`
	Status       string    `json:"status"`
	RefundNumber *string   `json:"refund_number"`
	RefundAmount *int64    `json:"refund_amount"`
	AdminNotes   *string   `json:"admin_notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	InvoiceKindInvoice    = "invoice"
	InvoiceKindCreditNote = "credit_note"
)

// Credit notes carry a negative Amount and point at the invoice they reverse.
type Invoice struct {
	ID                string    `json:"id"`
	OrderID           string    `json:"order_id"`
	InvoiceNumber     string    `json:"invoice_number"`
	Kind              string    `json:"kind"`
	Amount            int64     `json:"amount"`
	OriginalInvoiceID *string   `json:"original_invoice_id"`
	IssuedAt          time.Time `json:"issued_at"`
}

type NewsletterSubscription struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FirstName        *string   `json:"first_name"`
	DiscountCodeUsed *string   `json:"discount_code_used"`
	Source           string    `json:"source"`
	CreatedAt        time.Time `json:"created_at"`
}

type SiteSetting struct {
	Key         string    `json:"key"`
	Value       []byte    `json:"value"`
	Description *string   `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}
